package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/kokistudios/specgate/internal/integrate"
	"github.com/kokistudios/specgate/internal/phase"
	"github.com/kokistudios/specgate/internal/store"
	"github.com/kokistudios/specgate/internal/ui"
)

// watchStatus redraws the status whenever the state file changes until ctx
// is cancelled. The state directory is watched rather than the file because
// saves replace the file by rename.
func watchStatus(ctx context.Context, in *integrate.Integrator, last integrate.StatusInfo) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := in.Store().Dir
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	ui.Logger.Debug("watching workflow state", "dir", dir)
	ui.EmptyState("Watching for changes (Ctrl+C to stop)")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != store.StateFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			st := in.GetStatus()
			if st.Error != "" {
				ui.Warning(st.Error)
				continue
			}
			for _, p := range newlyCompleted(last, st) {
				ui.PhaseComplete(string(p))
				ui.Notify("specgate", fmt.Sprintf("%s phase complete", p.Info().Label))
			}
			fmt.Fprintln(os.Stderr)
			printStatus(st)
			last = st
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ui.Logger.Warn("watch error", "err", err)
		}
	}
}

func newlyCompleted(before, after integrate.StatusInfo) []phase.Phase {
	var out []phase.Phase
	for _, p := range after.CompletedPhases {
		if !before.IsCompleted(p) {
			out = append(out, p)
		}
	}
	return out
}
