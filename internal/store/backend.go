package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/kokistudios/specgate/internal/marker"
)

// ErrNoState is returned by ReadState when nothing has been persisted yet.
var ErrNoState = errors.New("no workflow state persisted")

// Backend persists the serialized workflow state and the phase markers.
type Backend interface {
	ReadState() ([]byte, error)
	WriteState(data []byte) error
	RemoveState() error
	StateLocation() string

	HasMarker(phase string) (bool, error)
	SetMarker(m *marker.Marker) error
	ClearMarker(phase string) error
	Markers() ([]string, error)
}

// FileBackend stores state and markers under a workspace state directory.
type FileBackend struct {
	dir string
}

// NewFileBackend returns a backend rooted at dir (normally <root>/.spec-kit).
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) statePath() string     { return filepath.Join(b.dir, StateFile) }
func (b *FileBackend) markerDir() string     { return filepath.Join(b.dir, MarkersDir) }
func (b *FileBackend) StateLocation() string { return b.statePath() }

func (b *FileBackend) ReadState() ([]byte, error) {
	data, err := os.ReadFile(b.statePath())
	if os.IsNotExist(err) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	return data, nil
}

// WriteState replaces the state file atomically via a temp file and rename.
func (b *FileBackend) WriteState(data []byte) error {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(b.dir, "."+StateFile+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close state: %w", err)
	}
	if err := os.Rename(tmpName, b.statePath()); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}

func (b *FileBackend) RemoveState() error {
	if err := os.Remove(b.statePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state: %w", err)
	}
	return nil
}

func (b *FileBackend) HasMarker(phase string) (bool, error) {
	return marker.Exists(b.markerDir(), phase)
}

func (b *FileBackend) SetMarker(m *marker.Marker) error {
	return marker.Write(b.markerDir(), m)
}

func (b *FileBackend) ClearMarker(phase string) error {
	return marker.Clear(b.markerDir(), phase)
}

func (b *FileBackend) Markers() ([]string, error) {
	return marker.List(b.markerDir())
}

// MemoryBackend keeps everything in process memory. Used by tests and by
// callers that do not want to touch the filesystem.
type MemoryBackend struct {
	mu      sync.Mutex
	state   []byte
	markers map[string]marker.Marker
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{markers: make(map[string]marker.Marker)}
}

func (b *MemoryBackend) StateLocation() string { return "memory" }

func (b *MemoryBackend) ReadState() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == nil {
		return nil, ErrNoState
	}
	out := make([]byte, len(b.state))
	copy(out, b.state)
	return out, nil
}

func (b *MemoryBackend) WriteState(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = append([]byte{}, data...)
	return nil
}

func (b *MemoryBackend) RemoveState() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = nil
	return nil
}

func (b *MemoryBackend) HasMarker(phase string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.markers[phase]
	return ok, nil
}

func (b *MemoryBackend) SetMarker(m *marker.Marker) error {
	if m == nil || m.Phase == "" {
		return fmt.Errorf("marker requires a phase")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *m
	if cp.CompletedAt.IsZero() {
		cp.CompletedAt = time.Now().UTC()
	}
	b.markers[m.Phase] = cp
	return nil
}

func (b *MemoryBackend) ClearMarker(phase string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.markers, phase)
	return nil
}

func (b *MemoryBackend) Markers() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.markers))
	for p := range b.markers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}
