package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kokistudios/specgate/internal/integrate"
	specmcp "github.com/kokistudios/specgate/internal/mcp"
	"github.com/kokistudios/specgate/internal/phase"
	"github.com/kokistudios/specgate/internal/store"
	"github.com/kokistudios/specgate/internal/trace"
	"github.com/kokistudios/specgate/internal/ui"
	"github.com/kokistudios/specgate/internal/validate"
)

// Set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	workspace string
	noColor   bool
	logLevel  string
)

// errSilent signals a failure that has already been reported.
var errSilent = errors.New("")

func buildVersion() string {
	if commit == "none" {
		return version
	}
	return fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "specgate",
		Short: "specgate: phase-gated product → specify → plan → tasks workflow",
		Long: "Tracks a spec-driven workflow through its four phases, refuses to start a phase before " +
			"its predecessors are complete, carries structured context from one phase document to the next " +
			"and scores how well requirements trace through the chain.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logLevel
			if level == "" {
				if cfg, err := store.LoadConfig(filepath.Join(workspaceRoot(), store.DirName, store.ConfigFile)); err == nil {
					level = cfg.Log.Level
				}
			}
			ui.Init(noColor, level)
		},
	}

	rootCmd.Version = buildVersion()
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "", "Workspace root (default: $SPECGATE_WORKSPACE or the current directory)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (default: log.level from config)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "workflow", Title: "Workflow Commands:"},
		&cobra.Group{ID: "context", Title: "Context Commands:"},
		&cobra.Group{ID: "validation", Title: "Validation Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)

	for _, c := range []*cobra.Command{statusCmd(), checkCmd(), guideCmd(), startCmd(), completeCmd(), resetCmd(), clearCmd()} {
		c.GroupID = "workflow"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{contextCmd(), injectCmd()} {
		c.GroupID = "context"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{validateCmd(), traceCmd()} {
		c.GroupID = "validation"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{initCmd(), configCmd(), doctorCmd()} {
		c.GroupID = "config"
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(completionCmd())
	rootCmd.AddCommand(mcpServeCmd())

	if err := rootCmd.Execute(); err != nil {
		if err != errSilent {
			ui.Error(err.Error())
		}
		os.Exit(1)
	}
}

func workspaceRoot() string {
	if workspace != "" {
		return workspace
	}
	return store.Root()
}

func openIntegrator() (*integrate.Integrator, error) {
	in, err := integrate.Open(workspaceRoot(), integrate.WithLogger(ui.Logger))
	if err != nil {
		return nil, fmt.Errorf("cannot open workspace: %w", err)
	}
	return in, nil
}

// fail turns a façade (ok, message) pair into a command error.
func fail(ok bool, msg string) error {
	if ok {
		return nil
	}
	return errors.New(msg)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printYAML(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func phaseArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return phase.Names(), cobra.ShellCompDirectiveNoFileComp
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Initialize the workspace state directory",
		Long:    "Create .spec-kit/ under the workspace root with phase-markers/, templates/ and a default config.yaml.",
		Example: "  specgate init\n  specgate init --force",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(workspaceRoot())
			if err != nil {
				return err
			}
			if err := store.Init(root, force); err != nil {
				return err
			}
			ui.Success("specgate initialized")
			ui.Detail("Workspace:", root)
			ui.Detail("State:    ", filepath.Join(root, store.DirName))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Rewrite config.yaml even if the workspace is already initialized")
	return cmd
}

func pipeline(st integrate.StatusInfo) string {
	steps := make([]ui.Step, 0, len(phase.Sequence()))
	for _, p := range phase.Sequence() {
		steps = append(steps, ui.Step{
			Name:    string(p),
			Done:    st.IsCompleted(p),
			Current: p == st.CurrentPhase && !st.IsCompleted(p),
		})
	}
	return ui.Pipeline(steps)
}

func printStatus(st integrate.StatusInfo) {
	fmt.Fprintln(os.Stderr, pipeline(st))
	fmt.Fprintln(os.Stderr)
	if st.FeatureName != "" {
		ui.KeyValue("Feature:    ", st.FeatureName)
	}
	current := ui.Dim("-")
	if st.CurrentPhase != "" {
		current = ui.Yellow(string(st.CurrentPhase) + " (in progress)")
	}
	ui.KeyValue("Current:    ", current)
	if st.Done() {
		ui.KeyValue("Next:       ", ui.Green("workflow complete"))
	} else {
		ui.KeyValue("Next:       ", fmt.Sprintf("%s (%s)", st.NextPhase, st.NextPhase.Info().Command))
	}
	can := make([]string, len(st.CanProceedTo))
	for i, p := range st.CanProceedTo {
		can[i] = string(p)
	}
	if len(can) > 0 {
		ui.KeyValue("Can start:  ", strings.Join(can, ", "))
	}
	if !st.LastUpdated.IsZero() {
		ui.KeyValue("Updated:    ", ui.Dim(st.LastUpdated.Local().Format("2006-01-02 15:04:05")))
	}
}

func statusCmd() *cobra.Command {
	var watch, asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workflow progress",
		Long:  "Show the current phase, completed phases and what can start next. With --watch, redraw whenever the workflow state file changes and send a desktop notification when a phase completes.",
		Example: `  specgate status
  specgate status --json
  specgate status --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openIntegrator()
			if err != nil {
				return err
			}
			st := in.GetStatus()
			if st.Error != "" {
				return errors.New(st.Error)
			}
			if asJSON {
				return printJSON(st)
			}
			printStatus(st)
			if !watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchStatus(ctx, in, st)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and redraw on every state change")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "check <phase>",
		Short:             "Check whether a phase's prerequisites are met",
		Example:           "  specgate check plan",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: phaseArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openIntegrator()
			if err != nil {
				return err
			}
			ok, msg := in.ValidatePrerequisites(args[0])
			if err := fail(ok, msg); err != nil {
				return err
			}
			ui.Success(msg)
			return nil
		},
	}
}

func guideCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:               "guide <phase>",
		Short:             "Explain what to do next for a phase",
		Example:           "  specgate guide specify",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: phaseArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openIntegrator()
			if err != nil {
				return err
			}
			g := in.Guidance(args[0])
			if g.Error != "" {
				return errors.New(g.Error)
			}
			if asJSON {
				return printJSON(g)
			}
			status := ui.Green(g.Status)
			if g.Status == integrate.StatusBlocked {
				status = ui.Red(g.Status)
			}
			ui.KeyValue("Phase: ", ui.Bold(string(g.Phase)))
			ui.KeyValue("Status:", status)
			if g.NextCommand != "" {
				ui.KeyValue("Run:   ", g.NextCommand)
			}
			ui.KeyValue("Do:    ", g.Description)
			if g.Notes != "" {
				ui.Detail("Note:", g.Notes)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the guidance as JSON")
	return cmd
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "start <phase>",
		Short:             "Mark a phase as the current phase",
		Long:              "Record that work on a phase has begun. Fails when an earlier phase is not complete.",
		Example:           "  specgate start specify",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: phaseArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openIntegrator()
			if err != nil {
				return err
			}
			ec := in.PrepareCommand("start", args[0])
			if !ec.PrerequisitesMet {
				return errors.New(ec.Error)
			}
			if err := fail(in.StartPhase(args[0])); err != nil {
				return err
			}
			ui.Status(fmt.Sprintf("Started %s phase", ec.Target))
			if up, ok := phase.Upstream(ec.Target); ok {
				if _, found := in.GetContext(string(up)); found {
					ui.Detail("Context:", fmt.Sprintf("%s context available (specgate context %s)", up.Info().Label, up))
				}
			}
			if tmpl := ec.Target.Info().Template; tmpl != "" {
				ui.Detail("Template:", fmt.Sprintf("specgate inject %s > %s", ec.Target, in.DocumentPath(ec.Target)))
			}
			return nil
		},
	}
}

func completeCmd() *cobra.Command {
	var doc string
	cmd := &cobra.Command{
		Use:   "complete <phase>",
		Short: "Complete a phase from its document",
		Long: "Read the phase document, extract its context for the next phase, record its hash " +
			"and mark the phase complete. The document defaults to the path configured under documents.<phase>.",
		Example: `  specgate complete product
  specgate complete specify --doc docs/spec.md`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: phaseArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openIntegrator()
			if err != nil {
				return err
			}
			ok, msg := in.CompleteFromDocument(args[0], doc)
			if err := fail(ok, msg); err != nil {
				return err
			}
			p := phase.MustParse(args[0])
			ui.PhaseComplete(string(p))
			ui.Detail("", msg)
			st := in.GetStatus()
			fmt.Fprintln(os.Stderr, pipeline(st))
			if next, ok := phase.Next(p); ok {
				ui.Detail("Next:", fmt.Sprintf("%s (%s)", next, next.Info().Command))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&doc, "doc", "", "Path of the phase document (default: documents.<phase> from config)")
	return cmd
}

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:               "reset <phase>",
		Short:             "Reset a phase and every later phase",
		Example:           "  specgate reset plan\n  specgate reset specify --yes",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: phaseArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := phase.Parse(args[0])
			if err != nil {
				return err
			}
			in, err := openIntegrator()
			if err != nil {
				return err
			}
			if !yes {
				affected := []string{string(p)}
				for _, l := range phase.Later(p) {
					affected = append(affected, string(l))
				}
				proceed, err := ui.Confirm(fmt.Sprintf("Reset %s?", strings.Join(affected, ", ")))
				if err != nil {
					return err
				}
				if !proceed {
					ui.Info("Cancelled.")
					return nil
				}
			}
			ok, msg := in.ResetPhase(args[0])
			if err := fail(ok, msg); err != nil {
				return err
			}
			ui.Success(msg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip confirmation prompt")
	return cmd
}

func clearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all workflow state and phase markers",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openIntegrator()
			if err != nil {
				return err
			}
			if !yes {
				proceed, err := ui.Confirm("Clear all workflow state?")
				if err != nil {
					return err
				}
				if !proceed {
					ui.Info("Cancelled.")
					return nil
				}
			}
			ok, msg := in.Clear()
			if err := fail(ok, msg); err != nil {
				return err
			}
			ui.Success(msg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip confirmation prompt")
	return cmd
}

func contextCmd() *cobra.Command {
	var asJSON, render bool
	cmd := &cobra.Command{
		Use:               "context <phase>",
		Short:             "Show the context captured from a completed phase",
		Example:           "  specgate context product\n  specgate context specify --json",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: phaseArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := phase.Parse(args[0])
			if err != nil {
				return err
			}
			in, err := openIntegrator()
			if err != nil {
				return err
			}
			data, ok := in.GetContext(args[0])
			if !ok {
				ui.EmptyState(fmt.Sprintf("No context stored for %s. Run 'specgate complete %s' first.", p, p))
				return nil
			}
			if asJSON {
				return printJSON(data)
			}
			if !render {
				return printYAML(data)
			}
			body, err := yaml.Marshal(data)
			if err != nil {
				return fmt.Errorf("failed to marshal context: %w", err)
			}
			ui.RenderMarkdown(os.Stdout, fmt.Sprintf("# %s context\n\n```yaml\n%s```\n", p.Info().Label, body))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the context as JSON")
	cmd.Flags().BoolVar(&render, "render", false, "Render for the terminal")
	return cmd
}

func injectCmd() *cobra.Command {
	var templateID string
	var render bool
	cmd := &cobra.Command{
		Use:   "inject <phase>",
		Short: "Print a phase template filled with upstream context",
		Long: "Render the template for a phase with the previous phase's context substituted into its " +
			"placeholders. Templates resolve from templates.dir first, then the built-in defaults.",
		Example: `  specgate inject specify > spec.md
  specgate inject plan --template ./my-plan.md
  specgate inject tasks --render`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: phaseArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openIntegrator()
			if err != nil {
				return err
			}
			out, ok, note := in.InjectTemplate(args[0], templateID)
			if err := fail(ok, note); err != nil {
				return err
			}
			ui.Logger.Info(note, "phase", args[0])
			if render {
				ui.RenderMarkdown(os.Stdout, out)
				return nil
			}
			fmt.Print(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&templateID, "template", "", "Template id or path (default: the phase template)")
	cmd.Flags().BoolVar(&render, "render", false, "Render for the terminal instead of printing raw markdown")
	return cmd
}

func printIssues(issues []validate.Issue) {
	for _, issue := range issues {
		ui.Issue(string(issue.Level), issue.Message, issue.Suggestion)
	}
}

func validateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate spec|plan [file]",
		Short: "Validate a specification or implementation plan",
		Long: "Score a document for required sections, quality and clarity (spec) or feasibility (plan). " +
			"The file defaults to the configured spec or plan document.",
		Example: `  specgate validate spec
  specgate validate plan docs/plan.md --json`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"spec", "plan"},
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openIntegrator()
			if err != nil {
				return err
			}
			kind := args[0]
			var path string
			if len(args) == 2 {
				path = args[1]
			} else {
				p := phase.PhaseSpecify
				if kind == "plan" {
					p = phase.PhasePlan
				}
				path = in.DocumentPath(p)
			}
			res, ok, msg := in.ValidateDocument(kind, path)
			if err := fail(ok, msg); err != nil {
				return err
			}
			if asJSON {
				if err := printJSON(res); err != nil {
					return err
				}
			} else {
				threshold := in.Store().Config.Validation.DocumentThreshold
				ui.KeyValue("Document:", path)
				ui.KeyValue("Score:   ", ui.Score(res.Score, threshold))
				keys := make([]string, 0, len(res.Details))
				for k := range res.Details {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					ui.Detail(strings.TrimSuffix(k, "_score")+":", fmt.Sprintf("%.2f", res.Details[k]))
				}
				printIssues(res.Issues)
				fmt.Fprintln(os.Stderr)
				if res.Valid {
					ui.Success(res.Summary)
				} else {
					ui.Error(res.Summary)
				}
			}
			if !res.Valid {
				return errSilent
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func traceCmd() *cobra.Command {
	var report, asJSON bool
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Score requirement traceability across completed phases",
		Long: "Check that context flowed between completed phases, that requirements carried through " +
			"each phase and that phase markers agree with the recorded state. --report prints the full " +
			"report (YAML by default).",
		Example: `  specgate trace
  specgate trace --report
  specgate trace --report --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openIntegrator()
			if err != nil {
				return err
			}
			tracer := in.Tracer()

			if report {
				r, err := tracer.Report()
				if err != nil {
					return err
				}
				var data []byte
				if asJSON {
					data, err = r.JSON()
				} else {
					data, err = r.YAML()
				}
				if err != nil {
					return err
				}
				fmt.Println(strings.TrimRight(string(data), "\n"))
				if !r.Validation.Valid {
					return errSilent
				}
				return nil
			}

			res, err := tracer.Validate()
			if err != nil {
				return err
			}
			if asJSON {
				if err := printJSON(res); err != nil {
					return err
				}
			} else {
				printTrace(res, tracer.Threshold())
				flow := in.ValidateWorkflowIntegrity()
				if len(flow.Issues) > 0 {
					ui.SectionHeader("Context flow")
					printIssues(flow.Issues)
				}
			}
			if !res.Valid {
				return errSilent
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&report, "report", false, "Print the full traceability report")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of YAML/text")
	return cmd
}

func printTrace(res trace.Result, threshold float64) {
	ui.KeyValue("Score:", ui.Score(res.Score, threshold))
	for _, k := range []string{trace.DetailContextFlow, trace.DetailRequirements, trace.DetailConsistency} {
		if v, ok := res.Details[k]; ok {
			ui.Detail(strings.TrimSuffix(k, "_score")+":", ui.Score(v, trace.PassingScore))
		}
	}
	if len(res.Matrices) > 0 {
		ui.SectionHeader("Matrices")
		rows := make([][]string, 0, len(res.Matrices))
		for _, m := range res.Matrices {
			rows = append(rows, []string{
				fmt.Sprintf("%s → %s", m.Source, m.Target),
				fmt.Sprintf("%d/%d", m.Traced, m.Total),
				fmt.Sprintf("%.0f%%", m.Coverage*100),
				fmt.Sprintf("%d", len(m.Links)),
			})
		}
		ui.Table([]string{"PHASES", "TRACED", "COVERAGE", "LINKS"}, rows)
	}
	if len(res.Issues) > 0 {
		ui.SectionHeader("Issues")
		printIssues(res.Issues)
	}
	fmt.Fprintln(os.Stderr)
	if res.Valid {
		ui.Success(res.Summary)
	} else {
		ui.Error(res.Summary)
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and edit workspace configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configGetCmd())
	cmd.AddCommand(configSetCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(workspaceRoot())
			if err != nil {
				return err
			}
			return printYAML(s.Config)
		},
	}
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "get <key>",
		Short:     "Print a configuration value",
		Args:      cobra.ExactArgs(1),
		ValidArgs: store.ConfigKeys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(workspaceRoot())
			if err != nil {
				return err
			}
			v, err := s.GetConfigValue(args[0])
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a workspace configuration value. Valid keys: " + strings.Join(store.ConfigKeys(), ", ") + ".",
		Example: `  specgate config set log.level debug
  specgate config set validation.traceability_threshold 0.9
  specgate config set documents.specify docs/spec.md`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: store.ConfigKeys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(workspaceRoot())
			if err != nil {
				return err
			}
			if err := s.SetConfigValue(args[0], args[1]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Set %s = %s", args[0], args[1]))
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check health of the workspace state",
		Long: "Check the state directory, config.yaml, the workflow state file and phase markers. " +
			"--fix recreates missing directories, removes leftover temp files, normalizes the " +
			"completed phases and brings markers in line with them. A corrupt state file is never rewritten.",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(workspaceRoot())
			if err != nil {
				return err
			}

			if fix {
				ui.CommandBanner("DOCTOR", "repair mode")
				fixed := store.FixIssues(root)
				if in, err := openIntegrator(); err == nil {
					repaired, err := in.State().Repair()
					if err != nil {
						ui.Warning(fmt.Sprintf("Workflow state not repaired: %v", err))
					}
					fixed = append(fixed, repaired...)
				}
				for _, f := range fixed {
					ui.Success(fmt.Sprintf("[FIXED] %s", f))
				}
				if len(fixed) == 0 {
					ui.EmptyState("Nothing to fix.")
				}
			} else {
				ui.CommandBanner("DOCTOR", "health check")
			}

			issues := store.CheckHealth(root)
			if in, err := openIntegrator(); err == nil {
				if st := in.GetStatus(); st.Error != "" {
					issues = append(issues, store.Issue{Severity: "error", Message: st.Error})
				} else {
					for _, p := range st.CompletedPhases {
						if has, err := in.State().HasMarker(p); err == nil && !has {
							issues = append(issues, store.Issue{
								Severity: "warning",
								Message:  fmt.Sprintf("%s is complete but has no phase marker (run 'specgate doctor --fix')", p),
							})
						}
					}
					for _, issue := range in.ValidateWorkflowIntegrity().Issues {
						issues = append(issues, store.Issue{Severity: "warning", Message: issue.Message})
					}
				}
			}

			if len(issues) == 0 {
				ui.Success("Everything looks good")
				return nil
			}

			hasError := false
			for _, issue := range issues {
				if issue.Severity == "error" {
					ui.Error(fmt.Sprintf("[ERR]  %s", issue.Message))
					hasError = true
				} else {
					ui.Warning(fmt.Sprintf("[WARN] %s", issue.Message))
				}
			}

			if hasError {
				os.Exit(2)
			}
			os.Exit(1)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Repair structural issues and realign phase markers")
	return cmd
}

func completionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish]",
		Short:     "Generate shell completion scripts",
		Long:      "Generate shell completion scripts for bash, zsh, or fish. Output the script to stdout for sourcing in your shell profile.",
		Example:   "  specgate completion bash > ~/.bashrc.d/specgate\n  specgate completion zsh > ~/.zfunc/_specgate",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			default:
				return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", args[0])
			}
		},
	}
}

func mcpServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "mcp-serve",
		Short:  "Run specgate as an MCP server",
		Long:   "Start specgate as a Model Context Protocol (MCP) server over stdio so coding agents can check prerequisites, complete phases and score traceability directly.",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openIntegrator()
			if err != nil {
				return err
			}
			server := specmcp.NewServer(in, version)
			return server.Run(context.Background())
		},
	}
}
