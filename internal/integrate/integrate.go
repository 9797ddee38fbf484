// Package integrate is the entry point used by commands and scripts. It
// checks prerequisites before a command runs, hands upstream context to it,
// and records completion afterwards. Every failure is reported as an
// (ok, message) pair; internal error types do not cross this boundary.
package integrate

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kokistudios/specgate/internal/artifact"
	"github.com/kokistudios/specgate/internal/feature"
	"github.com/kokistudios/specgate/internal/phase"
	"github.com/kokistudios/specgate/internal/store"
	"github.com/kokistudios/specgate/internal/trace"
	"github.com/kokistudios/specgate/internal/transfer"
	"github.com/kokistudios/specgate/internal/validate"
	"github.com/kokistudios/specgate/internal/workflow"
)

// Integrator wires the workflow components for one workspace.
type Integrator struct {
	store    *store.Store
	state    *workflow.Manager
	contexts *transfer.Manager
	tracer   *trace.Validator
	spec     *validate.Specification
	plan     *validate.Plan
	logger   *log.Logger
}

type options struct {
	logger         *log.Logger
	probe          feature.Probe
	now            func() time.Time
	traceThreshold float64
	docThreshold   float64
}

// Option configures an Integrator.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProbe sets the feature-name probe used when state is first created.
func WithProbe(p feature.Probe) Option {
	return func(o *options) { o.probe = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTraceThreshold sets the minimum passing traceability score.
func WithTraceThreshold(t float64) Option {
	return func(o *options) { o.traceThreshold = t }
}

// WithDocumentThreshold sets the minimum passing document score.
func WithDocumentThreshold(t float64) Option {
	return func(o *options) { o.docThreshold = t }
}

// New builds an Integrator over an arbitrary backend and template source.
func New(backend store.Backend, templates artifact.TemplateSource, opts ...Option) *Integrator {
	o := options{
		logger:         log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel}),
		traceThreshold: trace.DefaultThreshold,
		docThreshold:   validate.DefaultThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}

	wopts := []workflow.Option{workflow.WithLogger(o.logger.WithPrefix("workflow"))}
	if o.probe != nil {
		wopts = append(wopts, workflow.WithProbe(o.probe))
	}
	if o.now != nil {
		wopts = append(wopts, workflow.WithClock(o.now))
	}
	state := workflow.NewManager(backend, wopts...)

	topts := []transfer.Option{transfer.WithLogger(o.logger.WithPrefix("transfer"))}
	if o.now != nil {
		topts = append(topts, transfer.WithExtractor(transfer.Extractor{Now: o.now}))
	}
	contexts := transfer.NewManager(state, templates, topts...)

	spec := validate.NewSpecification()
	spec.Threshold = o.docThreshold
	plan := validate.NewPlan()
	plan.Threshold = o.docThreshold

	return &Integrator{
		state:    state,
		contexts: contexts,
		tracer:   trace.NewValidator(state, contexts, trace.WithThreshold(o.traceThreshold)),
		spec:     spec,
		plan:     plan,
		logger:   o.logger,
	}
}

// Open opens the workspace at root with file-backed state, workspace
// templates, the git branch probe and the thresholds from config.yaml.
// Options given here override those defaults.
func Open(root string, opts ...Option) (*Integrator, error) {
	s, err := store.Open(root)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithProbe(feature.GitProbe{Dir: s.Root}),
		WithTraceThreshold(s.Config.Validation.TraceabilityThreshold),
		WithDocumentThreshold(s.Config.Validation.DocumentThreshold),
	}
	in := New(s.Backend(), artifact.Templates{Dir: s.TemplatesPath()}, append(base, opts...)...)
	in.store = s
	return in, nil
}

// Store returns the opened workspace, or nil for an Integrator built with New.
func (in *Integrator) Store() *store.Store { return in.store }

// State returns the underlying state manager.
func (in *Integrator) State() *workflow.Manager { return in.state }

// Contexts returns the underlying context transfer manager.
func (in *Integrator) Contexts() *transfer.Manager { return in.contexts }

// Tracer returns the traceability validator.
func (in *Integrator) Tracer() *trace.Validator { return in.tracer }

// DocumentPath returns where the document of p is expected.
func (in *Integrator) DocumentPath(p phase.Phase) string {
	if in.store != nil {
		return in.store.DocumentPath(string(p))
	}
	return artifact.PhaseFilename(p)
}

// message renders err for a caller outside this package.
func message(err error) string {
	var pe *workflow.PrerequisiteError
	if errors.As(err, &pe) {
		return pe.Guidance()
	}
	var ue *phase.UnknownPhaseError
	if errors.As(err, &ue) {
		return fmt.Sprintf("Invalid phase name: %q (expected one of %s)", ue.Name, strings.Join(phase.Names(), ", "))
	}
	return err.Error()
}

// ValidatePrerequisites reports whether the phase named name may start.
func (in *Integrator) ValidatePrerequisites(name string) (bool, string) {
	p, err := phase.Parse(name)
	if err != nil {
		return false, message(err)
	}
	if err := in.state.ValidatePrerequisites(p); err != nil {
		return false, message(err)
	}
	return true, fmt.Sprintf("%s phase prerequisites met", p)
}

// StatusInfo is workflow.Status plus the failure message, if any.
type StatusInfo struct {
	workflow.Status `yaml:",inline"`
	Error           string `yaml:"error,omitempty" json:"error,omitempty"`
}

// GetStatus returns workflow progress. On failure the status is empty and
// Error describes the problem.
func (in *Integrator) GetStatus() StatusInfo {
	st, err := in.state.Status()
	if err != nil {
		return StatusInfo{
			Status: workflow.Status{CompletedPhases: []phase.Phase{}, CanProceedTo: []phase.Phase{}},
			Error:  "Failed to get workflow status: " + message(err),
		}
	}
	return StatusInfo{Status: st}
}

// GetContext returns the context stored for the phase named name.
func (in *Integrator) GetContext(name string) (map[string]interface{}, bool) {
	p, err := phase.Parse(name)
	if err != nil {
		return nil, false
	}
	data, ok, err := in.contexts.RetrieveData(p)
	if err != nil {
		in.logger.Warn("failed to load phase context", "phase", p, "err", err)
		return nil, false
	}
	return data, ok
}

// StartPhase marks the phase named name as in progress.
func (in *Integrator) StartPhase(name string) (bool, string) {
	p, err := phase.Parse(name)
	if err != nil {
		return false, message(err)
	}
	if err := in.state.StartPhase(p); err != nil {
		return false, message(err)
	}
	return true, fmt.Sprintf("Started %s phase", p)
}

// CompletePhase stores contextData (when given) and marks the phase named
// name complete, hashing content for later integrity checks.
func (in *Integrator) CompletePhase(name, content string, contextData map[string]interface{}) (bool, string) {
	p, err := phase.Parse(name)
	if err != nil {
		return false, message(err)
	}
	if err := in.state.ValidatePrerequisites(p); err != nil {
		return false, message(err)
	}
	var storeContext func() error
	if contextData != nil {
		storeContext = func() error { return in.contexts.StoreData(p, contextData) }
	}
	if err := in.complete(p, content, storeContext); err != nil {
		return false, message(err)
	}
	return true, fmt.Sprintf("Completed %s phase", p)
}

// complete runs storeContext (when non-nil) and then completes p. If the
// completion fails, the context stored before is put back.
func (in *Integrator) complete(p phase.Phase, content string, storeContext func() error) error {
	if storeContext == nil {
		return in.state.CompletePhase(p, content)
	}
	prev, _, err := in.contexts.RetrieveData(p)
	if err != nil {
		return err
	}
	if err := storeContext(); err != nil {
		return err
	}
	if err := in.state.CompletePhase(p, content); err != nil {
		if rerr := in.contexts.StoreData(p, prev); rerr != nil {
			in.logger.Warn("failed to restore phase context", "phase", p, "err", rerr)
		}
		return err
	}
	return nil
}

// CompleteFromDocument reads the phase document at docPath (or the
// configured location when empty), stores its extracted context unless the
// phase is terminal, and marks the phase complete.
func (in *Integrator) CompleteFromDocument(name, docPath string) (bool, string) {
	p, err := phase.Parse(name)
	if err != nil {
		return false, message(err)
	}
	if err := in.state.ValidatePrerequisites(p); err != nil {
		return false, message(err)
	}
	if docPath == "" {
		docPath = in.DocumentPath(p)
	}

	r, doc, err := in.contexts.ExtractDocument(p, docPath)
	if err != nil {
		return false, message(err)
	}
	if err := artifact.Validate(doc); err != nil {
		in.logger.Warn("document has little to extract", "phase", p, "err", err)
	}
	var storeContext func() error
	if phase.ProducesContext(p) {
		storeContext = func() error { return in.contexts.Store(p, r) }
	}
	if err := in.complete(p, doc.RawContent, storeContext); err != nil {
		return false, message(err)
	}
	return true, fmt.Sprintf("Completed %s phase from %s (%d traceable elements)", p, docPath, len(r.Elements()))
}

// ResetPhase reverts the phase named name and every later phase.
func (in *Integrator) ResetPhase(name string) (bool, string) {
	p, err := phase.Parse(name)
	if err != nil {
		return false, message(err)
	}
	if err := in.state.ResetPhase(p); err != nil {
		return false, message(err)
	}
	return true, fmt.Sprintf("Reset %s phase and every later phase", p)
}

// Clear removes all workflow state and markers.
func (in *Integrator) Clear() (bool, string) {
	if err := in.state.Clear(); err != nil {
		return false, message(err)
	}
	return true, "Workflow state cleared"
}

// ExecutionContext is what a command needs to produce its phase document.
type ExecutionContext struct {
	Command          string                         `yaml:"command" json:"command"`
	Target           phase.Phase                    `yaml:"target" json:"target"`
	PrerequisitesMet bool                           `yaml:"prerequisites_met" json:"prerequisites_met"`
	Error            string                         `yaml:"error,omitempty" json:"error,omitempty"`
	Product          *transfer.ProductContext       `yaml:"product,omitempty" json:"product,omitempty"`
	Specification    *transfer.SpecificationContext `yaml:"specification,omitempty" json:"specification,omitempty"`
	Plan             *transfer.PlanContext          `yaml:"plan,omitempty" json:"plan,omitempty"`
}

// PrepareCommand checks prerequisites for command targeting the phase named
// name and loads every upstream context that has a typed record.
func (in *Integrator) PrepareCommand(command, name string) ExecutionContext {
	ec := ExecutionContext{Command: command}
	p, err := phase.Parse(name)
	if err != nil {
		ec.Error = message(err)
		return ec
	}
	ec.Target = p
	if ok, msg := in.ValidatePrerequisites(name); !ok {
		ec.Error = msg
		return ec
	}
	ec.PrerequisitesMet = true

	for _, up := range phase.Prerequisites(p) {
		r, ok, err := in.contexts.Retrieve(up)
		if err != nil {
			in.logger.Warn("failed to load phase context", "phase", up, "err", err)
			continue
		}
		if !ok {
			continue
		}
		switch c := r.(type) {
		case *transfer.ProductContext:
			ec.Product = c
		case *transfer.SpecificationContext:
			ec.Specification = c
		case *transfer.PlanContext:
			ec.Plan = c
		}
	}
	return ec
}

// Guidance describes whether a phase can run and what to do next.
type Guidance struct {
	Phase       phase.Phase `yaml:"phase" json:"phase"`
	Status      string      `yaml:"status" json:"status"`
	NextCommand string      `yaml:"next_command,omitempty" json:"next_command,omitempty"`
	Description string      `yaml:"description" json:"description"`
	Notes       string      `yaml:"notes,omitempty" json:"notes,omitempty"`
	Error       string      `yaml:"error,omitempty" json:"error,omitempty"`
}

// Guidance statuses.
const (
	StatusReady   = "ready"
	StatusBlocked = "blocked"
)

// Guidance returns the next step for the phase named name. On failure
// Status is empty and Error describes the problem.
func (in *Integrator) Guidance(name string) Guidance {
	p, err := phase.Parse(name)
	if err != nil {
		return Guidance{Error: message(err)}
	}
	completed, err := in.state.CompletedPhases()
	if err != nil {
		return Guidance{Phase: p, Error: "Failed to get workflow status: " + message(err)}
	}
	done := map[phase.Phase]bool{}
	for _, c := range completed {
		done[c] = true
	}

	g := Guidance{Phase: p, Status: StatusReady}
	var missing []string
	for _, req := range phase.Prerequisites(p) {
		if !done[req] {
			if g.NextCommand == "" {
				g.NextCommand = req.Info().Command
			}
			missing = append(missing, fmt.Sprintf("%s (%s)", req, req.Info().Command))
		}
	}
	if len(missing) > 0 {
		g.Status = StatusBlocked
		g.Description = "Complete missing phases: " + strings.Join(missing, ", ")
		g.Notes = "All previous phases must be completed in sequence: " + strings.Join(phase.Names(), " → ")
		return g
	}

	info := p.Info()
	g.Description = fmt.Sprintf("Run %s to %s", info.Command, info.Purpose)
	if up, ok := phase.Upstream(p); ok {
		g.Notes = fmt.Sprintf("%s context will be injected into the %s template", up.Info().Label, p)
	} else {
		g.Notes = "This is the entry point of the workflow"
	}
	return g
}

// InjectTemplate renders the template for the phase named name with the
// upstream context. templateID defaults to the phase's own template. With
// no upstream context stored the template is returned unchanged.
func (in *Integrator) InjectTemplate(name, templateID string) (string, bool, string) {
	p, err := phase.Parse(name)
	if err != nil {
		return "", false, message(err)
	}
	if templateID == "" {
		templateID = p.Info().Template
	}
	if templateID == "" {
		return "", false, fmt.Sprintf("No template is defined for the %s phase", p)
	}

	var record transfer.Record
	note := "Injected upstream context"
	if up, ok := phase.Upstream(p); ok {
		r, found, err := in.contexts.Retrieve(up)
		if err != nil {
			in.logger.Warn("context injection skipped", "phase", p, "err", err)
		}
		if found {
			record = r
		}
	}
	if record == nil {
		note = "No upstream context available; template returned unchanged"
	}

	out, err := in.contexts.Inject(record, templateID)
	if err != nil {
		return "", false, message(err)
	}
	return out, true, note
}

// ValidateWorkflowIntegrity checks that every completed phase has the
// upstream context it depends on.
func (in *Integrator) ValidateWorkflowIntegrity() transfer.FlowResult {
	res, err := in.contexts.ValidateFlow()
	if err != nil {
		return transfer.FlowResult{
			Valid: false,
			Issues: []validate.Issue{{
				Level:    validate.LevelError,
				Category: "workflow_integrity",
				Message:  "Workflow integrity check failed: " + message(err),
			}},
			CompletedPhases: []phase.Phase{},
		}
	}
	return res
}

// ValidateDocument scores the document at path as a specification ("spec")
// or implementation plan ("plan"). ok is false only for an unknown kind; an
// unreadable document is a failed result with a file_access issue.
func (in *Integrator) ValidateDocument(kind, path string) (validate.Result, bool, string) {
	var res validate.Result
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "spec", "specify", "specification":
		res = validate.ValidateSpecificationFile(path, in.spec)
	case "plan":
		res = validate.ValidatePlanFile(path, in.plan)
	default:
		return validate.Result{}, false, fmt.Sprintf("Unknown document kind %q (expected spec or plan)", kind)
	}
	return res, true, res.Summary
}
