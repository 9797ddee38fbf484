package transfer

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kokistudios/specgate/internal/artifact"
	"github.com/kokistudios/specgate/internal/phase"
	"github.com/kokistudios/specgate/internal/validate"
	"github.com/kokistudios/specgate/internal/workflow"
)

// Manager stores, retrieves and checks per-phase context on top of the
// workflow state.
type Manager struct {
	state     *workflow.Manager
	templates artifact.TemplateSource
	extractor Extractor
	logger    *log.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for degradation messages.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithExtractor replaces the default extractor.
func WithExtractor(x Extractor) Option {
	return func(m *Manager) { m.extractor = x }
}

// NewManager returns a Manager over state, resolving templates from templates.
func NewManager(state *workflow.Manager, templates artifact.TemplateSource, opts ...Option) *Manager {
	m := &Manager{
		state:     state,
		templates: templates,
		logger:    log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel, Prefix: "transfer"}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FlowResult is the outcome of ValidateFlow.
type FlowResult struct {
	Valid           bool             `yaml:"valid" json:"valid"`
	Issues          []validate.Issue `yaml:"issues" json:"issues"`
	CompletedPhases []phase.Phase    `yaml:"completed_phases" json:"completed_phases"`
}

// Extract parses document content for p.
func (m *Manager) Extract(p phase.Phase, content, source string) (Record, error) {
	return m.extractor.Extract(p, content, source)
}

// ExtractDocument loads the document at path and extracts context for p.
func (m *Manager) ExtractDocument(p phase.Phase, path string) (Record, *artifact.Document, error) {
	doc, err := artifact.Load(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := m.extractor.Extract(p, doc.Body, path)
	if err != nil {
		return nil, nil, err
	}
	return r, doc, nil
}

// Inject renders r into the template identified by templateID. A nil r
// returns the template unchanged.
func (m *Manager) Inject(r Record, templateID string) (string, error) {
	text, err := m.templates.Template(templateID)
	if err != nil {
		return "", err
	}
	return Inject(r, text), nil
}

// Store saves r as the context of p, replacing any earlier context.
func (m *Manager) Store(p phase.Phase, r Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	return m.state.StorePhaseData(p, data)
}

// StoreData saves caller-supplied context data for p as-is.
func (m *Manager) StoreData(p phase.Phase, data map[string]interface{}) error {
	return m.state.StorePhaseData(p, data)
}

// Retrieve returns the stored context of p as a typed record.
func (m *Manager) Retrieve(p phase.Phase) (Record, bool, error) {
	data, ok, err := m.state.PhaseData(p)
	if err != nil || !ok {
		return nil, false, err
	}
	r, err := Decode(p, data)
	if err != nil {
		m.logger.Warn("stored context does not match its phase record; using generic context", "phase", p, "err", err)
	}
	return r, true, nil
}

// RetrieveData returns the stored context of p as plain data.
func (m *Manager) RetrieveData(p phase.Phase) (map[string]interface{}, bool, error) {
	return m.state.PhaseData(p)
}

// ValidateFlow checks that every completed phase after the first has the
// context it depends on: the context of each prerequisite and, when a later
// phase consumes it, its own. Each missing context is one error.
func (m *Manager) ValidateFlow() (FlowResult, error) {
	completed, err := m.state.CompletedPhases()
	if err != nil {
		return FlowResult{}, err
	}

	required := map[phase.Phase]bool{}
	for _, p := range completed {
		if p == phase.First() {
			continue
		}
		for _, q := range phase.Prerequisites(p) {
			required[q] = true
		}
		if phase.ProducesContext(p) {
			required[p] = true
		}
	}

	res := FlowResult{CompletedPhases: completed}
	for _, q := range phase.Sequence() {
		if !required[q] {
			continue
		}
		_, ok, err := m.state.PhaseData(q)
		if err != nil {
			return FlowResult{}, err
		}
		if ok {
			continue
		}
		consumer, _ := phase.Next(q)
		res.Issues = append(res.Issues, validate.Issue{
			Level:      validate.LevelError,
			Category:   "context_flow",
			Message:    fmt.Sprintf("Missing %s context for %s phase", strings.ToLower(q.Info().Label), consumer),
			Suggestion: fmt.Sprintf("Re-complete the %s phase from its document so its context is captured", q),
		})
	}
	res.Valid = len(res.Issues) == 0
	return res, nil
}
