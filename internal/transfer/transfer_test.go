package transfer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokistudios/specgate/internal/artifact"
	"github.com/kokistudios/specgate/internal/phase"
	"github.com/kokistudios/specgate/internal/store"
	"github.com/kokistudios/specgate/internal/validate"
	"github.com/kokistudios/specgate/internal/workflow"
)

const productDoc = `# Product

## Product Vision

A self-service portal for managing team workflows.

## Success Criteria

- Users onboard in under five minutes
- 99% uptime

## Technical Constraints

- Must run on PostgreSQL
- Response time under 200ms

## Stakeholders

- Alice: product owner
- Platform team: operators

## Requirements

- REQ-A: Users can sign in with SSO
- Users can export reports
`

const specDoc = `# Specification

## Technical Requirements

- TR-1: Authenticate users with OIDC
- Export reports as CSV

## Architecture

- Use a modular monolith: simpler deployment
- PostgreSQL for storage

## Interfaces

- REST API: JSON over HTTPS
- CLI

## Validation Criteria

- Integration tests cover SSO sign in

## Design Constraints

- Response time under 200ms

Export format [RESOLVED] CSV only
`

const planDoc = `# Implementation Plan

## Implementation Strategy

Build the authentication module first, then reporting.

## Technology Stack

- Go
- PostgreSQL

## Resource Allocation

- Team size: 4 engineers
- Timeline: 6 weeks
- Budget: 50000 USD

## Milestones

- Auth complete: 2026-11-01
- Reports shipped

## Dependencies

- Identity provider

## Risk Analysis

- SSO outage: fall back to password login

See the architecture diagram in docs/arch.png
`

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func testExtractor() Extractor {
	return Extractor{Now: func() time.Time { return fixedNow }}
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel})
}

func newManager(t *testing.T, backend store.Backend) *Manager {
	t.Helper()
	state := workflow.NewManager(backend, workflow.WithLogger(quietLogger()))
	return NewManager(state, artifact.Templates{Dir: t.TempDir()},
		WithLogger(quietLogger()), WithExtractor(testExtractor()))
}

func TestExtractProduct(t *testing.T) {
	c := testExtractor().Product(productDoc, "product.md")

	assert.Equal(t, "A self-service portal for managing team workflows.", c.Vision)
	assert.Equal(t, []string{"Users onboard in under five minutes", "99% uptime"}, c.SuccessCriteria)
	assert.Equal(t, []string{"Must run on PostgreSQL", "Response time under 200ms"}, c.Constraints)
	assert.Equal(t, []Stakeholder{
		{Name: "Alice", Role: "product owner"},
		{Name: "Platform team", Role: "operators"},
	}, c.Stakeholders)
	assert.Equal(t, []Requirement{
		{ID: "REQ-A", Description: "Users can sign in with SSO"},
		{ID: "REQ-002", Description: "Users can export reports"},
	}, c.Requirements)

	assert.Equal(t, "product.md", c.Metadata["source"])
	assert.Equal(t, "2026-10-19T12:00:00Z", c.Metadata["extracted_at"])
	assert.Equal(t, 6, c.Metadata["sections_found"])
}

func TestExtractSpecification(t *testing.T) {
	c := testExtractor().Specification(specDoc, "spec.md")

	assert.Equal(t, []Requirement{
		{ID: "TR-1", Description: "Authenticate users with OIDC"},
		{ID: "REQ-002", Description: "Export reports as CSV"},
	}, c.TechnicalRequirements)
	assert.Equal(t, []Decision{
		{Decision: "Use a modular monolith", Rationale: "simpler deployment"},
		{Decision: "PostgreSQL for storage"},
	}, c.ArchitectureDecisions)
	assert.Equal(t, []Interface{
		{Name: "REST API", Description: "JSON over HTTPS"},
		{Name: "CLI"},
	}, c.Interfaces)
	assert.Equal(t, []string{"Integration tests cover SSO sign in"}, c.ValidationCriteria)
	assert.Equal(t, []string{"Response time under 200ms"}, c.DesignConstraints)
	assert.Equal(t, []string{"Export format [RESOLVED] CSV only"}, c.ClarificationsResolved)
	assert.InDelta(t, 1.0, c.Metadata["completeness_score"], 1e-9)
}

func TestExtractPlan(t *testing.T) {
	c := testExtractor().Plan(planDoc, "plan.md")

	assert.Equal(t, "Build the authentication module first, then reporting.", c.ImplementationStrategy)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, c.TechnologyStack)
	require.NotNil(t, c.ResourceAllocation.TeamSize)
	assert.Equal(t, 4, *c.ResourceAllocation.TeamSize)
	require.NotNil(t, c.ResourceAllocation.Budget)
	assert.Equal(t, 50000, *c.ResourceAllocation.Budget)
	assert.Equal(t, "6 weeks", c.ResourceAllocation.Timeline)
	assert.Equal(t, []Milestone{
		{Name: "Auth complete", Date: "2026-11-01"},
		{Name: "Reports shipped"},
	}, c.Milestones)
	assert.Equal(t, []string{"Identity provider"}, c.Dependencies)
	assert.Equal(t, []Risk{{Risk: "SSO outage", Mitigation: "fall back to password login"}}, c.RiskAnalysis)
	assert.Equal(t, []string{"See the architecture diagram in docs/arch.png"}, c.DesignArtifacts)
	assert.Equal(t, "low", c.Metadata["plan_complexity"])
}

func TestExtract_MissingSectionsDegrade(t *testing.T) {
	x := testExtractor()
	for _, p := range phase.Sequence() {
		r, err := x.Extract(p, "no headings at all", "empty.md")
		require.NoError(t, err, p)
		assert.Equal(t, p, r.Phase())
		assert.Empty(t, r.Elements(), p)
	}

	c := x.Product("", "")
	assert.NotNil(t, c.SuccessCriteria)
	assert.NotNil(t, c.Requirements)
	assert.Empty(t, c.Vision)
}

func TestExtract_UnrelatedHeadingsIgnored(t *testing.T) {
	x := testExtractor()

	product := x.Product("# Product\n\n## Division of Labour\n\nTeam A owns billing.\n", "product.md")
	assert.Empty(t, product.Vision)

	spec := x.Specification("# Spec\n\n## Rapid Prototyping\n\n- throwaway mockups\n- quick demos\n", "spec.md")
	assert.Empty(t, spec.Interfaces)
	assert.Empty(t, spec.Elements())
}

func TestExtract_UnknownPhase(t *testing.T) {
	_, err := testExtractor().Extract(phase.Phase("deploy"), productDoc, "x.md")
	assert.ErrorIs(t, err, phase.ErrUnknownPhase)
}

func TestExtractTasks(t *testing.T) {
	doc := "# Tasks\n\n## Task List\n\n- [ ] T001 Scaffold\n- [x] T002 Wire config\n"
	c := testExtractor().Tasks(doc, "tasks.md")
	assert.Equal(t, phase.PhaseTasks, c.Phase())
	assert.Equal(t, []interface{}{"T001 Scaffold", "T002 Wire config"}, c.Data["tasks"])
}

func TestElements(t *testing.T) {
	x := testExtractor()
	product := x.Product(productDoc, "")
	assert.Len(t, product.Elements(), 4)

	spec := x.Specification(specDoc, "")
	elems := spec.Elements()
	require.Len(t, elems, 4)
	assert.Equal(t, ElementRequirement, elems[0].Kind)
	assert.Equal(t, ElementDecision, elems[3].Kind)

	assert.Empty(t, x.Plan(planDoc, "").Elements())
}

func TestInject_Product(t *testing.T) {
	tmpl, ok := artifact.Builtin("specify")
	require.True(t, ok)

	out := Inject(testExtractor().Product(productDoc, ""), tmpl)
	assert.Contains(t, out, "A self-service portal for managing team workflows.")
	assert.Contains(t, out, "- REQ-A: Users can sign in with SSO\n- REQ-002: Users can export reports")
	assert.Contains(t, out, "- Alice: product owner")
	assert.Contains(t, out, "- Must run on PostgreSQL")
	assert.NotContains(t, out, "{{")
}

func TestInject_Formats(t *testing.T) {
	x := testExtractor()

	spec := Inject(x.Specification(specDoc, ""), "{{ARCHITECTURE_DECISIONS}}\n{{INTERFACES}}")
	assert.Equal(t, "- Use a modular monolith\n  - Rationale: simpler deployment\n- PostgreSQL for storage\n"+
		"- REST API: JSON over HTTPS\n- CLI", spec)

	plan := Inject(x.Plan(planDoc, ""), "{{MILESTONES}}")
	assert.Equal(t, "- Auth complete\n  - Due: 2026-11-01\n- Reports shipped", plan)
}

func TestInject_UnknownTokensUntouched(t *testing.T) {
	r := testExtractor().Product(productDoc, "")
	out := Inject(r, "{{PRODUCT_VISION}} {{UNKNOWN}} {{MILESTONES}}")
	assert.Equal(t, "A self-service portal for managing team workflows. {{UNKNOWN}} {{MILESTONES}}", out)

	generic := &GenericContext{For: phase.PhaseTasks}
	assert.Equal(t, "{{PRODUCT_VISION}}", Inject(generic, "{{PRODUCT_VISION}}"))
}

func TestManagerInject(t *testing.T) {
	m := newManager(t, store.NewMemoryBackend())
	r := testExtractor().Specification(specDoc, "")

	out, err := m.Inject(r, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "- TR-1: Authenticate users with OIDC")

	_, err = m.Inject(r, filepath.Join(t.TempDir(), "missing.md"))
	var tnf *artifact.TemplateNotFoundError
	require.ErrorAs(t, err, &tnf)
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	_, err = m.Inject(r, "nonexistent")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestContextRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, store.NewFileBackend(dir))
	x := testExtractor()

	product := x.Product(productDoc, "product.md")
	plan := x.Plan(planDoc, "plan.md")
	require.NoError(t, m.Store(phase.PhaseProduct, product))
	require.NoError(t, m.Store(phase.PhasePlan, plan))

	got, ok, err := m.Retrieve(phase.PhaseProduct)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, product, got)

	fresh := newManager(t, store.NewFileBackend(dir))
	got, ok, err = fresh.Retrieve(phase.PhasePlan)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, plan, got)

	_, ok, err = fresh.Retrieve(phase.PhaseSpecify)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRetrieve_MismatchedShapeFallsBack(t *testing.T) {
	m := newManager(t, store.NewMemoryBackend())
	require.NoError(t, m.StoreData(phase.PhaseProduct, map[string]interface{}{
		"requirements": "not a list",
	}))

	r, ok, err := m.Retrieve(phase.PhaseProduct)
	require.NoError(t, err)
	require.True(t, ok)
	g, isGeneric := r.(*GenericContext)
	require.True(t, isGeneric)
	assert.Equal(t, "not a list", g.Data["requirements"])
}

func TestExtractDocument(t *testing.T) {
	m := newManager(t, store.NewMemoryBackend())
	path := filepath.Join(t.TempDir(), "product.md")
	require.NoError(t, os.WriteFile(path, []byte("---\nphase: product\n---\n\n"+productDoc), 0644))

	r, doc, err := m.ExtractDocument(phase.PhaseProduct, path)
	require.NoError(t, err)
	assert.Equal(t, "product", doc.Frontmatter.Phase)
	assert.Equal(t, path, r.(*ProductContext).Metadata["source"])

	_, _, err = m.ExtractDocument(phase.PhaseProduct, filepath.Join(t.TempDir(), "nope.md"))
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestValidateFlow_PartialData(t *testing.T) {
	backend := store.NewMemoryBackend()
	state := workflow.NewManager(backend, workflow.WithLogger(quietLogger()))
	m := NewManager(state, artifact.Templates{}, WithLogger(quietLogger()))

	require.NoError(t, state.CompletePhase(phase.PhaseProduct, productDoc))
	require.NoError(t, state.CompletePhase(phase.PhaseSpecify, specDoc))
	require.NoError(t, m.Store(phase.PhaseProduct, testExtractor().Product(productDoc, "")))

	res, err := m.ValidateFlow()
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, validate.LevelError, res.Issues[0].Level)
	assert.Contains(t, res.Issues[0].Message, "specification")
	assert.Equal(t, []phase.Phase{phase.PhaseProduct, phase.PhaseSpecify}, res.CompletedPhases)
}

func TestValidateFlow(t *testing.T) {
	x := testExtractor()
	records := map[phase.Phase]Record{
		phase.PhaseProduct: x.Product(productDoc, ""),
		phase.PhaseSpecify: x.Specification(specDoc, ""),
		phase.PhasePlan:    x.Plan(planDoc, ""),
	}

	tests := []struct {
		name      string
		completed []phase.Phase
		stored    []phase.Phase
		errors    int
	}{
		{"fresh", nil, nil, 0},
		{"first phase only", []phase.Phase{phase.PhaseProduct}, nil, 0},
		{"specify without any context", []phase.Phase{phase.PhaseProduct, phase.PhaseSpecify}, nil, 2},
		{"all contexts", phase.Sequence(), []phase.Phase{phase.PhaseProduct, phase.PhaseSpecify, phase.PhasePlan}, 0},
		{"plan context missing", phase.Sequence(), []phase.Phase{phase.PhaseProduct, phase.PhaseSpecify}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t, store.NewMemoryBackend())
			for _, p := range tt.completed {
				require.NoError(t, m.state.CompletePhase(p, ""))
			}
			for _, p := range tt.stored {
				require.NoError(t, m.Store(p, records[p]))
			}
			res, err := m.ValidateFlow()
			require.NoError(t, err)
			assert.Len(t, res.Issues, tt.errors)
			assert.Equal(t, tt.errors == 0, res.Valid)
		})
	}
}
