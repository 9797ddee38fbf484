package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokistudios/specgate/internal/feature"
	"github.com/kokistudios/specgate/internal/integrate"
	"github.com/kokistudios/specgate/internal/phase"
	"github.com/kokistudios/specgate/internal/trace"
)

const productDoc = `# Product

## Product Vision

A reporting portal for finance teams.

## Requirements

- REQ-001: Finance users export monthly reports
`

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "product.md"), []byte(productDoc), 0644))
	quiet := log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel})
	in, err := integrate.Open(root, integrate.WithLogger(quiet), integrate.WithProbe(feature.Static("")))
	require.NoError(t, err)
	return NewServer(in, "test"), root
}

func TestCheckPrerequisites(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleCheckPrerequisites(ctx, nil, PhaseArgs{Phase: "specify"})
	require.NoError(t, err)
	res := out.(PrerequisitesResult)
	assert.False(t, res.Ready)
	assert.Contains(t, res.Message, "/product")
	require.NotNil(t, res.Guidance)
	assert.Equal(t, integrate.StatusBlocked, res.Guidance.Status)

	_, out, err = s.handleCheckPrerequisites(ctx, nil, PhaseArgs{Phase: "product"})
	require.NoError(t, err)
	assert.True(t, out.(PrerequisitesResult).Ready)

	_, out, err = s.handleCheckPrerequisites(ctx, nil, PhaseArgs{Phase: "deploy"})
	require.NoError(t, err)
	res = out.(PrerequisitesResult)
	assert.False(t, res.Ready)
	assert.Contains(t, res.Message, "Invalid phase name")
	assert.Nil(t, res.Guidance)

	_, _, err = s.handleCheckPrerequisites(ctx, nil, PhaseArgs{})
	assert.Error(t, err)
}

func TestCompletePhaseRequiresConfirmation(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleCompletePhase(ctx, nil, CompletePhaseArgs{Phase: "product"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_confirmed")

	_, out, err := s.handleStatus(ctx, nil, StatusArgs{})
	require.NoError(t, err)
	assert.Empty(t, out.(integrate.StatusInfo).CompletedPhases)
}

func TestCompletePhaseFromDocument(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleCompletePhase(ctx, nil, CompletePhaseArgs{Phase: "product", UserConfirmed: true})
	require.NoError(t, err)
	res := out.(CompletePhaseResult)
	assert.Equal(t, []phase.Phase{phase.PhaseProduct}, res.Status.CompletedPhases)
	assert.Equal(t, phase.PhaseSpecify, res.Status.NextPhase)

	_, out, err = s.handleContext(ctx, nil, PhaseArgs{Phase: "product"})
	require.NoError(t, err)
	c := out.(ContextResult)
	assert.True(t, c.Found)
	assert.NotEmpty(t, c.Context)

	_, out, err = s.handleContext(ctx, nil, PhaseArgs{Phase: "plan"})
	require.NoError(t, err)
	assert.False(t, out.(ContextResult).Found)

	_, _, err = s.handleContext(ctx, nil, PhaseArgs{Phase: "deploy"})
	assert.Error(t, err)
}

func TestCompletePhaseInline(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleCompletePhase(ctx, nil, CompletePhaseArgs{
		Phase:         "specify",
		Content:       "# Spec",
		UserConfirmed: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot run specify")

	_, _, err = s.handleCompletePhase(ctx, nil, CompletePhaseArgs{
		Phase:         "product",
		Content:       "# Product",
		Context:       map[string]interface{}{"vision": "Reports"},
		UserConfirmed: true,
	})
	require.NoError(t, err)

	_, out, err := s.handleContext(ctx, nil, PhaseArgs{Phase: "product"})
	require.NoError(t, err)
	assert.Equal(t, "Reports", out.(ContextResult).Context["vision"])
}

func TestTraceability(t *testing.T) {
	s, _ := newTestServer(t)

	_, out, err := s.handleTraceability(context.Background(), nil, TraceabilityArgs{})
	require.NoError(t, err)
	res := out.(TraceabilityResult)
	assert.True(t, res.Validation.Valid)
	assert.True(t, res.Flow.Valid)
	assert.GreaterOrEqual(t, res.Validation.Score, trace.PassingScore)
}

func TestValidateDocument(t *testing.T) {
	s, root := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleValidateDocument(ctx, nil, ValidateDocumentArgs{Kind: "spec"})
	require.NoError(t, err)
	res := out.(DocumentResult)
	assert.Equal(t, filepath.Join(root, "spec.md"), res.Path)
	assert.False(t, res.Valid)
	assert.NotNil(t, res.Issues)

	_, _, err = s.handleValidateDocument(ctx, nil, ValidateDocumentArgs{Kind: "poem", Path: "x.md"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown document kind")
}

func TestTemplate(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleTemplate(ctx, nil, TemplateArgs{Phase: "specify"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.(TemplateResult).Template)

	_, _, err = s.handleTemplate(ctx, nil, TemplateArgs{Phase: "product"})
	assert.Error(t, err)
}
