package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kokistudios/specgate/internal/integrate"
	"github.com/kokistudios/specgate/internal/phase"
	"github.com/kokistudios/specgate/internal/trace"
	"github.com/kokistudios/specgate/internal/transfer"
	"github.com/kokistudios/specgate/internal/validate"
)

// Server wraps the MCP server around a workspace integrator.
type Server struct {
	in     *integrate.Integrator
	server *mcp.Server
}

// NewServer creates a new specgate MCP server.
func NewServer(in *integrate.Integrator, version string) *Server {
	s := &Server{in: in}

	impl := &mcp.Implementation{
		Name:    "specgate",
		Version: version,
	}

	s.server = mcp.NewServer(impl, nil)
	s.registerTools()

	return s
}

// Run starts the MCP server on stdio.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// registerTools adds all specgate tools to the MCP server.
func (s *Server) registerTools() {
	phases := strings.Join(phase.Names(), " → ")

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "specgate_check_prerequisites",
		Description: "Check whether a workflow phase may start. Phases run strictly in order: " + phases + ". " +
			"PROACTIVE USE: Call this BEFORE writing a phase document. When blocked, the message names the " +
			"missing phase and the command that produces it.",
	}, s.handleCheckPrerequisites)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "specgate_status",
		Description: "Get workflow progress: current phase, completed phases, the next phase and the phases that may start now.",
	}, s.handleStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "specgate_context",
		Description: "Get the structured context captured from a completed phase (requirements, constraints, " +
			"architecture decisions, milestones, ...). Use the upstream phase's context when writing the next document.",
	}, s.handleContext)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "specgate_complete_phase",
		Description: "Mark a phase complete. With document_path, the document is read, its context extracted " +
			"and stored for the next phase, and its hash recorded. Otherwise content and context may be passed inline. " +
			"BEFORE CALLING: You MUST (1) confirm the phase document is final, (2) ask the user for explicit " +
			"permission, (3) only then call with user_confirmed=true.",
	}, s.handleCompletePhase)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "specgate_traceability",
		Description: "Score how well context and requirements flowed between completed phases. Returns the " +
			"overall score, per-dimension scores, coverage matrices and issues with suggestions.",
	}, s.handleTraceability)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "specgate_validate_document",
		Description: "Validate a specification or implementation plan document for required sections, quality and clarity/feasibility.",
	}, s.handleValidateDocument)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "specgate_template",
		Description: "Get the template for a phase with the upstream phase's context already filled in. " +
			"Use this as the starting point of the phase document.",
	}, s.handleTemplate)
}

// PhaseArgs names a workflow phase.
type PhaseArgs struct {
	Phase string `json:"phase" jsonschema:"Workflow phase: product, specify, plan or tasks"`
}

// PrerequisitesResult is the output of specgate_check_prerequisites.
type PrerequisitesResult struct {
	Phase    string              `json:"phase"`
	Ready    bool                `json:"ready"`
	Message  string              `json:"message"`
	Guidance *integrate.Guidance `json:"guidance,omitempty"`
}

func (s *Server) handleCheckPrerequisites(ctx context.Context, req *mcp.CallToolRequest, args PhaseArgs) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Phase) == "" {
		return nil, nil, fmt.Errorf("phase is required")
	}
	ok, msg := s.in.ValidatePrerequisites(args.Phase)
	out := PrerequisitesResult{Phase: args.Phase, Ready: ok, Message: msg}
	if g := s.in.Guidance(args.Phase); g.Error == "" {
		out.Guidance = &g
	}
	return nil, out, nil
}

// StatusArgs defines input for specgate_status.
type StatusArgs struct{}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest, args StatusArgs) (*mcp.CallToolResult, any, error) {
	st := s.in.GetStatus()
	if st.Error != "" {
		return nil, nil, fmt.Errorf("%s", st.Error)
	}
	return nil, st, nil
}

// ContextResult is the output of specgate_context.
type ContextResult struct {
	Phase   string                 `json:"phase"`
	Found   bool                   `json:"found"`
	Context map[string]interface{} `json:"context,omitempty"`
	Message string                 `json:"message,omitempty"`
}

func (s *Server) handleContext(ctx context.Context, req *mcp.CallToolRequest, args PhaseArgs) (*mcp.CallToolResult, any, error) {
	if _, err := phase.Parse(args.Phase); err != nil {
		return nil, nil, err
	}
	data, ok := s.in.GetContext(args.Phase)
	out := ContextResult{Phase: args.Phase, Found: ok, Context: data}
	if !ok {
		out.Message = fmt.Sprintf("No context available for %s phase", args.Phase)
	}
	return nil, out, nil
}

// CompletePhaseArgs defines input for specgate_complete_phase.
type CompletePhaseArgs struct {
	Phase         string                 `json:"phase" jsonschema:"Workflow phase to complete"`
	DocumentPath  string                 `json:"document_path,omitempty" jsonschema:"Path of the phase document to extract context from (optional - defaults to the configured document when content is empty)"`
	Content       string                 `json:"content,omitempty" jsonschema:"Raw document content, hashed for integrity checks (optional)"`
	Context       map[string]interface{} `json:"context,omitempty" jsonschema:"Structured context to store for the next phase (optional)"`
	UserConfirmed bool                   `json:"user_confirmed" jsonschema:"Must be true: the user explicitly approved completing this phase"`
}

// CompletePhaseResult is the output of specgate_complete_phase.
type CompletePhaseResult struct {
	Phase   string               `json:"phase"`
	Message string               `json:"message"`
	Status  integrate.StatusInfo `json:"status"`
}

func (s *Server) handleCompletePhase(ctx context.Context, req *mcp.CallToolRequest, args CompletePhaseArgs) (*mcp.CallToolResult, any, error) {
	if !args.UserConfirmed {
		return nil, nil, fmt.Errorf("user_confirmed must be true. Before calling this tool, you must confirm the phase document is final and get explicit permission")
	}

	var ok bool
	var msg string
	if args.DocumentPath != "" || (args.Content == "" && args.Context == nil) {
		ok, msg = s.in.CompleteFromDocument(args.Phase, args.DocumentPath)
	} else {
		ok, msg = s.in.CompletePhase(args.Phase, args.Content, args.Context)
	}
	if !ok {
		return nil, nil, fmt.Errorf("%s", msg)
	}
	return nil, CompletePhaseResult{Phase: args.Phase, Message: msg, Status: s.in.GetStatus()}, nil
}

// TraceabilityArgs defines input for specgate_traceability.
type TraceabilityArgs struct{}

func (s *Server) handleTraceability(ctx context.Context, req *mcp.CallToolRequest, args TraceabilityArgs) (*mcp.CallToolResult, any, error) {
	report, err := s.in.Tracer().Report()
	if err != nil {
		return nil, nil, fmt.Errorf("traceability validation failed: %w", err)
	}
	return nil, TraceabilityResult{Report: report, Flow: s.in.ValidateWorkflowIntegrity()}, nil
}

// TraceabilityResult is the output of specgate_traceability.
type TraceabilityResult struct {
	trace.Report
	Flow transfer.FlowResult `json:"context_flow_check"`
}

// ValidateDocumentArgs defines input for specgate_validate_document.
type ValidateDocumentArgs struct {
	Kind string `json:"kind" jsonschema:"Document kind: spec or plan"`
	Path string `json:"path,omitempty" jsonschema:"Document path (optional - defaults to the configured spec or plan document)"`
}

func (s *Server) handleValidateDocument(ctx context.Context, req *mcp.CallToolRequest, args ValidateDocumentArgs) (*mcp.CallToolResult, any, error) {
	path := args.Path
	if path == "" {
		p := phase.PhaseSpecify
		if strings.EqualFold(strings.TrimSpace(args.Kind), "plan") {
			p = phase.PhasePlan
		}
		path = s.in.DocumentPath(p)
	}
	res, ok, msg := s.in.ValidateDocument(args.Kind, path)
	if !ok {
		return nil, nil, fmt.Errorf("%s", msg)
	}
	return nil, documentResult(path, res), nil
}

// DocumentResult is the output of specgate_validate_document.
type DocumentResult struct {
	Path string `json:"path"`
	validate.Result
}

func documentResult(path string, res validate.Result) DocumentResult {
	if res.Issues == nil {
		res.Issues = []validate.Issue{}
	}
	return DocumentResult{Path: path, Result: res}
}

// TemplateArgs defines input for specgate_template.
type TemplateArgs struct {
	Phase    string `json:"phase" jsonschema:"Phase whose template to render: specify, plan or tasks"`
	Template string `json:"template,omitempty" jsonschema:"Template id or path (optional - defaults to the phase template)"`
}

// TemplateResult is the output of specgate_template.
type TemplateResult struct {
	Phase    string `json:"phase"`
	Template string `json:"template"`
	Note     string `json:"note"`
}

func (s *Server) handleTemplate(ctx context.Context, req *mcp.CallToolRequest, args TemplateArgs) (*mcp.CallToolResult, any, error) {
	out, ok, note := s.in.InjectTemplate(args.Phase, args.Template)
	if !ok {
		return nil, nil, fmt.Errorf("%s", note)
	}
	return nil, TemplateResult{Phase: args.Phase, Template: out, Note: note}, nil
}
