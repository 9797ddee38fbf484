// Package trace measures whether context and requirements introduced in one
// phase are carried into the phases after it.
package trace

import (
	"fmt"
	"strings"

	"github.com/kokistudios/specgate/internal/phase"
	"github.com/kokistudios/specgate/internal/transfer"
	"github.com/kokistudios/specgate/internal/validate"
	"github.com/kokistudios/specgate/internal/workflow"
)

// DefaultThreshold is the minimum overall score of a traceable workflow.
const DefaultThreshold = 0.8

// Detail keys of Result.Details.
const (
	DetailContextFlow  = "context_flow_score"
	DetailRequirements = "requirement_traceability_score"
	DetailConsistency  = "consistency_score"
	DetailCompleted    = "completed_phases"
)

const (
	categoryContextFlow  = "context_flow"
	categoryRequirements = "requirement_traceability"
	categoryConsistency  = "consistency"
)

// Link pairs an upstream element with the downstream text that best matches it.
type Link struct {
	Source        phase.Phase `yaml:"source" json:"source"`
	Target        phase.Phase `yaml:"target" json:"target"`
	SourceElement string      `yaml:"source_element" json:"source_element"`
	TargetElement string      `yaml:"target_element" json:"target_element"`
	Confidence    float64     `yaml:"confidence" json:"confidence"`
	Type          string      `yaml:"type" json:"type"`
}

// Matrix is the coverage of one adjacent phase pair.
type Matrix struct {
	Source   phase.Phase `yaml:"source" json:"source"`
	Target   phase.Phase `yaml:"target" json:"target"`
	Total    int         `yaml:"total_elements" json:"total_elements"`
	Traced   int         `yaml:"traced_elements" json:"traced_elements"`
	Coverage float64     `yaml:"coverage" json:"coverage"`
	Links    []Link      `yaml:"links" json:"links"`
}

// Result is a traceability validation outcome.
type Result struct {
	validate.Result `yaml:",inline"`
	CompletedPhases []phase.Phase `yaml:"completed_phases" json:"completed_phases"`
	Matrices        []Matrix      `yaml:"matrices" json:"matrices"`
}

// Validator scores traceability over the workflow state and stored contexts.
type Validator struct {
	state     *workflow.Manager
	contexts  *transfer.Manager
	threshold float64
}

// Option configures a Validator.
type Option func(*Validator)

// WithThreshold sets the minimum passing score. Values outside (0, 1] are ignored.
func WithThreshold(t float64) Option {
	return func(v *Validator) {
		if t > 0 && t <= 1 {
			v.threshold = t
		}
	}
}

// NewValidator returns a Validator reading from state and contexts.
func NewValidator(state *workflow.Manager, contexts *transfer.Manager, opts ...Option) *Validator {
	v := &Validator{state: state, contexts: contexts, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Threshold returns the minimum passing score.
func (v *Validator) Threshold() float64 { return v.threshold }

// Validate scores context flow, requirement traceability and consistency
// across the completed phases. With fewer than two completed phases there
// is nothing to trace and the result is trivially valid.
func (v *Validator) Validate() (Result, error) {
	completed, err := v.state.CompletedPhases()
	if err != nil {
		return Result{}, err
	}

	if len(completed) < 2 {
		return Result{
			Result: validate.Result{
				Valid:   true,
				Score:   1.0,
				Issues:  []validate.Issue{},
				Summary: "Insufficient phases completed for traceability validation",
				Details: map[string]float64{
					DetailCompleted:    float64(len(completed)),
					DetailContextFlow:  1.0,
					DetailRequirements: 1.0,
					DetailConsistency:  1.0,
				},
			},
			CompletedPhases: completed,
			Matrices:        []Matrix{},
		}, nil
	}

	records := map[phase.Phase]transfer.Record{}
	for _, p := range completed {
		r, ok, err := v.contexts.Retrieve(p)
		if err != nil {
			return Result{}, err
		}
		if ok {
			records[p] = r
		}
	}

	issues := []validate.Issue{}
	flowIssues, flow := contextFlow(completed, records)
	issues = append(issues, flowIssues...)

	reqIssues, req := requirementTraceability(completed, records)
	issues = append(issues, reqIssues...)

	consIssues, cons, err := v.consistency(completed)
	if err != nil {
		return Result{}, err
	}
	issues = append(issues, consIssues...)

	score := (flow + req + cons) / 3
	valid := validate.Passes(score, v.threshold, issues)

	names := make([]string, len(completed))
	for i, p := range completed {
		names[i] = string(p)
	}

	return Result{
		Result: validate.Result{
			Valid:   valid,
			Score:   score,
			Issues:  issues,
			Summary: validate.Summarize("Traceability", valid, score, issues, "Phases: "+strings.Join(names, " → ")),
			Details: map[string]float64{
				DetailCompleted:    float64(len(completed)),
				DetailContextFlow:  flow,
				DetailRequirements: req,
				DetailConsistency:  cons,
			},
		},
		CompletedPhases: completed,
		Matrices:        matrices(completed, records),
	}, nil
}

// contextFlow checks that each completed phase after the first has the
// context of the phase immediately before it.
func contextFlow(completed []phase.Phase, records map[phase.Phase]transfer.Record) ([]validate.Issue, float64) {
	var issues []validate.Issue
	var checked, present int
	for _, p := range completed {
		up, ok := phase.Upstream(p)
		if !ok {
			continue
		}
		checked++
		if _, ok := records[up]; ok {
			present++
			continue
		}
		issues = append(issues, validate.Issue{
			Level:      validate.LevelError,
			Category:   categoryContextFlow,
			Message:    fmt.Sprintf("Missing %s context for %s phase", strings.ToLower(up.Info().Label), p),
			Suggestion: fmt.Sprintf("Ensure the %s phase captures and stores its context", up),
		})
	}
	if checked == 0 {
		return issues, 1.0
	}
	return issues, float64(present) / float64(checked)
}

func requirementTraceability(completed []phase.Phase, records map[phase.Phase]transfer.Record) ([]validate.Issue, float64) {
	var issues []validate.Issue

	var missing []string
	for _, p := range completed {
		if _, ok := records[p]; !ok {
			missing = append(missing, string(p))
		}
	}
	if len(missing) > 0 {
		issues = append(issues, validate.Issue{
			Level:      validate.LevelWarning,
			Category:   categoryRequirements,
			Message:    "Missing context for phases: " + strings.Join(missing, ", "),
			Suggestion: "Ensure all phases capture and store context",
		})
	}

	product, hasProduct := fields(records[phase.PhaseProduct])
	spec, hasSpec := fields(records[phase.PhaseSpecify])
	plan, hasPlan := fields(records[phase.PhasePlan])

	if hasProduct && hasSpec {
		if n := listLen(product, "requirements"); n > 0 && float64(listLen(spec, "technical_requirements")) < float64(n)*0.8 {
			issues = append(issues, validate.Issue{
				Level:      validate.LevelWarning,
				Category:   categoryRequirements,
				Message:    "Specification may not address all product requirements",
				Suggestion: "Cover every product requirement with a technical requirement",
			})
		}
		if n := listLen(product, "constraints"); n > 0 && float64(listLen(spec, "design_constraints")) < float64(n)*0.7 {
			issues = append(issues, validate.Issue{
				Level:      validate.LevelWarning,
				Category:   categoryRequirements,
				Message:    "Not all product constraints reflected in specification",
				Suggestion: "Carry product constraints into the design constraints",
			})
		}
	}

	if hasSpec && hasPlan {
		if listLen(spec, "technical_requirements") > 0 {
			strategy, _ := plan["implementation_strategy"].(string)
			if len(strings.Fields(strategy)) < 50 {
				issues = append(issues, validate.Issue{
					Level:      validate.LevelWarning,
					Category:   categoryRequirements,
					Message:    "Implementation plan may not adequately address technical requirements",
					Suggestion: "Expand the implementation strategy to cover every technical requirement",
				})
			}
		}
		if listLen(spec, "architecture_decisions") > 0 && listLen(plan, "technology_stack") == 0 {
			issues = append(issues, validate.Issue{
				Level:      validate.LevelWarning,
				Category:   categoryRequirements,
				Message:    "Technology stack not specified in plan",
				Suggestion: "Define the technology stack from the architecture decisions",
			})
		}
	}

	score := float64(len(records)) / float64(len(completed))
	if n := len(issues); n > 0 {
		score *= max(0.5, 1.0-float64(n)*0.1)
	}
	return issues, score
}

// consistency compares stated completion with phase markers and with the
// persisted phase list.
func (v *Validator) consistency(completed []phase.Phase) ([]validate.Issue, float64, error) {
	var issues []validate.Issue

	var missing []string
	for _, p := range completed {
		ok, err := v.state.HasMarker(p)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			missing = append(missing, string(p))
		}
	}
	if len(missing) > 0 {
		issues = append(issues, validate.Issue{
			Level:      validate.LevelWarning,
			Category:   categoryConsistency,
			Message:    "Missing completion markers for phases: " + strings.Join(missing, ", "),
			Suggestion: "Run `specgate doctor --fix` to recreate markers",
		})
	}

	raw, err := v.state.RawCompletedPhases()
	if err != nil {
		return nil, 0, err
	}
	errs := 0
	if !sameSet(raw, completed) {
		errs++
		issues = append(issues, validate.Issue{
			Level:      validate.LevelError,
			Category:   categoryConsistency,
			Message:    fmt.Sprintf("Workflow state inconsistency detected: persisted phases %v, effective phases %v", raw, completed),
			Suggestion: "Run `specgate doctor --fix` to reconcile workflow state",
		})
	}

	score := 1.0 - float64(len(missing))*0.2 - float64(errs)*0.5
	return issues, max(0, score), nil
}

func sameSet(raw []string, completed []phase.Phase) bool {
	a := map[string]bool{}
	for _, s := range raw {
		a[s] = true
	}
	b := map[string]bool{}
	for _, p := range completed {
		b[string(p)] = true
	}
	if len(a) != len(b) {
		return false
	}
	for s := range a {
		if !b[s] {
			return false
		}
	}
	return true
}

func matrices(completed []phase.Phase, records map[phase.Phase]transfer.Record) []Matrix {
	done := map[phase.Phase]bool{}
	for _, p := range completed {
		done[p] = true
	}
	out := []Matrix{}
	for _, pair := range phase.Pairs() {
		if done[pair[0]] && done[pair[1]] {
			out = append(out, buildMatrix(pair[0], pair[1], records[pair[0]], records[pair[1]]))
		}
	}
	return out
}

// buildMatrix counts traceable elements on both sides. The traced count is
// min(source, target); with nothing upstream to trace, coverage is full.
// Links are the element pairs with shared keywords.
func buildMatrix(source, target phase.Phase, src, tgt transfer.Record) Matrix {
	m := Matrix{Source: source, Target: target, Links: []Link{}}
	if src == nil || tgt == nil {
		return m
	}
	srcCount := len(src.Elements())
	m.Total = srcCount
	m.Traced = min(srcCount, len(tgt.Elements()))
	m.Coverage = 1
	if srcCount > 0 {
		m.Coverage = float64(m.Traced) / float64(srcCount)
	}
	m.Links = links(source, target, src, tgt)
	return m
}

func links(source, target phase.Phase, src, tgt transfer.Record) []Link {
	texts := tgt.Texts()
	targetWords := make([]map[string]bool, len(texts))
	for i, t := range texts {
		targetWords[i] = keywords(t)
	}

	out := []Link{}
	for _, e := range src.Elements() {
		words := keywords(e.Text)
		best, bestScore := -1, 0.0
		for i, tw := range targetWords {
			if s := jaccard(words, tw); s > bestScore {
				best, bestScore = i, s
			}
		}
		if best < 0 {
			continue
		}
		out = append(out, Link{
			Source:        source,
			Target:        target,
			SourceElement: e.Text,
			TargetElement: texts[best],
			Confidence:    bestScore,
			Type:          e.Kind,
		})
	}
	return out
}

// fields flattens a record into its stored map form so typed and generic
// records are inspected the same way.
func fields(r transfer.Record) (map[string]interface{}, bool) {
	if r == nil {
		return nil, false
	}
	data, err := transfer.Encode(r)
	if err != nil {
		return nil, false
	}
	return data, true
}

func listLen(data map[string]interface{}, key string) int {
	if list, ok := data[key].([]interface{}); ok {
		return len(list)
	}
	return 0
}
