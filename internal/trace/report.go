package trace

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/kokistudios/specgate/internal/phase"
	"github.com/kokistudios/specgate/internal/validate"
)

// PassingScore is the per-dimension score reported as passing.
const PassingScore = 0.8

// Report is a serializable traceability report.
type Report struct {
	Validation              ReportSummary    `yaml:"validation_result" json:"validation_result"`
	Workflow                Progress         `yaml:"workflow_status" json:"workflow_status"`
	Matrices                []Matrix         `yaml:"traceability_matrices" json:"traceability_matrices"`
	ContextFlow             Dimension        `yaml:"context_flow" json:"context_flow"`
	RequirementTraceability Dimension        `yaml:"requirement_traceability" json:"requirement_traceability"`
	Consistency             Dimension        `yaml:"consistency" json:"consistency"`
	Issues                  []validate.Issue `yaml:"issues" json:"issues"`
}

type ReportSummary struct {
	Valid      bool    `yaml:"valid" json:"valid"`
	Score      float64 `yaml:"score" json:"score"`
	Summary    string  `yaml:"summary" json:"summary"`
	IssueCount int     `yaml:"issue_count" json:"issue_count"`
}

type Progress struct {
	CompletedPhases []phase.Phase `yaml:"completed_phases" json:"completed_phases"`
	TotalPhases     int           `yaml:"total_phases" json:"total_phases"`
	Progress        float64       `yaml:"progress" json:"progress"`
}

// Dimension is one scored aspect of traceability.
type Dimension struct {
	Score  float64 `yaml:"score" json:"score"`
	Status string  `yaml:"status" json:"status"`
}

func dimension(score float64) Dimension {
	status := "failing"
	if score >= PassingScore {
		status = "passing"
	}
	return Dimension{Score: score, Status: status}
}

// Report validates the workflow and assembles the full report.
func (v *Validator) Report() (Report, error) {
	res, err := v.Validate()
	if err != nil {
		return Report{}, err
	}
	total := len(phase.Sequence())
	return Report{
		Validation: ReportSummary{
			Valid:      res.Valid,
			Score:      res.Score,
			Summary:    res.Summary,
			IssueCount: len(res.Issues),
		},
		Workflow: Progress{
			CompletedPhases: res.CompletedPhases,
			TotalPhases:     total,
			Progress:        float64(len(res.CompletedPhases)) / float64(total),
		},
		Matrices:                res.Matrices,
		ContextFlow:             dimension(res.Details[DetailContextFlow]),
		RequirementTraceability: dimension(res.Details[DetailRequirements]),
		Consistency:             dimension(res.Details[DetailConsistency]),
		Issues:                  res.Issues,
	}, nil
}

// YAML renders the report as YAML.
func (r Report) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// JSON renders the report as indented JSON.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
