// Package validate scores specification and plan documents for structural
// completeness and descriptive quality.
package validate

import (
	"fmt"
	"strings"
)

// Level is the severity of an Issue.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Issue is one validation finding.
type Issue struct {
	Level      Level  `yaml:"level" json:"level"`
	Category   string `yaml:"category" json:"category"`
	Message    string `yaml:"message" json:"message"`
	Suggestion string `yaml:"suggestion,omitempty" json:"suggestion,omitempty"`
}

// Result aggregates the outcome of a single validation call.
type Result struct {
	Valid   bool               `yaml:"valid" json:"valid"`
	Score   float64            `yaml:"score" json:"score"`
	Issues  []Issue            `yaml:"issues" json:"issues"`
	Summary string             `yaml:"summary" json:"summary"`
	Details map[string]float64 `yaml:"details,omitempty" json:"details,omitempty"`
}

// Count returns the number of issues at level.
func (r Result) Count(level Level) int {
	return CountLevel(r.Issues, level)
}

// HasErrors reports whether any issue has error severity.
func (r Result) HasErrors() bool {
	return r.Count(LevelError) > 0
}

// CountLevel returns the number of issues at level.
func CountLevel(issues []Issue, level Level) int {
	n := 0
	for _, i := range issues {
		if i.Level == level {
			n++
		}
	}
	return n
}

// Passes applies the validity rule shared by every validator: the score
// reaches the threshold and no issue is an error.
func Passes(score, threshold float64, issues []Issue) bool {
	return score >= threshold && CountLevel(issues, LevelError) == 0
}

// Summarize renders "<kind> validation passed (score: 0.85) - 1 errors - 2 warnings".
func Summarize(kind string, valid bool, score float64, issues []Issue, extra ...string) string {
	outcome := "failed"
	if valid {
		outcome = "passed"
	}
	parts := []string{fmt.Sprintf("%s validation %s (score: %.2f)", kind, outcome, score)}
	parts = append(parts, extra...)
	if n := CountLevel(issues, LevelError); n > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", n))
	}
	if n := CountLevel(issues, LevelWarning); n > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", n))
	}
	return strings.Join(parts, " - ")
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
