package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kokistudios/specgate/internal/markdown"
)

var (
	planRequired    = []string{"implementation strategy", "technology stack", "architecture", "milestones", "dependencies", "resources"}
	planRecommended = []string{"risk analysis", "testing strategy", "deployment plan", "monitoring", "documentation"}

	timelinePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\d+\s*(days?|weeks?|months?)`),
		regexp.MustCompile(`(?i)deadline`),
		regexp.MustCompile(`(?i)milestone`),
		regexp.MustCompile(`(?i)schedule`),
	}
	resourcePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)team`),
		regexp.MustCompile(`(?i)developer`),
		regexp.MustCompile(`(?i)engineer`),
		regexp.MustCompile(`(?i)resource`),
		regexp.MustCompile(`(?i)capacity`),
	}
	actionRe = regexp.MustCompile(`(?i)\b(implement|create|develop|build|configure|setup|deploy)\b`)
)

// Plan validates implementation plan documents.
type Plan struct {
	Threshold float64
}

// NewPlan returns a validator using DefaultThreshold.
func NewPlan() *Plan {
	return &Plan{Threshold: DefaultThreshold}
}

// Validate scores content on element presence, feasibility and level of
// detail. The overall score is their mean.
func (v *Plan) Validate(content string) Result {
	var issues []Issue

	elemIssues, elements := planElements(content)
	issues = append(issues, elemIssues...)

	feasIssues, feasibility := planFeasibility(content)
	issues = append(issues, feasIssues...)

	detailIssues, detail := planDetail(content)
	issues = append(issues, detailIssues...)

	threshold := v.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	score := (elements + feasibility + detail) / 3
	valid := Passes(score, threshold, issues)
	return Result{
		Valid:   valid,
		Score:   score,
		Issues:  issues,
		Summary: Summarize("Implementation plan", valid, score, issues),
		Details: map[string]float64{
			"element_score":     elements,
			"feasibility_score": feasibility,
			"detail_score":      detail,
		},
	}
}

// mentions reports whether any word of element occurs anywhere in lower.
func mentions(lower, element string) bool {
	for _, kw := range strings.Fields(element) {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func planElements(content string) ([]Issue, float64) {
	lower := strings.ToLower(content)
	var issues []Issue

	missingReq := 0
	for _, e := range planRequired {
		if !mentions(lower, e) {
			missingReq++
			issues = append(issues, Issue{
				Level:      LevelError,
				Category:   "structure",
				Message:    fmt.Sprintf("Missing required element: %s", e),
				Suggestion: fmt.Sprintf("Add %s to the implementation plan", e),
			})
		}
	}
	missingRec := 0
	for _, e := range planRecommended {
		if !mentions(lower, e) {
			missingRec++
			issues = append(issues, Issue{
				Level:      LevelWarning,
				Category:   "structure",
				Message:    fmt.Sprintf("Missing recommended element: %s", e),
				Suggestion: fmt.Sprintf("Consider adding %s to the plan", e),
			})
		}
	}
	return issues, blend(len(planRequired), missingReq, len(planRecommended), missingRec)
}

func countAll(content string, patterns []*regexp.Regexp) int {
	n := 0
	for _, re := range patterns {
		n += len(re.FindAllStringIndex(content, -1))
	}
	return n
}

func planFeasibility(content string) ([]Issue, float64) {
	var issues []Issue

	timeline := countAll(content, timelinePatterns)
	if timeline == 0 {
		issues = append(issues, Issue{
			Level:      LevelWarning,
			Category:   "feasibility",
			Message:    "No timeline information found",
			Suggestion: "Include estimated timelines and milestones",
		})
	}
	resources := countAll(content, resourcePatterns)
	if resources == 0 {
		issues = append(issues, Issue{
			Level:      LevelWarning,
			Category:   "feasibility",
			Message:    "No resource allocation mentioned",
			Suggestion: "Specify team size and resource requirements",
		})
	}
	return issues, clamp((float64(timeline)*0.5 + float64(resources)*0.5) / 10)
}

func planDetail(content string) ([]Issue, float64) {
	var issues []Issue

	words := len(markdown.Words(content))
	if words < 800 {
		issues = append(issues, Issue{
			Level:      LevelWarning,
			Category:   "detail",
			Message:    fmt.Sprintf("Implementation plan is quite brief (%d words)", words),
			Suggestion: "Consider adding more implementation details",
		})
	}
	actions := len(actionRe.FindAllStringIndex(content, -1))
	if actions < 5 {
		issues = append(issues, Issue{
			Level:      LevelWarning,
			Category:   "detail",
			Message:    "Limited implementation details",
			Suggestion: "Include more specific implementation steps and actions",
		})
	}
	return issues, (clamp(float64(words)/1500) + clamp(float64(actions)/20)) / 2
}
