package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kokistudios/specgate/internal/markdown"
)

// DefaultThreshold is the minimum overall score of a valid document.
const DefaultThreshold = 0.7

var (
	specRequired    = []string{"overview", "requirements", "architecture", "technical details", "interfaces", "validation", "constraints"}
	specRecommended = []string{"assumptions", "dependencies", "risks", "alternatives", "examples"}
	techIndicators  = []string{"api", "interface", "protocol", "algorithm", "data", "format"}

	clarificationRe = regexp.MustCompile(`(?i)\[NEEDS CLARIFICATION[:\]]`)
	sentenceSplitRe = regexp.MustCompile(`[.!?]`)
)

// Specification validates specification documents.
type Specification struct {
	Threshold float64
}

// NewSpecification returns a validator using DefaultThreshold.
func NewSpecification() *Specification {
	return &Specification{Threshold: DefaultThreshold}
}

// Validate scores content on structure, quality and clarity. The overall
// score is their mean.
func (v *Specification) Validate(content string) Result {
	var issues []Issue

	structIssues, structure := v.sections(content)
	issues = append(issues, structIssues...)

	qualityIssues, quality := specQuality(content)
	issues = append(issues, qualityIssues...)

	clarityIssues, clarity := specClarity(content)
	issues = append(issues, clarityIssues...)

	score := (structure + quality + clarity) / 3
	valid := Passes(score, v.threshold(), issues)
	return Result{
		Valid:   valid,
		Score:   score,
		Issues:  issues,
		Summary: Summarize("Specification", valid, score, issues),
		Details: map[string]float64{
			"section_score": structure,
			"quality_score": quality,
			"clarity_score": clarity,
		},
	}
}

func (v *Specification) threshold() float64 {
	if v.Threshold <= 0 {
		return DefaultThreshold
	}
	return v.Threshold
}

func (v *Specification) sections(content string) ([]Issue, float64) {
	var headings [][]string
	for _, h := range markdown.Headings(content) {
		headings = append(headings, wordSet(markdown.Normalize(h.Text)))
	}

	var issues []Issue
	missingReq := 0
	for _, s := range specRequired {
		if !sectionExists(s, headings) {
			missingReq++
			issues = append(issues, Issue{
				Level:      LevelError,
				Category:   "structure",
				Message:    fmt.Sprintf("Missing required section: %s", s),
				Suggestion: fmt.Sprintf("Add a '%s' section to the specification", s),
			})
		}
	}
	missingRec := 0
	for _, s := range specRecommended {
		if !sectionExists(s, headings) {
			missingRec++
			issues = append(issues, Issue{
				Level:      LevelWarning,
				Category:   "structure",
				Message:    fmt.Sprintf("Missing recommended section: %s", s),
				Suggestion: fmt.Sprintf("Consider adding a '%s' section", s),
			})
		}
	}
	return issues, blend(len(specRequired), missingReq, len(specRecommended), missingRec)
}

// blend weighs required coverage 0.8 and recommended coverage 0.2.
func blend(required, missingRequired, recommended, missingRecommended int) float64 {
	req := float64(required-missingRequired) / float64(required)
	rec := float64(recommended-missingRecommended) / float64(recommended)
	return req*0.8 + rec*0.2
}

func wordSet(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ",;:()[]/&")
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// sectionExists matches a target against heading word sets: either every
// target word is present or at least half of them are.
func sectionExists(target string, headings [][]string) bool {
	want := strings.Fields(target)
	for _, words := range headings {
		have := make(map[string]bool, len(words))
		for _, w := range words {
			have[w] = true
		}
		hits := 0
		for _, w := range want {
			if have[w] {
				hits++
			}
		}
		if hits > 0 && float64(hits) >= float64(len(want))/2 {
			return true
		}
	}
	return false
}

func specQuality(content string) ([]Issue, float64) {
	var issues []Issue

	markers := len(clarificationRe.FindAllStringIndex(content, -1))
	if markers > 0 {
		issues = append(issues, Issue{
			Level:      LevelWarning,
			Category:   "completeness",
			Message:    fmt.Sprintf("Found %d unresolved clarification markers", markers),
			Suggestion: "Resolve all [NEEDS CLARIFICATION] items before proceeding",
		})
	}

	words := len(markdown.Words(content))
	if words < 500 {
		issues = append(issues, Issue{
			Level:      LevelWarning,
			Category:   "completeness",
			Message:    fmt.Sprintf("Specification is quite short (%d words)", words),
			Suggestion: "Consider adding more detail to ensure completeness",
		})
	}

	lower := strings.ToLower(content)
	found := 0
	for _, ind := range techIndicators {
		if strings.Contains(lower, ind) {
			found++
		}
	}
	tech := float64(found) / float64(len(techIndicators))
	if tech < 0.3 {
		issues = append(issues, Issue{
			Level:      LevelWarning,
			Category:   "technical_depth",
			Message:    "Limited technical detail detected",
			Suggestion: "Include more technical specifications and implementation details",
		})
	}

	penalty := float64(markers) * 0.1
	if penalty > 0.3 {
		penalty = 0.3
	}
	bonus := float64(words) / 1000
	if bonus > 0.2 {
		bonus = 0.2
	}
	return issues, clamp(0.7 + tech*0.3 + bonus - penalty)
}

func specClarity(content string) ([]Issue, float64) {
	var issues []Issue

	var lengths []int
	for _, s := range sentenceSplitRe.Split(content, -1) {
		if strings.TrimSpace(s) != "" {
			lengths = append(lengths, len(strings.Fields(s)))
		}
	}
	if len(lengths) > 0 {
		total, long := 0, 0
		for _, n := range lengths {
			total += n
			if n > 25 {
				long++
			}
		}
		avg := float64(total) / float64(len(lengths))
		if avg > 20 {
			issues = append(issues, Issue{
				Level:      LevelInfo,
				Category:   "clarity",
				Message:    fmt.Sprintf("Average sentence length is %.1f words", avg),
				Suggestion: "Consider breaking down long sentences for better readability",
			})
		}
		if float64(long) > float64(len(lengths))*0.2 {
			issues = append(issues, Issue{
				Level:      LevelWarning,
				Category:   "clarity",
				Message:    fmt.Sprintf("%d very long sentences detected", long),
				Suggestion: "Break down complex sentences for clarity",
			})
		}
	}
	return issues, clamp(1 - float64(len(issues))*0.1)
}
