package transfer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kokistudios/specgate/internal/markdown"
	"github.com/kokistudios/specgate/internal/phase"
)

// Heading aliases, tried in order.
var (
	visionHeadings       = []string{"Product Vision", "Vision"}
	criteriaHeadings     = []string{"Success Criteria", "Criteria"}
	constraintHeadings   = []string{"Technical Constraints", "Constraints"}
	stakeholderHeadings  = []string{"Stakeholders", "Stakeholder"}
	requirementHeadings  = []string{"Requirements", "Requirement"}
	techReqHeadings      = []string{"Technical Requirements", "Requirements", "Requirement"}
	architectureHeadings = []string{"Architecture", "Design Decisions"}
	designConstrHeadings = []string{"Design Constraints", "Constraints"}
	interfaceHeadings    = []string{"Interfaces", "API"}
	validationHeadings   = []string{"Validation Criteria", "Validation"}
	strategyHeadings     = []string{"Implementation Strategy", "Strategy"}
	technologyHeadings   = []string{"Technology Stack", "Technologies"}
	resourceHeadings     = []string{"Resource Allocation", "Resources"}
	milestoneHeadings    = []string{"Milestones", "Timeline"}
	dependencyHeadings   = []string{"Dependencies"}
	riskHeadings         = []string{"Risk Analysis", "Risks"}
	taskHeadings         = []string{"Task List", "Tasks"}

	completenessSections = [][]string{
		{"Technical Requirements"}, {"Architecture"}, {"Interfaces"}, {"Validation"}, {"Constraints"},
	}

	timelineRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+\s*weeks?)`),
		regexp.MustCompile(`(?i)(\d+\s*months?)`),
		regexp.MustCompile(`(?i)(\d+\s*days?)`),
	}
	teamRe   = regexp.MustCompile(`(?i)team[^\n\d]*(\d+)`)
	budgetRe = regexp.MustCompile(`(?i)budget[^\n\d]*(\d+)`)
)

// Extractor turns phase documents into context records. Extraction never
// fails on content: missing sections yield empty fields.
type Extractor struct {
	Now func() time.Time
}

func (x Extractor) timestamp() string {
	now := time.Now
	if x.Now != nil {
		now = x.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (x Extractor) metadata(source string) Metadata {
	return Metadata{"source": source, "extracted_at": x.timestamp()}
}

// Extract dispatches on p. source labels the document in metadata.
func (x Extractor) Extract(p phase.Phase, content, source string) (Record, error) {
	switch p {
	case phase.PhaseProduct:
		return x.Product(content, source), nil
	case phase.PhaseSpecify:
		return x.Specification(content, source), nil
	case phase.PhasePlan:
		return x.Plan(content, source), nil
	case phase.PhaseTasks:
		return x.Tasks(content, source), nil
	}
	return nil, &phase.UnknownPhaseError{Name: string(p)}
}

// Product extracts the product vision, criteria, constraints, stakeholders
// and requirements.
func (x Extractor) Product(content, source string) *ProductContext {
	stakeholders := []Stakeholder{}
	for _, kv := range markdown.KeyValues(markdown.Section(content, stakeholderHeadings...)) {
		stakeholders = append(stakeholders, Stakeholder{Name: kv.Key, Role: kv.Value})
	}
	meta := x.metadata(source)
	meta["sections_found"] = markdown.CountSections(content)

	return &ProductContext{
		Vision:          markdown.Section(content, visionHeadings...),
		SuccessCriteria: list(content, criteriaHeadings),
		Constraints:     list(content, constraintHeadings),
		Stakeholders:    stakeholders,
		Requirements:    requirements(markdown.Section(content, requirementHeadings...)),
		Metadata:        meta,
	}
}

// Specification extracts technical requirements, decisions, constraints,
// interfaces, validation criteria and resolved clarifications.
func (x Extractor) Specification(content, source string) *SpecificationContext {
	decisions := []Decision{}
	for _, item := range markdown.ListItems(markdown.Section(content, architectureHeadings...)) {
		d := Decision{Decision: item}
		if k, v, ok := markdown.KeyValue(item); ok {
			d = Decision{Decision: k, Rationale: v}
		}
		decisions = append(decisions, d)
	}

	interfaces := []Interface{}
	for _, item := range markdown.ListItems(markdown.Section(content, interfaceHeadings...)) {
		i := Interface{Name: item}
		if k, v, ok := markdown.KeyValue(item); ok {
			i = Interface{Name: k, Description: v}
		}
		interfaces = append(interfaces, i)
	}

	resolved := []string{}
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "[RESOLVED]") || strings.Contains(line, "[CLARIFIED]") {
			resolved = append(resolved, strings.TrimSpace(line))
		}
	}

	found := 0
	for _, names := range completenessSections {
		if markdown.Section(content, names...) != "" {
			found++
		}
	}
	meta := x.metadata(source)
	meta["completeness_score"] = float64(found) / float64(len(completenessSections))

	return &SpecificationContext{
		TechnicalRequirements:  requirements(markdown.Section(content, techReqHeadings...)),
		ArchitectureDecisions:  decisions,
		DesignConstraints:      list(content, designConstrHeadings),
		Interfaces:             interfaces,
		ValidationCriteria:     list(content, validationHeadings),
		ClarificationsResolved: resolved,
		Metadata:               meta,
	}
}

// Plan extracts strategy, stack, resources, milestones, dependencies, risks
// and design artifact references.
func (x Extractor) Plan(content, source string) *PlanContext {
	milestones := []Milestone{}
	for _, item := range markdown.ListItems(markdown.Section(content, milestoneHeadings...)) {
		m := Milestone{Name: item}
		if k, v, ok := markdown.KeyValue(item); ok {
			m = Milestone{Name: k, Date: v}
		}
		milestones = append(milestones, m)
	}

	risks := []Risk{}
	for _, item := range markdown.ListItems(markdown.Section(content, riskHeadings...)) {
		r := Risk{Risk: item}
		if k, v, ok := markdown.KeyValue(item); ok {
			r = Risk{Risk: k, Mitigation: v}
		}
		risks = append(risks, r)
	}

	meta := x.metadata(source)
	meta["plan_complexity"] = complexity(len(markdown.Words(content)))

	return &PlanContext{
		ImplementationStrategy: markdown.Section(content, strategyHeadings...),
		TechnologyStack:        list(content, technologyHeadings),
		ResourceAllocation:     resources(markdown.Section(content, resourceHeadings...)),
		Milestones:             milestones,
		Dependencies:           list(content, dependencyHeadings),
		RiskAnalysis:           risks,
		DesignArtifacts:        designArtifacts(content),
		Metadata:               meta,
	}
}

// Tasks captures the task list of the terminal phase as generic context.
func (x Extractor) Tasks(content, source string) *GenericContext {
	items := markdown.SectionList(content, taskHeadings...)
	if len(items) == 0 {
		items = markdown.ListItems(content)
	}
	tasks := make([]interface{}, 0, len(items))
	for _, t := range items {
		tasks = append(tasks, t)
	}
	meta := map[string]interface{}{}
	for k, v := range x.metadata(source) {
		meta[k] = v
	}
	return &GenericContext{
		For: phase.PhaseTasks,
		Data: map[string]interface{}{
			"tasks":    tasks,
			"metadata": meta,
		},
	}
}

func list(content string, headings []string) []string {
	items := markdown.SectionList(content, headings...)
	if items == nil {
		return []string{}
	}
	return items
}

// requirements reads "ID: description" entries. Entries without an id are
// numbered REQ-001, REQ-002, ... by position.
func requirements(body string) []Requirement {
	out := []Requirement{}
	for _, item := range markdown.ListItems(body) {
		if k, v, ok := markdown.KeyValue(item); ok {
			out = append(out, Requirement{ID: k, Description: v})
			continue
		}
		out = append(out, Requirement{ID: fmt.Sprintf("REQ-%03d", len(out)+1), Description: item})
	}
	return out
}

func resources(body string) Resources {
	var r Resources
	r.TeamSize = firstNumber(teamRe, body)
	r.Budget = firstNumber(budgetRe, body)
	for _, re := range timelineRe {
		if m := re.FindStringSubmatch(body); m != nil {
			r.Timeline = m[1]
			break
		}
	}
	return r
}

func firstNumber(re *regexp.Regexp, text string) *int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

func designArtifacts(content string) []string {
	out := []string{}
	for _, line := range strings.Split(content, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, ".md") || strings.Contains(lower, ".png") ||
			strings.Contains(lower, ".jpg") || strings.Contains(lower, "diagram") {
			if t := strings.TrimSpace(line); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func complexity(words int) string {
	switch {
	case words < 500:
		return "low"
	case words < 1500:
		return "medium"
	default:
		return "high"
	}
}
