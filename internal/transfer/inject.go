package transfer

import (
	"fmt"
	"sort"
	"strings"
)

// Placeholder tokens recognized in templates.
const (
	PlaceholderProductVision          = "{{PRODUCT_VISION}}"
	PlaceholderSuccessCriteria        = "{{SUCCESS_CRITERIA}}"
	PlaceholderTechnicalConstraints   = "{{TECHNICAL_CONSTRAINTS}}"
	PlaceholderRequirements           = "{{REQUIREMENTS}}"
	PlaceholderStakeholders           = "{{STAKEHOLDERS}}"
	PlaceholderTechnicalRequirements  = "{{TECHNICAL_REQUIREMENTS}}"
	PlaceholderArchitectureDecisions  = "{{ARCHITECTURE_DECISIONS}}"
	PlaceholderDesignConstraints      = "{{DESIGN_CONSTRAINTS}}"
	PlaceholderInterfaces             = "{{INTERFACES}}"
	PlaceholderImplementationStrategy = "{{IMPLEMENTATION_STRATEGY}}"
	PlaceholderTechnologyStack        = "{{TECHNOLOGY_STACK}}"
	PlaceholderMilestones             = "{{MILESTONES}}"
	PlaceholderDependencies           = "{{DEPENDENCIES}}"
)

// Placeholders returns the substitutions r provides, keyed by token.
func Placeholders(r Record) map[string]string {
	switch c := r.(type) {
	case *ProductContext:
		return map[string]string{
			PlaceholderProductVision:        c.Vision,
			PlaceholderSuccessCriteria:      bullets(c.SuccessCriteria),
			PlaceholderTechnicalConstraints: bullets(c.Constraints),
			PlaceholderRequirements:         formatRequirements(c.Requirements),
			PlaceholderStakeholders:         formatStakeholders(c.Stakeholders),
		}
	case *SpecificationContext:
		return map[string]string{
			PlaceholderTechnicalRequirements: formatRequirements(c.TechnicalRequirements),
			PlaceholderArchitectureDecisions: formatDecisions(c.ArchitectureDecisions),
			PlaceholderDesignConstraints:     bullets(c.DesignConstraints),
			PlaceholderInterfaces:            formatInterfaces(c.Interfaces),
		}
	case *PlanContext:
		return map[string]string{
			PlaceholderImplementationStrategy: c.ImplementationStrategy,
			PlaceholderTechnologyStack:        bullets(c.TechnologyStack),
			PlaceholderMilestones:             formatMilestones(c.Milestones),
			PlaceholderDependencies:           bullets(c.Dependencies),
		}
	}
	return nil
}

// Inject replaces every placeholder r provides. Other tokens are left as-is.
func Inject(r Record, template string) string {
	subs := Placeholders(r)
	if len(subs) == 0 {
		return template
	}
	tokens := make([]string, 0, len(subs))
	for tok := range subs {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	pairs := make([]string, 0, 2*len(tokens))
	for _, tok := range tokens {
		pairs = append(pairs, tok, subs[tok])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

func formatRequirements(reqs []Requirement) string {
	lines := make([]string, len(reqs))
	for i, r := range reqs {
		lines[i] = fmt.Sprintf("- %s: %s", r.ID, r.Description)
	}
	return strings.Join(lines, "\n")
}

func formatStakeholders(ss []Stakeholder) string {
	lines := make([]string, len(ss))
	for i, s := range ss {
		lines[i] = fmt.Sprintf("- %s: %s", s.Name, s.Role)
	}
	return strings.Join(lines, "\n")
}

func formatDecisions(ds []Decision) string {
	var lines []string
	for _, d := range ds {
		lines = append(lines, "- "+d.Decision)
		if d.Rationale != "" {
			lines = append(lines, "  - Rationale: "+d.Rationale)
		}
	}
	return strings.Join(lines, "\n")
}

func formatInterfaces(is []Interface) string {
	lines := make([]string, len(is))
	for i, in := range is {
		if in.Description == "" {
			lines[i] = "- " + in.Name
		} else {
			lines[i] = fmt.Sprintf("- %s: %s", in.Name, in.Description)
		}
	}
	return strings.Join(lines, "\n")
}

func formatMilestones(ms []Milestone) string {
	var lines []string
	for _, m := range ms {
		lines = append(lines, "- "+m.Name)
		if m.Date != "" {
			lines = append(lines, "  - Due: "+m.Date)
		}
	}
	return strings.Join(lines, "\n")
}
