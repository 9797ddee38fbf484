// Package transfer moves structured context between phases: it extracts
// typed records from phase documents, stores them in workflow state, and
// renders them into the next phase's template.
package transfer

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kokistudios/specgate/internal/phase"
)

// Metadata is free-form record metadata.
type Metadata map[string]interface{}

// Element kinds counted for traceability.
const (
	ElementRequirement = "requirement"
	ElementConstraint  = "constraint"
	ElementDecision    = "decision"
)

// Element is one traceable item of a record.
type Element struct {
	Kind string
	Text string
}

// Record is the context captured from one phase. The concrete type is
// determined by the phase: *ProductContext, *SpecificationContext,
// *PlanContext, or *GenericContext for anything else.
type Record interface {
	Phase() phase.Phase
	// Elements returns the items counted when measuring traceability.
	Elements() []Element
	// Texts returns every textual value, used to match upstream elements.
	Texts() []string
}

type Requirement struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
}

func (r Requirement) String() string {
	return fmt.Sprintf("%s: %s", r.ID, r.Description)
}

type Stakeholder struct {
	Name string `yaml:"name" json:"name"`
	Role string `yaml:"role" json:"role"`
}

type Decision struct {
	Decision  string `yaml:"decision" json:"decision"`
	Rationale string `yaml:"rationale" json:"rationale"`
}

type Interface struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

type Milestone struct {
	Name string `yaml:"name" json:"name"`
	Date string `yaml:"date" json:"date"`
}

type Risk struct {
	Risk       string `yaml:"risk" json:"risk"`
	Mitigation string `yaml:"mitigation" json:"mitigation"`
}

type Resources struct {
	TeamSize *int   `yaml:"team_size" json:"team_size"`
	Timeline string `yaml:"timeline" json:"timeline"`
	Budget   *int   `yaml:"budget" json:"budget"`
}

// ProductContext is captured from the product document.
type ProductContext struct {
	Vision          string        `yaml:"vision" json:"vision"`
	SuccessCriteria []string      `yaml:"success_criteria" json:"success_criteria"`
	Constraints     []string      `yaml:"constraints" json:"constraints"`
	Stakeholders    []Stakeholder `yaml:"stakeholders" json:"stakeholders"`
	Requirements    []Requirement `yaml:"requirements" json:"requirements"`
	Metadata        Metadata      `yaml:"metadata" json:"metadata"`
}

func (*ProductContext) Phase() phase.Phase { return phase.PhaseProduct }

func (c *ProductContext) Elements() []Element {
	var out []Element
	for _, r := range c.Requirements {
		out = append(out, Element{Kind: ElementRequirement, Text: r.String()})
	}
	for _, s := range c.Constraints {
		out = append(out, Element{Kind: ElementConstraint, Text: s})
	}
	return out
}

func (c *ProductContext) Texts() []string {
	out := []string{c.Vision}
	out = append(out, c.SuccessCriteria...)
	out = append(out, c.Constraints...)
	for _, s := range c.Stakeholders {
		out = append(out, s.Name+" "+s.Role)
	}
	for _, r := range c.Requirements {
		out = append(out, r.Description)
	}
	return nonEmpty(out)
}

// SpecificationContext is captured from the specification document.
type SpecificationContext struct {
	TechnicalRequirements  []Requirement `yaml:"technical_requirements" json:"technical_requirements"`
	ArchitectureDecisions  []Decision    `yaml:"architecture_decisions" json:"architecture_decisions"`
	DesignConstraints      []string      `yaml:"design_constraints" json:"design_constraints"`
	Interfaces             []Interface   `yaml:"interfaces" json:"interfaces"`
	ValidationCriteria     []string      `yaml:"validation_criteria" json:"validation_criteria"`
	ClarificationsResolved []string      `yaml:"clarifications_resolved" json:"clarifications_resolved"`
	Metadata               Metadata      `yaml:"metadata" json:"metadata"`
}

func (*SpecificationContext) Phase() phase.Phase { return phase.PhaseSpecify }

func (c *SpecificationContext) Elements() []Element {
	var out []Element
	for _, r := range c.TechnicalRequirements {
		out = append(out, Element{Kind: ElementRequirement, Text: r.String()})
	}
	for _, d := range c.ArchitectureDecisions {
		out = append(out, Element{Kind: ElementDecision, Text: d.Decision})
	}
	return out
}

func (c *SpecificationContext) Texts() []string {
	var out []string
	for _, r := range c.TechnicalRequirements {
		out = append(out, r.Description)
	}
	for _, d := range c.ArchitectureDecisions {
		out = append(out, d.Decision+" "+d.Rationale)
	}
	out = append(out, c.DesignConstraints...)
	for _, i := range c.Interfaces {
		out = append(out, i.Name+" "+i.Description)
	}
	out = append(out, c.ValidationCriteria...)
	return nonEmpty(out)
}

// PlanContext is captured from the implementation plan.
type PlanContext struct {
	ImplementationStrategy string      `yaml:"implementation_strategy" json:"implementation_strategy"`
	TechnologyStack        []string    `yaml:"technology_stack" json:"technology_stack"`
	ResourceAllocation     Resources   `yaml:"resource_allocation" json:"resource_allocation"`
	Milestones             []Milestone `yaml:"milestones" json:"milestones"`
	Dependencies           []string    `yaml:"dependencies" json:"dependencies"`
	RiskAnalysis           []Risk      `yaml:"risk_analysis" json:"risk_analysis"`
	DesignArtifacts        []string    `yaml:"design_artifacts" json:"design_artifacts"`
	Metadata               Metadata    `yaml:"metadata" json:"metadata"`
}

func (*PlanContext) Phase() phase.Phase { return phase.PhasePlan }

func (c *PlanContext) Elements() []Element { return nil }

func (c *PlanContext) Texts() []string {
	out := []string{c.ImplementationStrategy}
	out = append(out, c.TechnologyStack...)
	for _, m := range c.Milestones {
		out = append(out, m.Name)
	}
	out = append(out, c.Dependencies...)
	for _, r := range c.RiskAnalysis {
		out = append(out, r.Risk+" "+r.Mitigation)
	}
	return nonEmpty(out)
}

// GenericContext holds context of an unknown shape, e.g. for the tasks phase
// or data supplied directly by a caller.
type GenericContext struct {
	For  phase.Phase
	Data map[string]interface{}
}

func (c *GenericContext) Phase() phase.Phase { return c.For }

// Elements counts list entries under the same keys the typed records use.
func (c *GenericContext) Elements() []Element {
	var out []Element
	for _, key := range []struct{ name, kind string }{
		{"requirements", ElementRequirement},
		{"constraints", ElementConstraint},
		{"technical_requirements", ElementRequirement},
		{"architecture_decisions", ElementDecision},
	} {
		list, ok := c.Data[key.name].([]interface{})
		if !ok {
			continue
		}
		for _, v := range list {
			out = append(out, Element{Kind: key.kind, Text: flatten(v)})
		}
	}
	return out
}

func (c *GenericContext) Texts() []string {
	var out []string
	for k, v := range c.Data {
		if k == "metadata" {
			continue
		}
		out = append(out, flatten(v))
	}
	return nonEmpty(out)
}

func flatten(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []interface{}:
		var s string
		for _, e := range t {
			s += flatten(e) + " "
		}
		return s
	case map[string]interface{}:
		var s string
		for _, e := range t {
			s += flatten(e) + " "
		}
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Encode converts a record into the plain map stored in workflow state.
func Encode(r Record) (map[string]interface{}, error) {
	if g, ok := r.(*GenericContext); ok {
		out := make(map[string]interface{}, len(g.Data))
		for k, v := range g.Data {
			out[k] = v
		}
		return out, nil
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s context: %w", r.Phase(), err)
	}
	var out map[string]interface{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("encode %s context: %w", r.Phase(), err)
	}
	return out, nil
}

// Decode converts stored data into the record type owned by p. Data whose
// shape does not fit the typed record is returned as a *GenericContext along
// with the decode error.
func Decode(p phase.Phase, data map[string]interface{}) (Record, error) {
	var target Record
	switch p {
	case phase.PhaseProduct:
		target = &ProductContext{}
	case phase.PhaseSpecify:
		target = &SpecificationContext{}
	case phase.PhasePlan:
		target = &PlanContext{}
	default:
		return &GenericContext{For: p, Data: data}, nil
	}

	raw, err := yaml.Marshal(data)
	if err == nil {
		err = yaml.Unmarshal(raw, target)
	}
	if err != nil {
		return &GenericContext{For: p, Data: data}, fmt.Errorf("decode %s context: %w", p, err)
	}
	return target, nil
}
