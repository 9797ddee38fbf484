package phase

import (
	"errors"
	"fmt"
	"strings"
)

// Phase represents a named phase in the workflow.
type Phase string

const (
	PhaseProduct Phase = "product"
	PhaseSpecify Phase = "specify"
	PhasePlan    Phase = "plan"
	PhaseTasks   Phase = "tasks"
)

// ErrUnknownPhase is the sentinel behind every UnknownPhaseError.
var ErrUnknownPhase = errors.New("unknown phase")

// UnknownPhaseError reports a phase token that is not part of the sequence.
type UnknownPhaseError struct {
	Name string
}

func (e *UnknownPhaseError) Error() string {
	return fmt.Sprintf("invalid phase name: %q (valid phases: %s)", e.Name, strings.Join(Names(), ", "))
}

func (e *UnknownPhaseError) Unwrap() error { return ErrUnknownPhase }

// Info is one row of the phase table.
type Info struct {
	Phase    Phase
	Index    int
	Label    string
	Document string // conventional document filename
	Template string // template id rendered with upstream context
	Command  string // command that produces this phase's document
	Purpose  string
}

// table is the single source of truth for ordering. Prerequisites of a phase
// are all rows above it.
var table = []Info{
	{
		Phase:    PhaseProduct,
		Index:    0,
		Label:    "Product",
		Document: "product.md",
		Command:  "/product",
		Purpose:  "define the product context",
	},
	{
		Phase:    PhaseSpecify,
		Index:    1,
		Label:    "Specification",
		Document: "spec.md",
		Template: "specify",
		Command:  "/specify",
		Purpose:  "define technical requirements",
	},
	{
		Phase:    PhasePlan,
		Index:    2,
		Label:    "Plan",
		Document: "plan.md",
		Template: "plan",
		Command:  "/plan",
		Purpose:  "define the implementation approach and design",
	},
	{
		Phase:    PhaseTasks,
		Index:    3,
		Label:    "Tasks",
		Document: "tasks.md",
		Template: "tasks",
		Command:  "/tasks",
		Purpose:  "break the plan into implementation tasks",
	},
}

// Sequence returns the ordered list of phases.
func Sequence() []Phase {
	out := make([]Phase, len(table))
	for i, row := range table {
		out[i] = row.Phase
	}
	return out
}

// Names returns the phase tokens in sequence order.
func Names() []string {
	out := make([]string, len(table))
	for i, row := range table {
		out[i] = string(row.Phase)
	}
	return out
}

// First returns the entry phase of the workflow.
func First() Phase { return table[0].Phase }

// Last returns the terminal phase of the workflow.
func Last() Phase { return table[len(table)-1].Phase }

// Parse converts an external name into a Phase. Matching ignores case and
// surrounding whitespace.
func Parse(name string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(name)))
	if !p.Valid() {
		return "", &UnknownPhaseError{Name: name}
	}
	return p, nil
}

// MustParse is Parse for compile-time constants in tests and tables.
func MustParse(name string) Phase {
	p, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return p
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Index returns the 0-based position of p in the sequence, or -1.
func (p Phase) Index() int {
	for _, row := range table {
		if row.Phase == p {
			return row.Index
		}
	}
	return -1
}

func (p Phase) String() string { return string(p) }

// Info returns the table row for p. Unknown phases yield a zero Info with Index -1.
func (p Phase) Info() Info {
	i := p.Index()
	if i < 0 {
		return Info{Phase: p, Index: -1}
	}
	return table[i]
}

// Before reports whether p comes strictly before q in the sequence.
func (p Phase) Before(q Phase) bool {
	return p.Index() >= 0 && q.Index() >= 0 && p.Index() < q.Index()
}

// Prerequisites returns every phase that must be complete before p may start.
func Prerequisites(p Phase) []Phase {
	i := p.Index()
	if i <= 0 {
		return nil
	}
	return Sequence()[:i]
}

// Upstream returns the phase whose context p consumes, if any.
func Upstream(p Phase) (Phase, bool) {
	i := p.Index()
	if i <= 0 {
		return "", false
	}
	return table[i-1].Phase, true
}

// Next returns the phase after p, if any.
func Next(p Phase) (Phase, bool) {
	i := p.Index()
	if i < 0 || i+1 >= len(table) {
		return "", false
	}
	return table[i+1].Phase, true
}

// Later returns every phase after p in sequence order.
func Later(p Phase) []Phase {
	i := p.Index()
	if i < 0 {
		return nil
	}
	return Sequence()[i+1:]
}

// Pairs returns each adjacent (upstream, downstream) pair in the sequence.
func Pairs() [][2]Phase {
	seq := Sequence()
	out := make([][2]Phase, 0, len(seq)-1)
	for i := 1; i < len(seq); i++ {
		out = append(out, [2]Phase{seq[i-1], seq[i]})
	}
	return out
}

// FirstMissing returns the first prerequisite of target that is absent from
// completed. ok is false when all prerequisites are met.
func FirstMissing(target Phase, completed func(Phase) bool) (Phase, bool) {
	for _, req := range Prerequisites(target) {
		if !completed(req) {
			return req, true
		}
	}
	return "", false
}

// ProducesContext reports whether p's document is extracted into a typed
// context record for the phase after it.
func ProducesContext(p Phase) bool {
	_, ok := Next(p)
	return ok
}
