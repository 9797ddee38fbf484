package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kokistudios/specgate/internal/phase"
)

var (
	// ErrPrerequisite matches every *PrerequisiteError.
	ErrPrerequisite = errors.New("phase prerequisite not met")
	// ErrStateValidation matches every *StateValidationError.
	ErrStateValidation = errors.New("workflow state validation failed")
)

// PrerequisiteError reports a phase requested out of order. Missing is the
// first phase in the sequence that still has to be completed.
type PrerequisiteError struct {
	Target  phase.Phase
	Missing phase.Phase
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("cannot proceed to %s phase: required prerequisite phase %q is not completed; complete the %s phase first",
		e.Target, e.Missing, e.Missing)
}

func (e *PrerequisiteError) Is(target error) bool { return target == ErrPrerequisite }

// Guidance returns an actionable, multi-line description of how to unblock Target.
func (e *PrerequisiteError) Guidance() string {
	info := e.Missing.Info()
	var b strings.Builder
	fmt.Fprintf(&b, "Cannot run %s: the %s phase is not complete.\n", e.Target, e.Missing)
	fmt.Fprintf(&b, "Run %s first to %s.\n", info.Command, info.Purpose)
	fmt.Fprintf(&b, "Workflow: %s", strings.Join(phase.Names(), " → "))
	return b.String()
}

// StateValidationError reports a failure to read, decode, encode or write the
// persisted workflow state or its markers.
type StateValidationError struct {
	Op   string // read, decode, encode, write, marker, clear
	Path string
	Err  error
}

func (e *StateValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("workflow state %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("workflow state %s failed (%s): %v", e.Op, e.Path, e.Err)
}

func (e *StateValidationError) Unwrap() error { return e.Err }

func (e *StateValidationError) Is(target error) bool { return target == ErrStateValidation }
