package validate

import (
	"fmt"
	"os"
)

// ValidateSpecificationFile reads and validates a specification. Unreadable
// files yield a failed result with a file_access error instead of an error.
func ValidateSpecificationFile(path string, v *Specification) Result {
	if v == nil {
		v = NewSpecification()
	}
	content, failed := readForValidation(path, "Specification")
	if failed != nil {
		return *failed
	}
	return v.Validate(content)
}

// ValidatePlanFile reads and validates an implementation plan.
func ValidatePlanFile(path string, v *Plan) Result {
	if v == nil {
		v = NewPlan()
	}
	content, failed := readForValidation(path, "Plan")
	if failed != nil {
		return *failed
	}
	return v.Validate(content)
}

func readForValidation(path, kind string) (string, *Result) {
	data, err := os.ReadFile(path)
	if err == nil {
		return string(data), nil
	}
	issue := Issue{
		Level:      LevelError,
		Category:   "file_access",
		Message:    fmt.Sprintf("Error reading %s file: %v", kind, err),
		Suggestion: "Check file permissions and format",
	}
	summary := fmt.Sprintf("Error reading %s file", kind)
	if os.IsNotExist(err) {
		issue.Message = fmt.Sprintf("%s file not found: %s", kind, path)
		issue.Suggestion = fmt.Sprintf("Ensure the %s file exists", kind)
		summary = fmt.Sprintf("%s file not found", kind)
	}
	return "", &Result{
		Valid:   false,
		Score:   0,
		Issues:  []Issue{issue},
		Summary: summary,
	}
}
