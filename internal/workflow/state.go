package workflow

import (
	"time"

	"github.com/kokistudios/specgate/internal/phase"
)

// State is the persisted workflow aggregate. Phase tokens are kept as raw
// strings so that a bad entry on disk never prevents decoding the rest.
type State struct {
	CurrentPhase    string                 `yaml:"current_phase,omitempty" json:"current_phase,omitempty"`
	CompletedPhases []string               `yaml:"completed_phases" json:"completed_phases"`
	FeatureName     string                 `yaml:"feature_name,omitempty" json:"feature_name,omitempty"`
	LastUpdated     time.Time              `yaml:"last_updated" json:"last_updated"`
	ContextHash     string                 `yaml:"context_hash,omitempty" json:"context_hash,omitempty"`
	PhaseData       map[string]interface{} `yaml:"phase_data,omitempty" json:"phase_data,omitempty"`
}

// Status summarizes workflow progress.
type Status struct {
	CurrentPhase    phase.Phase   `yaml:"current_phase" json:"current_phase"`
	CompletedPhases []phase.Phase `yaml:"completed_phases" json:"completed_phases"`
	NextPhase       phase.Phase   `yaml:"next_phase" json:"next_phase"`
	CanProceedTo    []phase.Phase `yaml:"can_proceed_to" json:"can_proceed_to"`
	FeatureName     string        `yaml:"feature_name,omitempty" json:"feature_name,omitempty"`
	LastUpdated     time.Time     `yaml:"last_updated" json:"last_updated"`
}

// Done reports whether every phase has been completed.
func (s Status) Done() bool {
	return s.NextPhase == ""
}

// IsCompleted reports whether p is in the reported completed set.
func (s Status) IsCompleted(p phase.Phase) bool {
	for _, c := range s.CompletedPhases {
		if c == p {
			return true
		}
	}
	return false
}

// normalize turns raw tokens into the reported completed set: unknown tokens
// and duplicates dropped, ordered by sequence, truncated to the longest
// prefix of the sequence that is fully present.
func normalize(raw []string) (completed []phase.Phase, unknown []string) {
	seen := make(map[phase.Phase]bool, len(raw))
	for _, tok := range raw {
		p, err := phase.Parse(tok)
		if err != nil {
			unknown = append(unknown, tok)
			continue
		}
		seen[p] = true
	}
	for _, p := range phase.Sequence() {
		if !seen[p] {
			break
		}
		completed = append(completed, p)
	}
	return completed, unknown
}

func tokens(phases []phase.Phase) []string {
	out := make([]string, len(phases))
	for i, p := range phases {
		out[i] = string(p)
	}
	return out
}

// canProceedTo is the longest prefix of the sequence whose prerequisites are
// all in completed.
func canProceedTo(completed []phase.Phase) []phase.Phase {
	done := make(map[phase.Phase]bool, len(completed))
	for _, p := range completed {
		done[p] = true
	}
	var out []phase.Phase
	for _, p := range phase.Sequence() {
		if _, missing := phase.FirstMissing(p, func(q phase.Phase) bool { return done[q] }); missing {
			break
		}
		out = append(out, p)
	}
	return out
}
