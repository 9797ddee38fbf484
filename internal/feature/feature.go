// Package feature derives a best-effort work-item label from the environment.
package feature

import (
	"strings"

	"github.com/go-git/go-git/v5"
)

// Probe supplies a feature label. An empty string means unknown.
type Probe interface {
	FeatureName() string
}

// GitProbe reads the current branch of the repository containing Dir.
type GitProbe struct {
	Dir string
}

// FeatureName returns the label for the checked-out branch, or "" when the
// directory is not a repository, HEAD is detached, or anything else fails.
func (p GitProbe) FeatureName() string {
	repo, err := git.PlainOpenWithOptions(p.Dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	if !head.Name().IsBranch() {
		return ""
	}
	return FromBranch(head.Name().Short())
}

// FromBranch maps a branch name to a feature label. Branches of the form
// "NNN-name" yield "name"; anything else is returned as-is.
func FromBranch(branch string) string {
	branch = strings.TrimSpace(branch)
	if prefix, rest, ok := strings.Cut(branch, "-"); ok && prefix != "" && rest != "" && isDigits(prefix) {
		return rest
	}
	return branch
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Static is a Probe that always returns the same label.
type Static string

func (s Static) FeatureName() string { return string(s) }
