package artifact

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed templates/*.md
var templateFS embed.FS

// TemplateNotFoundError reports a template that could not be located.
type TemplateNotFoundError struct {
	ID   string
	Path string
}

func (e *TemplateNotFoundError) Error() string {
	if e.Path == "" || e.Path == e.ID {
		return fmt.Sprintf("template not found: %s", e.ID)
	}
	return fmt.Sprintf("template not found: %s (looked in %s)", e.ID, e.Path)
}

func (e *TemplateNotFoundError) Is(target error) bool { return target == ErrNotFound }

// TemplateSource provides placeholder-bearing template text by identifier.
type TemplateSource interface {
	Template(id string) (string, error)
}

// Templates resolves template identifiers. A bare id ("plan") is looked up
// as <Dir>/<id>.md and then among the built-in defaults. Anything that looks
// like a path is read from disk only.
type Templates struct {
	Dir string
}

// IsPath reports whether id names a file rather than a template id.
func IsPath(id string) bool {
	return strings.ContainsAny(id, `/\`) || strings.HasSuffix(id, ".md")
}

func (t Templates) Template(id string) (string, error) {
	if id == "" {
		return "", &TemplateNotFoundError{ID: id}
	}
	if IsPath(id) {
		data, err := os.ReadFile(id)
		if err != nil {
			if os.IsNotExist(err) {
				return "", &TemplateNotFoundError{ID: id, Path: id}
			}
			return "", fmt.Errorf("failed to read template %s: %w", id, err)
		}
		return string(data), nil
	}

	var local string
	if t.Dir != "" {
		local = filepath.Join(t.Dir, id+".md")
		data, err := os.ReadFile(local)
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read template %s: %w", local, err)
		}
	}

	if data, err := templateFS.ReadFile("templates/" + id + ".md"); err == nil {
		return string(data), nil
	}
	return "", &TemplateNotFoundError{ID: id, Path: local}
}

// Builtin returns the embedded default template for id.
func Builtin(id string) (string, bool) {
	data, err := templateFS.ReadFile("templates/" + id + ".md")
	if err != nil {
		return "", false
	}
	return string(data), true
}

// BuiltinIDs lists the embedded template identifiers.
func BuiltinIDs() []string {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil
	}
	var ids []string
	for _, e := range entries {
		ids = append(ids, strings.TrimSuffix(e.Name(), ".md"))
	}
	return ids
}
