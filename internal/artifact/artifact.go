package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kokistudios/specgate/internal/markdown"
	"github.com/kokistudios/specgate/internal/phase"
)

// ErrNotFound matches every DocumentNotFoundError and TemplateNotFoundError.
var ErrNotFound = errors.New("artifact not found")

// DocumentNotFoundError reports a missing phase document.
type DocumentNotFoundError struct {
	Path string
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("document not found: %s", e.Path)
}

func (e *DocumentNotFoundError) Is(target error) bool { return target == ErrNotFound }

// Meta contains the optional YAML frontmatter of a phase document.
type Meta struct {
	Phase     string    `yaml:"phase,omitempty"`
	Feature   string    `yaml:"feature,omitempty"`
	Timestamp time.Time `yaml:"timestamp,omitempty"`
	Status    string    `yaml:"status,omitempty"` // draft, final
}

// Document is a parsed markdown phase document.
type Document struct {
	Frontmatter Meta
	Body        string
	RawContent  string
	FilePath    string
}

// Parse splits a markdown document into YAML frontmatter and body.
// Frontmatter is delimited by --- lines at the start of the document.
func Parse(raw []byte) (*Document, error) {
	content := string(raw)
	trimmed := strings.TrimSpace(content)

	if !strings.HasPrefix(trimmed, "---") {
		return &Document{
			Body:       content,
			RawContent: content,
		}, nil
	}

	rest := trimmed[3:]
	rest = strings.TrimLeft(rest, " \t")
	if len(rest) > 0 && rest[0] == '\n' {
		rest = rest[1:]
	} else if len(rest) > 1 && rest[0] == '\r' && rest[1] == '\n' {
		rest = rest[2:]
	}

	endIdx := strings.Index(rest, "\n---")
	if endIdx == -1 {
		return nil, fmt.Errorf("unterminated frontmatter: missing closing ---")
	}

	fmRaw := rest[:endIdx]
	body := rest[endIdx+4:]
	body = strings.TrimLeft(body, "\r\n")

	var meta Meta
	if err := yaml.Unmarshal([]byte(fmRaw), &meta); err != nil {
		return nil, fmt.Errorf("invalid frontmatter YAML: %w", err)
	}

	return &Document{
		Frontmatter: meta,
		Body:        body,
		RawContent:  content,
	}, nil
}

// Validate checks that a document has something to extract from.
func Validate(d *Document) error {
	if d == nil {
		return fmt.Errorf("document is nil")
	}
	if strings.TrimSpace(d.Body) == "" {
		return fmt.Errorf("document %s is empty", d.FilePath)
	}
	if markdown.CountSections(d.Body) == 0 {
		return fmt.Errorf("document %s has no markdown headings", d.FilePath)
	}
	return nil
}

// PhaseFilename returns the conventional filename for a phase's document.
func PhaseFilename(p phase.Phase) string {
	if doc := p.Info().Document; doc != "" {
		return doc
	}
	return string(p) + ".md"
}

// Save writes d to path with its frontmatter, creating parent directories.
func Save(path string, d *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	fm, err := yaml.Marshal(d.Frontmatter)
	if err != nil {
		return fmt.Errorf("failed to marshal frontmatter: %w", err)
	}
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(d.Body)

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	d.FilePath = path
	d.RawContent = buf.String()
	return nil
}

// Load reads a document from a file path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &DocumentNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d.FilePath = path
	return d, nil
}
