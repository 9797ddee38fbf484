package marker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Suffix is appended to the phase token to form a marker filename.
const Suffix = ".complete"

// Marker is the payload of a phase completion marker. Only the file's
// existence is load-bearing; the payload is informational.
type Marker struct {
	Phase       string    `yaml:"phase"`
	CompletedAt time.Time `yaml:"completed_at"`
	ContentHash string    `yaml:"content_hash,omitempty"`
}

// Path returns the marker path for a phase token inside dir.
func Path(dir, phase string) string {
	return filepath.Join(dir, phase+Suffix)
}

// Exists reports whether the marker for phase is present.
func Exists(dir, phase string) (bool, error) {
	_, err := os.Stat(Path(dir, phase))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat phase marker: %w", err)
}

// Read loads a marker. Returns nil if no marker file exists. An empty or
// unparsable payload still counts as a marker and yields a bare Marker.
func Read(dir, phase string) (*Marker, error) {
	data, err := os.ReadFile(Path(dir, phase))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read phase marker: %w", err)
	}
	m := Marker{Phase: phase}
	if len(strings.TrimSpace(string(data))) > 0 {
		_ = yaml.Unmarshal(data, &m)
	}
	return &m, nil
}

// Write creates or overwrites the marker for m.Phase.
func Write(dir string, m *Marker) error {
	if m == nil {
		return fmt.Errorf("marker cannot be nil")
	}
	if m.Phase == "" {
		return fmt.Errorf("marker missing phase")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create phase-markers directory: %w", err)
	}
	if m.CompletedAt.IsZero() {
		m.CompletedAt = time.Now().UTC()
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal phase marker: %w", err)
	}
	if err := os.WriteFile(Path(dir, m.Phase), data, 0644); err != nil {
		return fmt.Errorf("failed to write phase marker: %w", err)
	}
	return nil
}

// Clear removes the marker for phase if it exists.
func Clear(dir, phase string) error {
	if err := os.Remove(Path(dir, phase)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear phase marker: %w", err)
	}
	return nil
}

// List returns the phase tokens of every marker present in dir.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list phase markers: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Suffix) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), Suffix))
	}
	return out, nil
}
