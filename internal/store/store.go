package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Workspace layout under the workspace root.
const (
	DirName      = ".spec-kit"
	StateFile    = "workflow-state.yaml"
	MarkersDir   = "phase-markers"
	ConfigFile   = "config.yaml"
	TemplatesDir = "templates"
)

// Store represents an opened workspace.
type Store struct {
	Root   string
	Dir    string
	Config Config
}

// Issue represents a health check finding.
type Issue struct {
	Severity string // "warning" or "error"
	Message  string
}

// Root returns the workspace root, respecting SPECGATE_WORKSPACE.
func Root() string {
	if r := os.Getenv("SPECGATE_WORKSPACE"); r != "" {
		return r
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// Init creates the workspace directory structure with a default config.yaml.
func Init(root string, force bool) error {
	dir := filepath.Join(root, DirName)
	cfgPath := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return fmt.Errorf("workspace already initialized at %s (use --force to reinitialize)", dir)
	}

	for _, d := range []string{dir, filepath.Join(dir, MarkersDir), filepath.Join(dir, TemplatesDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Open prepares a workspace for use, creating the state directories on first
// access. A missing config.yaml yields defaults.
func Open(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve workspace %s: %w", root, err)
	}
	dir := filepath.Join(abs, DirName)
	for _, d := range []string{dir, filepath.Join(dir, MarkersDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	cfg, err := LoadConfig(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}
	return &Store{Root: abs, Dir: dir, Config: cfg}, nil
}

// SaveConfig writes the current config to config.yaml.
func (s *Store) SaveConfig() error {
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(s.Path(ConfigFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path resolves a path within the workspace state directory.
func (s *Store) Path(parts ...string) string {
	all := append([]string{s.Dir}, parts...)
	return filepath.Join(all...)
}

// Backend returns the file-backed storage for this workspace.
func (s *Store) Backend() *FileBackend {
	return NewFileBackend(s.Dir)
}

// DocumentPath resolves the configured document for a phase token.
func (s *Store) DocumentPath(phase string) string {
	rel, ok := s.Config.Documents[phase]
	if !ok || rel == "" {
		rel = phase + ".md"
	}
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(s.Root, rel)
}

// TemplatesPath resolves the configured workspace template directory.
func (s *Store) TemplatesPath() string {
	dir := s.Config.Templates.Dir
	if dir == "" {
		return s.Path(TemplatesDir)
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(s.Root, dir)
}

// CheckHealth verifies workspace structure integrity.
func CheckHealth(root string) []Issue {
	var issues []Issue
	dir := filepath.Join(root, DirName)

	for _, p := range []string{dir, filepath.Join(dir, MarkersDir)} {
		info, err := os.Stat(p)
		if err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("missing directory: %s", p)})
		} else if !info.IsDir() {
			issues = append(issues, Issue{"error", fmt.Sprintf("expected directory but found file: %s", p)})
		}
	}

	cfgPath := filepath.Join(dir, ConfigFile)
	if data, err := os.ReadFile(cfgPath); err == nil {
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("config.yaml is not valid YAML: %v", err)})
		} else if _, err := LoadConfig(cfgPath); err != nil {
			issues = append(issues, Issue{"error", err.Error()})
		}
	} else if !os.IsNotExist(err) {
		issues = append(issues, Issue{"error", fmt.Sprintf("cannot read config.yaml: %v", err)})
	}

	statePath := filepath.Join(dir, StateFile)
	if data, err := os.ReadFile(statePath); err == nil {
		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("%s is corrupt: %v", StateFile, err)})
		}
	} else if !os.IsNotExist(err) {
		issues = append(issues, Issue{"error", fmt.Sprintf("cannot read %s: %v", StateFile, err)})
	}

	// Stray temp files from an interrupted atomic write.
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "."+StateFile+".tmp") {
				issues = append(issues, Issue{"warning", fmt.Sprintf("leftover temporary state file: %s", e.Name())})
			}
		}
	}

	return issues
}

// FixIssues attempts to repair simple structural issues in a workspace.
// A corrupt state file is never rewritten here.
func FixIssues(root string) []string {
	var fixed []string
	dir := filepath.Join(root, DirName)

	for _, sub := range []string{"", MarkersDir} {
		p := filepath.Join(dir, sub)
		if _, err := os.Stat(p); err != nil {
			if err := os.MkdirAll(p, 0755); err == nil {
				name := sub
				if name == "" {
					name = DirName
				}
				fixed = append(fixed, fmt.Sprintf("recreated missing directory: %s", name))
			}
		}
	}

	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "."+StateFile+".tmp") {
				if os.Remove(filepath.Join(dir, e.Name())) == nil {
					fixed = append(fixed, fmt.Sprintf("removed leftover temporary file: %s", e.Name()))
				}
			}
		}
	}

	return fixed
}
