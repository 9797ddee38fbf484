package store

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix scopes environment overrides, e.g. SPECGATE_LOG_LEVEL -> log.level.
const EnvPrefix = "SPECGATE_"

// TemplatesConfig holds template lookup settings.
type TemplatesConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// ValidationConfig holds scoring thresholds.
type ValidationConfig struct {
	DocumentThreshold     float64 `yaml:"document_threshold" validate:"gt=0,lte=1"`
	TraceabilityThreshold float64 `yaml:"traceability_threshold" validate:"gt=0,lte=1"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Config holds workspace configuration.
type Config struct {
	Version    string            `yaml:"version" validate:"required"`
	Documents  map[string]string `yaml:"documents,omitempty" validate:"dive,keys,oneof=product specify plan tasks,endkeys,required"`
	Templates  TemplatesConfig   `yaml:"templates,omitempty"`
	Validation ValidationConfig  `yaml:"validation"`
	Log        LogConfig         `yaml:"log"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		Documents: map[string]string{
			"product": "product.md",
			"specify": "spec.md",
			"plan":    "plan.md",
			"tasks":   "tasks.md",
		},
		Validation: ValidationConfig{
			DocumentThreshold:     0.7,
			TraceabilityThreshold: 0.8,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig reads config.yaml (if present) over the defaults, then applies
// SPECGATE_* environment overrides. Missing fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("cannot read config at %s: %w", path, err)
	}
	if err == nil {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("invalid config.yaml: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return Config{}, fmt.Errorf("invalid config.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps SPECGATE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// ConfigKeys lists the keys accepted by SetConfigValue.
func ConfigKeys() []string {
	keys := []string{
		"log.level",
		"templates.dir",
		"validation.document_threshold",
		"validation.traceability_threshold",
	}
	for _, p := range []string{"product", "specify", "plan", "tasks"} {
		keys = append(keys, "documents."+p)
	}
	sort.Strings(keys)
	return keys
}

// GetConfigValue returns a config value by dot-path key.
func (s *Store) GetConfigValue(key string) (string, error) {
	switch key {
	case "log.level":
		return s.Config.Log.Level, nil
	case "templates.dir":
		return s.Config.Templates.Dir, nil
	case "validation.document_threshold":
		return strconv.FormatFloat(s.Config.Validation.DocumentThreshold, 'f', -1, 64), nil
	case "validation.traceability_threshold":
		return strconv.FormatFloat(s.Config.Validation.TraceabilityThreshold, 'f', -1, 64), nil
	}
	if p, ok := strings.CutPrefix(key, "documents."); ok {
		if v, ok := s.Config.Documents[p]; ok {
			return v, nil
		}
	}
	return "", unknownKey(key)
}

// SetConfigValue sets a config value by dot-path key (e.g. "log.level") and persists it.
func (s *Store) SetConfigValue(key, value string) error {
	next := s.Config
	next.Documents = make(map[string]string, len(s.Config.Documents))
	for k, v := range s.Config.Documents {
		next.Documents[k] = v
	}

	switch key {
	case "log.level":
		next.Log.Level = value
	case "templates.dir":
		next.Templates.Dir = value
	case "validation.document_threshold", "validation.traceability_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number in (0, 1]", key)
		}
		if key == "validation.document_threshold" {
			next.Validation.DocumentThreshold = f
		} else {
			next.Validation.TraceabilityThreshold = f
		}
	default:
		p, ok := strings.CutPrefix(key, "documents.")
		if !ok {
			return unknownKey(key)
		}
		next.Documents[p] = value
	}

	if err := next.Validate(); err != nil {
		return err
	}
	s.Config = next
	return s.SaveConfig()
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key: %s\nValid keys: %s", key, strings.Join(ConfigKeys(), ", "))
}
