package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"dev.aicounsel.server/internal/aierrors"
)

// Loader reads, env-substitutes, defaults, and validates the
// deliberation server's YAML configuration.
type Loader struct {
	path   string
	config *Config
}

// NewLoader builds a loader targeting the given file path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads the file at the loader's path and returns a fully
// resolved, validated Config.
func (l *Loader) Load() (*Config, error) {
	if l.path == "" {
		return nil, aierrors.NewValidationError("path", "configuration path is required")
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	return l.LoadFromBytes(data)
}

// LoadFromBytes parses raw YAML content that is already in memory,
// useful for tests.
func (l *Loader) LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	if err := l.substituteEnvVars(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.config = &cfg
	return &cfg, nil
}

// GetConfig returns the last successfully loaded configuration.
func (l *Loader) GetConfig() *Config { return l.config }

// Reload re-reads the configuration file from disk.
func (l *Loader) Reload() (*Config, error) { return l.Load() }

// substituteEnvVars resolves every "${VAR}" reference under adapters.
// api_key is optional — a missing variable degrades it to empty
// string; every other referenced field is required and a missing
// variable is fatal.
func (l *Loader) substituteEnvVars(cfg *Config) error {
	for name, a := range cfg.Adapters {
		var err error
		if a.Command, err = expandRequired("adapters."+name+".command", a.Command); err != nil {
			return err
		}
		if a.URL, err = expandRequired("adapters."+name+".url", a.URL); err != nil {
			return err
		}
		a.APIKey = expandOptional(a.APIKey)
		for i, arg := range a.Args {
			expanded, err := expandRequired(fmt.Sprintf("adapters.%s.args[%d]", name, i), arg)
			if err != nil {
				return err
			}
			a.Args[i] = expanded
		}
		cfg.Adapters[name] = a
	}
	cfg.DecisionGraph.DBPath = os.ExpandEnv(cfg.DecisionGraph.DBPath)
	return nil
}

// expandRequired expands a "${VAR}" reference, returning a
// ValidationError if the referenced variable is unset. A value with no
// "${...}" reference (or empty) passes through unchanged.
func expandRequired(field, value string) (string, error) {
	envName, isRef := envReference(value)
	if !isRef {
		return value, nil
	}
	resolved, ok := os.LookupEnv(envName)
	if !ok {
		return "", aierrors.NewValidationError(field, fmt.Sprintf("environment variable %q is not set", envName))
	}
	return resolved, nil
}

// expandOptional expands a "${VAR}" reference, degrading to the empty
// string (never erroring) when the variable is unset.
func expandOptional(value string) string {
	envName, isRef := envReference(value)
	if !isRef {
		return value
	}
	return os.Getenv(envName)
}

func envReference(value string) (name string, ok bool) {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}"), true
}
