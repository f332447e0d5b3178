package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bslbridge/bslbridge/pkg/models"
)

// Config is the engine's diagnostics configuration document.
type Config struct {
	Language    string            `json:"language,omitempty"`
	Diagnostics DiagnosticsConfig `json:"diagnostics"`
}

// DiagnosticsConfig maps a rule code to false (disabled), true (enabled with
// defaults) or a parameter object.
type DiagnosticsConfig struct {
	Parameters map[string]any `json:"parameters"`
}

// ConfigFor builds the engine configuration that mirrors profile for the rules
// of one repository. Parameter values are coerced to their declared types.
func ConfigFor(rules []models.RuleDefinition, profile models.Profile, repository, language string) (*Config, error) {
	cfg := &Config{
		Language:    language,
		Diagnostics: DiagnosticsConfig{Parameters: make(map[string]any)},
	}
	for i := range rules {
		rule := &rules[i]
		if rule.Key.Repository != repository {
			continue
		}
		act, active := profile.Activation(rule.Key)
		if !active {
			cfg.Diagnostics.Parameters[rule.Key.Rule] = false
			continue
		}
		if len(rule.Parameters) == 0 {
			cfg.Diagnostics.Parameters[rule.Key.Rule] = true
			continue
		}
		params := make(map[string]any, len(rule.Parameters))
		for _, p := range rule.Parameters {
			value := p.DefaultValue
			if v, ok := act.Params[p.Key]; ok {
				value = v
			}
			if value == "" && p.Type != models.ParamString {
				continue
			}
			typed, err := p.Coerce(value)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", rule.Key, err)
			}
			params[p.Key] = typed
		}
		cfg.Diagnostics.Parameters[rule.Key.Rule] = params
	}
	return cfg, nil
}

// WriteFile writes the configuration as indented JSON.
func (c *Config) WriteFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
