package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bslbridge/bslbridge/pkg/metrics"
	"github.com/bslbridge/bslbridge/pkg/models"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration options for bslbridge.
type Config struct {
	// Engine connection and numbering convention
	Engine EngineConfig `koanf:"engine" toml:"engine"`

	// Host numbering convention and output location
	Host HostConfig `koanf:"host" toml:"host"`

	// Analysis run settings
	Analysis AnalysisConfig `koanf:"analysis" toml:"analysis"`

	// External issue reporters
	Reporters ReportersConfig `koanf:"reporters" toml:"reporters"`

	// Profile presets and overrides
	Profiles ProfilesConfig `koanf:"profiles" toml:"profiles"`

	// Custom metric reductions
	Metrics MetricsConfig `koanf:"metrics" toml:"metrics"`

	// File exclusion patterns
	Exclude ExcludeConfig `koanf:"exclude" toml:"exclude"`

	// Cache settings
	Cache CacheConfig `koanf:"cache" toml:"cache"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output"`

	// Log settings
	Log LogConfig `koanf:"log" toml:"log"`
}

// EngineConfig describes how the BSL engine is reached.
type EngineConfig struct {
	Repository     string `koanf:"repository" toml:"repository"`
	RepositoryName string `koanf:"repository_name" toml:"repository_name"`
	Language       string `koanf:"language" toml:"language"`
	// RulesFile is the engine's rule metadata dump (YAML or JSON).
	RulesFile string `koanf:"rules_file" toml:"rules_file"`
	// Command runs the engine on one file; {path}, {config} and {language}
	// are substituted.
	Command []string `koanf:"command" toml:"command"`
	// ConfigPath is where the diagnostics configuration for Command is written.
	ConfigPath         string   `koanf:"config_path" toml:"config_path"`
	Reports            []string `koanf:"reports" toml:"reports"`
	DiagnosticLanguage string   `koanf:"diagnostic_language" toml:"diagnostic_language"`
	TimeoutSeconds     int      `koanf:"timeout_seconds" toml:"timeout_seconds"`
	LineBase           int      `koanf:"line_base" toml:"line_base"`
	ColumnBase         int      `koanf:"column_base" toml:"column_base"`
}

// HostConfig describes the receiving host.
type HostConfig struct {
	LineBase   int    `koanf:"line_base" toml:"line_base"`
	ColumnBase int    `koanf:"column_base" toml:"column_base"`
	OutputDir  string `koanf:"output_dir" toml:"output_dir"`
}

// AnalysisConfig controls an analysis run.
type AnalysisConfig struct {
	Profile     string   `koanf:"profile" toml:"profile"`
	SourceDirs  []string `koanf:"source_dirs" toml:"source_dirs"`
	Suffixes    []string `koanf:"suffixes" toml:"suffixes"`
	Workers     int      `koanf:"workers" toml:"workers"`
	MaxFileSize int64    `koanf:"max_file_size" toml:"max_file_size"`
}

// ReporterConfig enables one external reporter.
type ReporterConfig struct {
	Enabled              bool     `koanf:"enabled" toml:"enabled"`
	RulesFiles           []string `koanf:"rules_files" toml:"rules_files"`
	CreateExternalIssues bool     `koanf:"create_external_issues" toml:"create_external_issues"`
}

// ReportersConfig holds the built-in reporters.
type ReportersConfig struct {
	ACC       ReporterConfig `koanf:"acc" toml:"acc"`
	EDT       ReporterConfig `koanf:"edt" toml:"edt"`
	Universal ReporterConfig `koanf:"universal" toml:"universal"`
}

// ByKey returns the reporter settings keyed like the built-in reporters.
func (r ReportersConfig) ByKey() map[string]ReporterConfig {
	return map[string]ReporterConfig{
		"acc":       r.ACC,
		"edt":       r.EDT,
		"universal": r.Universal,
	}
}

// OverrideConfig adjusts one rule of one profile. Rule is "repository:rule".
type OverrideConfig struct {
	Profile  string            `koanf:"profile" toml:"profile"`
	Rule     string            `koanf:"rule" toml:"rule"`
	Active   *bool             `koanf:"active" toml:"active,omitempty"`
	Severity string            `koanf:"severity" toml:"severity,omitempty"`
	Params   map[string]string `koanf:"params" toml:"params,omitempty"`
}

// ProfilesConfig lists host presets and overrides.
type ProfilesConfig struct {
	PresetFiles []string         `koanf:"preset_files" toml:"preset_files"`
	Overrides   []OverrideConfig `koanf:"overrides" toml:"overrides"`
}

// MetricConfig registers a metric not known to the default registry.
type MetricConfig struct {
	Reduction string `koanf:"reduction" toml:"reduction"`
	Weight    string `koanf:"weight" toml:"weight,omitempty"`
}

// MetricsConfig holds custom metrics keyed by metric name.
type MetricsConfig struct {
	Custom map[string]MetricConfig `koanf:"custom" toml:"custom"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns  []string `koanf:"patterns" toml:"patterns"`
	Dirs      []string `koanf:"dirs" toml:"dirs"`
	Gitignore bool     `koanf:"gitignore" toml:"gitignore"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Dir     string `koanf:"dir" toml:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl"` // TTL in hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format string `koanf:"format" toml:"format"` // text, json, markdown, toon
	Color  bool   `koanf:"color" toml:"color"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `koanf:"level" toml:"level"`   // debug, info, warn, error
	Format string `koanf:"format" toml:"format"` // text, json
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Repository:         "bsl-language-server",
			RepositoryName:     "BSL Language Server",
			Language:           "bsl",
			DiagnosticLanguage: "ru",
			TimeoutSeconds:     60,
			LineBase:           0,
			ColumnBase:         0,
		},
		Host: HostConfig{
			LineBase:   1,
			ColumnBase: 0,
			OutputDir:  ".bslbridge/out",
		},
		Analysis: AnalysisConfig{
			Profile:    "Sonar way",
			SourceDirs: []string{"."},
			Suffixes:   []string{".bsl", ".os"},
		},
		Reporters: ReportersConfig{
			ACC:       ReporterConfig{CreateExternalIssues: true},
			EDT:       ReporterConfig{CreateExternalIssues: true},
			Universal: ReporterConfig{},
		},
		Exclude: ExcludeConfig{
			Dirs: []string{
				".git",
				".bslbridge",
				"node_modules",
			},
			Gitignore: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".bslbridge/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	// Determine parser based on extension
	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ConfigNames are the file names searched by LoadOrDefault.
var ConfigNames = []string{
	"bslbridge.toml",
	"bslbridge.yaml",
	"bslbridge.yml",
	"bslbridge.json",
}

// LoadOrDefault tries to load config from standard locations or returns
// defaults. A config file that exists but cannot be parsed is an error.
func LoadOrDefault() (*Config, error) {
	for _, dir := range []string{".", ".bslbridge"} {
		for _, name := range ConfigNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				cfg, err := Load(path)
				if err != nil {
					return nil, fmt.Errorf("load %s: %w", path, err)
				}
				return cfg, nil
			}
		}
	}
	return DefaultConfig(), nil
}

// Validate checks enumerated settings. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Engine.Repository != "", "engine.repository must not be empty")
	check(oneOf(c.Engine.DiagnosticLanguage, "ru", "en"), "engine.diagnostic_language %q: want ru or en", c.Engine.DiagnosticLanguage)
	check(c.Engine.LineBase == 0 || c.Engine.LineBase == 1, "engine.line_base %d: want 0 or 1", c.Engine.LineBase)
	check(c.Engine.ColumnBase == 0 || c.Engine.ColumnBase == 1, "engine.column_base %d: want 0 or 1", c.Engine.ColumnBase)
	check(c.Engine.TimeoutSeconds >= 0, "engine.timeout_seconds must not be negative")
	check(c.Host.LineBase == 0 || c.Host.LineBase == 1, "host.line_base %d: want 0 or 1", c.Host.LineBase)
	check(c.Host.ColumnBase == 0 || c.Host.ColumnBase == 1, "host.column_base %d: want 0 or 1", c.Host.ColumnBase)
	check(len(c.Analysis.Suffixes) > 0, "analysis.suffixes must not be empty")
	check(c.Analysis.MaxFileSize >= 0, "analysis.max_file_size must not be negative")
	check(oneOf(c.Output.Format, "text", "json", "markdown", "toon"), "output.format %q: want text, json, markdown or toon", c.Output.Format)
	check(oneOf(c.Log.Level, "debug", "info", "warn", "error"), "log.level %q: want debug, info, warn or error", c.Log.Level)
	check(oneOf(c.Log.Format, "text", "json"), "log.format %q: want text or json", c.Log.Format)

	for key, rc := range c.Reporters.ByKey() {
		check(!rc.Enabled || len(rc.RulesFiles) > 0, "reporters.%s is enabled without rules_files", key)
	}

	for i, o := range c.Profiles.Overrides {
		check(o.Profile != "", "profiles.overrides[%d]: profile must not be empty", i)
		if _, err := models.ParseRuleKey(o.Rule); err != nil {
			errs = append(errs, fmt.Errorf("profiles.overrides[%d]: %w", i, err))
		}
		if o.Severity != "" {
			if _, err := models.ParseSeverity(o.Severity); err != nil {
				errs = append(errs, fmt.Errorf("profiles.overrides[%d]: %w", i, err))
			}
		}
	}

	for name, m := range c.Metrics.Custom {
		if _, err := metrics.ParseKind(m.Reduction); err != nil {
			errs = append(errs, fmt.Errorf("metrics.custom.%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// Registry returns the default metric registry extended with custom metrics,
// checked against the measures the engine declares.
func (c *Config) Registry() (*metrics.Registry, error) {
	r := metrics.DefaultRegistry()
	for name, m := range c.Metrics.Custom {
		kind, err := metrics.ParseKind(m.Reduction)
		if err != nil {
			return nil, fmt.Errorf("metrics.custom.%s: %w", name, err)
		}
		if err := r.Register(name, metrics.Reduction{Kind: kind, Weight: m.Weight}); err != nil {
			return nil, err
		}
	}
	if err := r.Validate(models.EngineMetrics); err != nil {
		return nil, err
	}
	return r, nil
}

// ModuleFor returns the configured source directory containing path, or ""
// for the project root. path and the source directories are compared after
// cleaning; the first match wins.
func (c *Config) ModuleFor(root, path string) string {
	for _, dir := range c.Analysis.SourceDirs {
		clean := filepath.Clean(dir)
		if clean == "." {
			continue
		}
		abs := clean
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(root, clean)
		}
		rel, err := filepath.Rel(abs, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(clean)
		}
	}
	return ""
}

// ShouldExclude checks if a path should be excluded from analysis.
func (c *Config) ShouldExclude(path string) bool {
	for _, dir := range c.Exclude.Dirs {
		if strings.Contains(path, string(filepath.Separator)+dir+string(filepath.Separator)) ||
			strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}

	base := filepath.Base(path)
	for _, pattern := range c.Exclude.Patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}

	return false
}

// HasSuffix reports whether path ends in one of the configured source
// suffixes. Comparison ignores case.
func (c *Config) HasSuffix(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range c.Analysis.Suffixes {
		s = strings.ToLower(s)
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		if ext == s {
			return true
		}
	}
	return false
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
