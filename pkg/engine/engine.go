// Package engine defines the contracts consumed from the external BSL
// analysis engine and ships adapters for the ways the engine can be reached:
// a rule metadata dump, pre-computed JSON reports and a per-file command.
package engine

import (
	"context"

	"github.com/bslbridge/bslbridge/pkg/models"
)

// Repository identifies the rule repository a source contributes to.
type Repository struct {
	Key      string `json:"key" yaml:"key" validate:"required"`
	Name     string `json:"name" yaml:"name"`
	Language string `json:"language" yaml:"language"`
	// EngineID is the diagnostic "source" value the engine stamps on its
	// diagnostics; empty means the repository key.
	EngineID string `json:"engine_id,omitempty" yaml:"engine_id,omitempty"`
}

// ParamInfo is engine metadata for a rule parameter.
type ParamInfo struct {
	Key          string `json:"key" yaml:"key" validate:"required"`
	Description  string `json:"description" yaml:"description"`
	Type         string `json:"type" yaml:"type" validate:"required"`
	DefaultValue string `json:"default_value" yaml:"default_value"`
}

// RuleInfo is engine metadata for one rule.
type RuleInfo struct {
	Code        string `json:"code" yaml:"code" validate:"required"`
	Name        string `json:"name" yaml:"name" validate:"required"`
	Description string `json:"description" yaml:"description"`
	// DescriptionHTML marks descriptions that are already HTML.
	DescriptionHTML bool     `json:"description_html,omitempty" yaml:"description_html,omitempty"`
	Type            string   `json:"type" yaml:"type" validate:"required"`
	Severity        string   `json:"severity" yaml:"severity" validate:"required"`
	Tags            []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	// Remediation forces a remediation function; when empty it is derived
	// from MinutesToFix and ExtraMinForComplexity.
	Remediation           string      `json:"remediation,omitempty" yaml:"remediation,omitempty" validate:"omitempty,oneof=CONSTANT LINEAR LINEAR_OFFSET"`
	MinutesToFix          float64     `json:"minutes_to_fix" yaml:"minutes_to_fix" validate:"gte=0"`
	ExtraMinForComplexity float64     `json:"extra_min_for_complexity,omitempty" yaml:"extra_min_for_complexity,omitempty" validate:"gte=0"`
	Parameters            []ParamInfo `json:"parameters,omitempty" yaml:"parameters,omitempty" validate:"dive"`
	ActivatedByDefault    bool        `json:"activated_by_default" yaml:"activated_by_default"`
	PointSpan             string      `json:"point_span,omitempty" yaml:"point_span,omitempty" validate:"omitempty,oneof=token line"`
}

// ProfileRule activates one rule inside a preset profile.
type ProfileRule struct {
	// Repository defaults to the repository of the source listing the profile.
	Repository string            `json:"repository,omitempty" yaml:"repository,omitempty"`
	Rule       string            `json:"rule" yaml:"rule" validate:"required"`
	Severity   string            `json:"severity,omitempty" yaml:"severity,omitempty"`
	Params     map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// ProfileInfo is a preset profile published by the engine.
type ProfileInfo struct {
	Name     string        `json:"name" yaml:"name" validate:"required"`
	Language string        `json:"language,omitempty" yaml:"language,omitempty"`
	Rules    []ProfileRule `json:"rules" yaml:"rules" validate:"dive"`
}

// RuleSource enumerates rule metadata and preset profiles.
type RuleSource interface {
	Repository() Repository
	ListRules(ctx context.Context) ([]RuleInfo, error)
	ListProfiles(ctx context.Context) ([]ProfileInfo, error)
}

// Analysis is the engine output for one file.
type Analysis struct {
	Diagnostics []models.RawDiagnostic `json:"diagnostics"`
	Measures    map[string]float64     `json:"measures,omitempty"`
	// CodeLines lists the 1-based lines that contain code.
	CodeLines []int                `json:"code_lines,omitempty"`
	Tokens    []models.EngineToken `json:"tokens,omitempty"`
}

// Analyzer runs the engine on one file. Implementations must be safe for
// concurrent use.
type Analyzer interface {
	AnalyzeFile(ctx context.Context, path string, content []byte) (*Analysis, error)
}

// Fingerprinter is implemented by analyzers whose output depends only on the
// file content, the active rules and the identity returned by Fingerprint.
// Results of other analyzers are never cached.
type Fingerprinter interface {
	Fingerprint() string
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, path string, content []byte) (*Analysis, error)

// AnalyzeFile calls f.
func (f AnalyzerFunc) AnalyzeFile(ctx context.Context, path string, content []byte) (*Analysis, error) {
	return f(ctx, path, content)
}
