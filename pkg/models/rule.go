package models

import (
	"fmt"
	"strconv"
	"strings"
)

// RuleKey identifies a rule across repositories. It is the join key between
// the catalogue, profile activations and engine diagnostics.
type RuleKey struct {
	Repository string `json:"repository"`
	Rule       string `json:"rule"`
}

// String returns the "repository:rule" form used by the host.
func (k RuleKey) String() string {
	return k.Repository + ":" + k.Rule
}

// ParseRuleKey parses "repository:rule". The rule part may itself contain colons.
func ParseRuleKey(s string) (RuleKey, error) {
	repo, rule, ok := strings.Cut(s, ":")
	if !ok || repo == "" || rule == "" {
		return RuleKey{}, fmt.Errorf("invalid rule key %q: want repository:rule", s)
	}
	return RuleKey{Repository: repo, Rule: rule}, nil
}

// MarshalText lets RuleKey act as a JSON map key.
func (k RuleKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the "repository:rule" form.
func (k *RuleKey) UnmarshalText(b []byte) error {
	parsed, err := ParseRuleKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Severity is the host's issue severity.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
	SeverityBlocker  Severity = "BLOCKER"
)

// Severities lists all host severities from least to most severe.
var Severities = []Severity{SeverityInfo, SeverityMinor, SeverityMajor, SeverityCritical, SeverityBlocker}

// ParseSeverity accepts any casing of a host severity name.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Severities {
		if sev == known {
			return sev, nil
		}
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// RuleType is the host's issue type.
type RuleType string

const (
	RuleTypeCodeSmell     RuleType = "CODE_SMELL"
	RuleTypeBug           RuleType = "BUG"
	RuleTypeVulnerability RuleType = "VULNERABILITY"
)

// ParseRuleType maps engine and host type names onto host rule types.
// ERROR is the engine's name for bugs; security hotspots are reported as
// vulnerabilities since the host model has no hotspot type.
func ParseRuleType(s string) (RuleType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CODE_SMELL":
		return RuleTypeCodeSmell, nil
	case "BUG", "ERROR":
		return RuleTypeBug, nil
	case "VULNERABILITY", "SECURITY_HOTSPOT":
		return RuleTypeVulnerability, nil
	default:
		return "", fmt.Errorf("unknown rule type %q", s)
	}
}

// RemediationFunction selects how remediation effort scales with the gap.
type RemediationFunction string

const (
	RemediationConstant     RemediationFunction = "CONSTANT"
	RemediationLinear       RemediationFunction = "LINEAR"
	RemediationLinearOffset RemediationFunction = "LINEAR_OFFSET"
)

// Remediation describes the cost of fixing one issue of a rule.
type Remediation struct {
	Function       RemediationFunction `json:"function"`
	BaseMinutes    float64             `json:"base_minutes"`
	PerUnitMinutes float64             `json:"per_unit_minutes,omitempty"`
}

// Effort returns the remediation minutes for an issue with the given gap.
// A non-positive gap counts as one unit.
func (r Remediation) Effort(gap float64) float64 {
	if gap <= 0 {
		gap = 1
	}
	switch r.Function {
	case RemediationLinear:
		return r.PerUnitMinutes * gap
	case RemediationLinearOffset:
		return r.BaseMinutes + r.PerUnitMinutes*gap
	default:
		return r.BaseMinutes
	}
}

// ParamType is the declared type of a rule parameter.
type ParamType string

const (
	ParamInteger ParamType = "INTEGER"
	ParamString  ParamType = "STRING"
	ParamBoolean ParamType = "BOOLEAN"
	ParamFloat   ParamType = "FLOAT"
)

// ParseParamType maps engine parameter type names (Integer, String, ...) onto ParamType.
func ParseParamType(s string) (ParamType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INTEGER", "INT":
		return ParamInteger, nil
	case "STRING":
		return ParamString, nil
	case "BOOLEAN", "BOOL":
		return ParamBoolean, nil
	case "FLOAT", "DOUBLE":
		return ParamFloat, nil
	default:
		return "", fmt.Errorf("unsupported parameter type %q", s)
	}
}

// RuleParam is a configurable parameter of a rule.
type RuleParam struct {
	Key          string    `json:"key"`
	Description  string    `json:"description,omitempty"`
	DefaultValue string    `json:"default_value"`
	Type         ParamType `json:"type"`
}

// Coerce validates value against the parameter type and returns it as a Go value
// (int64, float64, bool or string).
func (p RuleParam) Coerce(value string) (any, error) {
	switch p.Type {
	case ParamInteger:
		v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %q is not an integer", p.Key, value)
		}
		return v, nil
	case ParamFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %q is not a number", p.Key, value)
		}
		return v, nil
	case ParamBoolean:
		v, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %q is not a boolean", p.Key, value)
		}
		return v, nil
	default:
		return value, nil
	}
}

// PointSpan controls how a diagnostic without an extent is widened.
type PointSpan string

const (
	SpanToken PointSpan = "token"
	SpanLine  PointSpan = "line"
)

// RuleDefinition is a host rule synthesized from engine metadata.
type RuleDefinition struct {
	Key                RuleKey     `json:"key"`
	Name               string      `json:"name"`
	HTMLDescription    string      `json:"html_description"`
	DefaultSeverity    Severity    `json:"default_severity"`
	Type               RuleType    `json:"type"`
	Tags               []string    `json:"tags,omitempty"`
	Remediation        Remediation `json:"remediation"`
	Parameters         []RuleParam `json:"parameters,omitempty"`
	ActivatedByDefault bool        `json:"activated_by_default"`
	PointSpan          PointSpan   `json:"point_span"`
}

// Param returns the parameter with the given key.
func (r *RuleDefinition) Param(key string) (RuleParam, bool) {
	for _, p := range r.Parameters {
		if p.Key == key {
			return p, true
		}
	}
	return RuleParam{}, false
}

// HasTag reports whether the rule carries tag.
func (r *RuleDefinition) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
