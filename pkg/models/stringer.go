package models

// String methods for the custom string types.
// These are required for toon serialization, which uses fmt.Stringer.

// Severity
func (s Severity) String() string { return string(s) }

// RuleType
func (r RuleType) String() string { return string(r) }

// RemediationFunction
func (r RemediationFunction) String() string { return string(r) }

// ParamType
func (p ParamType) String() string { return string(p) }

// PointSpan
func (p PointSpan) String() string { return string(p) }

// TokenKind
func (t TokenKind) String() string { return string(t) }
