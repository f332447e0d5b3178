package models

// DiagnosticSeverity is the engine-side severity, numbered as in LSP.
type DiagnosticSeverity int

const (
	DiagnosticError       DiagnosticSeverity = 1
	DiagnosticWarning     DiagnosticSeverity = 2
	DiagnosticInformation DiagnosticSeverity = 3
	DiagnosticHint        DiagnosticSeverity = 4
)

func (s DiagnosticSeverity) String() string {
	switch s {
	case DiagnosticError:
		return "Error"
	case DiagnosticWarning:
		return "Warning"
	case DiagnosticInformation:
		return "Information"
	case DiagnosticHint:
		return "Hint"
	default:
		return "Unknown"
	}
}

// HostSeverity maps an engine severity onto a host severity for issues
// raised outside the catalogue.
func (s DiagnosticSeverity) HostSeverity() Severity {
	switch s {
	case DiagnosticError:
		return SeverityCritical
	case DiagnosticWarning:
		return SeverityMajor
	case DiagnosticInformation:
		return SeverityMinor
	case DiagnosticHint:
		return SeverityInfo
	default:
		return SeverityMajor
	}
}

// HostType maps an engine severity onto a host issue type.
func (s DiagnosticSeverity) HostType() RuleType {
	if s == DiagnosticError {
		return RuleTypeBug
	}
	return RuleTypeCodeSmell
}

// EnginePosition is a position in the engine's numbering convention.
type EnginePosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// EngineRange is a diagnostic range as reported by the engine.
// A nil End denotes a point diagnostic.
type EngineRange struct {
	Start EnginePosition  `json:"start"`
	End   *EnginePosition `json:"end,omitempty"`
}

// IsPoint reports whether the range has no extent.
func (r EngineRange) IsPoint() bool {
	return r.End == nil || *r.End == r.Start
}

// RelatedLocation is a secondary location attached to a diagnostic.
// An empty Path refers to the file the diagnostic was reported on.
type RelatedLocation struct {
	Path    string      `json:"path,omitempty"`
	Range   EngineRange `json:"range"`
	Message string      `json:"message,omitempty"`
}

// TextEdit replaces the text in Range with NewText.
type TextEdit struct {
	Range   EngineRange `json:"range"`
	NewText string      `json:"new_text"`
}

// QuickFix is an engine-suggested fix.
type QuickFix struct {
	Title string     `json:"title"`
	Edits []TextEdit `json:"edits"`
}

// RawDiagnostic is one problem reported by the engine.
type RawDiagnostic struct {
	Source     string              `json:"source"`
	Code       string              `json:"code"`
	Message    string              `json:"message"`
	Range      EngineRange         `json:"range"`
	Secondary  []RelatedLocation   `json:"secondary,omitempty"`
	Severity   *DiagnosticSeverity `json:"severity,omitempty"`
	Gap        *float64            `json:"gap,omitempty"`
	QuickFixes []QuickFix          `json:"quick_fixes,omitempty"`
}

// TokenKind classifies a lexical token for highlighting.
type TokenKind string

const (
	TokenKeyword    TokenKind = "keyword"
	TokenString     TokenKind = "string"
	TokenComment    TokenKind = "comment"
	TokenConstant   TokenKind = "constant"
	TokenAnnotation TokenKind = "annotation"
	TokenDirective  TokenKind = "preprocess_directive"
	TokenOther      TokenKind = "other"
)

// EngineToken is a lexical token reported by the engine for duplication
// detection and highlighting.
type EngineToken struct {
	Range EngineRange `json:"range"`
	Image string      `json:"image"`
	Kind  TokenKind   `json:"kind,omitempty"`
}
