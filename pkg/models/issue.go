package models

// TextPointer is a host position: 1-based line, 0-based offset in UTF-16 units.
type TextPointer struct {
	Line       int `json:"line"`
	LineOffset int `json:"line_offset"`
}

// TextRange is a host range. StartByte and EndByte index the raw file content.
type TextRange struct {
	Start     TextPointer `json:"start"`
	End       TextPointer `json:"end"`
	StartByte int         `json:"start_byte"`
	EndByte   int         `json:"end_byte"`
}

// IssueLocation is a secondary location of a host issue.
type IssueLocation struct {
	FilePath string    `json:"file_path"`
	Range    TextRange `json:"range"`
	Message  string    `json:"message,omitempty"`
}

// HostEdit is a quick-fix edit expressed in host coordinates.
type HostEdit struct {
	Range   TextRange `json:"range"`
	NewText string    `json:"new_text"`
}

// HostQuickFix is a quick fix expressed in host coordinates.
type HostQuickFix struct {
	Title string     `json:"title"`
	Edits []HostEdit `json:"edits"`
}

// HostIssue is an issue ready to be handed to the host.
type HostIssue struct {
	RuleKey       RuleKey         `json:"rule_key"`
	FilePath      string          `json:"file_path"`
	Range         TextRange       `json:"range"`
	Message       string          `json:"message"`
	Severity      Severity        `json:"severity"`
	Type          RuleType        `json:"type"`
	EffortMinutes *float64        `json:"effort_minutes,omitempty"`
	Secondary     []IssueLocation `json:"secondary,omitempty"`
	QuickFixes    []HostQuickFix  `json:"quick_fixes,omitempty"`
	External      bool            `json:"external,omitempty"`
	EngineID      string          `json:"engine_id,omitempty"`
}

// HighlightRange assigns a host text type to a range.
type HighlightRange struct {
	Range TextRange `json:"range"`
	Kind  TokenKind `json:"kind"`
}

// CpdToken is a duplication-detection token in host coordinates.
type CpdToken struct {
	Range TextRange `json:"range"`
	Image string    `json:"image"`
}
