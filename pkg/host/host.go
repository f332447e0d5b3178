// Package host defines what the bridge hands over to the code-quality host
// and provides two hosts: an in-memory recorder and a sink writing the
// generic issue import format.
package host

import (
	"context"

	"github.com/bslbridge/bslbridge/pkg/models"
)

// RuleRepository receives the rule catalogue and profiles once at startup.
type RuleRepository interface {
	PublishRules(ctx context.Context, rules []models.RuleDefinition, profiles []models.Profile) error
}

// IssueReporter receives the issues of one file. It is called concurrently
// for different files.
type IssueReporter interface {
	ReportIssues(ctx context.Context, path string, issues []models.HostIssue) error
}

// MeasureReporter receives file and project measurements.
type MeasureReporter interface {
	ReportFile(ctx context.Context, m models.FileMeasurement) error
	ReportProject(ctx context.Context, m models.ProjectMeasurement) error
}

// FileTokens is the duplication and highlighting data of one file.
type FileTokens struct {
	Path       string                  `json:"path"`
	CpdTokens  []models.CpdToken       `json:"cpd_tokens"`
	Highlights []models.HighlightRange `json:"highlights"`
}

// TokenReporter receives duplication tokens and highlighting of one file. It
// is only called for files with at least one of either.
type TokenReporter interface {
	ReportTokens(ctx context.Context, t FileTokens) error
}

// Host is the full host contract.
type Host interface {
	RuleRepository
	IssueReporter
	MeasureReporter
	TokenReporter
}
