package host

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bslbridge/bslbridge/pkg/models"
)

// Files written by GenericSink.Flush.
const (
	IssuesFile   = "issues.json"
	MeasuresFile = "measures.json"
	ProfilesFile = "profiles.json"
	TokensFile   = "tokens.json"
)

// GenericRule is a rule entry of the generic issue import format.
type GenericRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	EngineID    string `json:"engineId"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
}

// GenericTextRange uses 1-based lines and 0-based columns.
type GenericTextRange struct {
	StartLine   int `json:"startLine"`
	EndLine     int `json:"endLine"`
	StartColumn int `json:"startColumn"`
	EndColumn   int `json:"endColumn"`
}

// GenericLocation is a location of the generic issue import format.
type GenericLocation struct {
	Message   string           `json:"message"`
	FilePath  string           `json:"filePath"`
	TextRange GenericTextRange `json:"textRange"`
}

// GenericIssue is an issue entry of the generic issue import format.
type GenericIssue struct {
	EngineID           string            `json:"engineId"`
	RuleID             string            `json:"ruleId"`
	Severity           string            `json:"severity"`
	Type               string            `json:"type"`
	EffortMinutes      int               `json:"effortMinutes,omitempty"`
	PrimaryLocation    GenericLocation   `json:"primaryLocation"`
	SecondaryLocations []GenericLocation `json:"secondaryLocations,omitempty"`
}

// GenericReport is the document written to IssuesFile.
type GenericReport struct {
	Rules  []GenericRule  `json:"rules"`
	Issues []GenericIssue `json:"issues"`
}

// Measures is the document written to MeasuresFile.
type Measures struct {
	Files   []models.FileMeasurement   `json:"files"`
	Project *models.ProjectMeasurement `json:"project,omitempty"`
}

// GenericSink buffers host data and writes it as JSON documents into a
// directory. It is safe for concurrent use.
type GenericSink struct {
	dir string

	mu       sync.Mutex
	rules    map[models.RuleKey]models.RuleDefinition
	profiles []models.Profile
	issues   map[string][]models.HostIssue
	files    map[string]models.FileMeasurement
	tokens   map[string]FileTokens
	project  *models.ProjectMeasurement
}

var _ Host = (*GenericSink)(nil)

// NewGenericSink returns a sink writing into dir.
func NewGenericSink(dir string) *GenericSink {
	return &GenericSink{
		dir:    dir,
		rules:  make(map[models.RuleKey]models.RuleDefinition),
		issues: make(map[string][]models.HostIssue),
		files:  make(map[string]models.FileMeasurement),
		tokens: make(map[string]FileTokens),
	}
}

func (s *GenericSink) PublishRules(_ context.Context, rules []models.RuleDefinition, profiles []models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rules {
		s.rules[r.Key] = r
	}
	s.profiles = append(s.profiles[:0], profiles...)
	return nil
}

func (s *GenericSink) ReportIssues(_ context.Context, path string, issues []models.HostIssue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[path] = append(s.issues[path], issues...)
	return nil
}

func (s *GenericSink) ReportFile(_ context.Context, m models.FileMeasurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[m.Path] = m
	return nil
}

func (s *GenericSink) ReportTokens(_ context.Context, t FileTokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Path] = t
	return nil
}

func (s *GenericSink) ReportProject(_ context.Context, m models.ProjectMeasurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = &m
	return nil
}

// Report builds the generic issue document from the buffered issues. Only
// rules with at least one issue are listed.
func (s *GenericSink) Report() GenericReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.issues))
	for p := range s.issues {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	report := GenericReport{Rules: []GenericRule{}, Issues: []GenericIssue{}}
	used := make(map[models.RuleKey]bool)
	for _, p := range paths {
		for _, issue := range s.issues[p] {
			report.Issues = append(report.Issues, toGenericIssue(issue))
			if used[issue.RuleKey] {
				continue
			}
			used[issue.RuleKey] = true
			rule := GenericRule{
				ID:       issue.RuleKey.Rule,
				Name:     issue.RuleKey.Rule,
				EngineID: issue.RuleKey.Repository,
				Type:     string(issue.Type),
				Severity: string(issue.Severity),
			}
			if def, ok := s.rules[issue.RuleKey]; ok {
				rule.Name = def.Name
				rule.Description = def.HTMLDescription
				rule.Type = string(def.Type)
				rule.Severity = string(def.DefaultSeverity)
			}
			report.Rules = append(report.Rules, rule)
		}
	}
	sort.Slice(report.Rules, func(i, j int) bool {
		if report.Rules[i].EngineID != report.Rules[j].EngineID {
			return report.Rules[i].EngineID < report.Rules[j].EngineID
		}
		return report.Rules[i].ID < report.Rules[j].ID
	})
	return report
}

func toGenericIssue(issue models.HostIssue) GenericIssue {
	gi := GenericIssue{
		EngineID:        issue.RuleKey.Repository,
		RuleID:          issue.RuleKey.Rule,
		Severity:        string(issue.Severity),
		Type:            string(issue.Type),
		PrimaryLocation: genericLocation(issue.FilePath, issue.Range, issue.Message),
	}
	if issue.EffortMinutes != nil {
		gi.EffortMinutes = int(*issue.EffortMinutes + 0.5)
	}
	for _, loc := range issue.Secondary {
		gi.SecondaryLocations = append(gi.SecondaryLocations, genericLocation(loc.FilePath, loc.Range, loc.Message))
	}
	return gi
}

func genericLocation(path string, r models.TextRange, msg string) GenericLocation {
	return GenericLocation{
		Message:  msg,
		FilePath: path,
		TextRange: GenericTextRange{
			StartLine:   r.Start.Line,
			EndLine:     r.End.Line,
			StartColumn: r.Start.LineOffset,
			EndColumn:   r.End.LineOffset,
		},
	}
}

// Flush writes IssuesFile, MeasuresFile, ProfilesFile and TokensFile into the
// sink's directory.
func (s *GenericSink) Flush() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if err := writeJSON(filepath.Join(s.dir, IssuesFile), s.Report()); err != nil {
		return err
	}

	s.mu.Lock()
	measures := Measures{Files: make([]models.FileMeasurement, 0, len(s.files)), Project: s.project}
	for _, m := range s.files {
		measures.Files = append(measures.Files, m)
	}
	profiles := append([]models.Profile{}, s.profiles...)
	tokens := make([]FileTokens, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokens = append(tokens, t)
	}
	s.mu.Unlock()

	sort.Slice(measures.Files, func(i, j int) bool { return measures.Files[i].Path < measures.Files[j].Path })
	if err := writeJSON(filepath.Join(s.dir, MeasuresFile), measures); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(s.dir, ProfilesFile), profiles); err != nil {
		return err
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Path < tokens[j].Path })
	return writeJSON(filepath.Join(s.dir, TokensFile), tokens)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
