// Package bridge turns engine diagnostics into host issues and drives the
// engine over batches of files.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"unicode/utf16"

	"github.com/bslbridge/bslbridge/pkg/catalog"
	"github.com/bslbridge/bslbridge/pkg/engine"
	"github.com/bslbridge/bslbridge/pkg/models"
	"github.com/bslbridge/bslbridge/pkg/position"
	"github.com/cespare/xxhash/v2"
)

// Status summarizes how completely a file was processed.
type Status string

const (
	StatusOK      Status = "OK"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
)

// Outcome is the processing status of one file with the reasons it is not OK.
type Outcome struct {
	Status  Status   `json:"status"`
	Reasons []string `json:"reasons,omitempty"`
}

// Degrade records a recoverable problem. A FAILED outcome stays FAILED.
func (o *Outcome) Degrade(format string, args ...any) {
	if o.Status != StatusFailed {
		o.Status = StatusPartial
	}
	o.Reasons = append(o.Reasons, fmt.Sprintf(format, args...))
}

// Fail marks the outcome FAILED.
func (o *Outcome) Fail(format string, args ...any) {
	o.Status = StatusFailed
	o.Reasons = append(o.Reasons, fmt.Sprintf(format, args...))
}

// File is one source file to analyze.
type File struct {
	Path    string
	Module  string
	Content []byte
}

// FileResult is everything produced for one file.
type FileResult struct {
	Path        string                  `json:"path"`
	Issues      []models.HostIssue      `json:"issues"`
	Measurement models.FileMeasurement  `json:"measurement"`
	Outcome     Outcome                 `json:"outcome"`
	CpdTokens   []models.CpdToken       `json:"cpd_tokens,omitempty"`
	Highlights  []models.HighlightRange `json:"highlights,omitempty"`
	// Suppressed counts diagnostics of rules inactive in the profile.
	Suppressed int `json:"suppressed"`

	// analysis is the engine output the result was converted from.
	analysis *engine.Analysis
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithMapper sets the position mapper. The default maps LSP positions to
// 1-based host lines.
func WithMapper(m *position.Mapper) Option {
	return func(b *Bridge) { b.mapper = m }
}

// WithEngineRepository sets the repository used for diagnostics whose source
// matches no repository. The default is the first repository of the catalogue.
func WithEngineRepository(key string) Option {
	return func(b *Bridge) { b.engineRepo = key }
}

// WithExternalIssues makes diagnostics of rules that are inactive in the
// profile surface as external issues for the given repositories.
func WithExternalIssues(repos ...string) Option {
	return func(b *Bridge) {
		for _, r := range repos {
			b.external[r] = true
		}
	}
}

// WithFileReader sets how files referenced by secondary locations are read.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(b *Bridge) { b.readFile = read }
}

// Bridge converts engine output for one file into host artifacts. It only
// reads the catalogue and the profile, so one Bridge serves many goroutines.
type Bridge struct {
	catalog    *catalog.Catalog
	profile    models.Profile
	analyzer   engine.Analyzer
	mapper     *position.Mapper
	engineRepo string
	external   map[string]bool
	readFile   func(string) ([]byte, error)
	logger     *slog.Logger
}

// New creates a Bridge for the active profile.
func New(c *catalog.Catalog, profile models.Profile, analyzer engine.Analyzer, opts ...Option) *Bridge {
	b := &Bridge{
		catalog:  c,
		profile:  profile,
		analyzer: analyzer,
		mapper:   position.Default(),
		external: make(map[string]bool),
		readFile: os.ReadFile,
		logger:   slog.Default(),
	}
	if repos := c.Repositories(); len(repos) > 0 {
		b.engineRepo = repos[0].Key
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Profile returns the profile the bridge reports against.
func (b *Bridge) Profile() models.Profile { return b.profile }

// Analyze runs the engine on f and converts its output. Engine errors and
// panics produce a FAILED result without issues.
func (b *Bridge) Analyze(ctx context.Context, f File) (res FileResult) {
	res = FileResult{
		Path:        f.Path,
		Issues:      []models.HostIssue{},
		Measurement: models.FileMeasurement{Path: f.Path, Module: f.Module},
		Outcome:     Outcome{Status: StatusOK},
	}

	analysis, err := b.runEngine(ctx, f)
	if err != nil {
		res.Outcome.Fail("engine: %v", err)
		b.logger.Warn("engine failed", "file", f.Path, "error", err)
		return res
	}
	return b.Convert(f, analysis)
}

func (b *Bridge) runEngine(ctx context.Context, f File) (analysis *engine.Analysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	analysis, err = b.analyzer.AnalyzeFile(ctx, f.Path, f.Content)
	if err == nil && analysis == nil {
		analysis = &engine.Analysis{}
	}
	return analysis, err
}

// Convert translates an engine analysis of f without running the engine.
func (b *Bridge) Convert(f File, analysis *engine.Analysis) FileResult {
	res := FileResult{
		Path:     f.Path,
		Issues:   []models.HostIssue{},
		Outcome:  Outcome{Status: StatusOK},
		analysis: analysis,
		Measurement: models.FileMeasurement{
			Path:      f.Path,
			Module:    f.Module,
			Values:    analysis.Measures,
			CodeLines: analysis.CodeLines,
		},
	}
	if res.Measurement.Values == nil {
		res.Measurement.Values = map[string]float64{}
	}

	conv := &fileConverter{
		bridge: b,
		file:   f,
		idx:    position.Index(f.Content),
		others: make(map[string]*position.LineIndex),
		seen:   make(map[uint64]bool),
		res:    &res,
	}
	for i := range analysis.Diagnostics {
		conv.diagnostic(&analysis.Diagnostics[i])
	}
	conv.tokens(analysis.Tokens)
	return res
}

type fileConverter struct {
	bridge *Bridge
	file   File
	idx    *position.LineIndex
	others map[string]*position.LineIndex
	seen   map[uint64]bool
	res    *FileResult
}

func (c *fileConverter) drop(d *models.RawDiagnostic, format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	c.res.Outcome.Degrade("dropped %s:%s at %d:%d: %s", d.Source, d.Code, d.Range.Start.Line, d.Range.Start.Character, reason)
	c.bridge.logger.Debug("dropped diagnostic", "file", c.file.Path, "source", d.Source, "code", d.Code, "reason", reason)
}

func (c *fileConverter) diagnostic(d *models.RawDiagnostic) {
	b := c.bridge

	repo, ok := b.catalog.RepositoryFor(d.Source)
	if !ok {
		repo = b.engineRepo
	}
	key := models.RuleKey{Repository: repo, Rule: d.Code}
	rule, ok := b.catalog.Rule(key)
	if !ok {
		c.drop(d, "unknown rule %s", key)
		return
	}

	act, active := b.profile.Activation(key)
	external := false
	if !active {
		if !b.external[repo] {
			c.res.Suppressed++
			return
		}
		external = true
	}

	rng, err := b.mapper.ToHostRange(c.idx, d.Range, rule.PointSpan)
	if err != nil {
		c.drop(d, "%v", err)
		return
	}

	issue := models.HostIssue{
		RuleKey:  key,
		FilePath: c.file.Path,
		Range:    rng,
		Message:  d.Message,
		Severity: rule.DefaultSeverity,
		Type:     rule.Type,
		External: external,
		EngineID: d.Source,
	}
	if external {
		sev := models.DiagnosticWarning
		if d.Severity != nil {
			sev = *d.Severity
		}
		issue.Severity = sev.HostSeverity()
		issue.Type = sev.HostType()
	} else if act.Severity != nil {
		issue.Severity = *act.Severity
	}

	var gap float64
	if d.Gap != nil {
		gap = *d.Gap
	}
	effort := rule.Remediation.Effort(gap)
	issue.EffortMinutes = &effort

	issue.Secondary = c.secondary(d, rule.PointSpan)
	issue.QuickFixes = c.quickFixes(d, rule.PointSpan)

	h := dedupKey(issue)
	if c.seen[h] {
		return
	}
	c.seen[h] = true
	c.res.Issues = append(c.res.Issues, issue)
}

func (c *fileConverter) secondary(d *models.RawDiagnostic, span models.PointSpan) []models.IssueLocation {
	var out []models.IssueLocation
	for _, rel := range d.Secondary {
		path := rel.Path
		if path == "" {
			path = c.file.Path
		}
		idx, err := c.index(path)
		if err != nil {
			c.res.Outcome.Degrade("secondary location of %s:%s in %s: %v", d.Source, d.Code, path, err)
			continue
		}
		rng, err := c.bridge.mapper.ToHostRange(idx, rel.Range, span)
		if err != nil {
			c.res.Outcome.Degrade("secondary location of %s:%s: %v", d.Source, d.Code, err)
			continue
		}
		out = append(out, models.IssueLocation{FilePath: path, Range: rng, Message: rel.Message})
	}
	return out
}

func (c *fileConverter) quickFixes(d *models.RawDiagnostic, span models.PointSpan) []models.HostQuickFix {
	var out []models.HostQuickFix
	for _, qf := range d.QuickFixes {
		fix := models.HostQuickFix{Title: qf.Title, Edits: make([]models.HostEdit, 0, len(qf.Edits))}
		valid := true
		for _, e := range qf.Edits {
			rng, err := c.editRange(e.Range)
			if err != nil {
				c.res.Outcome.Degrade("quick fix %q of %s:%s: %v", qf.Title, d.Source, d.Code, err)
				valid = false
				break
			}
			fix.Edits = append(fix.Edits, models.HostEdit{Range: rng, NewText: e.NewText})
		}
		if valid {
			out = append(out, fix)
		}
	}
	return out
}

// editRange maps a quick-fix edit. Empty edit ranges are insertions and are
// not widened.
func (c *fileConverter) editRange(r models.EngineRange) (models.TextRange, error) {
	if r.End == nil {
		end := r.Start
		r.End = &end
	}
	if *r.End == r.Start {
		return c.bridge.mapper.InsertionPoint(c.idx, r.Start)
	}
	return c.bridge.mapper.ToHostRange(c.idx, r, models.SpanToken)
}

func (c *fileConverter) index(path string) (*position.LineIndex, error) {
	if path == c.file.Path {
		return c.idx, nil
	}
	if idx, ok := c.others[path]; ok {
		return idx, nil
	}
	content, err := c.bridge.readFile(path)
	if err != nil {
		return nil, err
	}
	idx := position.Index(content)
	c.others[path] = idx
	return idx, nil
}

func (c *fileConverter) tokens(tokens []models.EngineToken) {
	for _, tok := range tokens {
		r := tok.Range
		if r.End == nil {
			end := models.EnginePosition{Line: r.Start.Line, Character: r.Start.Character + len(utf16.Encode([]rune(tok.Image)))}
			r.End = &end
		}
		if r.IsPoint() {
			continue
		}
		rng, err := c.bridge.mapper.ToHostRange(c.idx, r, models.SpanToken)
		if err != nil {
			continue
		}
		if tok.Kind != models.TokenComment {
			c.res.CpdTokens = append(c.res.CpdTokens, models.CpdToken{Range: rng, Image: tok.Image})
		}
		if tok.Kind != "" && tok.Kind != models.TokenOther {
			c.res.Highlights = append(c.res.Highlights, models.HighlightRange{Range: rng, Kind: tok.Kind})
		}
	}
}

func dedupKey(issue models.HostIssue) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(issue.RuleKey.String())
	for _, n := range []int{issue.Range.Start.Line, issue.Range.Start.LineOffset, issue.Range.End.Line, issue.Range.End.LineOffset} {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(strconv.Itoa(n))
	}
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(issue.Message)
	return d.Sum64()
}
