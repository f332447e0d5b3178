package engine

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bslbridge/bslbridge/pkg/models"
	"github.com/cespare/xxhash/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed report.schema.json
var reportSchemaJSON []byte

const reportSchemaURL = "https://github.com/bslbridge/bslbridge/report.schema.json"

var (
	reportSchemaOnce sync.Once
	reportSchema     *jsonschema.Schema
	reportSchemaErr  error
)

func compiledReportSchema() (*jsonschema.Schema, error) {
	reportSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(reportSchemaJSON))
		if err != nil {
			reportSchemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(reportSchemaURL, doc); err != nil {
			reportSchemaErr = err
			return
		}
		reportSchema, reportSchemaErr = c.Compile(reportSchemaURL)
	})
	return reportSchema, reportSchemaErr
}

type lspPosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type lspRange struct {
	Start lspPosition  `json:"start"`
	End   *lspPosition `json:"end"`
}

func (r lspRange) engineRange() models.EngineRange {
	out := models.EngineRange{Start: models.EnginePosition(r.Start)}
	if r.End != nil {
		end := models.EnginePosition(*r.End)
		out.End = &end
	}
	return out
}

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(strings.TrimSpace(string(b)))
	return nil
}

type reportRelated struct {
	Location struct {
		URI   string   `json:"uri"`
		Range lspRange `json:"range"`
	} `json:"location"`
	Message string `json:"message"`
}

type reportDiagnostic struct {
	Range              lspRange        `json:"range"`
	Severity           looseString     `json:"severity"`
	Code               looseString     `json:"code"`
	Source             string          `json:"source"`
	Message            string          `json:"message"`
	RelatedInformation []reportRelated `json:"relatedInformation"`
}

type reportMetrics struct {
	Procedures           float64 `json:"procedures"`
	Functions            float64 `json:"functions"`
	Lines                float64 `json:"lines"`
	Ncloc                float64 `json:"ncloc"`
	Comments             float64 `json:"comments"`
	Statements           float64 `json:"statements"`
	NclocData            []int   `json:"nclocData"`
	CognitiveComplexity  float64 `json:"cognitiveComplexity"`
	CyclomaticComplexity float64 `json:"cyclomaticComplexity"`
}

type reportFile struct {
	Path        string             `json:"path"`
	Diagnostics []reportDiagnostic `json:"diagnostics"`
	Metrics     *reportMetrics     `json:"metrics"`
}

type reportDocument struct {
	Date      string       `json:"date"`
	SourceDir string       `json:"sourceDir"`
	FileInfos []reportFile `json:"fileinfos"`
}

// ReportAnalyzer serves analyses from pre-computed engine JSON reports
// instead of running the engine.
type ReportAnalyzer struct {
	files  map[string]*Analysis
	digest *xxhash.Digest
}

// LoadReports reads and merges engine reports. Relative file paths inside a
// report are resolved against its sourceDir, or against the report's own
// directory when sourceDir is empty.
func LoadReports(paths ...string) (*ReportAnalyzer, error) {
	ra := &ReportAnalyzer{files: make(map[string]*Analysis), digest: xxhash.New()}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read report %s: %w", p, err)
		}
		if err := ra.add(data, filepath.Dir(p)); err != nil {
			return nil, fmt.Errorf("report %s: %w", p, err)
		}
	}
	return ra, nil
}

// ParseReport builds an analyzer from a single report body.
func ParseReport(data []byte, baseDir string) (*ReportAnalyzer, error) {
	ra := &ReportAnalyzer{files: make(map[string]*Analysis), digest: xxhash.New()}
	if err := ra.add(data, baseDir); err != nil {
		return nil, err
	}
	return ra, nil
}

func (ra *ReportAnalyzer) add(data []byte, baseDir string) error {
	schema, err := compiledReportSchema()
	if err != nil {
		return fmt.Errorf("compile report schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode report: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("invalid report: %w", err)
	}

	var doc reportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}
	if doc.SourceDir != "" {
		baseDir = uriToPath(doc.SourceDir, baseDir)
	}
	_, _ = ra.digest.WriteString(baseDir)
	_, _ = ra.digest.Write([]byte{0})
	_, _ = ra.digest.Write(data)
	_, _ = ra.digest.Write([]byte{0})

	for _, fi := range doc.FileInfos {
		path := uriToPath(fi.Path, baseDir)
		a, ok := ra.files[path]
		if !ok {
			a = &Analysis{}
			ra.files[path] = a
		}
		for _, d := range fi.Diagnostics {
			raw, err := d.toRaw(path, baseDir)
			if err != nil {
				return fmt.Errorf("%s: %w", fi.Path, err)
			}
			a.Diagnostics = append(a.Diagnostics, raw)
		}
		if fi.Metrics != nil {
			a.Measures = fi.Metrics.measures()
			a.CodeLines = fi.Metrics.NclocData
		}
	}
	return nil
}

func (d reportDiagnostic) toRaw(path, baseDir string) (models.RawDiagnostic, error) {
	raw := models.RawDiagnostic{
		Source:  d.Source,
		Code:    string(d.Code),
		Message: d.Message,
		Range:   d.Range.engineRange(),
	}
	if d.Severity != "" {
		sev, err := ParseDiagnosticSeverity(string(d.Severity))
		if err != nil {
			return raw, err
		}
		raw.Severity = &sev
	}
	for _, rel := range d.RelatedInformation {
		loc := models.RelatedLocation{Range: rel.Location.Range.engineRange(), Message: rel.Message}
		if rel.Location.URI != "" {
			if p := uriToPath(rel.Location.URI, baseDir); p != path {
				loc.Path = p
			}
		}
		raw.Secondary = append(raw.Secondary, loc)
	}
	return raw, nil
}

func (m *reportMetrics) measures() map[string]float64 {
	return map[string]float64{
		models.MetricFunctions:           m.Procedures + m.Functions,
		models.MetricLines:               m.Lines,
		models.MetricNcloc:               m.Ncloc,
		models.MetricCommentLines:        m.Comments,
		models.MetricStatements:          m.Statements,
		models.MetricCognitiveComplexity: m.CognitiveComplexity,
		models.MetricComplexity:          m.CyclomaticComplexity,
	}
}

// AnalyzeFile implements Analyzer. Files the reports do not mention yield an
// empty analysis.
func (ra *ReportAnalyzer) AnalyzeFile(ctx context.Context, path string, _ []byte) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if a, ok := ra.files[filepath.Clean(abs)]; ok {
		return a, nil
	}
	return &Analysis{}, nil
}

// Fingerprint implements Fingerprinter. It changes whenever the content of
// any loaded report does.
func (ra *ReportAnalyzer) Fingerprint() string {
	return "report:" + strconv.FormatUint(ra.digest.Sum64(), 16)
}

// Paths returns the absolute paths of every file the reports cover.
func (ra *ReportAnalyzer) Paths() []string {
	out := make([]string, 0, len(ra.files))
	for p := range ra.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ParseDiagnosticSeverity accepts LSP severity names or numbers.
func ParseDiagnosticSeverity(s string) (models.DiagnosticSeverity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "1":
		return models.DiagnosticError, nil
	case "warning", "2":
		return models.DiagnosticWarning, nil
	case "information", "info", "3":
		return models.DiagnosticInformation, nil
	case "hint", "4":
		return models.DiagnosticHint, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return 0, fmt.Errorf("diagnostic severity %d out of range", n)
	}
	return 0, fmt.Errorf("unknown diagnostic severity %q", s)
}

// uriToPath converts a file URI or a plain path into a clean absolute path.
func uriToPath(s, baseDir string) string {
	p := s
	if strings.HasPrefix(s, "file:") {
		if u, err := url.Parse(s); err == nil {
			p = u.Path
			if runtime.GOOS == "windows" {
				p = strings.TrimPrefix(p, "/")
			}
		}
	}
	p = filepath.FromSlash(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.Clean(p)
}
