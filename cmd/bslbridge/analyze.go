package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bslbridge/bslbridge/internal/cache"
	"github.com/bslbridge/bslbridge/internal/fileproc"
	"github.com/bslbridge/bslbridge/internal/output"
	"github.com/bslbridge/bslbridge/internal/progress"
	"github.com/bslbridge/bslbridge/internal/scanner"
	"github.com/bslbridge/bslbridge/pkg/bridge"
	"github.com/bslbridge/bslbridge/pkg/engine"
	"github.com/bslbridge/bslbridge/pkg/host"
	"github.com/bslbridge/bslbridge/pkg/metrics"
	"github.com/bslbridge/bslbridge/pkg/models"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var runFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "profile",
		Aliases: []string{"p"},
		Usage:   "Quality profile to report against (default from config)",
	},
	&cli.BoolFlag{
		Name:  "fail-on-error",
		Usage: "Exit with code 2 when any file failed",
	},
	&cli.IntFlag{
		Name:    "workers",
		Aliases: []string{"j"},
		Usage:   "Files analyzed at once (default: CPU count)",
	},
	&cli.BoolFlag{
		Name:  "no-progress",
		Usage: "Hide the progress bar",
	},
}

func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Run the engine over BSL sources and report host issues and measures",
		ArgsUsage: "[path...]",
		Flags: append([]cli.Flag{
			&cli.StringSliceFlag{
				Name:  "report",
				Usage: "Use a pre-computed engine JSON report instead of running the engine",
			},
		}, runFlags...),
		Action: runAnalyzeCmd,
	}
}

func runAnalyzeCmd(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ws, err := loadWorkspace(c.Context, e)
	if err != nil {
		return err
	}
	p, err := ws.profile(c.String("profile"))
	if err != nil {
		return err
	}

	s := scanner.NewScanner(e.cfg)
	var sources []scanner.Source
	seen := make(map[string]bool)
	for _, path := range getPaths(c) {
		found, err := s.Scan(path)
		if err != nil {
			return fmt.Errorf("scan %s: %w", path, err)
		}
		for _, src := range found {
			if !seen[src.Path] {
				seen[src.Path] = true
				sources = append(sources, src)
			}
		}
	}
	if e.cfg.Analysis.MaxFileSize > 0 {
		var skipped int
		sources, skipped = scanner.FilterBySize(sources, e.cfg.Analysis.MaxFileSize)
		if skipped > 0 {
			color.Yellow("Skipped %d files larger than %d bytes", skipped, e.cfg.Analysis.MaxFileSize)
		}
	}
	if len(sources) == 0 {
		color.Yellow("No source files found")
		return nil
	}

	analyzer, err := ws.analyzer(p, c.StringSlice("report"))
	if err != nil {
		return err
	}
	return runBatch(c, ws, p, analyzer, sources)
}

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Convert pre-computed engine JSON reports into host issues and measures",
		ArgsUsage: "<report...>",
		Flags:     runFlags,
		Action:    runImportCmd,
	}
}

func runImportCmd(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("at least one report file is required")
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ws, err := loadWorkspace(c.Context, e)
	if err != nil {
		return err
	}
	p, err := ws.profile(c.String("profile"))
	if err != nil {
		return err
	}

	reports, err := engine.LoadReports(c.Args().Slice()...)
	if err != nil {
		return err
	}

	root, err := os.Getwd()
	if err != nil {
		return err
	}
	var sources []scanner.Source
	for _, path := range reports.Paths() {
		if !e.cfg.HasSuffix(path) || e.cfg.ShouldExclude(path) {
			continue
		}
		sources = append(sources, scanner.Source{Path: path, Module: e.cfg.ModuleFor(root, path)})
	}
	if len(sources) == 0 {
		color.Yellow("Reports mention no source files")
		return nil
	}
	return runBatch(c, ws, p, reports, sources)
}

// runBatch reads the sources, analyzes them against p and writes the host
// documents and the run report.
func runBatch(c *cli.Context, ws *workspace, p models.Profile, analyzer engine.Analyzer, sources []scanner.Source) error {
	ctx := c.Context
	cfg := ws.cfg
	workers := cfg.Analysis.Workers
	if c.IsSet("workers") {
		workers = c.Int("workers")
	}

	paths := make([]string, len(sources))
	for i, src := range sources {
		paths[i] = src.Path
	}
	contents, readErrs := fileproc.ReadFiles(ctx, paths, cfg.Analysis.MaxFileSize, workers)

	unreadable := make(map[string]error)
	if readErrs.HasErrors() {
		for _, pe := range readErrs.Errors {
			unreadable[pe.Path] = pe.Err
			ws.logger.Warn("file skipped", "path", pe.Path, "error", pe.Err)
		}
	}
	files := make([]bridge.File, 0, len(sources))
	for i, src := range sources {
		if _, bad := unreadable[src.Path]; bad || i >= len(contents) {
			continue
		}
		files = append(files, bridge.File{Path: src.Path, Module: src.Module, Content: contents[i]})
	}

	resultCache, err := cache.New(cfg.Cache.Dir, time.Duration(cfg.Cache.TTL)*time.Hour, cfg.Cache.Enabled)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	sink := host.NewGenericSink(cfg.Host.OutputDir)
	if err := sink.PublishRules(ctx, ws.catalog.Rules(), ws.profiles.All()); err != nil {
		return err
	}

	opts := []bridge.BatchOption{
		bridge.WithWorkers(workers),
		bridge.WithCache(resultCache),
		bridge.WithHost(sink),
	}
	var tracker *progress.Tracker
	if !c.Bool("no-progress") {
		tracker = progress.NewTracker("Analyzing", len(files))
		opts = append(opts, bridge.WithProgress(tracker.Tick))
	}

	batch := bridge.NewBatch(ws.bridge(p, analyzer), metrics.NewAggregator(registry, metrics.WithLogger(ws.logger)), opts...)
	result, runErr := batch.Run(ctx, files)
	if tracker != nil {
		switch {
		case runErr != nil:
			tracker.FinishError(runErr)
		case result.Failed() > 0 || result.Partial() > 0:
			tracker.FinishPartial(result.Failed(), result.Partial())
		default:
			tracker.FinishSuccess()
		}
	}

	// Whatever completed is still handed to the host on cancellation.
	if err := sink.Flush(); err != nil {
		return fmt.Errorf("write host documents: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	formatter, err := ws.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if err := formatter.Output(buildRunReport(result, p, len(unreadable), formatter.Colored())); err != nil {
		return err
	}
	formatter.Info("Host documents written to %s", cfg.Host.OutputDir)

	if c.Bool("fail-on-error") && result.Failed() > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files failed", result.Failed(), len(result.Files)), exitFilesFailed)
	}
	return nil
}

// runSummary is the structured form of a run report.
type runSummary struct {
	RunID      string             `json:"run_id"`
	Profile    string             `json:"profile"`
	Files      int                `json:"files"`
	Failed     int                `json:"failed"`
	Partial    int                `json:"partial"`
	Unreadable int                `json:"unreadable"`
	Suppressed int                `json:"suppressed"`
	Duration   string             `json:"duration"`
	Result     bridge.BatchResult `json:"result"`
}

func buildRunReport(result bridge.BatchResult, p models.Profile, unreadable int, colored bool) *output.Report {
	suppressed := 0
	for _, f := range result.Files {
		suppressed += f.Suppressed
	}
	summary := runSummary{
		RunID:      result.RunID,
		Profile:    p.Name,
		Files:      len(result.Files),
		Failed:     result.Failed(),
		Partial:    result.Partial(),
		Unreadable: unreadable,
		Suppressed: suppressed,
		Duration:   result.Finished.Sub(result.Started).Round(time.Millisecond).String(),
		Result:     result,
	}

	issues := result.Issues()
	content := fmt.Sprintf("Profile: %s\nFiles: %d (%d failed, %d partial, %d unreadable)\nIssues: %d (%d suppressed)\nDuration: %s",
		p.Name, summary.Files, summary.Failed, summary.Partial, unreadable, len(issues), suppressed, summary.Duration)

	return &output.Report{
		Title: "BSL Analysis",
		Parts: []output.Renderable{
			&output.Section{Title: "Summary", Content: content},
			issueTable(issues, colored),
			outcomeTable(result.Files, colored),
			measureTable(result.Project),
		},
		Data: summary,
	}
}

func issueTable(issues []models.HostIssue, colored bool) *output.Table {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].FilePath != issues[j].FilePath {
			return issues[i].FilePath < issues[j].FilePath
		}
		return issues[i].Range.Start.Line < issues[j].Range.Start.Line
	})
	rows := make([][]string, 0, len(issues))
	for _, is := range issues {
		sev := string(is.Severity)
		if colored {
			sev = output.SeverityColor(sev, sev)
		}
		rule := is.RuleKey.String()
		if is.External {
			rule += " (external)"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%s:%d", displayPath(is.FilePath), is.Range.Start.Line),
			rule,
			sev,
			is.Message,
		})
	}
	return output.NewTable("Issues", []string{"Location", "Rule", "Severity", "Message"}, rows,
		[]string{"Total", fmt.Sprintf("%d", len(issues)), "", ""}, nil)
}

// outcomeTable lists the files that were not fully processed.
func outcomeTable(files []bridge.FileResult, colored bool) *output.Table {
	var rows [][]string
	for _, f := range files {
		if f.Outcome.Status == bridge.StatusOK {
			continue
		}
		status := string(f.Outcome.Status)
		if colored {
			status = output.StatusColor(status, status)
		}
		rows = append(rows, []string{displayPath(f.Path), status, strings.Join(f.Outcome.Reasons, "; ")})
	}
	return output.NewTable("Degraded Files", []string{"File", "Status", "Reasons"}, rows, nil, nil)
}

func measureTable(project models.ProjectMeasurement) *output.Table {
	keys := make([]string, 0, len(project.Values))
	for k := range project.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, fmt.Sprintf("%g", project.Values[k])})
	}
	return output.NewTable("Project Measures", []string{"Metric", "Value"}, rows,
		[]string{"Files", fmt.Sprintf("%d", project.Files)}, nil)
}

// displayPath shortens absolute paths under the working directory.
func displayPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(wd, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
