package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bslbridge/bslbridge/internal/cache"
	"github.com/bslbridge/bslbridge/internal/fileproc"
	"github.com/bslbridge/bslbridge/pkg/engine"
	"github.com/bslbridge/bslbridge/pkg/host"
	"github.com/bslbridge/bslbridge/pkg/metrics"
	"github.com/bslbridge/bslbridge/pkg/models"
	"github.com/google/uuid"
)

// BatchResult is the outcome of one analysis run.
type BatchResult struct {
	RunID    string                    `json:"run_id"`
	Files    []FileResult              `json:"files"`
	Project  models.ProjectMeasurement `json:"project"`
	Started  time.Time                 `json:"started"`
	Finished time.Time                 `json:"finished"`
}

// Failed counts files with a FAILED outcome.
func (r BatchResult) Failed() int { return r.count(StatusFailed) }

// Partial counts files with a PARTIAL outcome.
func (r BatchResult) Partial() int { return r.count(StatusPartial) }

func (r BatchResult) count(s Status) int {
	n := 0
	for _, f := range r.Files {
		if f.Outcome.Status == s {
			n++
		}
	}
	return n
}

// Issues returns all issues in file order.
func (r BatchResult) Issues() []models.HostIssue {
	var out []models.HostIssue
	for _, f := range r.Files {
		out = append(out, f.Issues...)
	}
	return out
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithWorkers bounds the number of files analyzed at once. Zero or less
// uses the CPU count.
func WithWorkers(n int) BatchOption {
	return func(b *Batch) { b.workers = n }
}

// WithProgress registers a callback invoked after each file.
func WithProgress(fn func()) BatchOption {
	return func(b *Batch) { b.onProgress = fn }
}

// WithCache reuses engine output for files whose content, catalogue and
// profile are unchanged.
func WithCache(c *cache.Cache) BatchOption {
	return func(b *Batch) { b.cache = c }
}

// WithHost sets where issues and measurements are reported.
func WithHost(h host.Host) BatchOption {
	return func(b *Batch) { b.host = h }
}

// Batch drives a Bridge over many files.
type Batch struct {
	bridge     *Bridge
	aggregator *metrics.Aggregator
	host       host.Host
	cache      *cache.Cache
	workers    int
	onProgress func()
}

// NewBatch creates a batch driver. A nil aggregator uses the default metric
// registry.
func NewBatch(b *Bridge, agg *metrics.Aggregator, opts ...BatchOption) *Batch {
	if agg == nil {
		agg = metrics.NewAggregator(metrics.DefaultRegistry(), metrics.WithLogger(b.logger))
	}
	batch := &Batch{bridge: b, aggregator: agg}
	for _, opt := range opts {
		opt(batch)
	}
	return batch
}

// Run analyzes files on a bounded pool and finalizes the measurements.
// Results are in input order. When ctx is cancelled no further file is
// started, files already running complete, and the returned error is the
// context error; files never started are FAILED.
func (b *Batch) Run(ctx context.Context, files []File) (BatchResult, error) {
	res := BatchResult{RunID: uuid.NewString(), Started: time.Now()}
	logger := b.bridge.logger.With("run_id", res.RunID)
	logger.Info("analysis started", "files", len(files), "profile", b.bridge.profile.Name)

	scope, cacheable := b.cacheScope()
	if b.cache != nil && b.cache.Enabled() && !cacheable {
		logger.Debug("engine results are not cached: analyzer has no fingerprint")
	}

	results, _ := fileproc.Map(ctx, files, b.workers,
		func(f File) string { return f.Path },
		func(ctx context.Context, f File) (FileResult, error) {
			return b.process(context.WithoutCancel(ctx), f, scope), nil
		},
		b.onProgress,
	)

	res.Files = make([]FileResult, len(files))
	for i, f := range files {
		if i < len(results) && results[i].Outcome.Status != "" {
			res.Files[i] = results[i]
			continue
		}
		skipped := FileResult{Path: f.Path, Issues: []models.HostIssue{}, Measurement: models.FileMeasurement{Path: f.Path, Module: f.Module}}
		skipped.Outcome.Fail("not analyzed: %v", context.Cause(ctx))
		res.Files[i] = skipped
	}

	project, err := b.aggregator.Finalize()
	if err != nil {
		return res, err
	}
	res.Project = project
	if b.host != nil {
		if err := b.host.ReportProject(context.WithoutCancel(ctx), project); err != nil {
			logger.Warn("reporting project measures failed", "error", err)
		}
	}

	res.Finished = time.Now()
	logger.Info("analysis finished",
		"files", len(res.Files),
		"failed", res.Failed(),
		"partial", res.Partial(),
		"duration", res.Finished.Sub(res.Started),
	)
	return res, ctx.Err()
}

// cacheScope hashes everything besides file content that shapes engine
// output: the analyzer identity, the catalogue and the full profile. It
// reports false when the analyzer has no fingerprint or caching is off.
func (b *Batch) cacheScope() ([]byte, bool) {
	if b.cache == nil || !b.cache.Enabled() {
		return nil, false
	}
	fp, ok := b.bridge.analyzer.(engine.Fingerprinter)
	if !ok {
		return nil, false
	}
	profile, err := json.Marshal(b.bridge.profile)
	if err != nil {
		return nil, false
	}
	return []byte(cache.HashBytes([]byte(fp.Fingerprint()), []byte(b.bridge.catalog.Signature()), profile)), true
}

func (b *Batch) process(ctx context.Context, f File, scope []byte) FileResult {
	res := b.analyze(ctx, f, scope)
	if res.Outcome.Status == StatusFailed {
		return res
	}

	if err := b.aggregator.AddFile(res.Measurement); err != nil {
		res.Outcome.Degrade("measures: %v", err)
	}

	if b.host != nil {
		if err := b.host.ReportIssues(ctx, f.Path, res.Issues); err != nil {
			res.Outcome.Degrade("host issues: %v", err)
		}
		if err := b.host.ReportFile(ctx, res.Measurement); err != nil {
			res.Outcome.Degrade("host measures: %v", err)
		}
		if len(res.CpdTokens) > 0 || len(res.Highlights) > 0 {
			tokens := host.FileTokens{Path: f.Path, CpdTokens: res.CpdTokens, Highlights: res.Highlights}
			if err := b.host.ReportTokens(ctx, tokens); err != nil {
				res.Outcome.Degrade("host tokens: %v", err)
			}
		}
	}
	return res
}

func (b *Batch) analyze(ctx context.Context, f File, scope []byte) FileResult {
	if scope == nil {
		return b.bridge.Analyze(ctx, f)
	}

	hash := cache.HashBytes(f.Content, scope)
	if data, ok := b.cache.Get(f.Path, hash); ok {
		var analysis engine.Analysis
		if err := json.Unmarshal(data, &analysis); err == nil {
			return b.bridge.Convert(f, &analysis)
		}
		_ = b.cache.Invalidate(f.Path)
	}

	res := b.bridge.Analyze(ctx, f)
	if res.analysis != nil {
		if data, err := json.Marshal(res.analysis); err == nil {
			if err := b.cache.Set(f.Path, hash, data); err != nil {
				b.bridge.logger.Debug("cache write failed", "file", f.Path, "error", err)
			}
		}
	}
	return res
}
