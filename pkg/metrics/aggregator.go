package metrics

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bslbridge/bslbridge/pkg/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// rollup accumulates values for one scope (project or module).
type rollup struct {
	files   int
	sums    map[string]float64
	maxes   map[string]float64
	samples map[string][]float64
	weights map[string][]float64
}

func newRollup() *rollup {
	return &rollup{
		sums:    make(map[string]float64),
		maxes:   make(map[string]float64),
		samples: make(map[string][]float64),
		weights: make(map[string][]float64),
	}
}

func (r *rollup) add(key string, red Reduction, value float64, values map[string]float64) {
	switch red.Kind {
	case Sum:
		r.sums[key] += value
	case Max:
		if cur, ok := r.maxes[key]; !ok || value > cur {
			r.maxes[key] = value
		}
	case WeightedAvg:
		r.samples[key] = append(r.samples[key], value)
		r.weights[key] = append(r.weights[key], values[red.Weight])
	}
}

func (r *rollup) values() map[string]float64 {
	out := make(map[string]float64, len(r.sums)+len(r.maxes)+len(r.samples))
	for k, v := range r.sums {
		out[k] = v
	}
	for k, v := range r.maxes {
		out[k] = v
	}
	for k, xs := range r.samples {
		weights := r.weights[k]
		// Without any weight the files count equally.
		if floats.Sum(weights) == 0 {
			weights = nil
		}
		mean := stat.Mean(xs, weights)
		if math.IsNaN(mean) || math.IsInf(mean, 0) {
			mean = 0
		}
		out[k] = mean
	}
	return out
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger used to report unknown metric keys.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// Aggregator combines file measurements. It is safe for concurrent use.
type Aggregator struct {
	registry *Registry
	logger   *slog.Logger

	mu        sync.Mutex
	finalized bool
	project   *rollup
	modules   map[string]*rollup
	codeLines map[string]*roaring.Bitmap
	reported  map[string]bool
}

// NewAggregator returns an aggregator using the given registry.
func NewAggregator(registry *Registry, opts ...Option) *Aggregator {
	a := &Aggregator{
		registry:  registry,
		logger:    slog.Default(),
		project:   newRollup(),
		modules:   make(map[string]*rollup),
		codeLines: make(map[string]*roaring.Bitmap),
		reported:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddFile folds one file into the rollups. Known keys are always counted;
// when unknown keys are present the returned error wraps ErrUnknownMetric
// and names them.
func (a *Aggregator) AddFile(m models.FileMeasurement) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return ErrAlreadyFinalized
	}

	values := make(map[string]float64, len(m.Values)+2)
	for k, v := range m.Values {
		values[k] = v
	}
	if len(m.CodeLines) > 0 {
		bm := roaring.New()
		for _, line := range m.CodeLines {
			if line > 0 {
				bm.Add(uint32(line))
			}
		}
		a.codeLines[m.Path] = bm
		if _, ok := values[models.MetricNcloc]; !ok {
			values[models.MetricNcloc] = float64(bm.GetCardinality())
		}
	}
	if _, ok := values[models.MetricFiles]; !ok {
		values[models.MetricFiles] = 1
	}

	scopes := []*rollup{a.project}
	if m.Module != "" {
		mod, ok := a.modules[m.Module]
		if !ok {
			mod = newRollup()
			a.modules[m.Module] = mod
		}
		scopes = append(scopes, mod)
	}
	for _, s := range scopes {
		s.files++
	}

	var unknown []string
	for key, v := range values {
		red, ok := a.registry.Lookup(key)
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		for _, s := range scopes {
			s.add(key, red, v, values)
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	sort.Strings(unknown)
	for _, key := range unknown {
		if !a.reported[key] {
			a.reported[key] = true
			a.logger.Warn("dropping unknown metric", "metric", key, "file", m.Path)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownMetric, strings.Join(unknown, ", "))
}

// CodeLines returns the sorted code lines recorded for path.
func (a *Aggregator) CodeLines(path string) []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	bm, ok := a.codeLines[path]
	if !ok {
		return nil
	}
	lines := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		lines = append(lines, int(it.Next()))
	}
	return lines
}

// Finalize produces the project measurement. It succeeds once.
func (a *Aggregator) Finalize() (models.ProjectMeasurement, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return models.ProjectMeasurement{}, ErrAlreadyFinalized
	}
	a.finalized = true

	pm := models.ProjectMeasurement{
		Files:  a.project.files,
		Values: a.project.values(),
	}
	if len(a.modules) > 0 {
		pm.Modules = make(map[string]map[string]float64, len(a.modules))
		for name, r := range a.modules {
			pm.Modules[name] = r.values()
		}
	}
	return pm, nil
}
