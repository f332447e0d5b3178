// Package metrics rolls per-file engine measurements up to project and
// module level.
package metrics

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bslbridge/bslbridge/pkg/models"
)

var (
	// ErrUnknownReduction is returned when a metric is registered with a
	// reduction the aggregator cannot perform.
	ErrUnknownReduction = errors.New("unknown metric reduction")
	// ErrUnknownMetric is returned for measurement keys missing from the registry.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrAlreadyFinalized is returned when an aggregator is used after Finalize.
	ErrAlreadyFinalized = errors.New("aggregator already finalized")
)

// Kind names a reduction.
type Kind string

const (
	Sum         Kind = "sum"
	Max         Kind = "max"
	WeightedAvg Kind = "weighted_avg"
)

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Sum, Max, WeightedAvg:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownReduction, s)
	}
}

// Reduction says how file values of one metric combine.
// Weight names the metric used as weight for WeightedAvg.
type Reduction struct {
	Kind   Kind
	Weight string
}

// Registry maps metric keys to their reductions.
type Registry struct {
	reductions map[string]Reduction
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{reductions: make(map[string]Reduction)}
}

// DefaultRegistry returns a registry with the metrics the engine reports.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, key := range []string{
		models.MetricNcloc,
		models.MetricLines,
		models.MetricStatements,
		models.MetricFunctions,
		models.MetricComplexity,
		models.MetricCognitiveComplexity,
		models.MetricCommentLines,
		models.MetricFiles,
	} {
		r.reductions[key] = Reduction{Kind: Sum}
	}
	r.reductions[models.MetricNestingDepth] = Reduction{Kind: Max}
	r.reductions[models.MetricComplexityMax] = Reduction{Kind: Max}
	r.reductions[models.MetricCommentLinesDensity] = Reduction{Kind: WeightedAvg, Weight: models.MetricNcloc}
	r.reductions[models.MetricDuplicatedLinesDensity] = Reduction{Kind: WeightedAvg, Weight: models.MetricLines}
	return r
}

// Register adds or replaces a metric.
func (r *Registry) Register(key string, red Reduction) error {
	if key == "" {
		return errors.New("metric key must not be empty")
	}
	if _, err := ParseKind(string(red.Kind)); err != nil {
		return fmt.Errorf("metric %s: %w", key, err)
	}
	if red.Kind == WeightedAvg && red.Weight == "" {
		return fmt.Errorf("metric %s: %w: weighted_avg needs a weight metric", key, ErrUnknownReduction)
	}
	r.reductions[key] = red
	return nil
}

// Lookup returns the reduction registered for key.
func (r *Registry) Lookup(key string) (Reduction, bool) {
	red, ok := r.reductions[key]
	return red, ok
}

// Keys returns the registered metric keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.reductions))
	for k := range r.reductions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that every key, and every weight a registered metric relies
// on, is known.
func (r *Registry) Validate(keys []string) error {
	var unknown []string
	for _, k := range keys {
		if _, ok := r.reductions[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	for key, red := range r.reductions {
		if red.Kind != WeightedAvg {
			continue
		}
		if _, ok := r.reductions[red.Weight]; !ok {
			unknown = append(unknown, red.Weight+" (weight of "+key+")")
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: %s", ErrUnknownMetric, strings.Join(unknown, ", "))
}
