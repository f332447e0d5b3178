// Package catalog loads the engine's rule metadata into immutable host rule
// definitions.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/bslbridge/bslbridge/pkg/engine"
	"github.com/bslbridge/bslbridge/pkg/markup"
	"github.com/bslbridge/bslbridge/pkg/models"
	"github.com/cespare/xxhash/v2"
)

// ErrCatalogLoad matches every error returned by Loader.Load.
var ErrCatalogLoad = errors.New("catalog load failed")

// ParametersTag is added to every rule that declares parameters.
const ParametersTag = "parameters"

// LoadError describes why the catalogue could not be built.
type LoadError struct {
	Repository string
	Rule       string
	Err        error
}

func (e *LoadError) Error() string {
	switch {
	case e.Rule != "":
		return fmt.Sprintf("catalog load failed: %s:%s: %v", e.Repository, e.Rule, e.Err)
	case e.Repository != "":
		return fmt.Sprintf("catalog load failed: %s: %v", e.Repository, e.Err)
	default:
		return fmt.Sprintf("catalog load failed: %v", e.Err)
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCatalogLoad) hold for every LoadError.
func (e *LoadError) Is(target error) bool { return target == ErrCatalogLoad }

// SourcePresets are the preset profiles listed by one source.
type SourcePresets struct {
	Repository engine.Repository
	Profiles   []engine.ProfileInfo
}

// Catalog is the immutable set of loaded rule definitions. Values returned by
// its accessors must not be modified.
type Catalog struct {
	rules     map[models.RuleKey]*models.RuleDefinition
	ordered   []models.RuleDefinition
	repos     []engine.Repository
	byEngine  map[string]string
	presets   []SourcePresets
	signature string
}

// Rule looks up a rule by key.
func (c *Catalog) Rule(key models.RuleKey) (*models.RuleDefinition, bool) {
	r, ok := c.rules[key]
	return r, ok
}

// Rules returns all rules ordered by key.
func (c *Catalog) Rules() []models.RuleDefinition {
	return c.ordered
}

// Len returns the number of rules.
func (c *Catalog) Len() int { return len(c.ordered) }

// Repositories returns the repositories in source order.
func (c *Catalog) Repositories() []engine.Repository { return c.repos }

// RepositoryFor resolves a diagnostic source to a repository key. Matching is
// case-insensitive on the engine id and the repository key.
func (c *Catalog) RepositoryFor(source string) (string, bool) {
	key, ok := c.byEngine[strings.ToLower(source)]
	return key, ok
}

// ActivatedByDefault returns the keys of rules in repo that the engine enables
// by default.
func (c *Catalog) ActivatedByDefault(repo string) []models.RuleKey {
	var keys []models.RuleKey
	for i := range c.ordered {
		r := &c.ordered[i]
		if r.Key.Repository == repo && r.ActivatedByDefault {
			keys = append(keys, r.Key)
		}
	}
	return keys
}

// Presets returns the preset profiles listed by each source, in source order.
func (c *Catalog) Presets() []SourcePresets { return c.presets }

// Signature is a stable hash of the rule set, used to key cached results.
func (c *Catalog) Signature() string { return c.signature }

// Loader builds a Catalog from rule sources.
type Loader struct {
	sources  []engine.RuleSource
	renderer *markup.Renderer
	logger   *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithRenderer shares a description renderer.
func WithRenderer(r *markup.Renderer) Option {
	return func(l *Loader) { l.renderer = r }
}

// WithLogger sets the logger used for skipped parameters.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a loader over sources, read in order.
func NewLoader(sources []engine.RuleSource, opts ...Option) *Loader {
	l := &Loader{sources: sources}
	for _, opt := range opts {
		opt(l)
	}
	if l.renderer == nil {
		l.renderer = markup.NewRenderer()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Load enumerates every source. Any unreachable source, malformed rule or
// duplicate rule key fails the whole load with a LoadError.
func (l *Loader) Load(ctx context.Context) (*Catalog, error) {
	c := &Catalog{
		rules:    make(map[models.RuleKey]*models.RuleDefinition),
		byEngine: make(map[string]string),
	}
	repoSeen := make(map[string]bool)

	for _, src := range l.sources {
		repo := src.Repository()
		if strings.TrimSpace(repo.Key) == "" {
			return nil, &LoadError{Err: errors.New("rule source has no repository key")}
		}
		if repoSeen[repo.Key] {
			return nil, &LoadError{Repository: repo.Key, Err: errors.New("repository listed by more than one source")}
		}
		repoSeen[repo.Key] = true
		c.repos = append(c.repos, repo)
		c.byEngine[strings.ToLower(repo.Key)] = repo.Key
		if repo.EngineID != "" {
			c.byEngine[strings.ToLower(repo.EngineID)] = repo.Key
		}

		infos, err := src.ListRules(ctx)
		if err != nil {
			return nil, &LoadError{Repository: repo.Key, Err: fmt.Errorf("list rules: %w", err)}
		}
		for _, info := range infos {
			def, err := l.convert(repo, info)
			if err != nil {
				return nil, &LoadError{Repository: repo.Key, Rule: info.Code, Err: err}
			}
			if _, dup := c.rules[def.Key]; dup {
				return nil, &LoadError{Repository: repo.Key, Rule: info.Code, Err: errors.New("duplicate rule key")}
			}
			c.rules[def.Key] = &def
		}

		profiles, err := src.ListProfiles(ctx)
		if err != nil {
			return nil, &LoadError{Repository: repo.Key, Err: fmt.Errorf("list profiles: %w", err)}
		}
		c.presets = append(c.presets, SourcePresets{Repository: repo, Profiles: profiles})
	}

	c.ordered = make([]models.RuleDefinition, 0, len(c.rules))
	keys := make([]models.RuleKey, 0, len(c.rules))
	for k := range c.rules {
		keys = append(keys, k)
	}
	models.SortRuleKeys(keys)
	for _, k := range keys {
		c.ordered = append(c.ordered, *c.rules[k])
	}
	// Point map entries at the ordered slice so both views share storage.
	for i := range c.ordered {
		c.rules[c.ordered[i].Key] = &c.ordered[i]
	}
	c.signature = signature(c.ordered)

	l.logger.Debug("rule catalog loaded", "rules", len(c.ordered), "repositories", len(c.repos))
	return c, nil
}

func (l *Loader) convert(repo engine.Repository, info engine.RuleInfo) (models.RuleDefinition, error) {
	if strings.TrimSpace(info.Code) == "" {
		return models.RuleDefinition{}, errors.New("rule has no code")
	}
	if strings.TrimSpace(info.Name) == "" {
		return models.RuleDefinition{}, errors.New("rule has no name")
	}
	sev, err := models.ParseSeverity(info.Severity)
	if err != nil {
		return models.RuleDefinition{}, err
	}
	typ, err := models.ParseRuleType(info.Type)
	if err != nil {
		return models.RuleDefinition{}, err
	}
	rem, err := remediation(info)
	if err != nil {
		return models.RuleDefinition{}, err
	}

	span := models.SpanToken
	if info.PointSpan != "" {
		span = models.PointSpan(strings.ToLower(info.PointSpan))
		if span != models.SpanToken && span != models.SpanLine {
			return models.RuleDefinition{}, fmt.Errorf("unknown point span %q", info.PointSpan)
		}
	}

	def := models.RuleDefinition{
		Key:                models.RuleKey{Repository: repo.Key, Rule: info.Code},
		Name:               info.Name,
		DefaultSeverity:    sev,
		Type:               typ,
		Remediation:        rem,
		ActivatedByDefault: info.ActivatedByDefault,
		PointSpan:          span,
	}
	if info.DescriptionHTML && info.Description != "" {
		def.HTMLDescription = info.Description
	} else {
		def.HTMLDescription = l.renderer.Render(info.Description)
	}

	for _, p := range info.Parameters {
		pt, err := models.ParseParamType(p.Type)
		if err != nil {
			l.logger.Warn("skipping rule parameter", "rule", def.Key.String(), "param", p.Key, "error", err)
			continue
		}
		param := models.RuleParam{Key: p.Key, Description: p.Description, DefaultValue: p.DefaultValue, Type: pt}
		if p.DefaultValue != "" {
			if _, err := param.Coerce(p.DefaultValue); err != nil {
				return models.RuleDefinition{}, fmt.Errorf("default value: %w", err)
			}
		}
		def.Parameters = append(def.Parameters, param)
	}
	def.Tags = normalizeTags(info.Tags, len(def.Parameters) > 0)
	return def, nil
}

func remediation(info engine.RuleInfo) (models.Remediation, error) {
	switch strings.ToUpper(info.Remediation) {
	case "":
		if info.ExtraMinForComplexity > 0 {
			return models.Remediation{
				Function:       models.RemediationLinearOffset,
				BaseMinutes:    info.MinutesToFix,
				PerUnitMinutes: info.ExtraMinForComplexity,
			}, nil
		}
		return models.Remediation{Function: models.RemediationConstant, BaseMinutes: info.MinutesToFix}, nil
	case string(models.RemediationConstant):
		return models.Remediation{Function: models.RemediationConstant, BaseMinutes: info.MinutesToFix}, nil
	case string(models.RemediationLinear):
		return models.Remediation{Function: models.RemediationLinear, PerUnitMinutes: info.MinutesToFix}, nil
	case string(models.RemediationLinearOffset):
		return models.Remediation{
			Function:       models.RemediationLinearOffset,
			BaseMinutes:    info.MinutesToFix,
			PerUnitMinutes: info.ExtraMinForComplexity,
		}, nil
	default:
		return models.Remediation{}, fmt.Errorf("unknown remediation function %q", info.Remediation)
	}
}

func normalizeTags(tags []string, hasParams bool) []string {
	set := make(map[string]struct{}, len(tags)+1)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	if hasParams {
		set[ParametersTag] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func signature(rules []models.RuleDefinition) string {
	h := xxhash.New()
	for i := range rules {
		r := &rules[i]
		_, _ = h.WriteString(r.Key.String())
		_, _ = h.WriteString(string(r.DefaultSeverity))
		_, _ = h.WriteString(string(r.PointSpan))
		for _, p := range r.Parameters {
			_, _ = h.WriteString(p.Key + "=" + p.DefaultValue)
		}
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
