package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/bslbridge/bslbridge/pkg/bridge"
	"github.com/bslbridge/bslbridge/pkg/catalog"
	"github.com/bslbridge/bslbridge/pkg/engine"
	"github.com/bslbridge/bslbridge/pkg/markup"
	"github.com/bslbridge/bslbridge/pkg/models"
	"github.com/bslbridge/bslbridge/pkg/position"
	"github.com/bslbridge/bslbridge/pkg/profile"
	"github.com/bslbridge/bslbridge/pkg/reporters"
)

var errNoEngineRules = errors.New("engine.rules_file is not configured")

// workspace is the loaded rule catalogue with its profiles.
type workspace struct {
	*env
	catalog  *catalog.Catalog
	profiles *profile.Set
	// reporters are the enabled reporter sources in load order.
	reporters []*reporters.Source
}

// loadWorkspace builds the catalogue from the engine dump plus the enabled
// reporters, then assembles profiles from presets and config overrides.
func loadWorkspace(ctx context.Context, e *env) (*workspace, error) {
	cfg := e.cfg
	if cfg.Engine.RulesFile == "" {
		return nil, errNoEngineRules
	}
	engineSource, err := engine.LoadRulesFile(cfg.Engine.RulesFile)
	if err != nil {
		return nil, err
	}
	if key := engineSource.Repository().Key; cfg.Engine.Repository != "" && key != cfg.Engine.Repository {
		return nil, fmt.Errorf("rules file %s describes repository %q, expected %q", cfg.Engine.RulesFile, key, cfg.Engine.Repository)
	}

	sources := []engine.RuleSource{engineSource}
	var reporterSources []*reporters.Source
	byKey := cfg.Reporters.ByKey()
	for _, r := range reporters.Builtin() {
		rc := byKey[r.Key]
		if !rc.Enabled {
			continue
		}
		r.CreateExternalIssues = rc.CreateExternalIssues
		src, err := reporters.Load(r, rc.RulesFiles)
		if err != nil {
			return nil, err
		}
		reporterSources = append(reporterSources, src)
		sources = append(sources, src)
	}

	c, err := catalog.NewLoader(sources,
		catalog.WithRenderer(markup.NewRenderer()),
		catalog.WithLogger(e.logger),
	).Load(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("catalogue loaded", "rules", c.Len(), "repositories", len(c.Repositories()))

	presets := profile.FromCatalog(c)
	presets = append(presets, profile.PresetSource{
		Name:       reporters.AllRulesProfile,
		Repository: engineSource.Repository().Key,
		Profiles:   []engine.ProfileInfo{reporters.AllRulesPreset(c, engineSource.Repository().Key, reporterSources)},
	})
	for _, path := range cfg.Profiles.PresetFiles {
		ps, err := profile.LoadPresetFile(path, engineSource.Repository().Key)
		if err != nil {
			return nil, err
		}
		presets = append(presets, ps)
	}

	overrides, err := buildOverrides(e)
	if err != nil {
		return nil, err
	}
	set, err := profile.Assemble(c, presets, overrides, cfg.Engine.Language)
	if err != nil {
		return nil, err
	}

	return &workspace{env: e, catalog: c, profiles: set, reporters: reporterSources}, nil
}

func buildOverrides(e *env) ([]profile.Override, error) {
	out := make([]profile.Override, 0, len(e.cfg.Profiles.Overrides))
	for _, oc := range e.cfg.Profiles.Overrides {
		key, err := models.ParseRuleKey(oc.Rule)
		if err != nil {
			return nil, fmt.Errorf("override %s: %w", oc.Rule, err)
		}
		o := profile.Override{Profile: oc.Profile, Rule: key, Active: oc.Active, Params: oc.Params}
		if oc.Severity != "" {
			sev, err := models.ParseSeverity(oc.Severity)
			if err != nil {
				return nil, fmt.Errorf("override %s: %w", oc.Rule, err)
			}
			o.Severity = &sev
		}
		out = append(out, o)
	}
	return out, nil
}

// engineRepository is the repository of the engine's own rules.
func (w *workspace) engineRepository() string {
	if w.cfg.Engine.Repository != "" {
		return w.cfg.Engine.Repository
	}
	if repos := w.catalog.Repositories(); len(repos) > 0 {
		return repos[0].Key
	}
	return ""
}

// profile resolves the active profile, preferring name over the configured one.
func (w *workspace) profile(name string) (models.Profile, error) {
	if name == "" {
		name = w.cfg.Analysis.Profile
	}
	return w.profiles.Require(name)
}

func (w *workspace) mapper() *position.Mapper {
	return position.NewMapper(
		position.Convention{LineBase: w.cfg.Engine.LineBase, ColumnBase: w.cfg.Engine.ColumnBase},
		position.Convention{LineBase: w.cfg.Host.LineBase, ColumnBase: w.cfg.Host.ColumnBase},
	)
}

// externalRepositories lists reporter repositories whose inactive rules
// still surface as external issues.
func (w *workspace) externalRepositories() []string {
	var repos []string
	for _, s := range w.reporters {
		if r := s.Reporter(); r.CreateExternalIssues {
			repos = append(repos, r.RepositoryKey)
		}
	}
	sort.Strings(repos)
	return repos
}

// analyzer returns the engine front end: precomputed reports when any are
// given, otherwise the configured engine command with a diagnostics config
// written for p.
func (w *workspace) analyzer(p models.Profile, reports []string) (engine.Analyzer, error) {
	if len(reports) == 0 {
		reports = w.cfg.Engine.Reports
	}
	if len(reports) > 0 {
		return engine.LoadReports(reports...)
	}
	if len(w.cfg.Engine.Command) == 0 {
		return nil, errors.New("no engine configured: set engine.command or engine.reports")
	}

	configPath := w.cfg.Engine.ConfigPath
	if configPath == "" {
		configPath = filepath.Join(w.cfg.Host.OutputDir, "engine-config.json")
	}
	if err := w.writeEngineConfig(p, configPath); err != nil {
		return nil, err
	}
	timeout := time.Duration(w.cfg.Engine.TimeoutSeconds) * time.Second
	return engine.NewCommandAnalyzer(w.cfg.Engine.Command, configPath, w.cfg.Engine.DiagnosticLanguage, timeout)
}

func (w *workspace) engineConfig(p models.Profile) (*engine.Config, error) {
	return engine.ConfigFor(w.catalog.Rules(), p, w.engineRepository(), w.cfg.Engine.DiagnosticLanguage)
}

func (w *workspace) writeEngineConfig(p models.Profile, path string) error {
	ec, err := w.engineConfig(p)
	if err != nil {
		return err
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := ec.WriteFile(path); err != nil {
		return fmt.Errorf("write engine config: %w", err)
	}
	w.logger.Debug("engine config written", "path", path, "profile", p.Name)
	return nil
}

// bridge creates the diagnostic bridge for p.
func (w *workspace) bridge(p models.Profile, a engine.Analyzer) *bridge.Bridge {
	return bridge.New(w.catalog, p, a,
		bridge.WithLogger(w.logger),
		bridge.WithMapper(w.mapper()),
		bridge.WithEngineRepository(w.engineRepository()),
		bridge.WithExternalIssues(w.externalRepositories()...),
	)
}
