// Package reporters turns rule files of external 1C reporters (ACC, EDT and
// the universal format) into rule sources with their built-in profiles.
package reporters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bslbridge/bslbridge/pkg/catalog"
	"github.com/bslbridge/bslbridge/pkg/engine"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// AllRulesProfile is the profile activating every default rule of the engine
// and every active reporter rule.
const AllRulesProfile = "BSL - all rules"

// Reporter describes one external issue reporter.
type Reporter struct {
	Key                  string
	Name                 string
	Subcategory          string
	RepositoryKey        string
	RepositoryName       string
	Source               string
	RuleTag              string
	CreateExternalIssues bool
	CertifiedProfile     bool
}

// FullCheckProfile is the name of the profile activating all active rules.
func (r Reporter) FullCheckProfile() string {
	return r.Subcategory + " - full check"
}

// CompatibleProfile is the name of the profile for certification rules.
func (r Reporter) CompatibleProfile() string {
	return r.Subcategory + " - 1C:Compatible"
}

var (
	ACC = Reporter{
		Key:                  "acc",
		Name:                 "1C:ACC",
		Subcategory:          "ACC",
		RepositoryKey:        "acc-rules",
		RepositoryName:       "ACC rules",
		Source:               "acc",
		RuleTag:              "acc",
		CreateExternalIssues: true,
		CertifiedProfile:     true,
	}
	EDT = Reporter{
		Key:                  "edt",
		Name:                 "1C:EDT",
		Subcategory:          "EDT",
		RepositoryKey:        "edt-rules",
		RepositoryName:       "EDT rules",
		Source:               "edt",
		RuleTag:              "edt",
		CreateExternalIssues: true,
		CertifiedProfile:     true,
	}
	Universal = Reporter{
		Key:            "universal",
		Name:           "BSLLS Universal",
		Subcategory:    "Universal",
		RepositoryKey:  "universal-rules",
		RepositoryName: "Universal rules",
		Source:         "universal",
		RuleTag:        "bslls-universal",
	}
)

// Builtin returns the known reporters.
func Builtin() []Reporter {
	return []Reporter{ACC, EDT, Universal}
}

// Lookup finds a built-in reporter by key.
func Lookup(key string) (Reporter, bool) {
	for _, r := range Builtin() {
		if strings.EqualFold(r.Key, key) {
			return r, true
		}
	}
	return Reporter{}, false
}

// Rule is one entry of a reporter rules file.
type Rule struct {
	Code               string `json:"code" yaml:"code" validate:"required"`
	Name               string `json:"name" yaml:"name" validate:"required"`
	Description        string `json:"description" yaml:"description"`
	Type               string `json:"type" yaml:"type"`
	Severity           string `json:"severity" yaml:"severity"`
	Active             bool   `json:"active" yaml:"active"`
	NeedForCertificate bool   `json:"needForCertificate" yaml:"needForCertificate"`
	EffortMinutes      int    `json:"effortMinutes" yaml:"effortMinutes" validate:"gte=0"`
	InternalCode       string `json:"internalCode,omitempty" yaml:"internalCode,omitempty"`
}

// RulesFile is the document format shared by all reporters.
type RulesFile struct {
	Rules []Rule `json:"rules" yaml:"rules" validate:"dive"`
}

var validate = validator.New()

// ReadRulesFile reads a JSON or YAML rules file. JSON field names match
// case-insensitively.
func ReadRulesFile(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var rf RulesFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &rf)
	default:
		err = json.Unmarshal(data, &rf)
	}
	if err != nil {
		return nil, fmt.Errorf("decode rules file %s: %w", path, err)
	}
	if err := validate.Struct(&rf); err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
	}
	seen := make(map[string]bool, len(rf.Rules))
	for _, r := range rf.Rules {
		if seen[r.Code] {
			return nil, fmt.Errorf("rules file %s: duplicate rule code %q", path, r.Code)
		}
		seen[r.Code] = true
	}
	return &rf, nil
}

// Source is a rule source backed by a reporter's rules files.
type Source struct {
	reporter Reporter
	rules    []Rule
}

// Load reads the rules files of a reporter. A rule in a later file replaces
// the rule with the same code from an earlier file.
func Load(r Reporter, paths []string) (*Source, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("reporter %s: no rules files configured", r.Key)
	}
	s := &Source{reporter: r}
	index := make(map[string]int)
	for _, p := range paths {
		rf, err := ReadRulesFile(p)
		if err != nil {
			return nil, fmt.Errorf("reporter %s: %w", r.Key, err)
		}
		for _, rule := range rf.Rules {
			if i, ok := index[rule.Code]; ok {
				s.rules[i] = rule
				continue
			}
			index[rule.Code] = len(s.rules)
			s.rules = append(s.rules, rule)
		}
	}
	return s, nil
}

// Reporter returns the reporter the source was loaded for.
func (s *Source) Reporter() Reporter { return s.reporter }

// Repository implements engine.RuleSource.
func (s *Source) Repository() engine.Repository {
	return engine.Repository{
		Key:      s.reporter.RepositoryKey,
		Name:     s.reporter.RepositoryName,
		Language: "bsl",
		EngineID: s.reporter.Source,
	}
}

// ListRules implements engine.RuleSource. Descriptions are already HTML and
// remediation grows linearly with the gap.
func (s *Source) ListRules(ctx context.Context) ([]engine.RuleInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]engine.RuleInfo, 0, len(s.rules))
	for _, r := range s.rules {
		typ := r.Type
		if typ == "" {
			typ = "CODE_SMELL"
		}
		sev := r.Severity
		if sev == "" {
			sev = "MAJOR"
		}
		out = append(out, engine.RuleInfo{
			Code:               r.Code,
			Name:               r.Name,
			Description:        r.Description,
			DescriptionHTML:    true,
			Type:               typ,
			Severity:           sev,
			Tags:               []string{s.reporter.RuleTag},
			Remediation:        "LINEAR",
			MinutesToFix:       float64(r.EffortMinutes),
			ActivatedByDefault: r.Active,
			PointSpan:          "line",
		})
	}
	return out, nil
}

// ListProfiles implements engine.RuleSource.
func (s *Source) ListProfiles(ctx context.Context) ([]engine.ProfileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := engine.ProfileInfo{Name: s.reporter.FullCheckProfile(), Language: "bsl", Rules: []engine.ProfileRule{}}
	for _, r := range s.ActiveCodes() {
		full.Rules = append(full.Rules, engine.ProfileRule{Rule: r})
	}
	profiles := []engine.ProfileInfo{full}

	if s.reporter.CertifiedProfile {
		cert := engine.ProfileInfo{Name: s.reporter.CompatibleProfile(), Language: "bsl", Rules: []engine.ProfileRule{}}
		for _, r := range s.rules {
			if r.NeedForCertificate {
				cert.Rules = append(cert.Rules, engine.ProfileRule{Rule: r.Code})
			}
		}
		profiles = append(profiles, cert)
	}
	return profiles, nil
}

// ActiveCodes returns the codes of rules active by default, in file order.
func (s *Source) ActiveCodes() []string {
	var codes []string
	for _, r := range s.rules {
		if r.Active {
			codes = append(codes, r.Code)
		}
	}
	return codes
}

// AllRulesPreset builds the combined profile from the engine's default rules
// in engineRepo and the active rules of every reporter source.
func AllRulesPreset(c *catalog.Catalog, engineRepo string, sources []*Source) engine.ProfileInfo {
	p := engine.ProfileInfo{Name: AllRulesProfile, Language: "bsl", Rules: []engine.ProfileRule{}}
	for _, key := range c.ActivatedByDefault(engineRepo) {
		p.Rules = append(p.Rules, engine.ProfileRule{Repository: key.Repository, Rule: key.Rule})
	}
	for _, s := range sources {
		for _, code := range s.ActiveCodes() {
			p.Rules = append(p.Rules, engine.ProfileRule{Repository: s.reporter.RepositoryKey, Rule: code})
		}
	}
	return p
}
