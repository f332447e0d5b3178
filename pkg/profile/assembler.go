// Package profile assembles named rule activation sets from engine presets
// and host overrides.
package profile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bslbridge/bslbridge/pkg/catalog"
	"github.com/bslbridge/bslbridge/pkg/engine"
	"github.com/bslbridge/bslbridge/pkg/models"
)

var (
	// ErrUnknownRuleReference is returned when a preset or override names a
	// rule the catalogue does not contain.
	ErrUnknownRuleReference = errors.New("unknown rule reference")
	// ErrDuplicateProfile is returned when one preset source defines a
	// profile name twice.
	ErrDuplicateProfile = errors.New("duplicate profile name")
	// ErrInvalidParameter is returned for undeclared parameters, values that
	// do not match the parameter type, and unknown severities.
	ErrInvalidParameter = errors.New("invalid rule parameter")
	// ErrUnknownProfile is returned by Set.Require for missing names.
	ErrUnknownProfile = errors.New("unknown profile")
)

// PresetSource is a group of presets with a common origin. Sources are applied
// in order: a profile defined again by a later source replaces the earlier
// definition as a whole.
type PresetSource struct {
	Name string
	// Repository is used for preset rules that do not name one.
	Repository string
	Profiles   []engine.ProfileInfo
}

// Override adjusts one rule of one profile. Overrides are applied after all
// presets and always win.
type Override struct {
	Profile  string
	Rule     models.RuleKey
	Active   *bool
	Severity *models.Severity
	Params   map[string]string
}

// Set is the immutable result of assembly.
type Set struct {
	profiles map[string]models.Profile
	names    []string
}

// Get returns the profile with the given name.
func (s *Set) Get(name string) (models.Profile, bool) {
	p, ok := s.profiles[name]
	return p, ok
}

// Require returns the named profile or ErrUnknownProfile.
func (s *Set) Require(name string) (models.Profile, error) {
	p, ok := s.profiles[name]
	if !ok {
		return models.Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Names returns profile names in sorted order.
func (s *Set) Names() []string { return s.names }

// All returns the profiles ordered by name.
func (s *Set) All() []models.Profile {
	out := make([]models.Profile, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.profiles[n])
	}
	return out
}

// Len returns the number of profiles.
func (s *Set) Len() int { return len(s.names) }

// Assemble builds the profile set. language is used for profiles that do
// not declare one.
func Assemble(c *catalog.Catalog, sources []PresetSource, overrides []Override, language string) (*Set, error) {
	profiles := make(map[string]models.Profile)

	for _, src := range sources {
		seen := make(map[string]bool, len(src.Profiles))
		for _, info := range src.Profiles {
			if seen[info.Name] {
				return nil, fmt.Errorf("%w: %q defined twice by %s", ErrDuplicateProfile, info.Name, src.Name)
			}
			seen[info.Name] = true

			p, err := fromPreset(c, src, info, language)
			if err != nil {
				return nil, err
			}
			profiles[info.Name] = p
		}
	}

	for _, o := range overrides {
		if err := applyOverride(c, profiles, o, language); err != nil {
			return nil, err
		}
	}

	set := &Set{profiles: profiles, names: make([]string, 0, len(profiles))}
	for n := range profiles {
		set.names = append(set.names, n)
	}
	sort.Strings(set.names)
	return set, nil
}

func fromPreset(c *catalog.Catalog, src PresetSource, info engine.ProfileInfo, language string) (models.Profile, error) {
	lang := info.Language
	if lang == "" {
		lang = language
	}
	p := models.NewProfile(info.Name, lang)
	for _, pr := range info.Rules {
		repo := pr.Repository
		if repo == "" {
			repo = src.Repository
		}
		key := models.RuleKey{Repository: repo, Rule: pr.Rule}
		rule, ok := c.Rule(key)
		if !ok {
			return p, fmt.Errorf("%w: profile %q (%s) activates %s", ErrUnknownRuleReference, info.Name, src.Name, key)
		}

		act := models.Activation{}
		if pr.Severity != "" {
			sev, err := models.ParseSeverity(pr.Severity)
			if err != nil {
				return p, fmt.Errorf("%w: profile %q rule %s: %v", ErrInvalidParameter, info.Name, key, err)
			}
			act.Severity = &sev
		}
		if err := mergeParams(rule, &act, pr.Params); err != nil {
			return p, fmt.Errorf("profile %q: %w", info.Name, err)
		}
		p.Activations[key] = act
	}
	return p, nil
}

func applyOverride(c *catalog.Catalog, profiles map[string]models.Profile, o Override, language string) error {
	rule, ok := c.Rule(o.Rule)
	if !ok {
		return fmt.Errorf("%w: override for profile %q names %s", ErrUnknownRuleReference, o.Profile, o.Rule)
	}
	p, ok := profiles[o.Profile]
	if !ok {
		p = models.NewProfile(o.Profile, language)
	}

	if o.Active != nil && !*o.Active {
		delete(p.Activations, o.Rule)
		profiles[o.Profile] = p
		return nil
	}

	act := p.Activations[o.Rule].Clone()
	if o.Severity != nil {
		sev := *o.Severity
		act.Severity = &sev
	}
	if err := mergeParams(rule, &act, o.Params); err != nil {
		return fmt.Errorf("override for profile %q: %w", o.Profile, err)
	}
	p.Activations[o.Rule] = act
	profiles[o.Profile] = p
	return nil
}

func mergeParams(rule *models.RuleDefinition, act *models.Activation, params map[string]string) error {
	if len(params) == 0 {
		return nil
	}
	if act.Params == nil {
		act.Params = make(map[string]string, len(params))
	}
	for k, v := range params {
		decl, ok := rule.Param(k)
		if !ok {
			return fmt.Errorf("%w: rule %s has no parameter %q", ErrInvalidParameter, rule.Key, k)
		}
		if _, err := decl.Coerce(v); err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidParameter, rule.Key, err)
		}
		act.Params[k] = v
	}
	return nil
}
