package models

import "sort"

// Activation enables a rule inside a profile.
type Activation struct {
	Severity *Severity         `json:"severity,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// Profile is a named activation set.
type Profile struct {
	Name        string                 `json:"name"`
	Language    string                 `json:"language"`
	Activations map[RuleKey]Activation `json:"activations"`
}

// NewProfile creates an empty profile.
func NewProfile(name, language string) Profile {
	return Profile{
		Name:        name,
		Language:    language,
		Activations: make(map[RuleKey]Activation),
	}
}

// Activation returns the activation of key, if any.
func (p *Profile) Activation(key RuleKey) (Activation, bool) {
	a, ok := p.Activations[key]
	return a, ok
}

// IsActive reports whether the rule is activated in the profile.
func (p *Profile) IsActive(key RuleKey) bool {
	_, ok := p.Activations[key]
	return ok
}

// Keys returns the activated rule keys in stable order.
func (p *Profile) Keys() []RuleKey {
	keys := make([]RuleKey, 0, len(p.Activations))
	for k := range p.Activations {
		keys = append(keys, k)
	}
	SortRuleKeys(keys)
	return keys
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	out := NewProfile(p.Name, p.Language)
	for k, a := range p.Activations {
		out.Activations[k] = a.Clone()
	}
	return out
}

// Clone returns a deep copy.
func (a Activation) Clone() Activation {
	out := Activation{}
	if a.Severity != nil {
		sev := *a.Severity
		out.Severity = &sev
	}
	if a.Params != nil {
		out.Params = make(map[string]string, len(a.Params))
		for k, v := range a.Params {
			out.Params[k] = v
		}
	}
	return out
}

// SortRuleKeys sorts keys by repository, then rule.
func SortRuleKeys(keys []RuleKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Repository != keys[j].Repository {
			return keys[i].Repository < keys[j].Repository
		}
		return keys[i].Rule < keys[j].Rule
	})
}
