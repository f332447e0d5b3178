package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is shared by every decoder in the package.
var validate = validator.New()

// RulesDump is the on-disk form of engine rule metadata. JSON documents are
// accepted as well since they are valid YAML.
type RulesDump struct {
	Repository Repository    `json:"repository" yaml:"repository"`
	Rules      []RuleInfo    `json:"rules" yaml:"rules" validate:"dive"`
	Profiles   []ProfileInfo `json:"profiles,omitempty" yaml:"profiles,omitempty" validate:"dive"`
}

// StaticSource is a RuleSource backed by data loaded up front.
type StaticSource struct {
	repo     Repository
	rules    []RuleInfo
	profiles []ProfileInfo
}

// NewStaticSource creates a source from in-memory metadata.
func NewStaticSource(repo Repository, rules []RuleInfo, profiles []ProfileInfo) *StaticSource {
	return &StaticSource{repo: repo, rules: rules, profiles: profiles}
}

// LoadRulesFile reads and validates a rules dump.
func LoadRulesFile(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRulesDump(data)
}

// ParseRulesDump decodes and validates a rules dump.
func ParseRulesDump(data []byte) (*StaticSource, error) {
	var dump RulesDump
	if err := yaml.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("decode rules dump: %w", err)
	}
	if err := validate.Struct(&dump); err != nil {
		return nil, fmt.Errorf("invalid rules dump: %w", err)
	}
	return NewStaticSource(dump.Repository, dump.Rules, dump.Profiles), nil
}

// Repository implements RuleSource.
func (s *StaticSource) Repository() Repository { return s.repo }

// ListRules implements RuleSource.
func (s *StaticSource) ListRules(ctx context.Context) ([]RuleInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.rules, nil
}

// ListProfiles implements RuleSource.
func (s *StaticSource) ListProfiles(ctx context.Context) ([]ProfileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.profiles, nil
}
