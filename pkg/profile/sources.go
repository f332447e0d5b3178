package profile

import (
	"fmt"
	"os"

	"github.com/bslbridge/bslbridge/pkg/catalog"
	"github.com/bslbridge/bslbridge/pkg/engine"
	"gopkg.in/yaml.v3"
)

// FromCatalog returns one preset source per catalogue repository, in the
// order the rule sources were loaded.
func FromCatalog(c *catalog.Catalog) []PresetSource {
	var out []PresetSource
	for _, sp := range c.Presets() {
		if len(sp.Profiles) == 0 {
			continue
		}
		out = append(out, PresetSource{
			Name:       sp.Repository.Key,
			Repository: sp.Repository.Key,
			Profiles:   sp.Profiles,
		})
	}
	return out
}

type presetFile struct {
	Repository string               `yaml:"repository"`
	Profiles   []engine.ProfileInfo `yaml:"profiles"`
}

// LoadPresetFile reads host-defined presets from a YAML or JSON file. Rules
// without a repository fall back to the file's repository, then to
// defaultRepo.
func LoadPresetFile(path, defaultRepo string) (PresetSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PresetSource{}, fmt.Errorf("read preset file: %w", err)
	}
	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return PresetSource{}, fmt.Errorf("decode preset file %s: %w", path, err)
	}
	repo := pf.Repository
	if repo == "" {
		repo = defaultRepo
	}
	for _, p := range pf.Profiles {
		if p.Name == "" {
			return PresetSource{}, fmt.Errorf("preset file %s: profile without a name", path)
		}
	}
	return PresetSource{Name: path, Repository: repo, Profiles: pf.Profiles}, nil
}
