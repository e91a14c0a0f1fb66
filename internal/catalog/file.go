package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// fileCatalog is the on-disk layout shared by the YAML and TOML loaders.
type fileCatalog struct {
	DefaultModel string  `yaml:"default_model" toml:"default_model"`
	Models       []Model `yaml:"models" toml:"models"`
	Styles       []Style `yaml:"styles" toml:"styles"`
}

// LoadFile reads a catalog from a .yaml, .yml or .toml file. Sections left
// empty in the file keep the built-in values.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(filepath.Ext(path), data)
}

// Parse decodes catalog data; ext selects the format.
func Parse(ext string, data []byte) (*Catalog, error) {
	var fc fileCatalog
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML catalog: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse TOML catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", ext)
	}

	base := Default()
	if len(fc.Models) == 0 {
		fc.Models = base.Models()
		if fc.DefaultModel == "" {
			fc.DefaultModel = base.DefaultModel()
		}
	}
	if len(fc.Styles) == 0 {
		fc.Styles = base.Styles()
	}
	for _, m := range fc.Models {
		if m.ID == "" {
			return nil, fmt.Errorf("catalog model without id")
		}
	}
	for _, s := range fc.Styles {
		if s.ID == "" || s.Suffix == "" {
			return nil, fmt.Errorf("catalog style %q needs an id and a suffix", s.ID)
		}
	}

	c := New(fc.DefaultModel, fc.Models, fc.Styles)
	if _, ok := c.Model(c.DefaultModel()); !ok {
		return nil, fmt.Errorf("default model %q is not in the catalog", c.DefaultModel())
	}
	return c, nil
}
