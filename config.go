// config.go: tool configuration for the ksc CLI and for embeddings that
// expose knobs: annotator markers, dialect builtins, recognized script
// extensions. Plain YAML, searched upward from the working tree like most
// per-project dotfiles.
package kernelscript

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-project config file searched for by FindConfig.
const ConfigFileName = ".ksc.yaml"

// Config carries the tunable surface of the frontend tools.
//
// Fields:
//   - Markers: annotator marker substrings (see ClassMarkers).
//   - Builtins: dialect builtin names; the report excludes these from its
//     "external" classification.
//   - Extensions: file extensions recognized as script sources.
type Config struct {
	Markers    []string `yaml:"markers"`
	Builtins   []string `yaml:"builtins"`
	Extensions []string `yaml:"extensions"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Markers: append([]string(nil), ClassMarkers...),
		Builtins: []string{
			"abs", "bool", "float", "int", "len", "max", "min",
			"print", "range", "str",
		},
		Extensions: []string{".ks"},
	}
}

// LoadConfig reads a YAML config file. Keys absent from the file keep their
// default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// FindConfig searches dir and its parents for ConfigFileName. It returns
// the empty path (and nil error) when no config file exists.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, "resolve config search root")
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// ResolveConfig loads the explicit path when given, otherwise searches
// upward from startDir; when nothing is found the defaults apply.
func ResolveConfig(path, startDir string) (*Config, error) {
	if path != "" {
		return LoadConfig(path)
	}
	found, err := FindConfig(startDir)
	if err != nil {
		return nil, err
	}
	if found == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(found)
}

// IsScriptFile reports whether path carries one of the configured script
// extensions.
func (c *Config) IsScriptFile(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range c.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
