package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/tagsync/pkg/tagsync/ingest"
	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

const defaultStorePath = "tagsync.db"

// Config is the tagsync configuration file
type Config struct {
	Tagger     Tagger     `yaml:"tagger"`
	Annotation Annotation `yaml:"annotation"`
	Types      []TypeDef  `yaml:"types"`
	Tokenizer  Tokenizer  `yaml:"tokenizer"`
	Store      Store      `yaml:"store"`
	Workers    int        `yaml:"workers"`
}

// Tagger configures the external tagger process and its model
type Tagger struct {
	Home              string   `yaml:"home"`
	Parameter         string   `yaml:"parameter"`
	ParameterOverride string   `yaml:"parameterOverride"`
	Arguments         []string `yaml:"arguments"`
	Lowercase         *bool    `yaml:"lowercase"`
	Padding           *int     `yaml:"padding"`
}

// LowercaseInput reports whether tokens are lower-cased before tagging (default true).
func (t Tagger) LowercaseInput() bool {
	return t.Lowercase == nil || *t.Lowercase
}

// Annotation names the token type and where results are written
type Annotation struct {
	Type         string `yaml:"type"`
	TagFeature   string `yaml:"tagFeature"`
	LemmaFeature string `yaml:"lemmaFeature"`
	Update       bool   `yaml:"update"`
}

// TypeDef declares one annotation type
type TypeDef struct {
	Name     string   `yaml:"name"`
	Features []string `yaml:"features"`
}

// Tokenizer selects how input text is split into token annotations
type Tokenizer struct {
	Mode string `yaml:"mode"`
}

// Store selects where tagged documents are persisted
type Store struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Load reads a YAML config file, fills defaults, resolves relative paths
// against the file's directory, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &internalerr.ConfigurationError{Field: "config", Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and applies defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &internalerr.ConfigurationError{Field: "config", Err: err}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Tokenizer.Mode == "" {
		c.Tokenizer.Mode = string(ingest.ModeWhitespace)
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
}

func (c *Config) resolvePaths(dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Tagger.Home = resolve(c.Tagger.Home)
	c.Tagger.Parameter = resolve(c.Tagger.Parameter)
	c.Tagger.ParameterOverride = resolve(c.Tagger.ParameterOverride)
	if c.Store.Driver == DriverSQLite {
		c.Store.Path = resolve(c.Store.Path)
	}
}

// Validate checks required fields and enumerations.
func (c *Config) Validate() error {
	required := []struct {
		field, value string
	}{
		{"tagger.home", c.Tagger.Home},
		{"tagger.parameter", c.Tagger.Parameter},
		{"annotation.type", c.Annotation.Type},
		{"annotation.tagFeature", c.Annotation.TagFeature},
		{"annotation.lemmaFeature", c.Annotation.LemmaFeature},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return internalerr.Configf(r.field, "value is required")
		}
	}

	if c.Tagger.Padding != nil && *c.Tagger.Padding < 0 {
		return internalerr.Configf("tagger.padding", "must not be negative")
	}
	if _, err := ingest.ParseMode(c.Tokenizer.Mode); err != nil {
		return err
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return internalerr.Configf("store.path", "sqlite store needs a path")
		}
	case DriverMemory:
	default:
		return internalerr.Configf("store.driver", "unknown driver %q", c.Store.Driver)
	}
	if c.Workers < 1 {
		return internalerr.Configf("workers", "must be at least 1, got %d", c.Workers)
	}

	if len(c.Types) == 0 {
		return internalerr.Configf("types", "at least one type is required")
	}
	seen := make(map[string]bool, len(c.Types))
	for _, td := range c.Types {
		if strings.TrimSpace(td.Name) == "" {
			return internalerr.Configf("types", "type without a name")
		}
		if seen[td.Name] {
			return internalerr.Configf("types", "type %q declared twice", td.Name)
		}
		seen[td.Name] = true
	}
	return nil
}
