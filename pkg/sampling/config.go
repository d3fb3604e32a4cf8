// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// AnoField names an anonymization field attached to a table in the
// shared sampling/anonymize YAML config, grounded on
// original_source/padmy/config.py's AnoFields.
type AnoField struct {
	Column    string            `json:"column"`
	Type      string            `json:"type"`
	ExtraArgs map[string]string `json:"extraArgs,omitempty"`
}

// TableConfig is a per-table override: sample percentage, ignore flag,
// and the anonymization fields applied to it.
type TableConfig struct {
	Schema string     `json:"schema"`
	Table  string     `json:"table"`
	Sample *float64   `json:"sample,omitempty"`
	Fields []AnoField `json:"fields,omitempty"`
	Ignore bool       `json:"ignore,omitempty"`
}

// FullName is schema.table, matching schema.Table.FullName.
func (t TableConfig) FullName() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Table)
}

// SchemaConfig is a per-schema sample percentage override.
type SchemaConfig struct {
	Schema string   `json:"schema"`
	Sample *float64 `json:"sample,omitempty"`
}

// Config is the sampling/anonymize configuration: a global default
// sample percentage plus per-schema and per-table overrides, loaded
// from a YAML file (§4.D.1, §4.E).
type Config struct {
	Sample  *float64       `json:"sample,omitempty"`
	Schemas []SchemaConfig `json:"schemas,omitempty"`
	Tables  []TableConfig  `json:"tables,omitempty"`
}

// LoadConfig reads and validates a sampling/anonymize YAML config file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sampling config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing sampling config %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// NewGlobalConfig builds a Config from a flat global percentage and a
// list of schema names, the shape produced by CLI flags rather than a
// config file.
func NewGlobalConfig(sample float64, schemas []string) *Config {
	cfg := &Config{Sample: &sample}
	for _, s := range schemas {
		cfg.Schemas = append(cfg.Schemas, SchemaConfig{Schema: s})
	}
	return cfg
}

func (c *Config) validate() error {
	if err := checkPercent(c.Sample); err != nil {
		return err
	}
	for _, s := range c.Schemas {
		if err := checkPercent(s.Sample); err != nil {
			return fmt.Errorf("schema %q: %w", s.Schema, err)
		}
	}
	for _, t := range c.Tables {
		if err := checkPercent(t.Sample); err != nil {
			return fmt.Errorf("table %q: %w", t.FullName(), err)
		}
	}
	return nil
}

func checkPercent(p *float64) error {
	if p == nil {
		return nil
	}
	if *p < 0 || *p > 100 {
		return fmt.Errorf("sample must be between 0 and 100, got %v", *p)
	}
	return nil
}

func (c *Config) tableConfig(fullName string) (TableConfig, bool) {
	for _, t := range c.Tables {
		if t.FullName() == fullName {
			return t, true
		}
	}
	return TableConfig{}, false
}

func (c *Config) schemaSample(schema string) *float64 {
	for _, s := range c.Schemas {
		if s.Schema == schema {
			return s.Sample
		}
	}
	return nil
}

// ResolveSample resolves the sample percentage for a table through the
// chain per-table -> per-schema -> global (§4.D.1). ok is false when no
// level in the chain provides a value.
func (c *Config) ResolveSample(schema, table string) (percent float64, ok bool) {
	fullName := fmt.Sprintf("%s.%s", schema, table)

	if tc, found := c.tableConfig(fullName); found && tc.Sample != nil {
		return *tc.Sample, true
	}
	if s := c.schemaSample(schema); s != nil {
		return *s, true
	}
	if c.Sample != nil {
		return *c.Sample, true
	}
	return 0, false
}

// IsIgnored reports whether the table is marked ignore: true.
func (c *Config) IsIgnored(schema, table string) bool {
	tc, found := c.tableConfig(fmt.Sprintf("%s.%s", schema, table))
	return found && tc.Ignore
}

// AnoFields returns the anonymization fields configured for a table, if
// any.
func (c *Config) AnoFields(schema, table string) []AnoField {
	tc, found := c.tableConfig(fmt.Sprintf("%s.%s", schema, table))
	if !found {
		return nil
	}
	return tc.Fields
}
