// Package config loads and queries the run configuration.
//
// The configuration is a nested YAML document. Values are addressed with
// dotted keys ("site.slurm.walltime") and carry default/required semantics:
// a missing required key with no default is a configuration error, reported
// before any job is submitted.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is a nested configuration tree.
type Config struct {
	values map[string]any
}

// New wraps an already-parsed configuration map.
func New(values map[string]any) *Config {
	if values == nil {
		values = make(map[string]any)
	}
	return &Config{values: values}
}

// Load reads a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return New(values), nil
}

// Raw returns the underlying map. Used for persisting the configuration
// alongside the workflow snapshot.
func (c *Config) Raw() map[string]any {
	return c.values
}

// Search resolves a dotted key and reports whether it was present.
func (c *Config) Search(key string) (any, bool) {
	var cur any = c.values
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Sub returns the sub-configuration rooted at the dotted key, or nil if the
// key is absent or not a mapping.
func (c *Config) Sub(key string) *Config {
	v, ok := c.Search(key)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return New(m)
}

// Value returns the typed value for a dotted key. String values have ${VAR}
// environment references expanded. Numeric YAML values coerce between int
// and float64 as needed.
func Value[T any](c *Config, key string) (T, bool, error) {
	var zero T
	raw, ok := c.Search(key)
	if !ok {
		return zero, false, nil
	}
	v, err := coerce[T](raw)
	if err != nil {
		return zero, true, fmt.Errorf("configuration value %s=%v: %w", key, raw, err)
	}
	return v, true, nil
}

// Default returns the value for key, or def when the key is absent. A present
// value of the wrong type is still an error.
func Default[T any](c *Config, key string, def T) (T, error) {
	v, ok, err := Value[T](c, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// Required returns the value for key, failing with a descriptive error when
// the key is absent.
func Required[T any](c *Config, key string) (T, error) {
	v, ok, err := Value[T](c, key)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("no value found for required configuration key %q", key)
	}
	return v, nil
}

func coerce[T any](raw any) (T, error) {
	var zero T
	switch any(zero).(type) {
	case string:
		s, ok := raw.(string)
		if !ok {
			return zero, fmt.Errorf("not a string")
		}
		return any(os.ExpandEnv(s)).(T), nil
	case int:
		switch n := raw.(type) {
		case int:
			return any(n).(T), nil
		case int64:
			return any(int(n)).(T), nil
		case float64:
			if n == float64(int(n)) {
				return any(int(n)).(T), nil
			}
			return zero, fmt.Errorf("not an integer")
		}
		return zero, fmt.Errorf("not an integer")
	case float64:
		switch n := raw.(type) {
		case float64:
			return any(n).(T), nil
		case int:
			return any(float64(n)).(T), nil
		case int64:
			return any(float64(n)).(T), nil
		}
		return zero, fmt.Errorf("not a number")
	case bool:
		b, ok := raw.(bool)
		if !ok {
			return zero, fmt.Errorf("not a boolean")
		}
		return any(b).(T), nil
	default:
		v, ok := raw.(T)
		if !ok {
			return zero, fmt.Errorf("unexpected type %T", raw)
		}
		return v, nil
	}
}

// WorkflowName constructs the run's display name by joining the project and
// campaign entries; the operator entry stands in when no campaign is set.
func WorkflowName(c *Config) (string, error) {
	project, err := Default(c, "project", "pipeline")
	if err != nil {
		return "", err
	}
	campaign, ok, err := Value[string](c, "campaign")
	if err != nil {
		return "", err
	}
	if !ok {
		campaign, err = Required[string](c, "operator")
		if err != nil {
			return "", err
		}
	}
	return project + "." + campaign, nil
}

// SnapshotFilename returns the fixed location of the persisted workflow
// snapshot inside a run's output prefix.
func SnapshotFilename(outPrefix string) string {
	return filepath.Join(outPrefix, "gridflow_workflow.json")
}
