package config

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// DefaultRulesPath is read when no rules file is given
const DefaultRulesPath = "cascade.yaml"

// Rules holds the static cascade configuration for one schema
type Rules struct {
	// Trouble lists relation names known to close a cycle. They are
	// unlinked (set to NULL) instead of cascaded.
	Trouble []string `yaml:"trouble"`
	// Unloadables lists the tables a cascade may start from.
	Unloadables []string `yaml:"unloadables"`
}

// LoadRules reads rules from a YAML file
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules %s: %w", path, err)
	}

	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules %s: %w", path, err)
	}

	return &rules, nil
}

// Validate rejects empty or duplicated names
func (r *Rules) Validate() error {
	if len(r.Unloadables) == 0 {
		return fmt.Errorf("no unloadable tables configured")
	}
	if err := checkNames("unloadables", r.Unloadables); err != nil {
		return err
	}
	return checkNames("trouble", r.Trouble)
}

// IsUnloadable reports whether table may be the root of a cascade
func (r *Rules) IsUnloadable(table string) bool {
	return slices.Contains(r.Unloadables, table)
}

func checkNames(field string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("%s: empty name", field)
		}
		if seen[n] {
			return fmt.Errorf("%s: duplicate name %q", field, n)
		}
		seen[n] = true
	}
	return nil
}
