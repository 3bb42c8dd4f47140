package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	domain "github.com/oncallops/flare/pkg/types"
)

// RuleFile is the on-disk rule document shape.
type RuleFile struct {
	Rules []domain.AlertRule `yaml:"rules"`
}

// LoadFile parses one YAML rule file. Unknown fields are rejected so a typo
// in a rule (say, "treshold") fails loudly instead of silently never firing.
func LoadFile(path string) ([]domain.AlertRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rule file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var doc RuleFile
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	for i := range doc.Rules {
		if err := doc.Rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return doc.Rules, nil
}

// LoadDir loads every .yaml/.yml file in dir, sorted by name, and rejects
// duplicate rule ids across files.
func LoadDir(dir string) ([]domain.AlertRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading rule directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	var all []domain.AlertRule
	seen := make(map[string]string)
	for _, name := range names {
		path := filepath.Join(dir, name)
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, r := range loaded {
			if prev, dup := seen[r.ID]; dup {
				return nil, fmt.Errorf("rule %q defined in both %s and %s", r.ID, prev, name)
			}
			seen[r.ID] = name
		}
		all = append(all, loaded...)
	}
	return all, nil
}
