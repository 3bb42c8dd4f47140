// Package rules holds the rule registry and the YAML rule loader.
package rules

import (
	"cmp"
	"context"
	"slices"
	"sync"

	domain "github.com/oncallops/flare/pkg/types"
)

// Registry is the in-memory rule set served to the engine and the API. Reads
// return copies, so a rule snapshot taken at the start of a tick stays
// stable while the API mutates the registry.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]domain.AlertRule
}

func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]domain.AlertRule)}
}

// Rules returns a stable, id-ordered snapshot of all rules.
func (r *Registry) Rules(_ context.Context) []domain.AlertRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AlertRule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	slices.SortFunc(out, func(a, b domain.AlertRule) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Get returns the rule and whether it exists.
func (r *Registry) Get(id string) (domain.AlertRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	return rule, ok
}

// Upsert validates and stores the rule, replacing any existing rule with the
// same id. It reports whether the rule was newly created.
func (r *Registry) Upsert(rule domain.AlertRule) (bool, error) {
	if err := rule.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.rules[rule.ID]
	r.rules[rule.ID] = rule
	return !existed, nil
}

// Delete removes the rule, reporting whether it existed. Alerts already
// fired by the rule are untouched; the next tick resolves them.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rules[id]
	delete(r.rules, id)
	return ok
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Replace swaps the entire rule set, validating every rule first. Used by
// the file loader so a bad file never half-applies.
func (r *Registry) Replace(rules []domain.AlertRule) error {
	next := make(map[string]domain.AlertRule, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return err
		}
		next[rule.ID] = rule
	}

	r.mu.Lock()
	r.rules = next
	r.mu.Unlock()
	return nil
}
