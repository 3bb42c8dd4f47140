package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/oncallops/flare/pkg/types"
)

// SuppressionManager is a pattern-based, time-windowed gate that blocks
// delivery (but not detection) of matching alert candidates. Each matching
// candidate re-arms the window, so a steady stream of matches stays
// suppressed until the stream pauses for longer than the rule's duration.
type SuppressionManager struct {
	log   *slog.Logger
	rules []compiledSuppression

	mu       sync.Mutex
	lastFire map[int]time.Time // rule index -> last pattern match

	suppressed atomic.Uint64
}

type compiledSuppression struct {
	rule domain.SuppressionRule
	re   *regexp.Regexp
}

// NewSuppressionManager compiles the suppression rule patterns. A rule with
// an invalid regex is a configuration error, not a runtime one.
func NewSuppressionManager(
	rules []domain.SuppressionRule,
	log *slog.Logger,
) (*SuppressionManager, error) {
	m := &SuppressionManager{
		log:      log,
		lastFire: make(map[int]time.Time),
	}
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("suppression pattern %q: %w", r.Pattern, err)
		}
		if r.Duration <= 0 {
			return nil, fmt.Errorf("suppression pattern %q: non-positive duration", r.Pattern)
		}
		m.rules = append(m.rules, compiledSuppression{rule: r, re: re})
	}
	return m, nil
}

// ShouldSuppress tests the candidate against every suppression rule. A rule
// matches when its pattern matches the candidate's field value — taken from
// labels, or synthesized from metadata when the label is absent. Every match
// records now as the rule's last-fire time; the candidate is suppressed when
// the previous fire was less than the rule's duration ago.
func (m *SuppressionManager) ShouldSuppress(candidate *domain.Alert, now time.Time) bool {
	suppress := false

	for i := range m.rules {
		cs := &m.rules[i]

		val, ok := fieldValue(candidate, cs.rule.Field)
		if !ok || !cs.re.MatchString(val) {
			continue
		}

		m.mu.Lock()
		last, fired := m.lastFire[i]
		m.lastFire[i] = now
		m.mu.Unlock()

		if fired && now.Sub(last) < cs.rule.Duration {
			suppress = true
			m.log.Debug("candidate suppressed",
				"fingerprint", candidate.Fingerprint,
				"field", cs.rule.Field,
				"pattern", cs.rule.Pattern,
			)
		}
	}

	if suppress {
		m.suppressed.Add(1)
	}
	return suppress
}

// SuppressedCount returns the number of candidates vetoed so far. Suppressed
// candidates are recorded for analytics only; they never reach the store.
func (m *SuppressionManager) SuppressedCount() uint64 {
	return m.suppressed.Load()
}

// fieldValue resolves a suppression field against the candidate: labels
// first, then a value synthesized from the triggering metadata.
func fieldValue(candidate *domain.Alert, field string) (string, bool) {
	if v, ok := candidate.Labels[field]; ok {
		return v, true
	}
	if v, ok := candidate.Metadata[field]; ok {
		return domain.FormatValue(v), true
	}
	return "", false
}
