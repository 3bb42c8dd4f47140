package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// AlertRule is a saved rule definition. Rules are immutable during an
// evaluation tick; the engine only ever reads them.
type AlertRule struct {
	ID      string `json:"id"             yaml:"id"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Enabled bool   `json:"enabled"        yaml:"enabled"`

	Condition Condition         `json:"condition"       yaml:"condition"`
	Where     map[string]string `json:"where,omitempty" yaml:"where,omitempty"`

	Severity        Severity `json:"severity"         yaml:"severity"`
	MessageTemplate string   `json:"message_template" yaml:"message_template"`
	Channels        []string `json:"channels"         yaml:"channels"`

	// SuppressionDuration is a re-fire cooldown: a fresh match whose previous
	// alert for the same fingerprint resolved less than this long ago still
	// creates an alert but has its initial delivery suppressed. Zero disables.
	SuppressionDuration time.Duration `json:"suppression_duration,omitempty" yaml:"suppression_duration,omitempty"`

	Escalation *EscalationPolicy `json:"escalation,omitempty" yaml:"escalation,omitempty"`
	Tags       []string          `json:"tags,omitempty"       yaml:"tags,omitempty"`
}

// Validate checks rule invariants. Called at load/create time, never during
// evaluation.
func (r *AlertRule) Validate() error {
	var errs []error

	if r.ID == "" {
		errs = append(errs, errors.New("rule id is required"))
	}
	if !r.Severity.Valid() {
		errs = append(errs, fmt.Errorf("unknown severity %q", r.Severity))
	}
	if err := r.Condition.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("rule %s: %w", r.ID, err))
	}
	if r.SuppressionDuration < 0 {
		errs = append(errs, fmt.Errorf("rule %s: negative suppression_duration", r.ID))
	}
	if r.Escalation != nil {
		prev := time.Duration(-1)
		for i, lvl := range r.Escalation.Levels {
			if lvl.Delay < 0 {
				errs = append(errs, fmt.Errorf("rule %s: escalation level %d has negative delay", r.ID, i))
			}
			if lvl.Delay <= prev {
				errs = append(errs, fmt.Errorf("rule %s: escalation delays must strictly increase", r.ID))
			}
			prev = lvl.Delay
		}
	}

	return errors.Join(errs...)
}

// MatchWhere applies the rule's exact-match prefilters against the snapshot.
// A where key absent from the snapshot fails the filter.
func (r *AlertRule) MatchWhere(snap Snapshot) bool {
	for key, want := range r.Where {
		val, ok := snap[key]
		if !ok {
			return false
		}
		if FormatValue(val) != want {
			return false
		}
	}
	return true
}

// LeafMetadata collects the snapshot values of every metric the rule's
// condition tree references. This becomes Alert.Metadata on a match.
func (r *AlertRule) LeafMetadata(snap Snapshot) map[string]any {
	meta := make(map[string]any)
	for _, m := range r.Condition.Leaves(nil) {
		if v, ok := snap[m]; ok {
			meta[m] = v
		}
	}
	return meta
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// RenderMessage expands {metric} placeholders in the rule's message template
// with snapshot values. Placeholders naming absent metrics are left intact.
func (r *AlertRule) RenderMessage(snap Snapshot) string {
	return placeholderRe.ReplaceAllStringFunc(r.MessageTemplate, func(ph string) string {
		name := ph[1 : len(ph)-1]
		v, ok := snap[name]
		if !ok {
			return ph
		}
		return FormatValue(v)
	})
}

// Levels returns the rule's full escalation ladder: the implicit level 0
// (the rule's own channels at delay zero) followed by any configured policy
// levels.
func (r *AlertRule) Levels() []EscalationLevel {
	levels := make([]EscalationLevel, 0, 4)
	levels = append(levels, EscalationLevel{Delay: 0, Channels: r.Channels})
	if r.Escalation != nil {
		levels = append(levels, r.Escalation.Levels...)
	}
	return levels
}
