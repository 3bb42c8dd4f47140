// Package domain defines the core business types for the flare alert engine.
package domain

import (
	"time"
)

// Severity orders alert importance from informational to critical.
type Severity string

// Severity constants, ordered.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the numeric ordering of the severity (info=0 .. critical=3).
// Unknown severities rank below info.
func (s Severity) Rank() int {
	r, ok := severityRank[s]
	if !ok {
		return -1
	}
	return r
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// Status is the lifecycle state of an alert instance.
type Status string

// Lifecycle states. Resolved is terminal; the rest are "active" — at most
// one active alert exists per fingerprint.
const (
	StatusPending      Status = "pending"
	StatusFiring       Status = "firing"
	StatusAcknowledged Status = "acknowledged"
	StatusSnoozed      Status = "snoozed"
	StatusResolved     Status = "resolved"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusResolved
}

// Active reports whether an alert in this status still occupies its
// fingerprint slot.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusFiring, StatusAcknowledged, StatusSnoozed:
		return true
	default:
		return false
	}
}

// Snapshot is one evaluation tick's worth of metric values, keyed by metric
// name. Values are numbers, booleans, strings, or string sets ([]string).
type Snapshot map[string]any

// Alert is an instance of a rule having matched.
type Alert struct {
	ID          string `json:"id"          db:"id"`
	RuleID      string `json:"rule_id"     db:"rule_id"`
	Fingerprint string `json:"fingerprint" db:"fingerprint"`

	Severity Severity `json:"severity" db:"severity"`
	Status   Status   `json:"status"   db:"status"`
	Message  string   `json:"message"  db:"message"`

	// Metadata holds the metric values that triggered the match. Labels are
	// user-editable and participate in suppression matching.
	Metadata map[string]any    `json:"metadata" db:"metadata"`
	Labels   map[string]string `json:"labels"   db:"labels"`

	TriggeredAt    time.Time  `json:"triggered_at"              db:"triggered_at"`
	LastSeenAt     time.Time  `json:"last_seen_at"              db:"last_seen_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	SnoozedUntil   *time.Time `json:"snoozed_until,omitempty"   db:"snoozed_until"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"     db:"resolved_at"`
}

// SnoozeExpired reports whether the alert is snoozed with an elapsed window.
func (a *Alert) SnoozeExpired(now time.Time) bool {
	return a.Status == StatusSnoozed &&
		a.SnoozedUntil != nil &&
		!now.Before(*a.SnoozedUntil)
}

// EscalationLevel is one tier of an escalation policy: deliver to Channels
// once Delay has elapsed since the alert first fired.
type EscalationLevel struct {
	Delay    time.Duration `json:"delay"    yaml:"delay"`
	Channels []string      `json:"channels" yaml:"channels"`
}

// EscalationPolicy is an ordered list of escalation levels. Level 0 is
// implicit: the rule's own channels at delay zero.
type EscalationPolicy struct {
	Levels []EscalationLevel `json:"levels" yaml:"levels"`
}

// SuppressionRule blocks delivery of alerts whose Field label matches
// Pattern, within a sliding window of Duration. Suppression applies across
// all rules, independent of fingerprint.
type SuppressionRule struct {
	Pattern  string        `json:"pattern"  yaml:"pattern"`
	Field    string        `json:"field"    yaml:"field"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// IntentReason classifies why a delivery intent was emitted.
type IntentReason string

// Intent reasons.
const (
	ReasonInitial    IntentReason = "initial"
	ReasonEscalation IntentReason = "escalation"
	ReasonResolution IntentReason = "resolution"
)

// DeliveryIntent is the finalized payload handed to the external dispatcher.
// The engine never retries transport failures; it only re-emits intents when
// escalation or dedup logic calls for it.
type DeliveryIntent struct {
	AlertID     string       `json:"alert_id"`
	Fingerprint string       `json:"fingerprint"`
	Severity    Severity     `json:"severity"`
	Channels    []string     `json:"channels"`
	Message     string       `json:"message"`
	Reason      IntentReason `json:"reason"`
	Level       int          `json:"level,omitempty"`
}

// AlertStats aggregates inbox analytics for the stats endpoint.
type AlertStats struct {
	Total           int           `json:"total"`
	ByStatus        map[Status]int `json:"by_status"`
	MeanTimeToAck   time.Duration `json:"mean_time_to_ack"`
	AcknowledgedCnt int           `json:"acknowledged_count"`
}
