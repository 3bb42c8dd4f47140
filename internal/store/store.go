// Package store defines the alert inbox abstraction for flare. The engine
// and API depend on the Store interface, never on concrete implementations;
// the in-memory store backs tests and single-node deployments, the Postgres
// store adds durable history.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/oncallops/flare/pkg/types"
)

// ErrNotFound is returned when no alert matches the requested id or
// fingerprint.
var ErrNotFound = errors.New("alert not found")

// InvalidTransitionError reports a lifecycle command applied in the wrong
// state. It is surfaced to the caller, never silently ignored.
type InvalidTransitionError struct {
	AlertID string
	Current domain.Status
	Command string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf(
		"alert %s: cannot %s from status %q", e.AlertID, e.Command, e.Current,
	)
}

// AlertQuery defines optional filters for inbox queries.
type AlertQuery struct {
	Status      *domain.Status
	MinSeverity *domain.Severity
	RuleID      *string
	Limit       int // default 50, max 500
	Offset      int
}

// Store defines all alert inbox operations.
//
// Writes are serialized per fingerprint: two concurrent ticks can never
// create two active alerts for the same fingerprint.
type Store interface {
	// FindOrCreateActive returns the active alert for a.Fingerprint if one
	// exists; otherwise it persists a and returns it with created=true.
	// The lookup and insert are atomic with respect to the fingerprint.
	FindOrCreateActive(ctx context.Context, a *domain.Alert) (alert *domain.Alert, created bool, err error)

	GetAlert(ctx context.Context, id string) (*domain.Alert, error)
	ListAlerts(ctx context.Context, q *AlertQuery) ([]domain.Alert, int, error)
	ListActive(ctx context.Context) ([]domain.Alert, error)

	// TouchLastSeen records a repeated match of an already-active alert.
	TouchLastSeen(ctx context.Context, id string, seen time.Time, metadata map[string]any) error

	// RecentlyResolved reports whether an alert with the given fingerprint
	// resolved at or after the cutoff. Used for per-rule re-fire cooldowns.
	RecentlyResolved(ctx context.Context, fingerprint string, cutoff time.Time) (bool, error)

	// Lifecycle commands. Each validates the current state and returns an
	// *InvalidTransitionError on a disallowed transition.
	Acknowledge(ctx context.Context, id, by string, now time.Time) (*domain.Alert, error)
	Snooze(ctx context.Context, id string, until time.Time, now time.Time) (*domain.Alert, error)
	Resolve(ctx context.Context, id string, now time.Time) (*domain.Alert, error)
	// WakeSnoozed transitions an expired snooze back to firing.
	WakeSnoozed(ctx context.Context, id string, now time.Time) (*domain.Alert, error)

	SetLabels(ctx context.Context, id string, labels map[string]string) (*domain.Alert, error)

	Stats(ctx context.Context) (*domain.AlertStats, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ClampLimit normalizes a query limit into [1, maxLimit]. Both backends
// apply it, so callers reporting a page size use it to echo the limit that
// was actually in effect.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}
