package store

import (
	"context"
	"hash/fnv"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/oncallops/flare/pkg/types"
)

const stripeCount = 64

// MemoryStore implements Store with in-process state. Compound operations
// are serialized per fingerprint via striped mutexes so two concurrent
// ticks can never create two active alerts for the same fingerprint.
type MemoryStore struct {
	stripes [stripeCount]sync.Mutex

	mu           sync.RWMutex
	alerts       map[string]*domain.Alert
	activeFP     map[string]string    // fingerprint -> active alert id
	lastResolved map[string]time.Time // fingerprint -> most recent resolve
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:       make(map[string]*domain.Alert),
		activeFP:     make(map[string]string),
		lastResolved: make(map[string]time.Time),
	}
}

func (s *MemoryStore) stripe(fingerprint string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	return &s.stripes[h.Sum32()%stripeCount]
}

// FindOrCreateActive returns the active alert for a.Fingerprint, or persists
// a (assigning an id if empty) when none exists.
func (s *MemoryStore) FindOrCreateActive(
	ctx context.Context,
	a *domain.Alert,
) (*domain.Alert, bool, error) {
	lock := s.stripe(a.Fingerprint)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	id, ok := s.activeFP[a.Fingerprint]
	var existing *domain.Alert
	if ok {
		existing = cloneAlert(s.alerts[id])
	}
	s.mu.RUnlock()

	if ok {
		return existing, false, nil
	}

	stored := cloneAlert(a)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.alerts[stored.ID] = stored
	s.activeFP[stored.Fingerprint] = stored.ID
	s.mu.Unlock()

	return cloneAlert(stored), true, nil
}

// GetAlert returns the alert with the given id.
func (s *MemoryStore) GetAlert(_ context.Context, id string) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAlert(a), nil
}

// ListAlerts queries alerts with optional filters, newest first.
func (s *MemoryStore) ListAlerts(
	_ context.Context,
	q *AlertQuery,
) ([]domain.Alert, int, error) {
	if q == nil {
		q = &AlertQuery{}
	}

	s.mu.RLock()
	matched := make([]*domain.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if q.Status != nil && a.Status != *q.Status {
			continue
		}
		if q.MinSeverity != nil && !a.Severity.AtLeast(*q.MinSeverity) {
			continue
		}
		if q.RuleID != nil && a.RuleID != *q.RuleID {
			continue
		}
		matched = append(matched, a)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *domain.Alert) int {
		return b.TriggeredAt.Compare(a.TriggeredAt)
	})

	total := len(matched)
	limit := ClampLimit(q.Limit)

	start := min(q.Offset, total)
	end := min(start+limit, total)

	out := make([]domain.Alert, 0, end-start)
	for _, a := range matched[start:end] {
		out = append(out, *cloneAlert(a))
	}
	return out, total, nil
}

// ListActive returns all non-terminal alerts.
func (s *MemoryStore) ListActive(_ context.Context) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Alert, 0, len(s.activeFP))
	for _, id := range s.activeFP {
		out = append(out, *cloneAlert(s.alerts[id]))
	}
	return out, nil
}

// TouchLastSeen records a repeated match of an active alert.
func (s *MemoryStore) TouchLastSeen(
	_ context.Context,
	id string,
	seen time.Time,
	metadata map[string]any,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.LastSeenAt = seen
	if metadata != nil {
		a.Metadata = maps.Clone(metadata)
	}
	return nil
}

// RecentlyResolved reports whether the fingerprint resolved at or after cutoff.
func (s *MemoryStore) RecentlyResolved(
	_ context.Context,
	fingerprint string,
	cutoff time.Time,
) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.lastResolved[fingerprint]
	return ok && !t.Before(cutoff), nil
}

// Acknowledge transitions firing -> acknowledged.
func (s *MemoryStore) Acknowledge(
	ctx context.Context,
	id, by string,
	now time.Time,
) (*domain.Alert, error) {
	return s.transition(id, "acknowledge", func(a *domain.Alert) error {
		if a.Status != domain.StatusFiring {
			return &InvalidTransitionError{AlertID: id, Current: a.Status, Command: "acknowledge"}
		}
		a.Status = domain.StatusAcknowledged
		a.AcknowledgedAt = ptrTime(now)
		a.AcknowledgedBy = by
		return nil
	})
}

// Snooze transitions firing|acknowledged -> snoozed until the given time.
func (s *MemoryStore) Snooze(
	ctx context.Context,
	id string,
	until time.Time,
	now time.Time,
) (*domain.Alert, error) {
	return s.transition(id, "snooze", func(a *domain.Alert) error {
		if a.Status != domain.StatusFiring && a.Status != domain.StatusAcknowledged {
			return &InvalidTransitionError{AlertID: id, Current: a.Status, Command: "snooze"}
		}
		a.Status = domain.StatusSnoozed
		a.SnoozedUntil = ptrTime(until)
		return nil
	})
}

// Resolve transitions any non-terminal state -> resolved and frees the
// fingerprint slot. A later match of the same fingerprint creates a brand
// new alert; history is preserved rather than reopened.
func (s *MemoryStore) Resolve(
	ctx context.Context,
	id string,
	now time.Time,
) (*domain.Alert, error) {
	return s.transition(id, "resolve", func(a *domain.Alert) error {
		if a.Status.Terminal() {
			return &InvalidTransitionError{AlertID: id, Current: a.Status, Command: "resolve"}
		}
		a.Status = domain.StatusResolved
		a.ResolvedAt = ptrTime(now)
		delete(s.activeFP, a.Fingerprint)
		s.lastResolved[a.Fingerprint] = now
		return nil
	})
}

// WakeSnoozed transitions an expired snooze back to firing.
func (s *MemoryStore) WakeSnoozed(
	ctx context.Context,
	id string,
	now time.Time,
) (*domain.Alert, error) {
	return s.transition(id, "wake", func(a *domain.Alert) error {
		if a.Status != domain.StatusSnoozed {
			return &InvalidTransitionError{AlertID: id, Current: a.Status, Command: "wake"}
		}
		a.Status = domain.StatusFiring
		a.SnoozedUntil = nil
		a.LastSeenAt = now
		return nil
	})
}

// SetLabels replaces the alert's user-editable labels.
func (s *MemoryStore) SetLabels(
	_ context.Context,
	id string,
	labels map[string]string,
) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Labels = maps.Clone(labels)
	return cloneAlert(a), nil
}

// Stats aggregates inbox analytics.
func (s *MemoryStore) Stats(_ context.Context) (*domain.AlertStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.AlertStats{
		ByStatus: make(map[domain.Status]int),
	}

	var ackSum time.Duration
	for _, a := range s.alerts {
		stats.Total++
		stats.ByStatus[a.Status]++
		if a.AcknowledgedAt != nil {
			stats.AcknowledgedCnt++
			ackSum += a.AcknowledgedAt.Sub(a.TriggeredAt)
		}
	}
	if stats.AcknowledgedCnt > 0 {
		stats.MeanTimeToAck = ackSum / time.Duration(stats.AcknowledgedCnt)
	}
	return stats, nil
}

// Migrate is a no-op for the in-memory store.
func (s *MemoryStore) Migrate(context.Context) error { return nil }

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// transition applies fn to the alert under its fingerprint stripe. fn runs
// with the map lock held and may mutate the alert and the fingerprint index.
func (s *MemoryStore) transition(
	id, command string,
	fn func(*domain.Alert) error,
) (*domain.Alert, error) {
	s.mu.RLock()
	a, ok := s.alerts[id]
	var fp string
	if ok {
		fp = a.Fingerprint
	}
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	lock := s.stripe(fp)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok = s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	return cloneAlert(a), nil
}

func cloneAlert(a *domain.Alert) *domain.Alert {
	if a == nil {
		return nil
	}
	c := *a
	c.Metadata = maps.Clone(a.Metadata)
	c.Labels = maps.Clone(a.Labels)
	return &c
}

func ptrTime(t time.Time) *time.Time { return &t }
