package engine

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/oncallops/flare/internal/metrics"
	"github.com/oncallops/flare/internal/store"
	domain "github.com/oncallops/flare/pkg/types"
)

// EscalationScheduler arms one timer per escalation level for each newly
// fired alert. A timer that expires checks the alert's current status before
// emitting anything: only an alert still firing escalates. Acknowledging,
// snoozing, or resolving cancels the remaining timers, and the status check
// at fire time closes the race between cancellation and an already-expired
// timer.
type EscalationScheduler struct {
	store store.Store
	emit  func(domain.DeliveryIntent)
	log   *slog.Logger

	// afterFunc is swapped out in tests to fire timers synchronously.
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu     sync.Mutex
	timers map[string][]*time.Timer
	closed bool
}

func NewEscalationScheduler(
	st store.Store,
	emit func(domain.DeliveryIntent),
	log *slog.Logger,
) *EscalationScheduler {
	return &EscalationScheduler{
		store:     st,
		emit:      emit,
		log:       log,
		afterFunc: time.AfterFunc,
		timers:    make(map[string][]*time.Timer),
	}
}

// Arm schedules every escalation level beyond the initial delivery. Delays
// are measured from the alert's triggered_at, so a late Arm still fires the
// remaining levels at the right wall-clock times.
func (s *EscalationScheduler) Arm(a *domain.Alert, rule *domain.AlertRule, now time.Time) {
	s.arm(a, rule, now, false)
}

// Rearm restores the escalation ladder for an alert returning to firing
// after a snooze. Only levels whose fire time is still ahead are scheduled:
// a level already past either fired before the snooze or was silenced by
// it, and re-emitting it would duplicate a page.
func (s *EscalationScheduler) Rearm(a *domain.Alert, rule *domain.AlertRule, now time.Time) {
	s.arm(a, rule, now, true)
}

func (s *EscalationScheduler) arm(
	a *domain.Alert,
	rule *domain.AlertRule,
	now time.Time,
	skipElapsed bool,
) {
	levels := rule.Levels()
	if len(levels) < 2 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for i := 1; i < len(levels); i++ {
		delay := a.TriggeredAt.Add(levels[i].Delay).Sub(now)
		if delay < 0 {
			if skipElapsed {
				continue
			}
			delay = 0
		}

		level := i
		channels := levels[i].Channels
		alertID, fingerprint := a.ID, a.Fingerprint
		severity, message := a.Severity, a.Message

		t := s.afterFunc(delay, func() {
			s.fire(alertID, fingerprint, severity, message, level, channels)
		})
		s.timers[alertID] = append(s.timers[alertID], t)
	}
}

// fire runs on timer expiry. The fresh status read is the authority: a timer
// that lost the race with ack/snooze/resolve emits nothing.
func (s *EscalationScheduler) fire(
	alertID, fingerprint string,
	severity domain.Severity,
	message string,
	level int,
	channels []string,
) {
	a, err := s.store.GetAlert(context.Background(), alertID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Error("escalation status check failed", "alert_id", alertID, "error", err)
		}
		return
	}
	if a.Status != domain.StatusFiring {
		s.log.Debug("escalation skipped",
			"alert_id", alertID, "level", level, "status", a.Status)
		return
	}

	metrics.AlertsEscalatedTotal.WithLabelValues(strconv.Itoa(level)).Inc()
	s.log.Info("alert escalated",
		"alert_id", alertID, "fingerprint", fingerprint, "level", level)

	s.emit(domain.DeliveryIntent{
		AlertID:     alertID,
		Fingerprint: fingerprint,
		Severity:    severity,
		Channels:    channels,
		Message:     message,
		Reason:      domain.ReasonEscalation,
		Level:       level,
	})
}

// Cancel stops every pending escalation timer for the alert. Timers that
// already fired are beyond recall; their status check makes that harmless.
func (s *EscalationScheduler) Cancel(alertID string) {
	s.mu.Lock()
	timers := s.timers[alertID]
	delete(s.timers, alertID)
	s.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}

// Close cancels all pending timers. Used on engine shutdown.
func (s *EscalationScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	all := s.timers
	s.timers = make(map[string][]*time.Timer)
	s.mu.Unlock()

	for _, timers := range all {
		for _, t := range timers {
			t.Stop()
		}
	}
}
