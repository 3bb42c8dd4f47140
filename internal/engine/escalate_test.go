package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncallops/flare/internal/store"
	"github.com/oncallops/flare/pkg/logger"
	domain "github.com/oncallops/flare/pkg/types"
)

// fakeTimers captures armed callbacks so tests fire them deterministically.
type fakeTimers struct {
	mu    sync.Mutex
	armed []armedTimer
}

type armedTimer struct {
	delay time.Duration
	fn    func()
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) *time.Timer {
	f.mu.Lock()
	f.armed = append(f.armed, armedTimer{delay: d, fn: fn})
	f.mu.Unlock()

	t := time.AfterFunc(time.Hour, func() {})
	t.Stop()
	return t
}

type intentRecorder struct {
	mu      sync.Mutex
	intents []domain.DeliveryIntent
}

func (r *intentRecorder) record(i domain.DeliveryIntent) {
	r.mu.Lock()
	r.intents = append(r.intents, i)
	r.mu.Unlock()
}

func (r *intentRecorder) all() []domain.DeliveryIntent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DeliveryIntent(nil), r.intents...)
}

func newTestScheduler(st store.Store) (*EscalationScheduler, *fakeTimers, *intentRecorder) {
	rec := &intentRecorder{}
	s := NewEscalationScheduler(st, rec.record, logger.Discard())
	ft := &fakeTimers{}
	s.afterFunc = ft.afterFunc
	return s, ft, rec
}

func seedFiring(t *testing.T, st store.Store, fp string) *domain.Alert {
	t.Helper()
	a, created, err := st.FindOrCreateActive(context.Background(), &domain.Alert{
		RuleID:      "rule-1",
		Fingerprint: fp,
		Severity:    domain.SeverityHigh,
		Status:      domain.StatusFiring,
		Message:     "disk filling",
		TriggeredAt: time.Now(),
		LastSeenAt:  time.Now(),
	})
	require.NoError(t, err)
	require.True(t, created)
	return a
}

func escalatingRule() *domain.AlertRule {
	return &domain.AlertRule{
		ID:       "rule-1",
		Enabled:  true,
		Severity: domain.SeverityHigh,
		Channels: []string{"slack-oncall"},
		Escalation: &domain.EscalationPolicy{
			Levels: []domain.EscalationLevel{
				{Delay: 5 * time.Minute, Channels: []string{"pager-primary"}},
				{Delay: 15 * time.Minute, Channels: []string{"pager-manager"}},
			},
		},
	}
}

func TestArm_NoPolicy_NoTimers(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	s, ft, _ := newTestScheduler(st)
	a := seedFiring(t, st, "fp-nopolicy")

	s.Arm(a, &domain.AlertRule{ID: "rule-1", Channels: []string{"slack"}}, a.TriggeredAt)

	assert.Empty(t, ft.armed)
	assert.Empty(t, s.timers)
}

func TestArm_SchedulesEachLevel(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	s, ft, _ := newTestScheduler(st)
	a := seedFiring(t, st, "fp-levels")

	s.Arm(a, escalatingRule(), a.TriggeredAt)

	require.Len(t, ft.armed, 2)
	assert.Equal(t, 5*time.Minute, ft.armed[0].delay)
	assert.Equal(t, 15*time.Minute, ft.armed[1].delay)
}

func TestArm_LateArmClampsDelay(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	s, ft, _ := newTestScheduler(st)
	a := seedFiring(t, st, "fp-late")

	// Arming 10 minutes after the trigger: level 1 is overdue, level 2 has
	// five minutes left.
	s.Arm(a, escalatingRule(), a.TriggeredAt.Add(10*time.Minute))

	require.Len(t, ft.armed, 2)
	assert.Equal(t, time.Duration(0), ft.armed[0].delay)
	assert.Equal(t, 5*time.Minute, ft.armed[1].delay)
}

func TestRearm_SkipsElapsedLevels(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	s, ft, _ := newTestScheduler(st)
	a := seedFiring(t, st, "fp-rearm")

	// Ten minutes in, level 1 is already behind the clock. Rearming must
	// schedule only level 2, at its remaining five minutes.
	s.Rearm(a, escalatingRule(), a.TriggeredAt.Add(10*time.Minute))

	require.Len(t, ft.armed, 1)
	assert.Equal(t, 5*time.Minute, ft.armed[0].delay)
	require.Contains(t, s.timers, a.ID)
	assert.Len(t, s.timers[a.ID], 1)
}

func TestRearm_AllLevelsElapsed_NoTimers(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	s, ft, _ := newTestScheduler(st)
	a := seedFiring(t, st, "fp-rearm-late")

	s.Rearm(a, escalatingRule(), a.TriggeredAt.Add(time.Hour))

	assert.Empty(t, ft.armed)
	assert.Empty(t, s.timers)
}

func TestEscalation_FiresWhileStillFiring(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	s, ft, rec := newTestScheduler(st)
	a := seedFiring(t, st, "fp-fires")

	s.Arm(a, escalatingRule(), a.TriggeredAt)
	ft.armed[0].fn()

	intents := rec.all()
	require.Len(t, intents, 1)
	assert.Equal(t, a.ID, intents[0].AlertID)
	assert.Equal(t, domain.ReasonEscalation, intents[0].Reason)
	assert.Equal(t, 1, intents[0].Level)
	assert.Equal(t, []string{"pager-primary"}, intents[0].Channels)
	assert.Equal(t, domain.SeverityHigh, intents[0].Severity)
}

func TestEscalation_SkippedAfterAcknowledge(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	s, ft, rec := newTestScheduler(st)
	a := seedFiring(t, st, "fp-acked")

	s.Arm(a, escalatingRule(), a.TriggeredAt)

	_, err := st.Acknowledge(context.Background(), a.ID, "maria", time.Now())
	require.NoError(t, err)

	// The timer raced past Cancel; the status check at fire time wins.
	ft.armed[0].fn()
	ft.armed[1].fn()

	assert.Empty(t, rec.all())
}

func TestEscalation_SkippedAfterResolve(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	s, ft, rec := newTestScheduler(st)
	a := seedFiring(t, st, "fp-resolved")

	s.Arm(a, escalatingRule(), a.TriggeredAt)

	_, err := st.Resolve(context.Background(), a.ID, time.Now())
	require.NoError(t, err)

	ft.armed[0].fn()

	assert.Empty(t, rec.all())
}

func TestEscalation_SkippedForMissingAlert(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	s, _, rec := newTestScheduler(st)
	a := seedFiring(t, st, "fp-gone")

	s.Arm(a, escalatingRule(), a.TriggeredAt)

	s.fire("no-such-alert", a.Fingerprint, a.Severity, a.Message, 1, []string{"pager"})

	assert.Empty(t, rec.all())
}

func TestCancel_DropsPendingTimers(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	s, _, _ := newTestScheduler(st)
	a := seedFiring(t, st, "fp-cancel")

	s.Arm(a, escalatingRule(), a.TriggeredAt)
	require.Contains(t, s.timers, a.ID)

	s.Cancel(a.ID)
	assert.NotContains(t, s.timers, a.ID)

	// Cancelling twice is harmless.
	s.Cancel(a.ID)
}

func TestClose_RejectsFurtherArming(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	s, ft, _ := newTestScheduler(st)
	a := seedFiring(t, st, "fp-closed")

	s.Close()
	s.Arm(a, escalatingRule(), a.TriggeredAt)

	assert.Empty(t, ft.armed)
}
