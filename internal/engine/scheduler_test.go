package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncallops/flare/pkg/logger"
	domain "github.com/oncallops/flare/pkg/types"
)

// staticSource serves a fixed snapshot, or a fixed error.
type staticSource struct {
	snap domain.Snapshot
	err  error
}

func (s staticSource) Snapshot(context.Context) (domain.Snapshot, error) {
	return s.snap, s.err
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t, nil)
	s := NewScheduler(e, staticSource{}, logger.Discard())

	assert.Error(t, s.Start("every now and then"))
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t, nil)
	s := NewScheduler(e, staticSource{snap: domain.Snapshot{}}, logger.Discard())

	require.NoError(t, s.Start("0 0 0 1 1 *"))
	s.Stop()
}

func TestScheduler_RunTickEvaluatesSnapshot(t *testing.T) {
	t.Parallel()

	e, st, _ := newTestEngine(t, []domain.AlertRule{gemRule()})
	src := staticSource{snap: domain.Snapshot{
		"gem_score":         91.0,
		"honeypot_detected": false,
	}}
	s := NewScheduler(e, src, logger.Discard())

	s.runTick()

	active, err := st.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "promising-token", active[0].RuleID)
	assert.Equal(t, domain.StatusFiring, active[0].Status)
}

func TestScheduler_RunTickSourceError(t *testing.T) {
	t.Parallel()

	e, st, _ := newTestEngine(t, []domain.AlertRule{gemRule()})
	s := NewScheduler(e, staticSource{err: errors.New("upstream 503")}, logger.Discard())

	s.runTick()

	active, err := st.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestScheduler_RunTickAfterEngineClose(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t, nil)
	s := NewScheduler(e, staticSource{snap: domain.Snapshot{}}, logger.Discard())

	e.Close()

	// Must not panic or log spuriously once the engine reports closed.
	s.runTick()
}
