package handlers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncallops/flare/internal/api/handlers"
	"github.com/oncallops/flare/internal/store"
	domain "github.com/oncallops/flare/pkg/types"
)

// recordingCanceler records escalation cancellations.
type recordingCanceler struct {
	canceled []string
}

func (r *recordingCanceler) Cancel(alertID string) {
	r.canceled = append(r.canceled, alertID)
}

func seedAlert(t *testing.T, st store.Store, ruleID, fp string, sev domain.Severity) *domain.Alert {
	t.Helper()

	a, created, err := st.FindOrCreateActive(context.Background(), &domain.Alert{
		RuleID:      ruleID,
		Fingerprint: fp,
		Severity:    sev,
		Status:      domain.StatusFiring,
		Message:     "cpu usage at 97%",
		Metadata:    map[string]any{"cpu_usage": 97.0},
		TriggeredAt: time.Now().Add(-2 * time.Minute),
		LastSeenAt:  time.Now(),
	})
	require.NoError(t, err)
	require.True(t, created)
	return a
}

func newAlertsAPI(t *testing.T, st store.Store) (humatest.TestAPI, *recordingCanceler) {
	t.Helper()

	canceler := &recordingCanceler{}
	h := handlers.NewAlertsHandler(st, canceler)

	_, api := humatest.New(t)
	handlers.RegisterAlertRoutes(api, h)
	return api, canceler
}

func TestAlertsHandler_List(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	seedAlert(t, st, "cpu-high", "fp-1", domain.SeverityHigh)
	seedAlert(t, st, "disk-full", "fp-2", domain.SeverityCritical)
	seedAlert(t, st, "cpu-high", "fp-3", domain.SeverityWarning)

	api, _ := newAlertsAPI(t, st)

	tests := []struct {
		name      string
		query     string
		wantTotal string
	}{
		{"no filters", "", `"total":3`},
		{"rule filter", "?rule_id=cpu-high", `"total":2`},
		{"severity floor", "?min_severity=critical", `"total":1`},
		{"status filter", "?status=firing", `"total":3`},
		{"pagination", "?limit=2&offset=2", `"total":3`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.Get("/api/v1/alerts" + tt.query)
			require.Equal(t, http.StatusOK, resp.Code)
			assert.Contains(t, resp.Body.String(), tt.wantTotal)
		})
	}
}

func TestAlertsHandler_ListReportsEffectiveLimit(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	seedAlert(t, st, "cpu-high", "fp-1", domain.SeverityHigh)

	api, _ := newAlertsAPI(t, st)

	// An omitted limit falls back to the store default; the response must
	// report the page size actually applied, not the zero value.
	resp := api.Get("/api/v1/alerts")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"limit":50`)

	resp = api.Get("/api/v1/alerts?limit=2")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"limit":2`)
}

func TestAlertsHandler_ListRejectsBadQuery(t *testing.T) {
	t.Parallel()

	api, _ := newAlertsAPI(t, store.NewMemoryStore())

	resp := api.Get("/api/v1/alerts?min_severity=apocalyptic")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = api.Get("/api/v1/alerts?limit=9000")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestAlertsHandler_Get(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	a := seedAlert(t, st, "cpu-high", "fp-1", domain.SeverityHigh)

	api, _ := newAlertsAPI(t, st)

	resp := api.Get("/api/v1/alerts/" + a.ID)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"rule_id":"cpu-high"`)
	assert.Contains(t, resp.Body.String(), `"status":"firing"`)

	resp = api.Get("/api/v1/alerts/no-such-id")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "alert not found")
}

func TestAlertsHandler_Acknowledge(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	a := seedAlert(t, st, "cpu-high", "fp-1", domain.SeverityHigh)

	api, canceler := newAlertsAPI(t, st)

	resp := api.Post("/api/v1/alerts/"+a.ID+"/ack", map[string]any{"by": "maria"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"acknowledged"`)
	assert.Contains(t, resp.Body.String(), `"acknowledged_by":"maria"`)
	assert.Equal(t, []string{a.ID}, canceler.canceled)

	// A second ack is a disallowed transition.
	resp = api.Post("/api/v1/alerts/"+a.ID+"/ack", map[string]any{"by": "sam"})
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), "cannot acknowledge")
}

func TestAlertsHandler_Snooze(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	a := seedAlert(t, st, "cpu-high", "fp-1", domain.SeverityHigh)

	api, canceler := newAlertsAPI(t, st)

	resp := api.Post("/api/v1/alerts/"+a.ID+"/snooze", map[string]any{"duration": "30m"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"snoozed"`)
	assert.Contains(t, resp.Body.String(), "snoozed_until")
	assert.Equal(t, []string{a.ID}, canceler.canceled)
}

func TestAlertsHandler_SnoozeRejectsBadDuration(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	a := seedAlert(t, st, "cpu-high", "fp-1", domain.SeverityHigh)

	api, canceler := newAlertsAPI(t, st)

	for _, dur := range []string{"soon", "-10m", "0s"} {
		resp := api.Post("/api/v1/alerts/"+a.ID+"/snooze", map[string]any{"duration": dur})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code, "duration %q", dur)
	}
	assert.Empty(t, canceler.canceled)
}

func TestAlertsHandler_Resolve(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	a := seedAlert(t, st, "cpu-high", "fp-1", domain.SeverityHigh)

	api, canceler := newAlertsAPI(t, st)

	resp := api.Post("/api/v1/alerts/" + a.ID + "/resolve")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"resolved"`)
	assert.Equal(t, []string{a.ID}, canceler.canceled)

	// Resolved is terminal.
	resp = api.Post("/api/v1/alerts/" + a.ID + "/resolve")
	assert.Equal(t, http.StatusConflict, resp.Code)

	// The fingerprint slot is freed: the same fingerprint creates a new alert.
	b := seedAlert(t, st, "cpu-high", "fp-1", domain.SeverityHigh)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestAlertsHandler_SetLabels(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	a := seedAlert(t, st, "cpu-high", "fp-1", domain.SeverityHigh)

	api, _ := newAlertsAPI(t, st)

	resp := api.Put("/api/v1/alerts/"+a.ID+"/labels", map[string]any{
		"labels": map[string]string{"team": "platform", "env": "prod"},
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"team":"platform"`)

	resp = api.Put("/api/v1/alerts/missing/labels", map[string]any{
		"labels": map[string]string{},
	})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAlertsHandler_Stats(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	a := seedAlert(t, st, "cpu-high", "fp-1", domain.SeverityHigh)
	seedAlert(t, st, "disk-full", "fp-2", domain.SeverityCritical)

	_, err := st.Acknowledge(context.Background(), a.ID, "maria", time.Now())
	require.NoError(t, err)

	api, _ := newAlertsAPI(t, st)

	resp := api.Get("/api/v1/alerts/stats")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"total":2`)
	assert.Contains(t, resp.Body.String(), `"acknowledged":1`)
	assert.Contains(t, resp.Body.String(), `"firing":1`)
}
