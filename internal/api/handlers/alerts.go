package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/oncallops/flare/internal/metrics"
	"github.com/oncallops/flare/internal/store"
	domain "github.com/oncallops/flare/pkg/types"
)

// EscalationCanceler cancels pending escalation timers when a lifecycle
// command takes an alert out of the firing state.
type EscalationCanceler interface {
	Cancel(alertID string)
}

// AlertsHandler handles alert inbox queries and lifecycle commands.
type AlertsHandler struct {
	store store.Store
	esc   EscalationCanceler
}

// NewAlertsHandler creates a new AlertsHandler.
func NewAlertsHandler(s store.Store, esc EscalationCanceler) *AlertsHandler {
	return &AlertsHandler{store: s, esc: esc}
}

// --- Input/Output types ---

// ListAlertsInput is the input for listing alerts with optional filters.
type ListAlertsInput struct {
	Status      string `query:"status"       doc:"Filter by lifecycle status"   enum:"pending,firing,acknowledged,snoozed,resolved"`
	MinSeverity string `query:"min_severity" doc:"Minimum severity"             enum:"info,warning,high,critical"`
	RuleID      string `query:"rule_id"      doc:"Filter by originating rule"`
	Limit       int    `query:"limit"        doc:"Number of results (default 50)" minimum:"1" maximum:"500"`
	Offset      int    `query:"offset"       doc:"Pagination offset"              minimum:"0"`
}

// ListAlertsOutput is the response for listing alerts.
type ListAlertsOutput struct {
	Body struct {
		Alerts []domain.Alert `json:"alerts"`
		Total  int            `json:"total"`
		Limit  int            `json:"limit"`
		Offset int            `json:"offset"`
	}
}

// GetAlertInput is the input for getting a single alert.
type GetAlertInput struct {
	ID string `path:"id" doc:"Alert UUID"`
}

// GetAlertOutput is the response for getting a single alert.
type GetAlertOutput struct {
	Body domain.Alert
}

// AcknowledgeInput is the input for acknowledging an alert.
type AcknowledgeInput struct {
	ID   string `path:"id" doc:"Alert UUID"`
	Body struct {
		By string `json:"by" doc:"Who is acknowledging" example:"maria"`
	}
}

// SnoozeInput is the input for snoozing an alert.
type SnoozeInput struct {
	ID   string `path:"id" doc:"Alert UUID"`
	Body struct {
		Duration string `json:"duration" doc:"Snooze duration, e.g. 30m or 2h" example:"30m"`
	}
}

// SetLabelsInput is the input for replacing an alert's labels.
type SetLabelsInput struct {
	ID   string `path:"id" doc:"Alert UUID"`
	Body struct {
		Labels map[string]string `json:"labels" doc:"Replacement label set"`
	}
}

// AlertOutput is the response for lifecycle commands.
type AlertOutput struct {
	Body domain.Alert
}

// StatsOutput is the response for inbox statistics.
type StatsOutput struct {
	Body domain.AlertStats
}

// --- Handlers ---

// ListAlerts returns alerts with optional status, severity, and rule filters.
func (h *AlertsHandler) ListAlerts(
	ctx context.Context,
	input *ListAlertsInput,
) (*ListAlertsOutput, error) {
	q := &store.AlertQuery{
		Limit:  input.Limit,
		Offset: input.Offset,
	}

	if input.Status != "" {
		status := domain.Status(input.Status)
		q.Status = &status
	}
	if input.MinSeverity != "" {
		sev := domain.Severity(input.MinSeverity)
		q.MinSeverity = &sev
	}
	if input.RuleID != "" {
		q.RuleID = &input.RuleID
	}

	alerts, total, err := h.store.ListAlerts(ctx, q)
	if err != nil {
		return nil, huma.Error500InternalServerError("alert query failed: " + err.Error())
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}

	resp := &ListAlertsOutput{}
	resp.Body.Alerts = alerts
	resp.Body.Total = total
	resp.Body.Limit = store.ClampLimit(q.Limit)
	resp.Body.Offset = q.Offset
	return resp, nil
}

// GetAlert returns a single alert by id.
func (h *AlertsHandler) GetAlert(
	ctx context.Context,
	input *GetAlertInput,
) (*GetAlertOutput, error) {
	a, err := h.store.GetAlert(ctx, input.ID)
	if err != nil {
		return nil, mapStoreError(err, "fetching alert")
	}
	return &GetAlertOutput{Body: *a}, nil
}

// Acknowledge marks a firing alert as acknowledged and cancels its pending
// escalations.
func (h *AlertsHandler) Acknowledge(
	ctx context.Context,
	input *AcknowledgeInput,
) (*AlertOutput, error) {
	now := time.Now()

	a, err := h.store.Acknowledge(ctx, input.ID, input.Body.By, now)
	if err != nil {
		return nil, mapStoreError(err, "acknowledging alert")
	}

	h.esc.Cancel(a.ID)
	metrics.AckLatency.Observe(now.Sub(a.TriggeredAt).Seconds())

	return &AlertOutput{Body: *a}, nil
}

// Snooze silences an alert for the given duration and cancels its pending
// escalations.
func (h *AlertsHandler) Snooze(
	ctx context.Context,
	input *SnoozeInput,
) (*AlertOutput, error) {
	d, err := time.ParseDuration(input.Body.Duration)
	if err != nil || d <= 0 {
		return nil, huma.Error422UnprocessableEntity(
			"duration must be a positive Go duration, e.g. 30m",
		)
	}

	now := time.Now()
	a, err := h.store.Snooze(ctx, input.ID, now.Add(d), now)
	if err != nil {
		return nil, mapStoreError(err, "snoozing alert")
	}

	h.esc.Cancel(a.ID)
	return &AlertOutput{Body: *a}, nil
}

// Resolve manually resolves an alert, freeing its fingerprint slot.
func (h *AlertsHandler) Resolve(
	ctx context.Context,
	input *GetAlertInput,
) (*AlertOutput, error) {
	a, err := h.store.Resolve(ctx, input.ID, time.Now())
	if err != nil {
		return nil, mapStoreError(err, "resolving alert")
	}

	h.esc.Cancel(a.ID)
	metrics.AlertsResolvedTotal.Inc()

	return &AlertOutput{Body: *a}, nil
}

// SetLabels replaces the alert's label set. Labels participate in
// suppression matching.
func (h *AlertsHandler) SetLabels(
	ctx context.Context,
	input *SetLabelsInput,
) (*AlertOutput, error) {
	a, err := h.store.SetLabels(ctx, input.ID, input.Body.Labels)
	if err != nil {
		return nil, mapStoreError(err, "labeling alert")
	}
	return &AlertOutput{Body: *a}, nil
}

// Stats returns aggregate inbox analytics.
func (h *AlertsHandler) Stats(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
	stats, err := h.store.Stats(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("stats query failed: " + err.Error())
	}
	return &StatsOutput{Body: *stats}, nil
}

// mapStoreError translates store errors into HTTP semantics: unknown ids
// are 404s, disallowed lifecycle transitions are 409s.
func mapStoreError(err error, what string) error {
	var ite *store.InvalidTransitionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return huma.Error404NotFound("alert not found")
	case errors.As(err, &ite):
		return huma.Error409Conflict(ite.Error())
	default:
		return huma.Error500InternalServerError(what + ": " + err.Error())
	}
}

// RegisterAlertRoutes registers alert endpoints with the Huma API.
func RegisterAlertRoutes(api huma.API, h *AlertsHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        "/api/v1/alerts",
		Summary:     "List alerts",
		Description: "Returns alerts with optional status, severity, and rule filters.",
		Tags:        []string{"alerts"},
	}, h.ListAlerts)

	// Registered before get-alert so the static /stats segment is not
	// shadowed by the {id} parameter on order-sensitive routers.
	huma.Register(api, huma.Operation{
		OperationID: "alert-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/alerts/stats",
		Summary:     "Alert inbox statistics",
		Description: "Returns totals by status and mean time to acknowledgement.",
		Tags:        []string{"alerts"},
	}, h.Stats)

	huma.Register(api, huma.Operation{
		OperationID: "get-alert",
		Method:      http.MethodGet,
		Path:        "/api/v1/alerts/{id}",
		Summary:     "Get an alert by ID",
		Tags:        []string{"alerts"},
		Errors:      []int{http.StatusNotFound},
	}, h.GetAlert)

	huma.Register(api, huma.Operation{
		OperationID: "acknowledge-alert",
		Method:      http.MethodPost,
		Path:        "/api/v1/alerts/{id}/ack",
		Summary:     "Acknowledge an alert",
		Description: "Marks a firing alert as acknowledged and cancels pending escalations.",
		Tags:        []string{"alerts"},
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, h.Acknowledge)

	huma.Register(api, huma.Operation{
		OperationID: "snooze-alert",
		Method:      http.MethodPost,
		Path:        "/api/v1/alerts/{id}/snooze",
		Summary:     "Snooze an alert",
		Description: "Silences a firing or acknowledged alert for the given duration.",
		Tags:        []string{"alerts"},
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, h.Snooze)

	huma.Register(api, huma.Operation{
		OperationID: "resolve-alert",
		Method:      http.MethodPost,
		Path:        "/api/v1/alerts/{id}/resolve",
		Summary:     "Resolve an alert",
		Description: "Manually resolves an alert, freeing its fingerprint slot.",
		Tags:        []string{"alerts"},
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, h.Resolve)

	huma.Register(api, huma.Operation{
		OperationID: "set-alert-labels",
		Method:      http.MethodPut,
		Path:        "/api/v1/alerts/{id}/labels",
		Summary:     "Replace alert labels",
		Tags:        []string{"alerts"},
		Errors:      []int{http.StatusNotFound},
	}, h.SetLabels)
}
