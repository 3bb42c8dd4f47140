package client

import (
	"context"
	"net/url"
	"strconv"

	domain "github.com/oncallops/flare/pkg/types"
)

// AlertsResponse wraps a paginated alerts response.
type AlertsResponse struct {
	Alerts []domain.Alert `json:"alerts"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListAlertsParams defines query parameters for alert queries.
type ListAlertsParams struct {
	Status      string
	MinSeverity string
	RuleID      string
	Limit       int
	Offset      int
}

// ListAlerts returns alerts matching the given parameters.
func (c *Client) ListAlerts(
	ctx context.Context,
	params *ListAlertsParams,
) (*AlertsResponse, error) {
	q := url.Values{}
	if params.Status != "" {
		q.Set("status", params.Status)
	}
	if params.MinSeverity != "" {
		q.Set("min_severity", params.MinSeverity)
	}
	if params.RuleID != "" {
		q.Set("rule_id", params.RuleID)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	path := "/api/v1/alerts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp AlertsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAlert returns a single alert by ID.
func (c *Client) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	var a domain.Alert
	if err := c.get(ctx, "/api/v1/alerts/"+id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Acknowledge acknowledges an alert on behalf of the given operator.
func (c *Client) Acknowledge(ctx context.Context, id, by string) (*domain.Alert, error) {
	var a domain.Alert
	body := map[string]string{"by": by}
	if err := c.post(ctx, "/api/v1/alerts/"+id+"/ack", body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Snooze silences an alert for the given duration, e.g. "30m".
func (c *Client) Snooze(ctx context.Context, id, duration string) (*domain.Alert, error) {
	var a domain.Alert
	body := map[string]string{"duration": duration}
	if err := c.post(ctx, "/api/v1/alerts/"+id+"/snooze", body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Resolve manually resolves an alert.
func (c *Client) Resolve(ctx context.Context, id string) (*domain.Alert, error) {
	var a domain.Alert
	if err := c.post(ctx, "/api/v1/alerts/"+id+"/resolve", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SetLabels replaces an alert's label set.
func (c *Client) SetLabels(
	ctx context.Context,
	id string,
	labels map[string]string,
) (*domain.Alert, error) {
	var a domain.Alert
	body := map[string]any{"labels": labels}
	if err := c.put(ctx, "/api/v1/alerts/"+id+"/labels", body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Stats returns aggregate alert inbox statistics.
func (c *Client) Stats(ctx context.Context) (*domain.AlertStats, error) {
	var stats domain.AlertStats
	if err := c.get(ctx, "/api/v1/alerts/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
