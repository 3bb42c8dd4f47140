package client

import (
	"context"

	domain "github.com/oncallops/flare/pkg/types"
)

// ListRules returns all registered alert rules.
func (c *Client) ListRules(ctx context.Context) ([]domain.AlertRule, error) {
	var rules []domain.AlertRule
	if err := c.get(ctx, "/api/v1/rules", &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// GetRule returns a single rule by ID.
func (c *Client) GetRule(ctx context.Context, id string) (*domain.AlertRule, error) {
	var r domain.AlertRule
	if err := c.get(ctx, "/api/v1/rules/"+id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRule registers a new alert rule.
func (c *Client) CreateRule(ctx context.Context, r *domain.AlertRule) (*domain.AlertRule, error) {
	var created domain.AlertRule
	if err := c.post(ctx, "/api/v1/rules", r, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateRule replaces an existing rule.
func (c *Client) UpdateRule(ctx context.Context, r *domain.AlertRule) (*domain.AlertRule, error) {
	var updated domain.AlertRule
	if err := c.put(ctx, "/api/v1/rules/"+r.ID, r, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteRule removes a rule by ID.
func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.del(ctx, "/api/v1/rules/"+id, nil)
}
