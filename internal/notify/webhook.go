package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	domain "github.com/oncallops/flare/pkg/types"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 5 // requests per second
	defaultBurst     = 10
)

// WebhookDispatcher posts delivery intents as JSON to a single webhook
// endpoint. The receiving side fans out to the named channels; the engine
// does not know channel transports. Outbound requests are rate limited so a
// noisy tick cannot flood the receiver.
type WebhookDispatcher struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// WebhookOption configures a WebhookDispatcher.
type WebhookOption func(*WebhookDispatcher)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(d *WebhookDispatcher) {
		d.client = c
	}
}

// WithRateLimit overrides the outbound request rate.
func WithRateLimit(perSecond float64, burst int) WebhookOption {
	return func(d *WebhookDispatcher) {
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithWebhookLogger sets the logger. Defaults to slog.Default().
func WithWebhookLogger(log *slog.Logger) WebhookOption {
	return func(d *WebhookDispatcher) {
		d.log = log
	}
}

func NewWebhookDispatcher(url string, opts ...WebhookOption) *WebhookDispatcher {
	d := &WebhookDispatcher{
		url:     url,
		client:  &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(defaultRateLimit, defaultBurst),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch posts the intent. It blocks on the rate limiter, honoring ctx.
// Non-2xx responses are errors; the caller decides whether that matters.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, intent domain.DeliveryIntent) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encoding intent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}

	d.log.Debug("intent delivered",
		"alert_id", intent.AlertID, "reason", intent.Reason, "status", resp.StatusCode)
	return nil
}
