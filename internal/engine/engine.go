// Package engine implements the tick-driven alert evaluation loop: condition
// evaluation, fingerprint deduplication, suppression, escalation, and
// automatic resolution.
package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/oncallops/flare/internal/metrics"
	"github.com/oncallops/flare/internal/notify"
	"github.com/oncallops/flare/internal/store"
	domain "github.com/oncallops/flare/pkg/types"
)

// ErrClosed is returned by Tick after Close.
var ErrClosed = errors.New("engine: closed")

const defaultQueueSize = 256

// RuleSource supplies the rule set for a tick. Implementations must return a
// snapshot that stays stable for the duration of the tick.
type RuleSource interface {
	Rules(ctx context.Context) []domain.AlertRule
}

// Engine evaluates rules against metric snapshots and drives the alert
// lifecycle. One Engine instance serves a process; Tick is safe for
// concurrent use, though ticks are normally serialized by the scheduler.
type Engine struct {
	store      store.Store
	rules      RuleSource
	suppressor *SuppressionManager
	escalator  *EscalationScheduler
	dispatcher notify.Dispatcher
	log        *slog.Logger
	tracer     trace.Tracer

	workers int
	queue   chan domain.DeliveryIntent
	done    chan struct{}

	closed atomic.Bool
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) error {
		e.log = log
		return nil
	}
}

// WithWorkers bounds the per-tick rule evaluation parallelism.
func WithWorkers(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("engine: workers must be positive, got %d", n)
		}
		e.workers = n
		return nil
	}
}

// WithSuppressionRules installs global pattern suppression. Patterns are
// compiled eagerly; a bad pattern fails construction.
func WithSuppressionRules(rules []domain.SuppressionRule) Option {
	return func(e *Engine) error {
		m, err := NewSuppressionManager(rules, e.log)
		if err != nil {
			return err
		}
		e.suppressor = m
		return nil
	}
}

// WithQueueSize sets the dispatch queue depth.
func WithQueueSize(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("engine: queue size must be positive, got %d", n)
		}
		e.queue = make(chan domain.DeliveryIntent, n)
		return nil
	}
}

// New creates an Engine and starts its dispatch loop.
func New(
	st store.Store,
	rules RuleSource,
	dispatcher notify.Dispatcher,
	opts ...Option,
) (*Engine, error) {
	e := &Engine{
		store:      st,
		rules:      rules,
		dispatcher: dispatcher,
		log:        slog.Default(),
		tracer:     otel.Tracer("github.com/oncallops/flare/internal/engine"),
		workers:    runtime.GOMAXPROCS(0),
		queue:      make(chan domain.DeliveryIntent, defaultQueueSize),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.suppressor == nil {
		m, _ := NewSuppressionManager(nil, e.log)
		e.suppressor = m
	}
	e.escalator = NewEscalationScheduler(st, e.enqueue, e.log)

	e.wg.Add(1)
	go e.dispatchLoop()

	return e, nil
}

// Escalator exposes the scheduler so command handlers can cancel timers on
// manual acknowledge/snooze/resolve.
func (e *Engine) Escalator() *EscalationScheduler {
	return e.escalator
}

// Suppressor exposes the suppression manager for stats reporting.
func (e *Engine) Suppressor() *SuppressionManager {
	return e.suppressor
}

// Close stops accepting ticks, cancels pending escalations, and drains the
// dispatch queue.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.escalator.Close()
	close(e.done)
	e.wg.Wait()
}

// match is one rule whose condition held against the snapshot.
type match struct {
	rule        domain.AlertRule
	fingerprint string
	metadata    map[string]any
	message     string
}

// Tick evaluates every enabled rule against the snapshot and advances the
// alert lifecycle: new matches fire (or are suppressed), repeated matches are
// touched, expired snoozes wake, and active alerts whose condition no longer
// holds resolve. The returned intents are the tick's synchronous deliveries;
// they are also queued for asynchronous dispatch.
func (e *Engine) Tick(
	ctx context.Context,
	snap domain.Snapshot,
	now time.Time,
) ([]domain.DeliveryIntent, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	ctx, span := e.tracer.Start(ctx, "engine.tick")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.TicksTotal.Inc()
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	ruleSet := e.rules.Rules(ctx)
	matches := e.evaluate(ruleSet, snap)
	span.SetAttributes(
		attribute.Int("rules.total", len(ruleSet)),
		attribute.Int("rules.matched", len(matches)),
	)

	var intents []domain.DeliveryIntent
	matched := make(map[string]struct{}, len(matches))

	for i := range matches {
		m := &matches[i]
		matched[m.fingerprint] = struct{}{}

		intent, err := e.admit(ctx, m, now)
		if err != nil {
			return nil, err
		}
		if intent != nil {
			intents = append(intents, *intent)
		}
	}

	resolved, err := e.resolveUnmatched(ctx, ruleSet, matched, now)
	if err != nil {
		return nil, err
	}
	intents = append(intents, resolved...)

	for _, intent := range intents {
		e.enqueue(intent)
	}
	return intents, nil
}

// evaluate runs the condition trees in parallel and returns the matches in
// rule-id order, so tick output is deterministic regardless of scheduling.
func (e *Engine) evaluate(rules []domain.AlertRule, snap domain.Snapshot) []match {
	var (
		mu      sync.Mutex
		matches []match
		wg      sync.WaitGroup
		sem     = make(chan struct{}, e.workers)
	)

	for i := range rules {
		r := rules[i]
		if !r.Enabled || !r.MatchWhere(snap) {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			metrics.RulesEvaluatedTotal.Inc()

			diag := &domain.EvalDiagnostics{}
			if !r.Condition.Eval(snap, diag) {
				e.reportFaults(&r, diag)
				return
			}
			e.reportFaults(&r, diag)

			m := match{
				rule:        r,
				fingerprint: domain.Fingerprint(&r, snap),
				metadata:    r.LeafMetadata(snap),
				message:     r.RenderMessage(snap),
			}

			mu.Lock()
			matches = append(matches, m)
			mu.Unlock()
		}()
	}
	wg.Wait()

	slices.SortFunc(matches, func(a, b match) int {
		return cmp.Compare(a.rule.ID, b.rule.ID)
	})
	return matches
}

func (e *Engine) reportFaults(r *domain.AlertRule, diag *domain.EvalDiagnostics) {
	for _, f := range diag.Faults {
		metrics.EvalFaultsTotal.Inc()
		e.log.Warn("condition fault",
			"rule_id", r.ID, "metric", f.Metric, "reason", f.Reason)
	}
}

// admit pushes one match through suppression, deduplication, and creation.
// It returns the initial delivery intent for a newly fired, deliverable
// alert, or nil.
func (e *Engine) admit(
	ctx context.Context,
	m *match,
	now time.Time,
) (*domain.DeliveryIntent, error) {
	candidate := &domain.Alert{
		RuleID:      m.rule.ID,
		Fingerprint: m.fingerprint,
		Severity:    m.rule.Severity,
		Status:      domain.StatusFiring,
		Message:     m.message,
		Metadata:    m.metadata,
		TriggeredAt: now,
		LastSeenAt:  now,
	}

	// Global pattern suppression vetoes the candidate before it can reach
	// the store. The fingerprint still counts as matched for resolution.
	if e.suppressor.ShouldSuppress(candidate, now) {
		metrics.AlertsSuppressedTotal.Inc()
		return nil, nil
	}

	a, created, err := e.store.FindOrCreateActive(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("admitting alert for rule %s: %w", m.rule.ID, err)
	}

	if !created {
		if err := e.store.TouchLastSeen(ctx, a.ID, now, m.metadata); err != nil &&
			!errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("touching alert %s: %w", a.ID, err)
		}
		// A snooze that has run out while the condition still holds goes
		// straight back to firing, without a fresh delivery. Snoozing
		// cancelled the escalation timers, so the wake must restore the
		// levels still ahead of the clock.
		if a.Status == domain.StatusSnoozed && a.SnoozeExpired(now) {
			if _, err := e.store.WakeSnoozed(ctx, a.ID, now); err != nil {
				var ite *store.InvalidTransitionError
				if !errors.Is(err, store.ErrNotFound) && !errors.As(err, &ite) {
					return nil, fmt.Errorf("waking alert %s: %w", a.ID, err)
				}
			} else {
				e.escalator.Rearm(a, &m.rule, now)
			}
		}
		return nil, nil
	}

	metrics.AlertsFiredTotal.Inc()
	e.log.Info("alert fired",
		"alert_id", a.ID, "rule_id", m.rule.ID,
		"fingerprint", a.Fingerprint, "severity", a.Severity)

	e.escalator.Arm(a, &m.rule, now)

	// Re-fire cooldown: the alert exists and escalates, but the initial
	// delivery is withheld when the same fingerprint resolved recently.
	if m.rule.SuppressionDuration > 0 {
		recent, err := e.store.RecentlyResolved(
			ctx, a.Fingerprint, now.Add(-m.rule.SuppressionDuration))
		if err != nil {
			return nil, fmt.Errorf("checking cooldown for alert %s: %w", a.ID, err)
		}
		if recent {
			metrics.AlertsSuppressedTotal.Inc()
			e.log.Debug("initial delivery withheld by cooldown",
				"alert_id", a.ID, "fingerprint", a.Fingerprint)
			return nil, nil
		}
	}

	// Observe-only rules have no channels; they fire and resolve silently.
	if len(m.rule.Channels) == 0 {
		return nil, nil
	}

	return &domain.DeliveryIntent{
		AlertID:     a.ID,
		Fingerprint: a.Fingerprint,
		Severity:    a.Severity,
		Channels:    m.rule.Channels,
		Message:     a.Message,
		Reason:      domain.ReasonInitial,
		Level:       0,
	}, nil
}

// resolveUnmatched sweeps active alerts whose fingerprint did not match this
// tick. Unexpired snoozes are left alone; everything else resolves and emits
// a resolution notice.
func (e *Engine) resolveUnmatched(
	ctx context.Context,
	rules []domain.AlertRule,
	matched map[string]struct{},
	now time.Time,
) ([]domain.DeliveryIntent, error) {
	active, err := e.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active alerts: %w", err)
	}

	channelsByRule := make(map[string][]string, len(rules))
	for i := range rules {
		channelsByRule[rules[i].ID] = rules[i].Channels
	}

	var intents []domain.DeliveryIntent
	for i := range active {
		a := &active[i]
		if _, ok := matched[a.Fingerprint]; ok {
			continue
		}
		if a.Status == domain.StatusSnoozed && !a.SnoozeExpired(now) {
			continue
		}

		if _, err := e.store.Resolve(ctx, a.ID, now); err != nil {
			// Lost a race with a manual command; the next tick gets it.
			var ite *store.InvalidTransitionError
			if errors.Is(err, store.ErrNotFound) || errors.As(err, &ite) {
				continue
			}
			return nil, fmt.Errorf("resolving alert %s: %w", a.ID, err)
		}

		e.escalator.Cancel(a.ID)
		metrics.AlertsResolvedTotal.Inc()
		e.log.Info("alert resolved",
			"alert_id", a.ID, "rule_id", a.RuleID, "fingerprint", a.Fingerprint)

		channels := channelsByRule[a.RuleID]
		if len(channels) == 0 {
			continue
		}
		intents = append(intents, domain.DeliveryIntent{
			AlertID:     a.ID,
			Fingerprint: a.Fingerprint,
			Severity:    a.Severity,
			Channels:    channels,
			Message:     a.Message,
			Reason:      domain.ReasonResolution,
			Level:       0,
		})
	}
	return intents, nil
}

// enqueue hands an intent to the dispatch loop. A full queue drops the
// intent rather than stalling the tick.
func (e *Engine) enqueue(intent domain.DeliveryIntent) {
	if e.closed.Load() {
		return
	}
	metrics.DispatchesTotal.WithLabelValues(string(intent.Reason)).Inc()
	select {
	case e.queue <- intent:
	default:
		metrics.DispatchFailuresTotal.Inc()
		e.log.Warn("dispatch queue full, dropping intent",
			"alert_id", intent.AlertID, "reason", intent.Reason)
	}
}

// dispatchLoop delivers queued intents until Close, then drains whatever is
// still buffered.
func (e *Engine) dispatchLoop() {
	defer e.wg.Done()
	for {
		select {
		case intent := <-e.queue:
			e.dispatch(intent)
		case <-e.done:
			for {
				select {
				case intent := <-e.queue:
					e.dispatch(intent)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) dispatch(intent domain.DeliveryIntent) {
	if err := e.dispatcher.Dispatch(context.Background(), intent); err != nil {
		metrics.DispatchFailuresTotal.Inc()
		e.log.Error("dispatch failed",
			"alert_id", intent.AlertID,
			"reason", intent.Reason,
			"channels", intent.Channels,
			"error", err)
	}
}
