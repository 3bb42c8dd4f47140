package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/oncallops/flare/pkg/types"
)

const defaultPoolSize = 10

// PostgresStore implements Store using pgxpool (connection-pooled
// PostgreSQL). The at-most-one-active-per-fingerprint invariant is enforced
// by a partial unique index, so it holds across processes, not just within
// one.
//
// TODO(test): PostgresStore methods require live Postgres, tested via integration tests.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore with connection pooling.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	cfg.MaxConns = defaultPoolSize

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close gracefully shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies pending SQL schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return RunMigrations(ctx, s.pool)
}

// FindOrCreateActive inserts the alert unless an active alert already holds
// its fingerprint, in which case the existing one is returned. The partial
// unique index makes the insert-then-select race-free.
func (s *PostgresStore) FindOrCreateActive(
	ctx context.Context,
	a *domain.Alert,
) (*domain.Alert, bool, error) {
	stored := *a
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	args := pgx.NamedArgs{
		"id":           stored.ID,
		"rule_id":      stored.RuleID,
		"fingerprint":  stored.Fingerprint,
		"severity":     string(stored.Severity),
		"status":       string(stored.Status),
		"message":      stored.Message,
		"metadata":     stored.Metadata,
		"labels":       stored.Labels,
		"triggered_at": stored.TriggeredAt,
		"last_seen_at": stored.LastSeenAt,
	}

	var insertedID string
	err := s.pool.QueryRow(ctx, queryInsertActiveAlert, args).Scan(&insertedID)
	if err == nil {
		return &stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("inserting alert: %w", err)
	}

	// Conflict: an active alert already holds the fingerprint.
	existing := &domain.Alert{}
	err = scanAlert(
		s.pool.QueryRow(ctx, queryGetActiveByFingerprint, stored.Fingerprint),
		existing,
	)
	if err != nil {
		return nil, false, fmt.Errorf("fetching active alert after conflict: %w", err)
	}
	return existing, false, nil
}

// GetAlert retrieves an alert by id.
func (s *PostgresStore) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	a := &domain.Alert{}
	if err := scanAlert(s.pool.QueryRow(ctx, queryGetAlert, id), a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAlerts queries alerts with optional filters, returning results and
// total count.
func (s *PostgresStore) ListAlerts(
	ctx context.Context,
	q *AlertQuery,
) ([]domain.Alert, int, error) {
	if q == nil {
		q = &AlertQuery{}
	}
	dataSQL, countSQL, args := q.ToSQL()

	// The count query excludes the trailing limit/offset parameters.
	var total int
	if err := s.pool.QueryRow(ctx, countSQL, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting alerts: %w", err)
	}

	rows, err := s.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	alerts, err := collectAlerts(rows)
	if err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

// ListActive returns all non-terminal alerts.
func (s *PostgresStore) ListActive(ctx context.Context) ([]domain.Alert, error) {
	rows, err := s.pool.Query(ctx, queryListActive)
	if err != nil {
		return nil, fmt.Errorf("querying active alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// TouchLastSeen records a repeated match of an active alert.
func (s *PostgresStore) TouchLastSeen(
	ctx context.Context,
	id string,
	seen time.Time,
	metadata map[string]any,
) error {
	tag, err := s.pool.Exec(ctx, queryTouchLastSeen, id, seen, metadata)
	if err != nil {
		return fmt.Errorf("touching alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentlyResolved reports whether the fingerprint resolved at or after cutoff.
func (s *PostgresStore) RecentlyResolved(
	ctx context.Context,
	fingerprint string,
	cutoff time.Time,
) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, queryRecentlyResolved, fingerprint, cutoff).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking recent resolution: %w", err)
	}
	return exists, nil
}

// Acknowledge transitions firing -> acknowledged.
func (s *PostgresStore) Acknowledge(
	ctx context.Context,
	id, by string,
	now time.Time,
) (*domain.Alert, error) {
	return s.transition(ctx, id, "acknowledge", queryAcknowledge, now, by)
}

// Snooze transitions firing|acknowledged -> snoozed.
func (s *PostgresStore) Snooze(
	ctx context.Context,
	id string,
	until time.Time,
	now time.Time,
) (*domain.Alert, error) {
	return s.transition(ctx, id, "snooze", querySnooze, until)
}

// Resolve transitions any non-terminal state -> resolved.
func (s *PostgresStore) Resolve(
	ctx context.Context,
	id string,
	now time.Time,
) (*domain.Alert, error) {
	return s.transition(ctx, id, "resolve", queryResolve, now)
}

// WakeSnoozed transitions an expired snooze back to firing.
func (s *PostgresStore) WakeSnoozed(
	ctx context.Context,
	id string,
	now time.Time,
) (*domain.Alert, error) {
	return s.transition(ctx, id, "wake", queryWakeSnoozed, now)
}

// SetLabels replaces the alert's user-editable labels.
func (s *PostgresStore) SetLabels(
	ctx context.Context,
	id string,
	labels map[string]string,
) (*domain.Alert, error) {
	a := &domain.Alert{}
	err := scanAlert(s.pool.QueryRow(ctx, querySetLabels, id, labels), a)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Stats aggregates inbox analytics.
func (s *PostgresStore) Stats(ctx context.Context) (*domain.AlertStats, error) {
	stats := &domain.AlertStats{
		ByStatus: make(map[domain.Status]int),
	}

	rows, err := s.pool.Query(ctx, queryStats)
	if err != nil {
		return nil, fmt.Errorf("querying status counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		stats.ByStatus[domain.Status(status)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}

	var ackCount int
	var meanSeconds float64
	err = s.pool.QueryRow(ctx, queryAckLatency).Scan(&ackCount, &meanSeconds)
	if err != nil {
		return nil, fmt.Errorf("querying ack latency: %w", err)
	}
	stats.AcknowledgedCnt = ackCount
	stats.MeanTimeToAck = time.Duration(meanSeconds * float64(time.Second))

	return stats, nil
}

// transition runs a guarded UPDATE. Zero rows means either a missing alert
// or a disallowed transition; the follow-up status read disambiguates.
func (s *PostgresStore) transition(
	ctx context.Context,
	id, command, query string,
	extraArgs ...any,
) (*domain.Alert, error) {
	args := append([]any{id}, extraArgs...)

	a := &domain.Alert{}
	err := scanAlert(s.pool.QueryRow(ctx, query, args...), a)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%s alert %s: %w", command, id, err)
	}

	var status string
	err = s.pool.QueryRow(ctx, queryGetStatus, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading alert %s status: %w", id, err)
	}
	return nil, &InvalidTransitionError{
		AlertID: id,
		Current: domain.Status(status),
		Command: command,
	}
}

func collectAlerts(rows pgx.Rows) ([]domain.Alert, error) {
	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := scanAlert(rows, &a); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return alerts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner, a *domain.Alert) error {
	var severity, status string
	err := row.Scan(
		&a.ID, &a.RuleID, &a.Fingerprint, &severity, &status, &a.Message,
		&a.Metadata, &a.Labels,
		&a.TriggeredAt, &a.LastSeenAt, &a.AcknowledgedAt, &a.AcknowledgedBy,
		&a.SnoozedUntil, &a.ResolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scanning alert: %w", err)
	}
	a.Severity = domain.Severity(severity)
	a.Status = domain.Status(status)
	return nil
}
