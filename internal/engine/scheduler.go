package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	domain "github.com/oncallops/flare/pkg/types"
)

// Source produces the metric snapshot for one evaluation tick.
type Source interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

const defaultTickTimeout = 30 * time.Second

// Scheduler drives the engine on a cron cadence, pulling a fresh snapshot
// from the source before each tick. Ticks are serialized: cron's default
// job runner skips nothing, and a slow source is bounded by the tick
// timeout.
type Scheduler struct {
	cron    *cron.Cron
	engine  *Engine
	source  Source
	log     *slog.Logger
	timeout time.Duration
}

func NewScheduler(e *Engine, src Source, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		engine:  e,
		source:  src,
		log:     log,
		timeout: defaultTickTimeout,
	}
}

// Start registers the tick job and starts the cron runner. The schedule
// uses six-field cron syntax, seconds first (e.g. "*/15 * * * * *").
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runTick); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("evaluation scheduler started", "schedule", spec)
	return nil
}

// Stop halts the cron runner and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		s.log.Error("snapshot fetch failed", "error", err)
		return
	}

	if _, err := s.engine.Tick(ctx, snap, time.Now()); err != nil {
		if errors.Is(err, ErrClosed) {
			return
		}
		s.log.Error("tick failed", "error", err)
	}
}
