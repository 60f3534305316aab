// Package cronsched implements the in-process cron scheduler (§4.8): a
// ticker loop that fires due crons, creating a thread (if needed) and a
// run per firing, then advances next_run_date. Grounded on the teacher's
// pkg/cleanup/service.go ticker-loop shape, using robfig/cron/v3 for
// schedule parsing instead of a fixed interval.
package cronsched

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/codeready-toolchain/agentrt/pkg/engine"
	"github.com/codeready-toolchain/agentrt/pkg/metrics"
	"github.com/codeready-toolchain/agentrt/pkg/reqctx"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// Scheduler polls the store for due crons every tick and fires them.
type Scheduler struct {
	store    store.Store
	engine   *engine.Engine
	metrics  *metrics.Registry
	logger   *slog.Logger
	interval time.Duration
	parser   cron.Parser
}

// New builds a Scheduler that checks for due crons every interval.
func New(st store.Store, eng *engine.Engine, m *metrics.Registry, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Scheduler{
		store: st, engine: eng, metrics: m, logger: logger, interval: interval,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Run blocks, firing due crons on every tick, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.metrics.IncCronTick()
	now := time.Now().UTC()

	due, err := s.store.Crons().Due(ctx, now)
	if err != nil {
		s.logger.Error("cron_due_query_failed", "error", err)
		s.metrics.IncCronError()
		return
	}

	for _, c := range due {
		if err := s.fire(ctx, c, now); err != nil {
			s.logger.Error("cron_fire_failed", "cron_id", c.CronID, "error", err)
			s.metrics.IncCronError()
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, c *store.Cron, now time.Time) error {
	ctx = reqctx.WithIdentity(ctx, c.UserID)

	threadID := c.ThreadID
	if threadID == "" {
		thread, err := s.store.Threads().Create(ctx, store.Thread{}, c.UserID, store.IfExistsRaise)
		if err != nil {
			return err
		}
		threadID = thread.ThreadID
	}

	assistant, err := s.store.Assistants().Get(ctx, c.AssistantID, c.UserID)
	if err != nil {
		return err
	}

	input := engine.NormalizeInput(c.Payload["input"])
	config, _ := store.AsJSONMap(c.Payload["config"])

	strategy := store.MultitaskEnqueue
	if raw, ok := c.Payload["multitask_strategy"].(string); ok && raw != "" {
		strategy = store.MultitaskStrategy(raw)
	}

	run, err := s.engine.CreateRun(ctx, engine.CreateRunParams{
		ThreadID:          threadID,
		AssistantID:       c.AssistantID,
		Input:             input,
		Config:            config,
		MultitaskStrategy: strategy,
		Metadata:          store.JSONMap{"cron_id": c.CronID},
	})
	if err != nil {
		return err
	}

	go func() {
		runCtx := reqctx.WithIdentity(context.Background(), c.UserID)
		if _, _, err := s.engine.Execute(runCtx, run, assistant, nil, input, ""); err != nil {
			s.logger.Error("cron_run_failed", "cron_id", c.CronID, "run_id", run.RunID, "error", err)
		}
	}()

	next, err := s.computeNext(c.Schedule, now)
	if err != nil {
		return err
	}
	// Persist the resolved thread_id so a cron created without one binds to
	// the thread its first firing created, instead of spawning a fresh
	// thread on every subsequent tick.
	_, err = s.store.Crons().Update(ctx, c.CronID, store.JSONMap{"next_run_date": next, "thread_id": threadID}, c.UserID)
	return err
}

func (s *Scheduler) computeNext(schedule string, after time.Time) (time.Time, error) {
	sched, err := s.parser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
