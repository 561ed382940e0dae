// Package main provides the flowgate sweeper: a scheduled process that
// feeds time-elapsed events to active instances so stalled stages can
// escalate or move on without any user action.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowgate/flowgate/pkg/engine"
	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/persistence"
)

type Sweeper struct {
	id     string
	store  persistence.Persistence
	engine *engine.Engine
	logger *slog.Logger
	cron   *cron.Cron
}

func NewSweeper(id string, store persistence.Persistence, eng *engine.Engine, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		id:     id,
		store:  store,
		engine: eng,
		logger: logger.With("module", "sweeper", "sweeper_id", id),
	}
}

// Start schedules sweeps on the given cron expression and blocks until
// the context is cancelled. Overlapping sweeps are skipped, not queued.
func (s *Sweeper) Start(ctx context.Context, cronExpr string) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return err
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(cronExpr, func() { s.Sweep(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Sweeper started", "cron", cronExpr)

	<-ctx.Done()
	s.Stop()

	return nil
}

// Sweep submits one time_elapsed event per active instance. The engine
// decides per instance whether any automation is actually due; the
// sweeper itself holds no schedule state.
func (s *Sweeper) Sweep(ctx context.Context) int {
	instances, err := s.store.Instances(ctx, persistence.InstanceFilter{
		Status: models.InstanceStatusActive,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list active instances", "error", err)

		return 0
	}

	fired := 0

	for _, instance := range instances {
		results, err := s.engine.SubmitEvent(ctx, instance.ID, models.WorkflowEvent{
			Type:       models.TriggerTimeElapsed,
			StageID:    instance.CurrentStage,
			OccurredAt: time.Now().UTC(),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Sweep event failed",
				"instance_id", instance.ID, "error", err)

			continue
		}

		fired += len(results)
	}

	s.logger.DebugContext(ctx, "Sweep finished",
		"instances", len(instances), "automations_fired", fired)

	return fired
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}

	s.logger.Info("Sweeper stopped")
}
