package sched

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"agent-hub/internal/config"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
	"agent-hub/internal/usecase"
)

// CronEnqueuer queues autopilot jobs for projects on cron specs. A tick is
// skipped while the project already has a queued or running job.
type CronEnqueuer struct {
	cron   *cron.Cron
	jobs   usecase.JobUseCase
	ctx    context.Context
	cancel context.CancelFunc
	log    *zerolog.Logger
}

func NewCronEnqueuer(schedules []config.ScheduleConfig, jobs usecase.JobUseCase, logger *zerolog.Logger) (*CronEnqueuer, error) {
	l := logger.With().Str("component", "CronEnqueuer").Logger()
	cl := cronLogger{log: &l}
	e := &CronEnqueuer{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		jobs: jobs,
		ctx:  context.Background(),
		log:  &l,
	}
	for _, s := range schedules {
		s := s
		if _, err := e.cron.AddFunc(s.Cron, func() {
			if _, err := e.Tick(e.ctx, s); err != nil {
				e.log.Error().Err(err).Str("project_id", s.ProjectID).Msg("scheduled enqueue failed")
			}
		}); err != nil {
			return nil, fmt.Errorf("schedule for %s (%q): %w", s.ProjectID, s.Cron, err)
		}
	}
	return e, nil
}

// Entries is the number of registered schedules.
func (e *CronEnqueuer) Entries() int { return len(e.cron.Entries()) }

func (e *CronEnqueuer) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.cron.Start()
	e.log.Info().Int("schedules", e.Entries()).Msg("cron enqueuer started")
}

// Stop waits for running ticks to return.
func (e *CronEnqueuer) Stop() {
	<-e.cron.Stop().Done()
	if e.cancel != nil {
		e.cancel()
	}
	e.log.Info().Msg("cron enqueuer stopped")
}

// Tick enqueues one job for s unless the project is already scheduled.
func (e *CronEnqueuer) Tick(ctx context.Context, s config.ScheduleConfig) (bool, error) {
	for _, st := range []model.JobStatus{model.JobStatusQueued, model.JobStatusRunning} {
		active, err := e.jobs.List(ctx, repository.JobFilter{ProjectID: s.ProjectID, Status: st, Limit: 1})
		if err != nil {
			return false, err
		}
		if len(active) > 0 {
			e.log.Debug().Str("project_id", s.ProjectID).Str("job_id", active[0].ID).Msg("project busy; tick skipped")
			return false, nil
		}
	}
	job, err := e.jobs.Enqueue(ctx, usecase.EnqueueParams{
		ProjectID:   s.ProjectID,
		MaxItems:    s.MaxItems,
		MaxAttempts: s.MaxAttempts,
		RequestedBy: "cron",
	})
	if err != nil {
		return false, err
	}
	e.log.Info().Str("project_id", s.ProjectID).Str("job_id", job.ID).Msg("scheduled job enqueued")
	return true, nil
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct {
	log *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
