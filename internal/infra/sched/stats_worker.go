package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
	"agent-hub/internal/infra/metrics"
)

var jobStatuses = []string{
	string(model.JobStatusQueued),
	string(model.JobStatusRunning),
	string(model.JobStatusSucceeded),
	string(model.JobStatusFailed),
	string(model.JobStatusCanceled),
}

// QueueStatsWorker periodically refreshes the queue gauges from the job store.
type QueueStatsWorker struct {
	interval time.Duration
	jobs     repository.JobRepository
	now      func() time.Time
	log      *zerolog.Logger
}

func NewQueueStatsWorker(interval time.Duration, jobs repository.JobRepository, logger *zerolog.Logger) *QueueStatsWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	l := logger.With().Str("component", "QueueStatsWorker").Logger()
	return &QueueStatsWorker{interval: interval, jobs: jobs, now: time.Now, log: &l}
}

func (w *QueueStatsWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting queue stats worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping queue stats worker")
			return ctx.Err()
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}

// Refresh reads one snapshot and publishes it. Failures only log.
func (w *QueueStatsWorker) Refresh(ctx context.Context) {
	st, err := w.jobs.Stats(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("queue stats refresh failed")
		return
	}
	counts := make(map[string]int, len(st.ByStatus))
	for s, n := range st.ByStatus {
		counts[string(s)] = n
	}
	metrics.SetJobsByStatus(counts, jobStatuses)
	metrics.SetOldestQueuedAge(st.OldestQueuedAge(w.now()).Seconds())
}
