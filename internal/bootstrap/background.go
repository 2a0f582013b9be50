package bootstrap

import (
	"context"
	"fmt"
	"sync"

	pg "agent-hub/internal/infra/db/postgres"
	"agent-hub/internal/infra/sched"
	"agent-hub/internal/infra/worker"
)

// BackgroundOptions selects the loops a process runs next to its listener.
type BackgroundOptions struct {
	Workers   bool
	Schedules bool
}

// StartBackground launches queue gauges, pool gauges and, when asked, the
// worker loops and cron schedules. The returned function blocks until all
// of them have stopped; callers cancel ctx first.
func (c *Container) StartBackground(ctx context.Context, opts BackgroundOptions) (wait func(), err error) {
	var wg sync.WaitGroup
	cfg := c.Config

	stats := sched.NewQueueStatsWorker(cfg.Worker.StatsInterval, c.Repos.Jobs, c.Log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = stats.Run(ctx)
	}()

	if c.Pool != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pg.ReportPoolStats(ctx, c.Pool, cfg.Worker.StatsInterval, c.Log)
		}()
	}

	var cron *sched.CronEnqueuer
	if opts.Schedules && len(cfg.Schedules) > 0 {
		if cron, err = sched.NewCronEnqueuer(cfg.Schedules, c.Jobs, c.Log); err != nil {
			return nil, fmt.Errorf("schedules: %w", err)
		}
		cron.Start(ctx)
	}

	var pool *worker.Pool
	if opts.Workers {
		runner := c.NewRunner()
		pool = worker.NewPool(cfg.Worker.Workers, c.Log)
		pool.Start(ctx, runner.Loop)
		c.Log.Info().
			Int("workers", pool.Size()).
			Str("worker_id", runner.LoopID(0)).
			Dur("stale_timeout", cfg.Worker.StaleTimeout).
			Msg("worker loops started")
	}

	return func() {
		if cron != nil {
			cron.Stop()
		}
		if pool != nil {
			pool.Wait()
		}
		wg.Wait()
	}, nil
}
