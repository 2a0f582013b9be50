// Package bootstrap assembles the engine from configuration. Every binary
// under cmd/ builds the same graph and picks the parts it serves.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"agent-hub/internal/config"
	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/domain/ports/repository"
	"agent-hub/internal/infra/adapters/ai"
	"agent-hub/internal/infra/adapters/telegram"
	"agent-hub/internal/infra/db/memstore"
	pg "agent-hub/internal/infra/db/postgres"
	"agent-hub/internal/infra/events"
	red "agent-hub/internal/infra/redis"
	"agent-hub/internal/infra/worker"
	"agent-hub/internal/infra/workspace"
	"agent-hub/internal/usecase"
)

// Repositories is the storage side of the graph.
type Repositories struct {
	Jobs         repository.JobRepository
	Projects     repository.ProjectRepository
	Policies     repository.PolicyRepository
	WorkItems    repository.WorkItemRepository
	Objectives   repository.ObjectiveRepository
	PullRequests repository.PullRequestRepository
	Events       repository.EventRepository
	Tx           repository.TransactionManager
}

type Container struct {
	Config *config.Config
	Log    *zerolog.Logger

	Pool  *pgxpool.Pool // nil with the memory driver
	Redis *red.Client   // nil without redis.url

	Repos     Repositories
	Publisher adapter.EventPublisher
	Notifier  adapter.Notifier
	Locker    adapter.Locker
	Workspace adapter.Workspace
	Providers adapter.ProviderResolver
	Recorder  *usecase.EventRecorder

	Engine     usecase.OrchestrationUseCase
	Jobs       usecase.JobUseCase
	Projects   usecase.ProjectUseCase
	Objectives usecase.ObjectiveUseCase

	closers []func() error
}

// New connects every configured backend. On error everything opened so far
// is closed again.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Log: logger}
	if err := c.build(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context) (err error) {
	cfg, logger := c.Config, c.Log

	if cfg.Redis.URL != "" {
		if c.Redis, err = red.NewClient(ctx, &cfg.Redis); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		c.closers = append(c.closers, c.Redis.Close)
		c.Locker = red.NewLocker(c.Redis)
	} else {
		c.Locker = red.NewLocalLocker()
	}

	if err = c.openStorage(ctx); err != nil {
		return err
	}

	if c.Publisher, err = events.New(cfg.NATS, logger); err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	c.closers = append(c.closers, c.Publisher.Close)

	if c.Notifier, err = telegram.New(cfg.Telegram, logger); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	ws, err := workspace.NewGitWorkspace(workspace.Options{
		Root:           cfg.Workspace.Root,
		CommandTimeout: cfg.Workspace.CommandTimeout,
		Retries:        cfg.Workspace.CommandRetries,
		Remote:         cfg.Workspace.Remote,
		UserName:       cfg.Workspace.GitUserName,
		UserEmail:      cfg.Workspace.GitUserEmail,
	}, logger)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	c.Workspace = ws
	c.Providers = ai.NewResolver(cfg.Provider, logger)
	c.Recorder = usecase.NewEventRecorder(c.Repos.Events, c.Publisher, logger)

	c.Engine = usecase.NewOrchestrationUseCase(usecase.OrchestrationDeps{
		Projects:     c.Repos.Projects,
		Policies:     c.Repos.Policies,
		WorkItems:    c.Repos.WorkItems,
		Objectives:   c.Repos.Objectives,
		PullRequests: c.Repos.PullRequests,
		Events:       c.Repos.Events,
		Tx:           c.Repos.Tx,
		Workspace:    c.Workspace,
		Providers:    c.Providers,
		Locker:       c.Locker,
		Publisher:    c.Publisher,
	}, usecase.OrchestrationOptions{
		LockTTL:                  cfg.Redis.LockTTL,
		DefaultValidationCommand: cfg.Workspace.ValidationCommand,
		AutoPush:                 cfg.Workspace.AutoPush,
	}, logger)
	c.Jobs = usecase.NewJobUseCase(c.Repos.Jobs, c.Repos.Projects, c.Engine, usecase.JobDefaults{
		MaxItems:    cfg.Jobs.DefaultMaxItems,
		MaxAttempts: cfg.Jobs.DefaultMaxAttempts,
	}, logger)
	c.Projects = usecase.NewProjectUseCase(c.Repos.Projects, c.Repos.Policies, c.Repos.Tx, logger)
	c.Objectives = usecase.NewObjectiveUseCase(c.Repos.Projects, c.Repos.Objectives, c.Repos.Events, c.Publisher, logger)
	return nil
}

func (c *Container) openStorage(ctx context.Context) error {
	cfg := c.Config
	if cfg.Database.Driver == "memory" {
		c.Log.Warn().Msg("using in-memory storage; state is lost on exit")
		store := memstore.NewStore()
		c.Repos = Repositories{
			Jobs:         store.Jobs(),
			Projects:     store.Projects(),
			Policies:     store.Policies(),
			WorkItems:    store.WorkItems(),
			Objectives:   store.Objectives(),
			PullRequests: store.PullRequests(),
			Events:       store.Events(),
			Tx:           memstore.TxManager{},
		}
		return nil
	}

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	c.Pool = pool
	c.closers = append(c.closers, func() error { pool.Close(); return nil })

	var policies repository.PolicyRepository = pg.NewPolicyRepo(pool)
	if c.Redis != nil {
		policies = pg.NewPolicyRepoCacheDecorator(policies, c.Redis, cfg.Redis.TTL, c.Log)
	}
	c.Repos = Repositories{
		Jobs:         pg.NewJobRepo(pool),
		Projects:     pg.NewProjectRepo(pool),
		Policies:     policies,
		WorkItems:    pg.NewWorkItemRepo(pool),
		Objectives:   pg.NewObjectiveRepo(pool),
		PullRequests: pg.NewPullRequestRepo(pool),
		Events:       pg.NewEventRepo(pool),
		Tx:           pg.NewTxManager(pool),
	}
	return nil
}

// NewRunner builds a job runner for this process.
func (c *Container) NewRunner() *worker.JobRunner {
	w := c.Config.Worker
	return worker.NewJobRunner(c.Repos.Jobs, c.Engine, c.Recorder, c.Notifier, worker.RunnerOptions{
		WorkerID:          w.ID,
		PollInterval:      w.PollInterval,
		StaleTimeout:      w.StaleTimeout,
		HeartbeatInterval: w.HeartbeatInterval,
		ErrorBackoff:      w.ErrorBackoff,
	}, c.Log)
}

// Ready pings the backends that can go away at runtime.
func (c *Container) Ready(ctx context.Context) error {
	var errs []error
	if c.Pool != nil {
		if err := c.Pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases backends in reverse order of opening.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Log.Warn().Err(err).Msg("close failed")
		}
	}
	c.closers = nil
}
