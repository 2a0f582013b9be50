package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"agent-hub/internal/bootstrap"
	"agent-hub/internal/config"
	"agent-hub/internal/domain"
	"agent-hub/internal/infra/logging"
	"agent-hub/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	projectID := flag.String("project", "demo", "project id to seed")
	repoURL := flag.String("repo", "", "git URL or local path of the demo repository")
	objective := flag.String("objective", "Add a health endpoint. Document the endpoint in the README; add a smoke test for it.", "objective text")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		bootLog := logging.New(config.LogConfig{}, true)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, true)
	if *repoURL == "" {
		logger.Fatal().Msg("-repo is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bootstrap")
	}
	defer c.Close()

	// If the project already exists, keep its policy and objectives
	if p, err := c.Projects.Get(ctx, *projectID); err == nil {
		fmt.Printf("project %s already present (%s). No changes.\n", p.ID, p.RepoURL)
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		logger.Fatal().Err(err).Msg("lookup project")
	}

	p, err := c.Projects.Register(ctx, usecase.RegisterProjectParams{
		ID:      *projectID,
		Name:    "Demo project",
		RepoURL: *repoURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("register project")
	}
	fmt.Printf("seeded project: %s (repo=%s, branch=%s)\n", p.ID, p.RepoURL, p.DefaultBranch)

	obj, err := c.Objectives.Submit(ctx, usecase.SubmitObjectiveParams{
		ProjectID: p.ID,
		Text:      *objective,
		CreatedBy: "seed",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("submit objective")
	}
	fmt.Printf("seeded objective: %s (max %d work items)\n", obj.ID, obj.MaxWorkItems)

	job, err := c.Jobs.Enqueue(ctx, usecase.EnqueueParams{ProjectID: p.ID, RequestedBy: "seed"})
	if err != nil {
		logger.Fatal().Err(err).Msg("enqueue job")
	}
	fmt.Printf("seeded job: %s (max_items=%d, max_attempts=%d)\n", job.ID, job.MaxItems, job.MaxAttempts)
	fmt.Println("✅ Seeding complete.")
}
