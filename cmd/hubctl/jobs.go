package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
	"agent-hub/internal/usecase"
)

func (c *cli) jobsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Enqueue, inspect, cancel and retry autopilot jobs"}
	cmd.AddCommand(c.jobsEnqueueCmd(), c.jobsGetCmd(), c.jobsListCmd(), c.jobsCancelCmd(), c.jobsRetryCmd())
	return cmd
}

func (c *cli) jobsEnqueueCmd() *cobra.Command {
	var p usecase.EnqueueParams
	cmd := &cobra.Command{
		Use:   "enqueue <project-id>",
		Short: "Queue an autopilot run for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			p.ProjectID = args[0]
			job, err := ct.Jobs.Enqueue(cmd.Context(), p)
			if err != nil {
				return err
			}
			return c.printJob(job)
		},
	}
	cmd.Flags().IntVar(&p.MaxItems, "max-items", 0, "work items per run, 1..50 (default from config)")
	cmd.Flags().IntVar(&p.MaxAttempts, "max-attempts", 0, "attempt budget, 1..10 (default from config)")
	cmd.Flags().StringVar(&p.Provider, "provider", "", "content provider override (rule_based|openai|gemini)")
	cmd.Flags().StringVar(&p.RequestedBy, "requested-by", "hubctl", "who asked for the run")
	return cmd
}

func (c *cli) jobsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			job, err := ct.Jobs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJob(job)
		},
	}
}

func (c *cli) jobsListCmd() *cobra.Command {
	var (
		f      repository.JobFilter
		status string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			f.Status = model.JobStatus(status)
			jobs, err := ct.Jobs.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(jobs)
			}
			for _, j := range jobs {
				c.printJobLine(j)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "filter by project id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (queued|running|succeeded|failed|canceled)")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "rows to skip")
	return cmd
}

func (c *cli) jobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			job, err := ct.Jobs.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJob(job)
		},
	}
}

func (c *cli) jobsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Requeue a failed or canceled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			job, err := ct.Jobs.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJob(job)
		},
	}
}

func (c *cli) printJob(j *model.Job) error {
	if c.asJSON {
		return c.printJSON(j)
	}
	c.printJobLine(j)
	if j.Error != "" {
		fmt.Fprintf(c.out, "  error: %s\n", j.Error)
	}
	if j.Result != nil {
		fmt.Fprintf(c.out, "  processed=%d created_prs=%d merged_prs=%d\n",
			j.Result.ProcessedItems, j.Result.CreatedPRs, j.Result.MergedPRs)
	}
	return nil
}

func (c *cli) printJobLine(j *model.Job) {
	fmt.Fprintf(c.out, "%s  %-9s  project=%s  attempts=%d/%d  items=%d  created=%s\n",
		j.ID, j.Status, j.ProjectID, j.AttemptCount, j.MaxAttempts, j.MaxItems,
		j.CreatedAt.Local().Format(time.DateTime))
}
