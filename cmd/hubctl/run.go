package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agent-hub/internal/domain/model"
)

func (c *cli) runCmd() *cobra.Command {
	var (
		maxItems int
		provider string
	)
	cmd := &cobra.Command{
		Use:   "run <project-id>",
		Short: "Run one orchestration pass now, bypassing the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-items") {
				maxItems = ct.Config.Jobs.DefaultMaxItems
			}
			out, err := ct.Jobs.RunSynchronously(cmd.Context(), args[0], maxItems, provider)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(out)
			}
			fmt.Fprintf(c.out, "project=%s processed=%d failed=%d created_prs=%d merged_prs=%d canceled=%v\n",
				out.ProjectID, out.ProcessedItems, out.Failed(), len(out.CreatedPRIDs), len(out.MergedPRIDs), out.Canceled)
			for _, r := range out.Items {
				line := fmt.Sprintf("  %s  %-9s", r.WorkItemID, r.Status)
				if r.PullRequestID != "" {
					line += fmt.Sprintf("  pr=%s merged=%v", r.PullRequestID, r.Merged)
				}
				if r.Error != "" {
					line += "  error=" + r.Error
				}
				fmt.Fprintln(c.out, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "work items to process, 0..50")
	cmd.Flags().StringVar(&provider, "provider", "", "content provider override")
	return cmd
}

func (c *cli) sweepCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Recover running jobs whose heartbeat is older than the stale timeout",
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = ct.Config.Worker.StaleTimeout
			}
			res, err := ct.Repos.Jobs.SweepStale(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(res)
			}
			fmt.Fprintf(c.out, "requeued=%d failed=%d\n", res.Requeued, res.Failed)
			for _, id := range res.FailedJobIDs {
				fmt.Fprintf(c.out, "  failed %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "staleness threshold (default worker.stale_timeout)")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			st, err := ct.Jobs.Stats(cmd.Context())
			if err != nil {
				return err
			}
			age := st.OldestQueuedAge(time.Now())
			if c.asJSON {
				counts := map[string]int{}
				for s, n := range st.ByStatus {
					counts[string(s)] = n
				}
				return c.printJSON(map[string]any{"by_status": counts, "oldest_queued_age_seconds": age.Seconds()})
			}
			statuses := []model.JobStatus{
				model.JobStatusQueued, model.JobStatusRunning, model.JobStatusSucceeded,
				model.JobStatusFailed, model.JobStatusCanceled,
			}
			for _, s := range statuses {
				fmt.Fprintf(c.out, "%-9s %d\n", s, st.ByStatus[s])
			}
			fmt.Fprintf(c.out, "oldest queued: %s\n", age.Truncate(time.Second))
			return nil
		},
	}
}
