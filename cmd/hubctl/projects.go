package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"agent-hub/internal/infra/api"
	"agent-hub/internal/usecase"
)

func (c *cli) projectsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "projects", Short: "Register and inspect projects"}

	var p usecase.RegisterProjectParams
	register := &cobra.Command{
		Use:   "register <project-id>",
		Short: "Create or update a project; new projects get the default policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			p.ID = args[0]
			if p.Name == "" {
				p.Name = p.ID
			}
			project, err := ct.Projects.Register(cmd.Context(), p)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(project)
			}
			fmt.Fprintf(c.out, "registered %s (%s @ %s)\n", project.ID, project.RepoURL, project.DefaultBranch)
			return nil
		},
	}
	register.Flags().StringVar(&p.Name, "name", "", "display name (default: id)")
	register.Flags().StringVar(&p.RepoURL, "repo", "", "git URL or local path of the repository")
	register.Flags().StringVar(&p.DefaultBranch, "branch", "main", "default branch")
	register.Flags().StringVar(&p.ValidationCommand, "validation", "", "validation command (default from config)")
	_ = register.MarkFlagRequired("repo")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			projects, err := ct.Projects.List(cmd.Context())
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(projects)
			}
			for _, p := range projects {
				fmt.Fprintf(c.out, "%s  %s  %s@%s\n", p.ID, p.Name, p.RepoURL, p.DefaultBranch)
			}
			return nil
		},
	}

	policy := &cobra.Command{
		Use:   "policy <project-id>",
		Short: "Show the automation policy of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			pol, err := ct.Projects.Policy(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJSON(pol)
		},
	}

	cmd.AddCommand(register, list, policy)
	return cmd
}

func (c *cli) objectivesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "objectives", Short: "Submit objectives for decomposition"}

	var maxItems int
	add := &cobra.Command{
		Use:   "add <project-id> <text...>",
		Short: "Queue an objective; the next run splits it into work items",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			obj, err := ct.Objectives.Submit(cmd.Context(), usecase.SubmitObjectiveParams{
				ProjectID:    args[0],
				Text:         strings.Join(args[1:], " "),
				MaxWorkItems: maxItems,
				CreatedBy:    "hubctl",
			})
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(obj)
			}
			fmt.Fprintf(c.out, "objective %s queued for %s (max %d work items)\n", obj.ID, obj.ProjectID, obj.MaxWorkItems)
			return nil
		},
	}
	add.Flags().IntVar(&maxItems, "max-items", 0, "max work items, 1..12 (default 4)")
	cmd.AddCommand(add)
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token signed with http.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			tok, err := api.NewAuthManager("", cfg.HTTP.JWTSecret, false, c.log).Mint(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject, recorded as requested_by")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
