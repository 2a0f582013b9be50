// Command hubctl is the operator CLI. It talks to storage directly through
// the same configuration file the services use.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"agent-hub/internal/bootstrap"
	"agent-hub/internal/config"
	"agent-hub/internal/infra/logging"
)

type cli struct {
	cfgPath string
	dev     bool
	asJSON  bool
	verbose bool

	out       io.Writer
	container *bootstrap.Container
	cfg       *config.Config
	log       *zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{out: os.Stdout}
	root := c.rootCmd()
	err := root.ExecuteContext(ctx)
	c.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hubctl",
		Short:         "Operate the agent-hub autopilot job queue.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", "config.yaml", "path to YAML config file")
	root.PersistentFlags().BoolVar(&c.dev, "dev", false, "developer mode")
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "JSON output")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		c.jobsCmd(),
		c.runCmd(),
		c.sweepCmd(),
		c.statsCmd(),
		c.objectivesCmd(),
		c.projectsCmd(),
		c.tokenCmd(),
	)
	return root
}

// loadConfig reads configuration without connecting to anything.
func (c *cli) loadConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.LoadConfig(c.cfgPath, c.dev)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	lc := cfg.Log
	if !c.verbose {
		lc.Level = "error"
	}
	c.log = logging.NewWithWriter(lc, true, os.Stderr)
	return cfg, nil
}

// open connects the storage graph once per invocation.
func (c *cli) open(ctx context.Context) (*bootstrap.Container, error) {
	if c.container != nil {
		return c.container, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "memory" {
		c.log.Warn().Msg("in-memory storage: changes are lost when hubctl exits")
	}
	ct, err := bootstrap.New(ctx, cfg, c.log)
	if err != nil {
		return nil, err
	}
	c.container = ct
	return ct, nil
}

func (c *cli) close() {
	if c.container != nil {
		c.container.Close()
	}
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
