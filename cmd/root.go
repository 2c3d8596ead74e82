package main

import (
	"context"
	"fmt"
	"io"
	"os"

	service "github.com/okian/tnvs/internal/app"
	"github.com/okian/tnvs/internal/config"
	"github.com/okian/tnvs/pkg/logger"
	"github.com/spf13/cobra"
)

// cli carries what every subcommand needs once the root pre-run finished.
type cli struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "tnvs",
		Short: "TNVS operator performance and commission service",
		Long: `tnvs scores TNVS operators, assigns commission tiers, credits booking
commissions and boundary fees to operator wallets and pays them out.

Configuration is layered: defaults, a .env file, the YAML file named by
--config (or TNVS_CONFIG), then TNVS_* environment variables.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (overrides TNVS_CONFIG)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newScoreCmd(c),
		newLedgerCmd(c),
		newExportCmd(c),
		newPayoutsCmd(c),
	)
	return root
}

// setup loads configuration and initializes logging. The server logs to
// stdout; the other commands keep stdout for their output.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if c.configPath != "" {
		if err := os.Setenv("TNVS_CONFIG", c.configPath); err != nil {
			return err
		}
	}

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	var out io.Writer = cmd.ErrOrStderr()
	if cmd.Name() == "serve" {
		out = cmd.OutOrStdout()
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(out)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	c.cfg = cfg
	c.log = logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(cmd.Context(), "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

// withService starts a service for the duration of fn.
func (c *cli) withService(ctx context.Context, fn func(*service.Service) error) error {
	svc := service.New(service.WithConfig(c.cfg), service.WithLogger(c.log))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()
	return fn(svc)
}
