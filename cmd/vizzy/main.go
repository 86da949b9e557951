// Command vizzy serves the Vizzy chat API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hurricanerix/vizzy/internal/config"
	"github.com/hurricanerix/vizzy/internal/startup"
)

func main() {
	os.Exit(run(os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

func run(args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(getenv, serve)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newRootCmd builds the vizzy command. serveFn runs once the
// configuration is resolved.
func newRootCmd(getenv func(string) string, serveFn func(context.Context, *config.Config) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vizzy",
		Short:   "Conversational image generation service",
		Long:    "vizzy turns chat messages into art, posters, illustrated stories and more.\nConfiguration comes from defaults, an optional YAML file, the environment and flags, in that order.",
		Version: config.Version,
		Args:    cobra.NoArgs,

		SilenceUsage:  true,
		SilenceErrors: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(cmd.Flags(), getenv)
			if err != nil {
				return err
			}
			return serveFn(cmd.Context(), cfg)
		},
	}
	config.RegisterFlags(cmd.Flags(), config.Default())
	return cmd
}

// serve initializes every component and blocks until shutdown.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := startup.CreateLogger(cfg)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting vizzy %s...", config.Version)
	logger.Debug("Configuration: addr=%s, primary=%s, secondary=%s, images=%d, size=%dx%d, steps=%d, guidance=%.1f",
		cfg.Addr(), cfg.Primary.Kind, cfg.Secondary.Kind, cfg.Images, cfg.Width, cfg.Height, cfg.Steps, cfg.Guidance)
	logger.Debug("Narrative: %s, state store: %s", cfg.Narrative, cfg.StateStore)
	if cfg.File != "" {
		logger.Debug("Loaded configuration from %s", cfg.File)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	components, err := startup.InitializeAll(ctx, cfg, logger)
	if err != nil {
		logger.Error("Initialization failed: %v", err)
		return err
	}
	defer startup.Cleanup(components, logger)

	if err := startup.ValidateDependencies(ctx, cfg, components, logger); err != nil {
		logger.Error("Dependency validation failed: %v", err)
		return err
	}

	logger.Info("Listening on http://%s", cfg.Addr())
	if err := startup.Run(ctx, components.WebServer, logger); err != nil {
		logger.Error("Server error: %v", err)
		return err
	}
	return nil
}
