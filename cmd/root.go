// Package cmd holds the mkctl command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/mkctl/internal/config"
	"github.com/smazurov/mkctl/internal/logging"
	"github.com/smazurov/mkctl/internal/service"
	"github.com/smazurov/mkctl/internal/version"
)

// CreateRootCmd creates the daemon command. It runs until SIGINT or SIGTERM.
func CreateRootCmd() *cobra.Command {
	defaults := service.DefaultOptions()

	cmd := &cobra.Command{
		Use:           "mkctl",
		Short:         "Keyboard LED controller daemon",
		Long:          `Drives a keyboard's LEDs from a queue of display instructions scheduled locally or over NATS.`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringP("config", "c", defaults.Config, "Path to configuration file")
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.AddCommand(CreateValidateCmd())

	return cmd
}

// loadOptions applies the config file, environment and flags over the defaults.
func loadOptions(cmd *cobra.Command) (service.Options, error) {
	opts := service.DefaultOptions()
	if err := config.LoadConfig(&opts, cmd.Flags()); err != nil {
		return opts, fmt.Errorf("failed to load config: %w", err)
	}
	return opts, nil
}

func run(parent context.Context, opts service.Options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := service.New(opts)
	if err != nil {
		return err
	}
	logger := logging.GetLogger("main")

	if err := svc.Start(ctx); err != nil {
		logger.Error("Failed to start service", "error", err)
		return err
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	// Leave room for the join timeout plus transport shutdown.
	stopCtx, cancel := context.WithTimeout(context.Background(), opts.ControllerJoin+5*time.Second)
	defer cancel()
	if err := svc.Stop(stopCtx); err != nil {
		if errors.Is(err, service.ErrStopTimedOut) {
			logger.Error("Controller did not stop cleanly, device left open")
		}
		return err
	}
	return nil
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := CreateRootCmd().Execute(); err != nil {
		slog.Error("mkctl failed", "error", err)
		os.Exit(1)
	}
}
