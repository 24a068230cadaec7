// Package cmd defines the CLI commands for the release tracker.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/release-tracker/internal/config"
	"github.com/JakeFAU/release-tracker/internal/refresh"
	"github.com/JakeFAU/release-tracker/internal/server"
)

var cfgFile string

type appKeyType string

const appKey appKeyType = "app"

// App is the slice of server.App the commands use, so tests can inject a
// fake.
type App interface {
	Logger() *zap.Logger
	Run(ctx context.Context) error
	Refresh(ctx context.Context) refresh.Result
	Close(ctx context.Context) error
}

// newApp is the application factory. Tests replace it.
var newApp = func(ctx context.Context, path string) (App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return server.Build(ctx, &cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Tracks Chromium and Electron release dates.",
		Long: `tracker keeps a reconciled calendar of Chromium milestones and Electron
releases, preserves administrator overrides across refreshes, and notifies
registered webhooks when data changes.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			appInstance, ok := cmd.Context().Value(appKey).(App)
			if !ok || appInstance == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := appInstance.Close(ctx); err != nil {
				appInstance.Logger().Warn("close failed", zap.Error(err))
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and TRACKER_* env vars otherwise)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRefreshCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
