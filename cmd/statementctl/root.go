package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/financialstatementflow/internal/app"
	"github.com/Lllllllleong/financialstatementflow/internal/config"
	"github.com/Lllllllleong/financialstatementflow/internal/services"
)

var (
	envFile   string
	userID    string
	userEmail string
)

var rootCmd = &cobra.Command{
	Use:           "statementctl",
	Short:         "Operate the financial statement pipeline",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading the configuration")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "statementctl", "Requester id that receives status events")
	rootCmd.PersistentFlags().StringVar(&userEmail, "email", "", "Requester e-mail, used to resolve the tenant")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(selectPagesCmd)
	rootCmd.AddCommand(validateCmd)
}

// openApp loads the configuration, installs the logger and connects the clients.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	return app.New(ctx, cfg)
}

// runTask queues one task on a fresh worker and waits for its final state.
func runTask(ctx context.Context, a *app.App, task services.Task) (services.State, error) {
	done := make(chan services.State, 1)
	task.Done = func(st services.State) { done <- st }
	task.Requester = services.Requester{ID: userID, Email: userEmail}

	if err := a.Queue.Enqueue(task); err != nil {
		return services.State{}, err
	}
	if err := a.Worker.Start(ctx); err != nil {
		return services.State{}, err
	}
	defer a.Worker.Stop()

	select {
	case st := <-done:
		return st, st.Err
	case <-ctx.Done():
		return services.State{}, ctx.Err()
	}
}
