package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatherspace/server/internal/config"
	"github.com/gatherspace/server/internal/domain/events"
	"github.com/gatherspace/server/internal/storage/postgres"
)

var updateStatusesCmd = &cobra.Command{
	Use:   "update-statuses",
	Short: "Recompute event statuses once",
	Long: `Recompute upcoming/ongoing/completed for every event and persist
the rows whose status changed. The serve command runs the same pass
periodically; this is for manual runs and cron fallbacks.`,
	RunE: runUpdateStatuses,
}

func runUpdateStatuses(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	service := events.NewService(postgres.NewEventsRepository(pool), nil, logger)
	updated, err := service.UpdateStatuses(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update statuses: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "updated %d event(s)\n", updated)
	return nil
}
