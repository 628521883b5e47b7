package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/vellum/internal/adapters/driving/watch"
	"github.com/custodia-labs/vellum/internal/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Index files dropped into a folder and run background tasks",
	Long: `Indexes PDF and .eml files already in the folder, then watches it for
new ones until interrupted. Scheduled mail sync and reconciliation run
in the background while watching.

Without an argument the folder set in ingestion.inbox_dir is watched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var watchNoScheduler bool

func init() {
	watchCmd.Flags().BoolVar(&watchNoScheduler, "no-scheduler", false, "do not run scheduled tasks")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if intakeService == nil || taskQueue == nil {
		return errors.New("intake service not configured")
	}
	ownerID, err := owner()
	if err != nil {
		return err
	}

	dir := ""
	if len(args) > 0 {
		dir = args[0]
	} else if settingsService != nil {
		settings, err := settingsService.Get()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		dir = settings.Ingestion.InboxDir
	}
	if dir == "" {
		return errors.New("no folder to watch: pass one or set ingestion.inbox_dir")
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	taskQueue.Start(ctx)
	defer taskQueue.Close()

	watcher := watch.New(dir, ownerID, intakeService, taskQueue)
	n, err := watcher.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	cmd.Printf("Queued %d existing files. Watching %s (Ctrl+C to stop)...\n", n, dir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	if scheduler != nil && !watchNoScheduler {
		g.Go(func() error {
			return scheduler.Start(gctx)
		})
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Warn("scheduler stop: %v", err)
			}
		}()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
