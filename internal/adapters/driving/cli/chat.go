package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/vellum/internal/adapters/driving/tui"
	"github.com/custodia-labs/vellum/internal/logger"
)

// chatCmd represents the chat command.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation over your indexed content.

Questions that refer back to the previous answer are resolved against it.
Background mail sync and reconciliation run while the chat is open.

Controls:
  Enter   - Ask
  Ctrl+R  - Keep follow-ups on the sources cited last
  Ctrl+N  - New conversation
  Esc     - Cancel the answer in progress
  Ctrl+C  - Quit`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Panic in chat: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
		}
	}()

	if queryService == nil {
		return errors.New("query service not configured")
	}
	ownerID, err := owner()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	// Chat is long-running, so background tasks run alongside it.
	if scheduler != nil {
		go func() {
			if err := scheduler.Start(ctx); err != nil {
				logger.Warn("scheduler stopped: %v", err)
			}
		}()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Warn("scheduler stop: %v", err)
			}
		}()
	}

	app, err := tui.NewApp(&tui.Ports{Query: queryService, OwnerID: ownerID})
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}

	if err := app.WithContext(ctx).Run(); err != nil {
		return fmt.Errorf("chat error: %w", err)
	}
	return nil
}
