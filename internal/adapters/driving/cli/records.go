package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status [source-id]",
	Short: "Show the ingestion status of a unit",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed units",
	Long:  `Lists every PDF and message ingested for the owner with its status.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var retryCmd = &cobra.Command{
	Use:   "retry [source-id]",
	Short: "Re-embed the pending chunks of a partial unit",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Retry partial units and re-index stale ones",
	Long: `Retries every partial unit of the owner and re-ingests units that were
embedded with a different embedding model version.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [source-id]",
	Short: "Remove a unit and its chunks from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all data of the owner",
	Long: `Removes every namespace, chunk, unit, ingestion record and mail sync
cursor belonging to the owner. This cannot be undone.`,
	Args: cobra.NoArgs,
	RunE: runPurge,
}

var (
	listJSON   bool
	listStatus string
	purgeYes   bool
)

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output records as JSON")
	listCmd.Flags().StringVar(&listStatus, "status", "", "only show units with this status")
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "do not ask for confirmation")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(purgeCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	ownerID, err := owner()
	if err != nil {
		return err
	}

	rec, err := ingestionService.Status(commandContext(cmd), args[0])
	if err == nil && rec.OwnerID != ownerID {
		err = domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	cmd.Printf("Unit: %s\n\n", rec.SourceID)
	cmd.Printf("  Title:      %s\n", rec.Title)
	cmd.Printf("  Kind:       %s\n", rec.Kind)
	cmd.Printf("  Category:   %s (confidence %.2f)\n", rec.Category, rec.Confidence)
	cmd.Printf("  Status:     %s\n", rec.Status)
	if rec.Reason != "" {
		cmd.Printf("  Reason:     %s\n", rec.Reason)
	}
	cmd.Printf("  Chunks:     %d of %d indexed\n", rec.IndexedChunks(), rec.TotalChunks)
	cmd.Printf("  Embedder:   %s\n", rec.EmbedderVersion)
	cmd.Printf("  Attempts:   %d\n", rec.Attempts)
	cmd.Printf("  Updated:    %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	if rec.Retryable() {
		cmd.Printf("\nRun 'vellum retry %s' to index the pending chunks.\n", rec.SourceID)
	}
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	ownerID, err := owner()
	if err != nil {
		return err
	}

	records, err := ingestionService.List(commandContext(cmd), ownerID)
	if err != nil {
		return fmt.Errorf("failed to list units: %w", err)
	}

	if listStatus != "" {
		filtered := records[:0]
		for i := range records {
			if string(records[i].Status) == listStatus {
				filtered = append(filtered, records[i])
			}
		}
		records = filtered
	}

	if listJSON {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal records: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(records) == 0 {
		cmd.Println("No units indexed.")
		return nil
	}

	for i := range records {
		title := records[i].Title
		if title == "" {
			title = records[i].SourceID
		}
		printRecordLine(cmd, title, &records[i])
	}
	cmd.Printf("\nTotal: %d units\n", len(records))
	return nil
}

func runRetry(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	ownerID, err := owner()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	current, err := ingestionService.Status(ctx, args[0])
	if err == nil && current.OwnerID != ownerID {
		err = domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}

	rec, err := ingestionService.Retry(ctx, args[0])
	if err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}

	printRecordLine(cmd, rec.Title, rec)
	return nil
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	ownerID, err := owner()
	if err != nil {
		return err
	}

	n, err := ingestionService.Reconcile(commandContext(cmd), ownerID)
	if err != nil {
		return fmt.Errorf("reconcile failed after %d units: %w", n, err)
	}

	cmd.Printf("Reconciled %d units.\n", n)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	ownerID, err := owner()
	if err != nil {
		return err
	}

	if err := ingestionService.Delete(commandContext(cmd), ownerID, args[0]); err != nil {
		return fmt.Errorf("failed to delete unit: %w", err)
	}

	cmd.Printf("Unit %s removed from index.\n", args[0])
	return nil
}

func runPurge(cmd *cobra.Command, _ []string) error {
	if accountService == nil {
		return errors.New("account service not configured")
	}
	ownerID, err := owner()
	if err != nil {
		return err
	}

	if !purgeYes {
		cmd.Printf("Delete all indexed data of %q? Type the owner to confirm: ", ownerID)
		answer := readLine(bufio.NewReader(cmd.InOrStdin()))
		if strings.TrimSpace(answer) != ownerID {
			cmd.Println("Aborted.")
			return nil
		}
	}

	if err := accountService.DeleteOwnerData(commandContext(cmd), ownerID); err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	cmd.Printf("All data of %s deleted.\n", ownerID)
	return nil
}
