package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Index PDF and .eml files",
	Long: `Extracts, classifies, chunks and embeds the given files.

PDF files are indexed as documents and .eml files as mail of the local
account. Ingesting the same file again replaces its previous chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if intakeService == nil {
		return errors.New("intake service not configured")
	}
	ownerID, err := owner()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	var failed int
	for _, path := range args {
		rec, err := ingestFile(cmd, ownerID, path)
		if err != nil {
			cmd.Printf("%s: %v\n", path, err)
			failed++
			continue
		}
		printRecordLine(cmd, filepath.Base(path), rec)
		if rec.Status == domain.StatusFailed {
			failed++
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files were not indexed", failed, len(args))
	}
	return nil
}

func ingestFile(cmd *cobra.Command, ownerID, path string) (*domain.IngestionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	ctx := commandContext(cmd)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return intakeService.IngestPDF(ctx, ownerID, filepath.Base(path), data)
	case ".eml":
		return intakeService.IngestEML(ctx, ownerID, data)
	default:
		return nil, errors.New("unsupported file type (want .pdf or .eml)")
	}
}

// printRecordLine prints one line summarising an ingestion outcome.
func printRecordLine(cmd *cobra.Command, label string, rec *domain.IngestionRecord) {
	cmd.Printf("%s: %s, %s (%d/%d chunks)",
		label, rec.Status, rec.Category, rec.IndexedChunks(), rec.TotalChunks)
	if rec.Reason != "" {
		cmd.Printf(" - %s", rec.Reason)
	}
	cmd.Printf(" [%s]\n", rec.SourceID)
}
