package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

var (
	askLimit      int
	askJSON       bool
	askKinds      []string
	askCategories []string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about indexed content",
	Long: `Retrieves the passages most similar to the question and generates an
answer grounded in them. Each answer lists its citations with a
confidence level. When no passage is similar enough, no answer is
generated.

Use 'vellum chat' for follow-up questions.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askLimit, "limit", "n", 0, "maximum number of citations (0 = configured default)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the result as JSON")
	askCmd.Flags().StringSliceVar(&askKinds, "kind", nil, "only search these kinds (pdf, email)")
	askCmd.Flags().StringSliceVar(&askCategories, "category", nil, "only search these categories")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}
	ownerID, err := owner()
	if err != nil {
		return err
	}

	query := domain.Query{
		OwnerID:    ownerID,
		Question:   strings.Join(args, " "),
		MaxResults: askLimit,
	}
	for _, k := range askKinds {
		kind := domain.ContentKind(strings.ToLower(k))
		if !kind.IsValid() {
			return fmt.Errorf("unknown kind %q", k)
		}
		query.Kinds = append(query.Kinds, kind)
	}
	for _, c := range askCategories {
		category := domain.Category(strings.ToLower(c))
		if !category.IsValid() {
			return fmt.Errorf("unknown category %q", c)
		}
		query.Categories = append(query.Categories, category)
	}

	result, err := queryService.Answer(commandContext(cmd), query)
	if err != nil {
		if domain.IsRetryable(err) {
			return fmt.Errorf("answer failed, try again: %w", err)
		}
		return fmt.Errorf("answer failed: %w", err)
	}

	if askJSON {
		return outputAnswerJSON(cmd, result)
	}
	outputAnswer(cmd, result)
	return nil
}

type answerJSON struct {
	Question          string         `json:"question"`
	Answer            string         `json:"answer"`
	NoRelevantContent bool           `json:"no_relevant_content"`
	Citations         []citationJSON `json:"citations"`
}

type citationJSON struct {
	Rank       int     `json:"rank"`
	SourceID   string  `json:"source_id"`
	Reference  string  `json:"reference"`
	Category   string  `json:"category"`
	Score      float64 `json:"score"`
	Confidence string  `json:"confidence"`
	Text       string  `json:"text"`
}

func outputAnswerJSON(cmd *cobra.Command, result *domain.QueryResult) error {
	out := answerJSON{
		Question:          result.Question,
		Answer:            result.Answer,
		NoRelevantContent: result.NoRelevantContent,
		Citations:         make([]citationJSON, 0, len(result.Citations)),
	}
	for _, c := range result.Citations {
		out.Citations = append(out.Citations, citationJSON{
			Rank:       c.Rank,
			SourceID:   c.Chunk.SourceID,
			Reference:  c.Chunk.Reference,
			Category:   string(c.Chunk.Category),
			Score:      c.Score,
			Confidence: string(c.Confidence),
			Text:       c.Chunk.Text,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputAnswer(cmd *cobra.Command, result *domain.QueryResult) {
	if result.NoRelevantContent {
		cmd.Println("No indexed content is relevant to this question.")
		return
	}

	cmd.Println(result.Answer)
	if len(result.Citations) == 0 {
		return
	}

	cmd.Println()
	cmd.Println("Sources:")
	for _, c := range result.Citations {
		ref := c.Chunk.Reference
		if ref == "" {
			ref = c.Chunk.SourceID
		}
		cmd.Printf("  [%d] %s (%s, %.2f)\n", c.Rank, ref, c.Confidence, c.Score)
	}
}
