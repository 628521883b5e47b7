package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question   string   `json:"question" jsonschema:"the question to answer from the indexed PDFs and emails"`
	Kinds      []string `json:"kinds,omitempty" jsonschema:"limit to content kinds: pdf, email"`
	Categories []string `json:"categories,omitempty" jsonschema:"limit to categories such as financial or transactional"`
	MaxResults int      `json:"max_results,omitempty" jsonschema:"maximum number of citations (default 5)"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer            string           `json:"answer"`
	NoRelevantContent bool             `json:"no_relevant_content"`
	Citations         []CitationOutput `json:"citations"`
}

// CitationOutput is one passage supporting an answer.
type CitationOutput struct {
	Rank       int     `json:"rank"`
	SourceID   string  `json:"source_id"`
	Reference  string  `json:"reference"`
	Kind       string  `json:"kind"`
	Category   string  `json:"category"`
	Score      float64 `json:"score"`
	Confidence string  `json:"confidence"`
	Text       string  `json:"text"`
}

// StatusInput is the input schema for the ingestion_status tool.
type StatusInput struct {
	SourceID string `json:"source_id,omitempty" jsonschema:"a single unit id; omit to list every unit"`
}

// StatusOutput is the output schema for the ingestion_status tool.
type StatusOutput struct {
	Units []UnitOutput `json:"units"`
	Count int          `json:"count"`
}

// UnitOutput summarises an ingestion record.
type UnitOutput struct {
	SourceID   string  `json:"source_id"`
	Title      string  `json:"title"`
	Kind       string  `json:"kind"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	Reason     string  `json:"reason,omitempty"`
	Chunks     int     `json:"chunks"`
	Indexed    int     `json:"indexed"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the user's PDFs and emails, with cited passages",
	}, s.handleAsk)

	if s.ports.Ingestion != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingestion_status",
			Description: "Show how documents and emails were classified and indexed",
		}, s.handleStatus)
	}
}

func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	query := domain.Query{
		OwnerID:    s.ports.OwnerID,
		Question:   input.Question,
		MaxResults: input.MaxResults,
	}
	for _, k := range input.Kinds {
		query.Kinds = append(query.Kinds, domain.ContentKind(k))
	}
	for _, c := range input.Categories {
		query.Categories = append(query.Categories, domain.Category(c))
	}

	result, err := s.ports.Query.Answer(ctx, query)
	if err != nil {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		Answer:            result.Answer,
		NoRelevantContent: result.NoRelevantContent,
		Citations:         make([]CitationOutput, len(result.Citations)),
	}
	for i, c := range result.Citations {
		output.Citations[i] = CitationOutput{
			Rank:       c.Rank,
			SourceID:   c.Chunk.SourceID,
			Reference:  c.Chunk.Reference,
			Kind:       c.Chunk.Kind.String(),
			Category:   c.Chunk.Category.String(),
			Score:      c.Score,
			Confidence: string(c.Confidence),
			Text:       c.Chunk.Text,
		}
	}
	if result.NoRelevantContent {
		output.Answer = "No indexed content is relevant to this question."
	}

	return nil, output, nil
}

func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	var records []domain.IngestionRecord
	if input.SourceID != "" {
		rec, err := s.ports.Ingestion.Status(ctx, input.SourceID)
		if err != nil {
			return nil, StatusOutput{}, err
		}
		if rec.OwnerID != s.ports.OwnerID {
			return nil, StatusOutput{}, domain.ErrNotFound
		}
		records = append(records, *rec)
	} else {
		var err error
		records, err = s.ports.Ingestion.List(ctx, s.ports.OwnerID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, StatusOutput{}, err
		}
	}

	output := StatusOutput{Units: make([]UnitOutput, len(records)), Count: len(records)}
	for i := range records {
		output.Units[i] = unitOutput(&records[i])
	}
	return nil, output, nil
}

func unitOutput(r *domain.IngestionRecord) UnitOutput {
	return UnitOutput{
		SourceID:   r.SourceID,
		Title:      r.Title,
		Kind:       r.Kind.String(),
		Category:   r.Category.String(),
		Confidence: r.Confidence,
		Status:     r.Status.String(),
		Reason:     r.Reason,
		Chunks:     r.TotalChunks,
		Indexed:    r.IndexedChunks(),
	}
}
