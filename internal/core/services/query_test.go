package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
)

// foreignIndex returns a hit owned by someone else for every search.
type foreignIndex struct {
	driven.VectorIndex
}

func (f *foreignIndex) Search(_ context.Context, ns domain.Namespace, _ []float32, _ int, _ float64) ([]domain.Hit, error) {
	chunk := domain.Chunk{ID: "x#0", SourceID: "x", OwnerID: "mallory", Kind: ns.Kind, Category: ns.Category}
	return []domain.Hit{{Chunk: chunk, Score: 0.9, Namespace: ns}}, nil
}

type fusionFixture struct {
	emailNS domain.Namespace
	pdfNS   domain.Namespace
}

// seedFusion indexes one email chunk scoring 0.91 and one PDF chunk
// scoring 0.82 against every query.
func seedFusion(t *testing.T, h *harness) fusionFixture {
	t.Helper()
	ctx := context.Background()

	h.embed.dims = 3
	h.embed.vector = func(string) []float32 { return []float32{1, 0, 0} }
	version, err := h.embedder.Version(ctx)
	require.NoError(t, err)

	f := fusionFixture{
		emailNS: domain.Namespace{OwnerID: "alice", Kind: domain.KindEmail, Category: domain.CategoryTransactional, EmbedderVersion: version},
		pdfNS:   domain.Namespace{OwnerID: "alice", Kind: domain.KindPDF, Category: domain.CategoryFinancial, EmbedderVersion: version},
	}

	email := domain.Chunk{
		ID: domain.ChunkID("mail-1", 0), SourceID: "mail-1", OwnerID: "alice",
		Kind: domain.KindEmail, Category: domain.CategoryTransactional,
		Text: "Your order total was $310.00", Reference: "Your order, 2024-03-05",
	}
	pdf := domain.Chunk{
		ID: domain.ChunkID("stmt-1", 0), SourceID: "stmt-1", OwnerID: "alice",
		Kind: domain.KindPDF, Category: domain.CategoryFinancial,
		Text: "Statement balance $1,020.00", Reference: "statement.pdf p.1", Page: 1,
	}
	require.NoError(t, h.index.Upsert(ctx, f.emailNS, []domain.EmbeddedChunk{{Chunk: email, Vector: unitVector(0.91)}}))
	require.NoError(t, h.index.Upsert(ctx, f.pdfNS, []domain.EmbeddedChunk{{Chunk: pdf, Vector: unitVector(0.82)}}))
	return f
}

func TestNewQueryService_Defaults(t *testing.T) {
	s := NewQueryService(nil, nil, nil, nil, QueryConfig{})

	assert.Equal(t, DefaultFloor, s.cfg.Floor)
	assert.Equal(t, domain.DefaultMaxResults, s.cfg.MaxResults)
	assert.Equal(t, domain.DefaultConfidenceThresholds(), s.cfg.Confidence)
	assert.Equal(t, DefaultGenerateTimeout, s.cfg.GenerateTimeout)
}

func TestQueryService_Answer_Invoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ingestion.Ingest(ctx, invoiceUnit("inv-1", "alice"))
	require.NoError(t, err)
	_, err = h.ingestion.Ingest(ctx, essayUnit("essay-1", "alice", 3))
	require.NoError(t, err)

	result, err := h.query.Answer(ctx, domain.Query{
		OwnerID:  "alice",
		Question: "What is the total amount due on the invoice?",
	})
	require.NoError(t, err)

	assert.False(t, result.NoRelevantContent)
	assert.Equal(t, "The total due is $1,240.00 [1].", result.Answer)
	require.NotEmpty(t, result.Citations)

	top := result.Citations[0]
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, "inv-1", top.Chunk.SourceID)
	assert.Equal(t, domain.CategoryFinancial, top.Chunk.Category)
	assert.Equal(t, domain.ConfidenceHigh, top.Confidence)
	assert.Contains(t, top.Chunk.Text, "$1,240.00")
	for _, c := range result.Citations {
		assert.NotEqual(t, "essay-1", c.Chunk.SourceID)
	}

	require.Equal(t, 1, h.llm.calls())
	prompt := h.llm.prompts[0]
	assert.Contains(t, prompt, "[1] invoice-2041.pdf p.1")
	assert.Contains(t, prompt, "What is the total amount due on the invoice?")
	assert.Len(t, result.Namespaces, len(domain.AllCategories()))
}

func TestQueryService_Answer_ShortInvoiceAcrossPages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	unit := domain.NewDocumentUnit("inv-221", "alice", "invoice-221.pdf", []string{
		"INVOICE #221, $452.10, 2024-03-02",
		"Thank you for your business.",
		"Page 3 of 3",
	}, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))

	rec, err := h.ingestion.Ingest(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryFinancial, rec.Category)

	result, err := h.query.Answer(ctx, domain.Query{OwnerID: "alice", Question: "How much was invoice 221?"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Citations)

	top := result.Citations[0]
	assert.Equal(t, "inv-221", top.Chunk.SourceID)
	assert.Contains(t, top.Chunk.Text, "$452.10")
	assert.Equal(t, domain.ConfidenceHigh, top.Confidence)
}

func TestQueryService_Answer_EmptyOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ingestion.Ingest(ctx, invoiceUnit("inv-1", "alice"))
	require.NoError(t, err)

	result, err := h.query.Answer(ctx, domain.Query{
		OwnerID:  "carol",
		Question: "What is the total amount due on the invoice?",
	})
	require.NoError(t, err)

	assert.True(t, result.NoRelevantContent)
	assert.Empty(t, result.Citations)
	assert.Empty(t, result.Answer)
	assert.Zero(t, h.llm.calls())
}

func TestQueryService_Answer_CrossSourceFusion(t *testing.T) {
	h := newHarness(t)
	f := seedFusion(t, h)

	result, err := h.query.Answer(context.Background(), domain.Query{OwnerID: "alice", Question: "how much did I pay?"})
	require.NoError(t, err)

	require.Len(t, result.Citations, 2)
	assert.Equal(t, "mail-1", result.Citations[0].Chunk.SourceID)
	assert.InDelta(t, 0.91, result.Citations[0].Score, 1e-4)
	assert.Equal(t, f.emailNS.Kind, result.Citations[0].Chunk.Kind)
	assert.Equal(t, "stmt-1", result.Citations[1].Chunk.SourceID)
	assert.InDelta(t, 0.82, result.Citations[1].Score, 1e-4)
	assert.Equal(t, 2, result.Citations[1].Rank)
}

func TestQueryService_Answer_Filters(t *testing.T) {
	tests := []struct {
		name  string
		query domain.Query
		want  []string
	}{
		{
			name:  "kind",
			query: domain.Query{Kinds: []domain.ContentKind{domain.KindPDF}},
			want:  []string{"stmt-1"},
		},
		{
			name:  "category",
			query: domain.Query{Categories: []domain.Category{domain.CategoryTransactional}},
			want:  []string{"mail-1"},
		},
		{
			name:  "max results",
			query: domain.Query{MaxResults: 1},
			want:  []string{"mail-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			seedFusion(t, h)

			q := tt.query
			q.OwnerID = "alice"
			q.Question = "how much did I pay?"
			result, err := h.query.Answer(context.Background(), q)
			require.NoError(t, err)

			var got []string
			for _, c := range result.Citations {
				got = append(got, c.Chunk.SourceID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryService_Answer_Floor(t *testing.T) {
	h := newHarness(t)
	seedFusion(t, h)
	h.query.cfg.Floor = 0.95

	result, err := h.query.Answer(context.Background(), domain.Query{OwnerID: "alice", Question: "anything"})
	require.NoError(t, err)

	assert.True(t, result.NoRelevantContent)
	assert.Zero(t, h.llm.calls())
}

func TestQueryService_Answer_FollowUp(t *testing.T) {
	h := newHarness(t)
	seedFusion(t, h)
	h.query.cfg.FollowUpBoost = 0.1

	prior := &domain.Turn{
		Question: "What does my statement say?",
		Answer:   "The balance is $1,020.00 [1].",
		Citations: []domain.Citation{{
			Rank:  1,
			Chunk: domain.Chunk{SourceID: "stmt-1", OwnerID: "alice", Kind: domain.KindPDF, Category: domain.CategoryFinancial},
		}},
	}

	result, err := h.query.Answer(context.Background(), domain.Query{
		OwnerID:  "alice",
		Question: "And when is it due?",
		Prior:    prior,
	})
	require.NoError(t, err)

	require.Len(t, result.Citations, 2)
	assert.Equal(t, "stmt-1", result.Citations[0].Chunk.SourceID)
	assert.InDelta(t, 0.82, result.Citations[0].Score, 1e-4, "boost must not change the reported score")

	prompt := h.llm.prompts[0]
	assert.Contains(t, prompt, "What does my statement say?")
	assert.Contains(t, prompt, "The balance is $1,020.00 [1].")
	assert.Contains(t, prompt, "And when is it due?")

	prior.Restrict = true
	result, err = h.query.Answer(context.Background(), domain.Query{
		OwnerID:  "alice",
		Question: "And when is it due?",
		Prior:    prior,
	})
	require.NoError(t, err)

	require.Len(t, result.Citations, 1)
	assert.Equal(t, "stmt-1", result.Citations[0].Chunk.SourceID)
	require.Len(t, result.Namespaces, 1)
	assert.Equal(t, domain.KindPDF, result.Namespaces[0].Kind)
}

func TestQueryService_Answer_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		query domain.Query
	}{
		{"missing owner", domain.Query{Question: "why?"}},
		{"blank question", domain.Query{OwnerID: "alice", Question: "   "}},
		{"unknown kind", domain.Query{OwnerID: "alice", Question: "why?", Kinds: []domain.ContentKind{"fax"}}},
		{"unknown category", domain.Query{OwnerID: "alice", Question: "why?", Categories: []domain.Category{"spam"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.query.Answer(context.Background(), tt.query)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	assert.Zero(t, h.embed.calls())
}

func TestQueryService_Answer_GenerationTimeout(t *testing.T) {
	h := newHarness(t)
	seedFusion(t, h)
	h.llm.delay = time.Second
	h.query.cfg.GenerateTimeout = 20 * time.Millisecond

	_, err := h.query.Answer(context.Background(), domain.Query{OwnerID: "alice", Question: "how much?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQueryTimeout)
	assert.True(t, domain.IsRetryable(err))
}

func TestQueryService_Answer_EmbeddingTimeout(t *testing.T) {
	h := newHarness(t)
	seedFusion(t, h)
	h.embed.delay = time.Second
	h.query.embedder = NewEmbedder(h.embed, EmbedderConfig{Timeout: 20 * time.Millisecond})

	_, err := h.query.Answer(context.Background(), domain.Query{OwnerID: "alice", Question: "how much?"})
	assert.ErrorIs(t, err, domain.ErrQueryTimeout)
	assert.Zero(t, h.llm.calls())
}

func TestQueryService_Answer_CancelledBeforeGeneration(t *testing.T) {
	h := newHarness(t)
	seedFusion(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.query.Answer(ctx, domain.Query{OwnerID: "alice", Question: "how much?"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Zero(t, h.llm.calls())
}

func TestQueryService_Answer_OwnerMismatch(t *testing.T) {
	h := newHarness(t)
	seedFusion(t, h)
	h.query.index = &foreignIndex{VectorIndex: h.index}

	_, err := h.query.Answer(context.Background(), domain.Query{OwnerID: "alice", Question: "how much?"})
	assert.ErrorIs(t, err, domain.ErrOwnerMismatch)
	assert.Zero(t, h.llm.calls())
}

func TestQueryService_Answer_GenerationError(t *testing.T) {
	h := newHarness(t)
	seedFusion(t, h)
	h.llm.err = errors.New("model crashed")

	_, err := h.query.Answer(context.Background(), domain.Query{OwnerID: "alice", Question: "how much?"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate answer")
	assert.NotErrorIs(t, err, domain.ErrQueryTimeout)
}

func TestQueryService_Answer_NoModel(t *testing.T) {
	h := newHarness(t)
	seedFusion(t, h)
	h.query.llm = nil

	_, err := h.query.Answer(context.Background(), domain.Query{OwnerID: "alice", Question: "how much?"})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}
