package mcp

import (
	"context"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driving"
)

// --- Mock implementations ---

type mockQueryService struct {
	result *domain.QueryResult
	err    error
	last   domain.Query
}

func (m *mockQueryService) Answer(_ context.Context, q domain.Query) (*domain.QueryResult, error) {
	m.last = q
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &domain.QueryResult{Question: q.Question, NoRelevantContent: true}, nil
	}
	return m.result, nil
}

// mockIngestionService serves records from a map; only the read
// methods are used by the server.
type mockIngestionService struct {
	driving.IngestionService
	records []domain.IngestionRecord
	err     error
}

func (m *mockIngestionService) List(_ context.Context, ownerID string) ([]domain.IngestionRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.IngestionRecord
	for _, r := range m.records {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockIngestionService) Status(_ context.Context, sourceID string) (*domain.IngestionRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.records {
		if m.records[i].SourceID == sourceID {
			rec := m.records[i]
			return &rec, nil
		}
	}
	return nil, domain.ErrNotFound
}

var _ driving.QueryService = (*mockQueryService)(nil)

func sampleRecords() []domain.IngestionRecord {
	return []domain.IngestionRecord{
		{
			SourceID: "u-1", OwnerID: "alice", Title: "invoice-2041.pdf",
			Kind: domain.KindPDF, Category: domain.CategoryFinancial, Confidence: 0.9,
			Status: domain.StatusCompleted, TotalChunks: 2,
		},
		{
			SourceID: "u-2", OwnerID: "alice", Title: "Team offsite",
			Kind: domain.KindEmail, Category: domain.CategoryBusiness, Confidence: 0.7,
			Status: domain.StatusPartial, Reason: domain.ReasonEmbeddingFailure, TotalChunks: 3, Pending: []int{2},
		},
		{
			SourceID: "u-3", OwnerID: "bob", Title: "bob.pdf",
			Kind: domain.KindPDF, Category: domain.CategoryGeneric, Status: domain.StatusCompleted,
		},
	}
}
