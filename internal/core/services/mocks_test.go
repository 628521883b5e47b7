package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vellum/internal/adapters/driven/config/file"
	"github.com/custodia-labs/vellum/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/vellum/internal/classifier"
	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/postprocessors/chunker"
)

// --- Mock implementations ---

// topicAxes gives every keyword group its own vector axis. The last axis
// is a constant bias so texts without keywords still embed.
var topicAxes = [][]string{
	{"invoice", "total", "amount", "due", "paid", "balance"},
	{"meeting", "agenda", "project", "deadline"},
	{"chapter", "history", "century", "war"},
	{"sale", "offer", "discount", "unsubscribe"},
}

func topicVector(text string) []float32 {
	lowered := strings.ToLower(text)
	vec := make([]float32, len(topicAxes)+1)
	for i, words := range topicAxes {
		for _, w := range words {
			vec[i] += float32(strings.Count(lowered, w))
		}
	}
	vec[len(topicAxes)] = 0.2
	return vec
}

// mockEmbeddingService implements driven.EmbeddingService for testing.
type mockEmbeddingService struct {
	mu      sync.Mutex
	model   string
	dims    int
	batches [][]string
	delay   time.Duration

	// vector overrides topicVector when set.
	vector func(text string) []float32

	// fail is consulted before each batch; call counts from 1.
	fail func(call int, texts []string) error
}

func newMockEmbeddingService() *mockEmbeddingService {
	return &mockEmbeddingService{model: "topic-test"}
}

func (m *mockEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	call := len(m.batches)
	fail := m.fail
	delay := m.delay
	vector := m.vector
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if fail != nil {
		if err := fail(call, texts); err != nil {
			return nil, err
		}
	}
	if vector == nil {
		vector = topicVector
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = vector(text)
	}
	return out, nil
}

func (m *mockEmbeddingService) Dimensions() int { return m.dims }

func (m *mockEmbeddingService) ModelName() string { return m.model }

func (m *mockEmbeddingService) Ping(context.Context) error { return nil }

func (m *mockEmbeddingService) Close() error { return nil }

func (m *mockEmbeddingService) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *mockEmbeddingService) setFail(fail func(call int, texts []string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// mockLLMService implements driven.LLMService for testing.
type mockLLMService struct {
	mu      sync.Mutex
	answer  string
	err     error
	delay   time.Duration
	prompts []string
}

func (m *mockLLMService) Generate(ctx context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

func (m *mockLLMService) ModelName() string { return "mock-llm" }

func (m *mockLLMService) Ping(context.Context) error { return nil }

func (m *mockLLMService) Close() error { return nil }

func (m *mockLLMService) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// flakyIndex wraps a vector index and fails upserts on demand.
type flakyIndex struct {
	driven.VectorIndex
	upsertErr error
}

func (f *flakyIndex) Upsert(ctx context.Context, ns domain.Namespace, chunks []domain.EmbeddedChunk) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.VectorIndex.Upsert(ctx, ns, chunks)
}

// failingRecords wraps an ingestion store and fails every Save from the
// failFrom-th call on. Zero never fails.
type failingRecords struct {
	driven.IngestionStore
	mu       sync.Mutex
	saves    int
	failFrom int
}

func (f *failingRecords) Save(ctx context.Context, rec domain.IngestionRecord) error {
	f.mu.Lock()
	f.saves++
	fail := f.failFrom > 0 && f.saves >= f.failFrom
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.IngestionStore.Save(ctx, rec)
}

var (
	errModelDown = errors.New("connection refused")
	errDiskFull  = errors.New("disk full")
)

// --- Test harness ---

type harness struct {
	units     *memory.UnitStore
	records   *memory.IngestionStore
	syncs     *memory.SyncStateStore
	index     *memory.VectorIndex
	embed     *mockEmbeddingService
	llm       *mockLLMService
	embedder  *Embedder
	locks     *IngestLocks
	ingestion *IngestionService
	query     *QueryService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	settings := domain.DefaultSettings()
	h := &harness{
		units:   memory.NewUnitStore(),
		records: memory.NewIngestionStore(),
		syncs:   memory.NewSyncStateStore(),
		index:   memory.NewVectorIndex(),
		embed:   newMockEmbeddingService(),
		llm:     &mockLLMService{answer: "The total due is $1,240.00 [1]."},
		locks:   NewIngestLocks(),
	}
	h.embedder = NewEmbedder(h.embed, EmbedderConfig{BatchSize: 4, Timeout: time.Second, Normalize: true})

	cls := classifier.New(settings.Classifier, nil)
	chk := chunker.New(chunker.WithPolicies(settings.Chunking), chunker.WithMinContentLength(20))
	h.ingestion = NewIngestionService(h.units, h.records, h.index, cls, chk, h.embedder, h.locks,
		IngestionConfig{MaxUnitBytes: domain.DefaultMaxUnitBytes})

	prompts, err := file.NewPromptStore(t.TempDir())
	require.NoError(t, err)
	h.query = NewQueryService(h.index, h.embedder, h.llm, prompts, QueryConfigFrom(&settings))
	return h
}

// ingestionWith builds an ingestion service sharing the harness stores but
// writing records through records.
func (h *harness) ingestionWith(records driven.IngestionStore) *IngestionService {
	settings := domain.DefaultSettings()
	return NewIngestionService(h.units, records, h.index,
		classifier.New(settings.Classifier, nil),
		chunker.New(chunker.WithPolicies(settings.Chunking), chunker.WithMinContentLength(20)),
		h.embedder, h.locks, IngestionConfig{MaxUnitBytes: domain.DefaultMaxUnitBytes})
}

func invoiceUnit(id, owner string) domain.SourceUnit {
	pages := []string{
		"ACME Supplies Ltd\nInvoice INV-2041\nDate: 2024-03-01\nDue: 2024-03-31\n\n" +
			"Item            Qty   Amount\n" +
			"Paper A4        10    $45.00\n" +
			"Toner           2     $180.00\n" +
			"Desk chairs     4     $1,015.00\n" +
			"Total amount due      $1,240.00\n",
	}
	return domain.NewDocumentUnit(id, owner, "invoice-2041.pdf", pages, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
}

func essayUnit(id, owner string, paragraphs int) domain.SourceUnit {
	var pages []string
	para := "The history of the river towns is a story of trade and slow change across the century. "
	for p := 0; p < paragraphs; p++ {
		pages = append(pages, strings.Repeat(para, 8))
	}
	return domain.NewDocumentUnit(id, owner, "essay.pdf", pages, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
}

func emailUnit(id, owner, subject, body string) domain.SourceUnit {
	return domain.SourceUnit{
		ID:        id,
		OwnerID:   owner,
		Kind:      domain.KindEmail,
		Title:     subject,
		Text:      "Subject: " + subject + "\n\n" + body,
		ArrivedAt: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
		Hints: domain.Hints{
			Sender:  "colleague@example.org",
			Subject: subject,
		},
	}
}

// unitVector returns a unit vector whose cosine with [1, 0, 0] is score.
func unitVector(score float64) []float32 {
	return []float32{float32(score), float32(math.Sqrt(1 - score*score)), 0}
}
