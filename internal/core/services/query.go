package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/core/ports/driving"
	"github.com/custodia-labs/vellum/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// Query defaults.
const (
	DefaultFloor           = 0.35
	DefaultGenerateTimeout = 120 * time.Second
	maxSearchConcurrency   = 4
)

// QueryConfig holds retrieval and generation settings.
type QueryConfig struct {
	Floor           float64
	MaxResults      int
	Confidence      domain.ConfidenceThresholds
	FollowUpBoost   float64
	GenerateTimeout time.Duration
	MaxTokens       int
	Temperature     float64
}

// QueryConfigFrom extracts the query settings.
func QueryConfigFrom(s *domain.Settings) QueryConfig {
	return QueryConfig{
		Floor:           s.Retrieval.Floor,
		MaxResults:      s.Retrieval.MaxResults,
		Confidence:      s.Retrieval.Confidence,
		FollowUpBoost:   s.Retrieval.FollowUpBoost,
		GenerateTimeout: s.LLM.Timeout,
		MaxTokens:       s.LLM.MaxTokens,
		Temperature:     s.LLM.Temperature,
	}
}

// QueryService answers questions from an owner's indexed chunks.
type QueryService struct {
	index    driven.VectorIndex
	embedder *Embedder
	llm      driven.LLMService
	prompts  driven.PromptStore
	cfg      QueryConfig
}

// NewQueryService creates a query service. The embedder must be the one
// used for ingestion.
func NewQueryService(
	index driven.VectorIndex,
	embedder *Embedder,
	llm driven.LLMService,
	prompts driven.PromptStore,
	cfg QueryConfig,
) *QueryService {
	if cfg.Floor <= 0 {
		cfg.Floor = DefaultFloor
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = domain.DefaultMaxResults
	}
	if cfg.Confidence == (domain.ConfidenceThresholds{}) {
		cfg.Confidence = domain.DefaultConfidenceThresholds()
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = DefaultGenerateTimeout
	}
	return &QueryService{
		index:    index,
		embedder: embedder,
		llm:      llm,
		prompts:  prompts,
		cfg:      cfg,
	}
}

// Answer retrieves the best chunks across the owner's namespaces and
// asks the model to answer from them.
func (s *QueryService) Answer(ctx context.Context, q domain.Query) (*domain.QueryResult, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = s.cfg.MaxResults
	}

	version, err := s.embedder.Version(ctx)
	if err != nil {
		return nil, queryError("embed question", err)
	}
	vecs, err := s.embedder.EmbedBatch(ctx, []string{q.Question})
	if err != nil {
		return nil, queryError("embed question", err)
	}

	namespaces := s.candidates(q, version)
	hits, err := s.search(ctx, namespaces, vecs[0], limit, q.Prior)
	if err != nil {
		return nil, err
	}

	result := &domain.QueryResult{
		Question:   q.Question,
		Namespaces: namespaces,
	}
	if len(hits) == 0 {
		logger.Debug("no chunk above %.2f for %q", s.cfg.Floor, q.Question)
		result.NoRelevantContent = true
		return result, nil
	}

	for _, h := range hits {
		if h.Chunk.OwnerID != q.OwnerID {
			return nil, fmt.Errorf("%w: chunk %s in answer for %s", domain.ErrOwnerMismatch, h.Chunk.ID, q.OwnerID)
		}
	}

	result.Citations = make([]domain.Citation, len(hits))
	for i, h := range hits {
		result.Citations[i] = domain.Citation{
			Rank:       i + 1,
			Chunk:      h.Chunk,
			Score:      h.Score,
			Confidence: s.cfg.Confidence.Bucket(h.Score),
		}
	}

	// A caller that gave up before generation gets nothing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answer, err := s.generate(ctx, q, result.Citations)
	if err != nil {
		return nil, err
	}
	result.Answer = answer
	return result, nil
}

func validateQuery(q domain.Query) error {
	if strings.TrimSpace(q.OwnerID) == "" {
		return fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(q.Question) == "" {
		return fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}
	for _, k := range q.Kinds {
		if !k.IsValid() {
			return fmt.Errorf("%w: unknown content kind %q", domain.ErrInvalidInput, k)
		}
	}
	for _, c := range q.Categories {
		if !c.IsValid() {
			return fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, c)
		}
	}
	return nil
}

// candidates lists the namespaces allowed by the query filters at the
// current embedder version. A restricted follow-up only searches the
// namespaces its prior citations came from.
func (s *QueryService) candidates(q domain.Query, version string) []domain.Namespace {
	if q.Prior != nil && q.Prior.Restrict && len(q.Prior.Citations) > 0 {
		seen := make(map[domain.Namespace]bool)
		var out []domain.Namespace
		for _, c := range q.Prior.Citations {
			ns := domain.Namespace{
				OwnerID:         q.OwnerID,
				Kind:            c.Chunk.Kind,
				Category:        c.Chunk.Category,
				EmbedderVersion: version,
			}
			if !seen[ns] {
				seen[ns] = true
				out = append(out, ns)
			}
		}
		return out
	}

	kinds := q.Kinds
	if len(kinds) == 0 {
		kinds = domain.AllKinds()
	}

	var out []domain.Namespace
	for _, kind := range kinds {
		for _, cat := range domain.CategoriesFor(kind) {
			if len(q.Categories) > 0 && !containsCategory(q.Categories, cat) {
				continue
			}
			out = append(out, domain.Namespace{
				OwnerID:         q.OwnerID,
				Kind:            kind,
				Category:        cat,
				EmbedderVersion: version,
			})
		}
	}
	return out
}

func containsCategory(cats []domain.Category, c domain.Category) bool {
	for _, x := range cats {
		if x == c {
			return true
		}
	}
	return false
}

// search queries every namespace concurrently and fuses the hits by score.
// Chunks of sources cited in the prior turn are ranked with a boost; the
// reported score is the raw similarity.
func (s *QueryService) search(
	ctx context.Context,
	namespaces []domain.Namespace,
	vec []float32,
	limit int,
	prior *domain.Turn,
) ([]domain.Hit, error) {
	perNamespace := limit
	boosted := prior.CitedSources()
	if len(boosted) > 0 && s.cfg.FollowUpBoost > 0 {
		perNamespace = limit * 2
	}

	results := make([][]domain.Hit, len(namespaces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxSearchConcurrency)
	for i, ns := range namespaces {
		g.Go(func() error {
			hits, err := s.index.Search(gctx, ns, vec, perNamespace, s.cfg.Floor)
			if err != nil {
				return fmt.Errorf("search %s: %w", ns.Key(), err)
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var hits []domain.Hit
	for _, r := range results {
		hits = append(hits, r...)
	}

	rank := make([]float64, len(hits))
	for i, h := range hits {
		rank[i] = h.Score
		if boosted[h.Chunk.SourceID] {
			rank[i] += s.cfg.FollowUpBoost
		}
	}
	domain.SortHitsBy(hits, rank)

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// generate builds the grounding prompt and calls the model under the
// generation timeout.
func (s *QueryService) generate(ctx context.Context, q domain.Query, citations []domain.Citation) (string, error) {
	if s.llm == nil {
		return "", domain.ErrLLMUnavailable
	}

	prompt, err := s.buildPrompt(q, citations)
	if err != nil {
		return "", err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
	defer cancel()

	answer, err := s.llm.Generate(genCtx, prompt, driven.GenerateOptions{
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: no answer within %s", domain.ErrQueryTimeout, s.cfg.GenerateTimeout)
		}
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

func (s *QueryService) buildPrompt(q domain.Query, citations []domain.Citation) (string, error) {
	var passages strings.Builder
	for i, c := range citations {
		if i > 0 {
			passages.WriteString("\n\n")
		}
		fmt.Fprintf(&passages, "[%d] %s\n%s", c.Rank, c.Chunk.Reference, strings.TrimSpace(c.Chunk.Text))
	}

	tmpl, err := s.loadPrompt(driven.PromptGroundedAnswer)
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf(tmpl, passages.String(), q.Question)

	if q.Prior != nil {
		prefix, err := s.loadPrompt(driven.PromptFollowUp)
		if err != nil {
			return "", err
		}
		prompt = fmt.Sprintf(prefix, q.Prior.Question, q.Prior.Answer) + "\n" + prompt
	}
	return prompt, nil
}

func (s *QueryService) loadPrompt(name string) (string, error) {
	if s.prompts == nil {
		return "", fmt.Errorf("load prompt %s: no prompt store", name)
	}
	tmpl, err := s.prompts.Load(name)
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", name, err)
	}
	return tmpl, nil
}

// queryError maps embedding timeouts to domain.ErrQueryTimeout.
func queryError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", domain.ErrQueryTimeout, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
