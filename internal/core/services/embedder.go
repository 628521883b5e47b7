package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/vectors"
)

// Embedder defaults.
const (
	DefaultEmbedBatchSize = 16
	DefaultEmbedTimeout   = 30 * time.Second
)

// dimensionProbe is embedded once when the model's size is unknown.
const dimensionProbe = "dimension probe"

// EmbedderConfig tunes batching and vector post-processing.
type EmbedderConfig struct {
	BatchSize  int
	Timeout    time.Duration
	Normalize  bool
	Generation string
}

// EmbedderConfigFrom extracts the embedder settings.
func EmbedderConfigFrom(s domain.EmbeddingSettings) EmbedderConfig {
	return EmbedderConfig{
		BatchSize:  s.BatchSize,
		Timeout:    s.Timeout,
		Normalize:  s.Normalize,
		Generation: s.Generation,
	}
}

// Embedder wraps an embedding service with batching, per-batch timeouts,
// output validation and optional L2 normalisation. Ingestion and querying
// share one Embedder so both sides see identical vectors.
type Embedder struct {
	svc driven.EmbeddingService
	cfg EmbedderConfig

	mu   sync.Mutex
	dims int
}

// NewEmbedder creates an embedder.
func NewEmbedder(svc driven.EmbeddingService, cfg EmbedderConfig) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEmbedTimeout
	}
	return &Embedder{svc: svc, cfg: cfg}
}

// BatchSize returns the number of texts sent per model call.
func (e *Embedder) BatchSize() int {
	return e.cfg.BatchSize
}

// Version identifies the model and vector size, for example
// "nomic-embed-text@768". Namespaces are keyed by it so vectors of
// different models are never compared.
func (e *Embedder) Version(ctx context.Context) (string, error) {
	if e.svc == nil {
		return "", domain.ErrEmbeddingUnavailable
	}

	dims, err := e.dimensions(ctx)
	if err != nil {
		return "", err
	}

	v := fmt.Sprintf("%s@%d", e.svc.ModelName(), dims)
	if e.cfg.Generation != "" {
		v += "+" + e.cfg.Generation
	}
	return v, nil
}

func (e *Embedder) dimensions(ctx context.Context) (int, error) {
	e.mu.Lock()
	dims := e.dims
	e.mu.Unlock()
	if dims > 0 {
		return dims, nil
	}

	if d := e.svc.Dimensions(); d > 0 {
		e.mu.Lock()
		if e.dims == 0 {
			e.dims = d
		}
		dims = e.dims
		e.mu.Unlock()
		return dims, nil
	}

	vecs, err := e.EmbedBatch(ctx, []string{dimensionProbe})
	if err != nil {
		return 0, fmt.Errorf("probe embedding size: %w", err)
	}
	return len(vecs[0]), nil
}

// Embed embeds texts in batches. The result is parallel to texts.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		vecs, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end-1, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedBatch embeds one batch under the configured timeout.
// Model failures wrap domain.ErrEmbeddingFailed; a timeout additionally
// wraps context.DeadlineExceeded. Cancellation of ctx is returned as is.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.svc == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}

	batchCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	vecs, err := e.svc.EmbedBatch(batchCtx, texts)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(batchCtx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: no response within %s: %w",
				domain.ErrEmbeddingFailed, e.cfg.Timeout, context.DeadlineExceeded)
		default:
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailed, err)
		}
	}

	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: model returned %d vectors for %d texts",
			domain.ErrEmbeddingFailed, len(vecs), len(texts))
	}

	dims := len(vecs[0])
	if dims == 0 {
		return nil, fmt.Errorf("%w: model returned an empty vector", domain.ErrEmbeddingFailed)
	}
	for i, v := range vecs {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d: %w",
				domain.ErrEmbeddingFailed, i, len(v), dims, domain.ErrDimensionMismatch)
		}
	}
	if err := e.pinDimensions(dims); err != nil {
		return nil, err
	}

	if e.cfg.Normalize {
		for i, v := range vecs {
			vecs[i] = vectors.Normalize(v)
		}
	}
	return vecs, nil
}

// pinDimensions records the first observed size and rejects later
// batches of a different size.
func (e *Embedder) pinDimensions(dims int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dims == 0 {
		e.dims = dims
		return nil
	}
	if e.dims != dims {
		return fmt.Errorf("%w: model returned %d dimensions, expected %d: %w",
			domain.ErrEmbeddingFailed, dims, e.dims, domain.ErrDimensionMismatch)
	}
	return nil
}
