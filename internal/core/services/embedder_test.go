package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/vectors"
)

func TestNewEmbedder_Defaults(t *testing.T) {
	e := NewEmbedder(newMockEmbeddingService(), EmbedderConfig{})

	assert.Equal(t, DefaultEmbedBatchSize, e.BatchSize())
	assert.Equal(t, DefaultEmbedTimeout, e.cfg.Timeout)
}

func TestEmbedderConfigFrom(t *testing.T) {
	cfg := EmbedderConfigFrom(domain.EmbeddingSettings{
		BatchSize:  8,
		Timeout:    5 * time.Second,
		Normalize:  true,
		Generation: "2",
	})

	assert.Equal(t, EmbedderConfig{BatchSize: 8, Timeout: 5 * time.Second, Normalize: true, Generation: "2"}, cfg)
}

func TestEmbedder_Version(t *testing.T) {
	tests := []struct {
		name       string
		dims       int
		generation string
		want       string
		probes     int
	}{
		{name: "reported dimensions", dims: 768, want: "topic-test@768"},
		{name: "probed dimensions", dims: 0, want: "topic-test@5", probes: 1},
		{name: "generation suffix", dims: 768, generation: "2", want: "topic-test@768+2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockEmbeddingService()
			svc.dims = tt.dims
			e := NewEmbedder(svc, EmbedderConfig{Generation: tt.generation})

			v, err := e.Version(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)

			// The size is cached after the first call.
			_, err = e.Version(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.probes, svc.calls())
		})
	}
}

func TestEmbedder_Version_Unavailable(t *testing.T) {
	e := NewEmbedder(nil, EmbedderConfig{})
	_, err := e.Version(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	svc := newMockEmbeddingService()
	svc.fail = func(int, []string) error { return errModelDown }
	e = NewEmbedder(svc, EmbedderConfig{})
	_, err = e.Version(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
}

func TestEmbedder_Embed_Batches(t *testing.T) {
	svc := newMockEmbeddingService()
	e := NewEmbedder(svc, EmbedderConfig{BatchSize: 2})

	texts := []string{"invoice", "meeting", "chapter", "sale", "invoice total"}
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)

	require.Len(t, vecs, len(texts))
	assert.Equal(t, 3, svc.calls())
	assert.Equal(t, topicVector("sale"), vecs[3])
}

func TestEmbedder_EmbedBatch_Normalize(t *testing.T) {
	e := NewEmbedder(newMockEmbeddingService(), EmbedderConfig{Normalize: true})

	vecs, err := e.EmbedBatch(context.Background(), []string{"invoice invoice total"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, vectors.Norm(vecs[0]), 1e-6)
}

func TestEmbedder_EmbedBatch_Empty(t *testing.T) {
	svc := newMockEmbeddingService()
	e := NewEmbedder(svc, EmbedderConfig{})

	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Zero(t, svc.calls())
}

func TestEmbedder_EmbedBatch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		vector  func(string) []float32
		fail    func(int, []string) error
		wantErr []error
	}{
		{
			name:    "model error",
			fail:    func(int, []string) error { return errModelDown },
			wantErr: []error{domain.ErrEmbeddingFailed, errModelDown},
		},
		{
			name:    "empty vector",
			vector:  func(string) []float32 { return nil },
			wantErr: []error{domain.ErrEmbeddingFailed},
		},
		{
			name: "mixed sizes",
			vector: func(text string) []float32 {
				if text == "b" {
					return []float32{1, 0}
				}
				return []float32{1, 0, 0}
			},
			wantErr: []error{domain.ErrEmbeddingFailed, domain.ErrDimensionMismatch},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockEmbeddingService()
			svc.vector = tt.vector
			svc.fail = tt.fail
			e := NewEmbedder(svc, EmbedderConfig{})

			_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}

func TestEmbedder_EmbedBatch_PinsDimensions(t *testing.T) {
	svc := newMockEmbeddingService()
	e := NewEmbedder(svc, EmbedderConfig{})

	_, err := e.EmbedBatch(context.Background(), []string{"first"})
	require.NoError(t, err)

	svc.vector = func(string) []float32 { return []float32{1, 2} }
	_, err = e.EmbedBatch(context.Background(), []string{"second"})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestEmbedder_EmbedBatch_Timeout(t *testing.T) {
	svc := newMockEmbeddingService()
	svc.delay = time.Second
	e := NewEmbedder(svc, EmbedderConfig{Timeout: 20 * time.Millisecond})

	_, err := e.EmbedBatch(context.Background(), []string{"slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, domain.IsRetryable(err))
}

func TestEmbedder_EmbedBatch_Cancelled(t *testing.T) {
	svc := newMockEmbeddingService()
	svc.delay = time.Second
	e := NewEmbedder(svc, EmbedderConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.EmbedBatch(ctx, []string{"never"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, domain.ErrEmbeddingFailed))
}
