// Package chromem provides a VectorIndex backed by chromem-go, an embedded
// vector database with optional on-disk persistence.
//
// Each namespace maps to one collection. The collection name carries the
// namespace key and the vector dimensions so both survive a restart.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/logger"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// Metadata keys stored on every document.
const (
	metaSource    = "source_id"
	metaOwner     = "owner_id"
	metaKind      = "kind"
	metaCategory  = "category"
	metaSequence  = "sequence"
	metaStart     = "start"
	metaEnd       = "end"
	metaPage      = "page"
	metaReference = "reference"
	metaArrived   = "arrived_at"
)

// errNoEmbedder is returned if chromem ever asks to embed text itself.
// Vectors are always computed by the embedding service.
var errNoEmbedder = errors.New("chromem: documents must carry precomputed embeddings")

// VectorIndex stores chunks in chromem collections.
type VectorIndex struct {
	mu sync.RWMutex
	db *chromem.DB
}

// New opens a vector index. An empty path keeps everything in memory.
func New(path string) (*VectorIndex, error) {
	if path == "" {
		return &VectorIndex{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening chromem database: %w", err)
	}
	return &VectorIndex{db: db}, nil
}

// Upsert inserts or replaces chunks. The batch is validated before any
// document is written.
func (v *VectorIndex) Upsert(ctx context.Context, ns domain.Namespace, chunks []domain.EmbeddedChunk) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	_, dims := v.find(ns)
	for _, ec := range chunks {
		if err := ns.Admits(ec.Chunk); err != nil {
			return err
		}
		if len(ec.Vector) == 0 {
			return fmt.Errorf("%w: chunk %s has no vector", domain.ErrInvalidInput, ec.Chunk.ID)
		}
		if dims == 0 {
			dims = len(ec.Vector)
		}
		if len(ec.Vector) != dims {
			return fmt.Errorf("%w: namespace %s holds %d dimensions, chunk %s has %d",
				domain.ErrDimensionMismatch, ns.Key(), dims, ec.Chunk.ID, len(ec.Vector))
		}
	}

	coll, err := v.db.GetOrCreateCollection(collectionName(ns, dims), nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("%w: opening collection: %v", domain.ErrIndexWrite, err)
	}

	ids := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	metadatas := make([]map[string]string, len(chunks))
	contents := make([]string, len(chunks))
	for i, ec := range chunks {
		ids[i] = ec.Chunk.ID
		embeddings[i] = ec.Vector
		metadatas[i] = chunkMetadata(ec.Chunk)
		contents[i] = ec.Chunk.Text
	}

	if err := coll.Add(ctx, ids, embeddings, metadatas, contents); err != nil {
		return fmt.Errorf("%w: adding documents: %v", domain.ErrIndexWrite, err)
	}
	return nil
}

// Search scores every document in the namespace and applies the floor.
// Ties are ordered by domain.SortHits rather than chromem's own ordering.
func (v *VectorIndex) Search(
	ctx context.Context, ns domain.Namespace, query []float32, k int, floor float64,
) ([]domain.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	coll, dims := v.find(ns)
	if coll == nil {
		return nil, nil
	}
	if len(query) != dims {
		return nil, fmt.Errorf("%w: namespace %s holds %d dimensions, query has %d",
			domain.ErrDimensionMismatch, ns.Key(), dims, len(query))
	}

	n := coll.Count()
	if n == 0 {
		return nil, nil
	}
	results, err := coll.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	hits := make([]domain.Hit, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if score < floor {
			continue
		}
		chunk, err := chunkFromResult(ns, r)
		if err != nil {
			logger.Warn("chromem: skipping document in %s: %v", ns.Key(), err)
			continue
		}
		hits = append(hits, domain.Hit{
			Chunk:     chunk,
			Score:     score,
			Namespace: ns,
		})
	}

	domain.SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteBySource removes every chunk of a unit with one metadata filter.
func (v *VectorIndex) DeleteBySource(ctx context.Context, ns domain.Namespace, sourceID string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	coll, _ := v.find(ns)
	if coll == nil {
		return 0, nil
	}

	before := coll.Count()
	if err := coll.Delete(ctx, map[string]string{metaSource: sourceID}, nil); err != nil {
		return 0, fmt.Errorf("%w: deleting documents: %v", domain.ErrIndexWrite, err)
	}
	return before - coll.Count(), nil
}

// DeleteOwner drops every collection of the owner.
func (v *VectorIndex) DeleteOwner(_ context.Context, ownerID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for name := range v.db.ListCollections() {
		ns, _, err := parseCollectionName(name)
		if err != nil || ns.OwnerID != ownerID {
			continue
		}
		if err := v.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("%w: deleting collection: %v", domain.ErrIndexWrite, err)
		}
	}
	return nil
}

// Namespaces lists the owner's non-empty namespaces ordered by key.
func (v *VectorIndex) Namespaces(_ context.Context, ownerID string) ([]domain.Namespace, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []domain.Namespace
	for name, coll := range v.db.ListCollections() {
		ns, _, err := parseCollectionName(name)
		if err != nil || ns.OwnerID != ownerID || coll.Count() == 0 {
			continue
		}
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// Close is a no-op. Persistent collections are written on every change.
func (v *VectorIndex) Close() error {
	return nil
}

// find returns the namespace collection and its dimensions.
// Caller holds v.mu.
func (v *VectorIndex) find(ns domain.Namespace) (*chromem.Collection, int) {
	key := ns.Key()
	for name, coll := range v.db.ListCollections() {
		k, dims, ok := splitCollectionName(name)
		if ok && k == key {
			return coll, dims
		}
	}
	return nil, 0
}

func collectionName(ns domain.Namespace, dims int) string {
	return ns.Key() + "#" + strconv.Itoa(dims)
}

// splitCollectionName reverses collectionName. Namespace keys are
// path-escaped so the last '#' always separates the dimensions.
func splitCollectionName(name string) (string, int, bool) {
	i := strings.LastIndexByte(name, '#')
	if i < 0 {
		return "", 0, false
	}
	dims, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return "", 0, false
	}
	return name[:i], dims, true
}

func parseCollectionName(name string) (domain.Namespace, int, error) {
	key, dims, ok := splitCollectionName(name)
	if !ok {
		return domain.Namespace{}, 0, fmt.Errorf("%w: collection name %q", domain.ErrInvalidInput, name)
	}
	ns, err := domain.ParseNamespace(key)
	return ns, dims, err
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

func chunkMetadata(c domain.Chunk) map[string]string {
	meta := map[string]string{
		metaSource:    c.SourceID,
		metaOwner:     c.OwnerID,
		metaKind:      string(c.Kind),
		metaCategory:  string(c.Category),
		metaSequence:  strconv.Itoa(c.Sequence),
		metaStart:     strconv.Itoa(c.Start),
		metaEnd:       strconv.Itoa(c.End),
		metaPage:      strconv.Itoa(c.Page),
		metaReference: c.Reference,
	}
	if !c.SourceArrivedAt.IsZero() {
		meta[metaArrived] = c.SourceArrivedAt.UTC().Format(time.RFC3339Nano)
	}
	return meta
}

// chunkFromResult rebuilds a chunk from document metadata. Malformed
// positions or arrival times are an error, never a silent zero.
func chunkFromResult(ns domain.Namespace, r chromem.Result) (domain.Chunk, error) {
	c := domain.Chunk{
		ID:        r.ID,
		SourceID:  r.Metadata[metaSource],
		OwnerID:   ns.OwnerID,
		Kind:      ns.Kind,
		Category:  ns.Category,
		Text:      r.Content,
		Reference: r.Metadata[metaReference],
	}
	for key, dst := range map[string]*int{
		metaSequence: &c.Sequence,
		metaStart:    &c.Start,
		metaEnd:      &c.End,
		metaPage:     &c.Page,
	} {
		n, err := strconv.Atoi(r.Metadata[key])
		if err != nil {
			return domain.Chunk{}, fmt.Errorf("document %s: %s: %w", r.ID, key, err)
		}
		*dst = n
	}
	if s, ok := r.Metadata[metaArrived]; ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return domain.Chunk{}, fmt.Errorf("document %s: %s: %w", r.ID, metaArrived, err)
		}
		c.SourceArrivedAt = t
	}
	return c, nil
}
