package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/vectors"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an in-memory implementation of driven.VectorIndex.
// Each namespace keeps its chunks in an arena of slots with an ID to
// slot map; deleted slots are reused.
type VectorIndex struct {
	mu     sync.RWMutex
	spaces map[string]*space
}

type space struct {
	mu       sync.RWMutex
	ns       domain.Namespace
	dims     int
	slots    []slot
	free     []int
	byID     map[string]int
	bySource map[string]map[int]struct{}
}

type slot struct {
	chunk  domain.Chunk
	vector []float32
	live   bool
}

// NewVectorIndex creates a new in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		spaces: make(map[string]*space),
	}
}

// Upsert inserts or replaces chunks. The whole call is validated before
// any slot changes, so it applies completely or not at all.
func (v *VectorIndex) Upsert(_ context.Context, ns domain.Namespace, chunks []domain.EmbeddedChunk) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	sp := v.spaceFor(ns)
	sp.mu.Lock()
	defer sp.mu.Unlock()

	dims := sp.dims
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

	sp.dims = dims
	for _, ec := range chunks {
		sp.put(ec)
	}
	return nil
}

// Search returns the best chunks in the namespace scoring at least floor.
func (v *VectorIndex) Search(
	_ context.Context, ns domain.Namespace, query []float32, k int, floor float64,
) ([]domain.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	v.mu.RLock()
	sp, ok := v.spaces[ns.Key()]
	v.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	sp.mu.RLock()
	defer sp.mu.RUnlock()

	if sp.dims != 0 && len(query) != sp.dims {
		return nil, fmt.Errorf("%w: namespace %s holds %d dimensions, query has %d",
			domain.ErrDimensionMismatch, ns.Key(), sp.dims, len(query))
	}

	var hits []domain.Hit
	for i := range sp.slots {
		s := &sp.slots[i]
		if !s.live {
			continue
		}
		score := vectors.Cosine(query, s.vector)
		if score < floor {
			continue
		}
		hits = append(hits, domain.Hit{Chunk: s.chunk, Score: score, Namespace: sp.ns})
	}

	domain.SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteBySource removes every chunk of a unit under one write lock.
func (v *VectorIndex) DeleteBySource(_ context.Context, ns domain.Namespace, sourceID string) (int, error) {
	v.mu.RLock()
	sp, ok := v.spaces[ns.Key()]
	v.mu.RUnlock()
	if !ok {
		return 0, nil
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	slots := sp.bySource[sourceID]
	for i := range slots {
		sp.release(i)
	}
	delete(sp.bySource, sourceID)
	return len(slots), nil
}

// DeleteOwner drops every namespace of the owner.
func (v *VectorIndex) DeleteOwner(_ context.Context, ownerID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for key, sp := range v.spaces {
		if sp.ns.OwnerID == ownerID {
			delete(v.spaces, key)
		}
	}
	return nil
}

// Namespaces lists the owner's non-empty namespaces ordered by key.
func (v *VectorIndex) Namespaces(_ context.Context, ownerID string) ([]domain.Namespace, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []domain.Namespace
	for _, sp := range v.spaces {
		if sp.ns.OwnerID != ownerID {
			continue
		}
		sp.mu.RLock()
		n := len(sp.byID)
		sp.mu.RUnlock()
		if n > 0 {
			out = append(out, sp.ns)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// Count returns the number of chunks stored in a namespace.
func (v *VectorIndex) Count(ns domain.Namespace) int {
	v.mu.RLock()
	sp, ok := v.spaces[ns.Key()]
	v.mu.RUnlock()
	if !ok {
		return 0
	}
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return len(sp.byID)
}

// Close releases all stored vectors.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.spaces = make(map[string]*space)
	return nil
}

func (v *VectorIndex) spaceFor(ns domain.Namespace) *space {
	key := ns.Key()

	v.mu.RLock()
	sp, ok := v.spaces[key]
	v.mu.RUnlock()
	if ok {
		return sp
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if sp, ok := v.spaces[key]; ok {
		return sp
	}
	sp = &space{
		ns:       ns,
		byID:     make(map[string]int),
		bySource: make(map[string]map[int]struct{}),
	}
	v.spaces[key] = sp
	return sp
}

// put writes a chunk into its existing slot or a free one.
// Caller holds the space write lock.
func (sp *space) put(ec domain.EmbeddedChunk) {
	c := ec.Chunk
	idx, exists := sp.byID[c.ID]
	if exists {
		old := sp.slots[idx].chunk.SourceID
		if old != c.SourceID {
			delete(sp.bySource[old], idx)
		}
	} else {
		idx = sp.alloc()
		sp.byID[c.ID] = idx
	}

	sp.slots[idx] = slot{chunk: c, vector: vectors.Clone(ec.Vector), live: true}
	if sp.bySource[c.SourceID] == nil {
		sp.bySource[c.SourceID] = make(map[int]struct{})
	}
	sp.bySource[c.SourceID][idx] = struct{}{}
}

func (sp *space) alloc() int {
	if n := len(sp.free); n > 0 {
		idx := sp.free[n-1]
		sp.free = sp.free[:n-1]
		return idx
	}
	sp.slots = append(sp.slots, slot{})
	return len(sp.slots) - 1
}

// release frees a slot. Caller holds the space write lock.
func (sp *space) release(idx int) {
	delete(sp.byID, sp.slots[idx].chunk.ID)
	sp.slots[idx] = slot{}
	sp.free = append(sp.free, idx)
}
