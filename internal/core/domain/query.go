package domain

import "sort"

// DefaultMaxResults is the number of citations returned when a query
// does not set a limit.
const DefaultMaxResults = 5

// Query is a natural-language question scoped to one owner.
type Query struct {
	// OwnerID restricts retrieval to the owner's namespaces.
	OwnerID string

	// Question is the user's question.
	Question string

	// Kinds optionally limits the content kinds searched.
	Kinds []ContentKind

	// Categories optionally limits the categories searched.
	Categories []Category

	// MaxResults bounds the number of citations. Zero means the default.
	MaxResults int

	// Prior is the previous turn when the question is a follow-up.
	Prior *Turn
}

// Turn is a completed question and answer used as follow-up context.
type Turn struct {
	// Question and Answer of the previous turn.
	Question string
	Answer   string

	// Citations of the previous turn.
	Citations []Citation

	// Restrict limits the follow-up search to the namespaces cited
	// by the previous turn.
	Restrict bool
}

// CitedSources returns the distinct source IDs cited by the turn.
func (t *Turn) CitedSources() map[string]bool {
	out := make(map[string]bool)
	if t == nil {
		return out
	}
	for _, c := range t.Citations {
		out[c.Chunk.SourceID] = true
	}
	return out
}

// ConfidenceLevel buckets a similarity score.
type ConfidenceLevel string

// Confidence levels.
const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ConfidenceThresholds holds the lower bounds of the high and medium buckets.
type ConfidenceThresholds struct {
	High   float64
	Medium float64
}

// DefaultConfidenceThresholds returns the default bucket bounds.
func DefaultConfidenceThresholds() ConfidenceThresholds {
	return ConfidenceThresholds{High: 0.8, Medium: 0.6}
}

// Bucket maps a score to a confidence level.
func (t ConfidenceThresholds) Bucket(score float64) ConfidenceLevel {
	switch {
	case score >= t.High:
		return ConfidenceHigh
	case score >= t.Medium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Hit is a chunk returned by a similarity search.
type Hit struct {
	// Chunk is the matched chunk.
	Chunk Chunk

	// Score is the cosine similarity to the query vector.
	Score float64

	// Namespace is the namespace the chunk was found in.
	Namespace Namespace
}

// SortHits orders hits by score descending, then by sequence ascending,
// then by source arrival ascending, then by chunk ID.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hitLess(hits[i], hits[j], hits[i].Score, hits[j].Score)
	})
}

// SortHitsBy orders hits like SortHits but ranks on the given scores,
// which are parallel to hits.
func SortHitsBy(hits []Hit, rank []float64) {
	idx := make([]int, len(hits))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return hitLess(hits[idx[a]], hits[idx[b]], rank[idx[a]], rank[idx[b]])
	})
	sorted := make([]Hit, len(hits))
	sortedRank := make([]float64, len(hits))
	for i, j := range idx {
		sorted[i] = hits[j]
		sortedRank[i] = rank[j]
	}
	copy(hits, sorted)
	copy(rank, sortedRank)
}

func hitLess(a, b Hit, scoreA, scoreB float64) bool {
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	if a.Chunk.Sequence != b.Chunk.Sequence {
		return a.Chunk.Sequence < b.Chunk.Sequence
	}
	if !a.Chunk.SourceArrivedAt.Equal(b.Chunk.SourceArrivedAt) {
		return a.Chunk.SourceArrivedAt.Before(b.Chunk.SourceArrivedAt)
	}
	return a.Chunk.ID < b.Chunk.ID
}

// Citation is a chunk supporting an answer.
type Citation struct {
	// Rank is the 1-based position in the result.
	Rank int

	// Chunk is the cited chunk.
	Chunk Chunk

	// Score is the similarity score.
	Score float64

	// Confidence is the bucketed score.
	Confidence ConfidenceLevel
}

// QueryResult is the answer to a query. It is never persisted.
type QueryResult struct {
	// Question is the question asked.
	Question string

	// Answer is the generated text. Empty when NoRelevantContent is set.
	Answer string

	// Citations support the answer, best first.
	Citations []Citation

	// NoRelevantContent is set when no chunk passed the similarity floor.
	// Generation is not invoked in that case.
	NoRelevantContent bool

	// Namespaces lists the namespaces that were searched.
	Namespaces []Namespace
}
