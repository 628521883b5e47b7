package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/vectors"
)

// vectorIndex implements driven.VectorIndex with brute-force cosine
// scoring over the rows of one namespace.
type vectorIndex struct {
	store *Store
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// Upsert inserts or replaces chunks in one transaction.
func (v *vectorIndex) Upsert(ctx context.Context, ns domain.Namespace, chunks []domain.EmbeddedChunk) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	key := ns.Key()
	dims, err := namespaceDims(ctx, tx, key)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (namespace, id, owner_id, source_id, kind, category, embedder_version,
			sequence, start_offset, end_offset, text, page, reference, source_arrived_at, dims, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, id) DO UPDATE SET
			source_id = excluded.source_id,
			sequence = excluded.sequence,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			text = excluded.text,
			page = excluded.page,
			reference = excluded.reference,
			source_arrived_at = excluded.source_arrived_at,
			dims = excluded.dims,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, ec := range chunks {
		c := ec.Chunk
		if err := ns.Admits(c); err != nil {
			return err
		}
		if len(ec.Vector) == 0 {
			return fmt.Errorf("%w: chunk %s has no vector", domain.ErrInvalidInput, c.ID)
		}
		if dims == 0 {
			dims = len(ec.Vector)
		}
		if len(ec.Vector) != dims {
			return fmt.Errorf("%w: namespace %s holds %d dimensions, chunk %s has %d",
				domain.ErrDimensionMismatch, key, dims, c.ID, len(ec.Vector))
		}

		_, err := stmt.ExecContext(ctx, key, c.ID, c.OwnerID, c.SourceID, string(c.Kind),
			string(c.Category), ns.EmbedderVersion, c.Sequence, c.Start, c.End, c.Text, c.Page,
			c.Reference, formatNullableTimeNano(c.SourceArrivedAt), len(ec.Vector),
			float32SliceToBytes(ec.Vector))
		if err != nil {
			return fmt.Errorf("%w: inserting chunk %s: %v", domain.ErrIndexWrite, c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing chunks: %v", domain.ErrIndexWrite, err)
	}
	return nil
}

// Search scores every chunk of the namespace against the query.
func (v *vectorIndex) Search(
	ctx context.Context, ns domain.Namespace, query []float32, k int, floor float64,
) ([]domain.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := v.store.db.QueryContext(ctx, `
		SELECT id, owner_id, source_id, kind, category, sequence, start_offset, end_offset,
			text, page, reference, source_arrived_at, dims, embedding
		FROM chunks WHERE namespace = ?
	`, ns.Key())
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []domain.Hit
	for rows.Next() {
		var c domain.Chunk
		var kind, category string
		var arrivedAt sql.NullString
		var dims int
		var blob []byte
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.SourceID, &kind, &category, &c.Sequence,
			&c.Start, &c.End, &c.Text, &c.Page, &c.Reference, &arrivedAt, &dims, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if dims != len(query) {
			return nil, fmt.Errorf("%w: namespace %s holds %d dimensions, query has %d",
				domain.ErrDimensionMismatch, ns.Key(), dims, len(query))
		}

		score := vectors.Cosine(query, bytesToFloat32Slice(blob))
		if score < floor {
			continue
		}
		c.Kind = domain.ContentKind(kind)
		c.Category = domain.Category(category)
		c.SourceArrivedAt = parseNullableTime(arrivedAt)
		hits = append(hits, domain.Hit{Chunk: c, Score: score, Namespace: ns})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	domain.SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteBySource removes every chunk of a unit in one statement.
func (v *vectorIndex) DeleteBySource(ctx context.Context, ns domain.Namespace, sourceID string) (int, error) {
	res, err := v.store.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE namespace = ? AND source_id = ?", ns.Key(), sourceID)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting chunks: %v", domain.ErrIndexWrite, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted chunks: %w", err)
	}
	return int(n), nil
}

// DeleteOwner removes every chunk of the owner.
func (v *vectorIndex) DeleteOwner(ctx context.Context, ownerID string) error {
	_, err := v.store.db.ExecContext(ctx, "DELETE FROM chunks WHERE owner_id = ?", ownerID)
	if err != nil {
		return fmt.Errorf("%w: deleting owner chunks: %v", domain.ErrIndexWrite, err)
	}
	return nil
}

// Namespaces lists the owner's non-empty namespaces ordered by key.
func (v *vectorIndex) Namespaces(ctx context.Context, ownerID string) ([]domain.Namespace, error) {
	rows, err := v.store.db.QueryContext(ctx,
		"SELECT DISTINCT namespace FROM chunks WHERE owner_id = ?", ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying namespaces: %w", err)
	}
	defer rows.Close()

	var out []domain.Namespace //nolint:prealloc // size unknown from query
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning namespace: %w", err)
		}
		ns, err := domain.ParseNamespace(key)
		if err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating namespaces: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// Close is a no-op; the Store owns the connection.
func (v *vectorIndex) Close() error {
	return nil
}

func namespaceDims(ctx context.Context, tx *sql.Tx, key string) (int, error) {
	var dims int
	err := tx.QueryRowContext(ctx, "SELECT dims FROM chunks WHERE namespace = ? LIMIT 1", key).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading namespace dimensions: %w", err)
	}
	return dims, nil
}
