package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		assert.NoError(t, store.Close())
	}
	return store, cleanup
}

func TestNewStore_RecordsMigrations(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)

	var version int
	require.NoError(t, store.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 2, version)
	require.NoError(t, store.Close())

	// Reopening must not re-run applied migrations
	store, err = NewStore(dir)
	require.NoError(t, err)
	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)
	assert.Contains(t, store.Path(), "vellum.db")
	require.NoError(t, store.Close())
}

// ==================== UnitStore Tests ====================

func TestUnitStore_RoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	units := store.UnitStore()

	arrived := time.Date(2026, 4, 2, 10, 30, 0, 123456789, time.UTC)
	unit := domain.NewDocumentUnit("u1", "alice", "Lease.pdf", []string{"Page one", "Page two"}, arrived)
	require.NoError(t, units.Save(ctx, unit))

	got, err := units.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, unit.Text, got.Text)
	assert.Equal(t, unit.PageOffsets, got.PageOffsets)
	assert.Equal(t, 2, got.Hints.PageCount)
	assert.Equal(t, domain.KindPDF, got.Kind)
	assert.True(t, arrived.Equal(got.ArrivedAt))
}

func TestUnitStore_EmailHints(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	units := store.UnitStore()

	unit := domain.SourceUnit{
		ID: "m1", OwnerID: "alice", Kind: domain.KindEmail, Title: "Your receipt", Text: "Thanks",
		Hints: domain.Hints{
			Sender:  "billing@shop.example",
			Subject: "Your receipt",
			Headers: map[string]string{"List-Unsubscribe": "<mailto:u@shop.example>"},
		},
	}
	require.NoError(t, units.Save(ctx, unit))

	got, err := units.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, unit.Hints, got.Hints)
	assert.True(t, got.ArrivedAt.IsZero())
}

func TestUnitStore_DeleteAndNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	units := store.UnitStore()

	_, err := units.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, units.Save(ctx, domain.SourceUnit{ID: "a1", OwnerID: "alice", Kind: domain.KindPDF}))
	require.NoError(t, units.Save(ctx, domain.SourceUnit{ID: "b1", OwnerID: "bob", Kind: domain.KindPDF}))

	require.NoError(t, units.DeleteOwner(ctx, "alice"))
	_, err = units.Get(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, units.Delete(ctx, "b1"))
	_, err = units.Get(ctx, "b1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== IngestionStore Tests ====================

func TestIngestionStore_RoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	records := store.IngestionStore()

	rec := domain.IngestionRecord{
		SourceID:        "s1",
		OwnerID:         "alice",
		Kind:            domain.KindPDF,
		Title:           "Invoice.pdf",
		Category:        domain.CategoryFinancial,
		Confidence:      0.8,
		Status:          domain.StatusPartial,
		Reason:          domain.ReasonEmbeddingFailure,
		TotalChunks:     5,
		Pending:         []int{3, 4},
		EmbedderVersion: "nomic-embed-text@768",
		Attempts:        1,
		UpdatedAt:       time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, records.Save(ctx, rec))

	got, err := records.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, rec.Pending, got.Pending)
	assert.Equal(t, 3, got.IndexedChunks())
	assert.Equal(t, rec.Reason, got.Reason)
	assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
	assert.Equal(t, rec.Namespace(), got.Namespace())

	rec.Status = domain.StatusCompleted
	rec.Reason = ""
	rec.Pending = nil
	require.NoError(t, records.Save(ctx, rec))

	got, err = records.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Empty(t, got.Reason)
	assert.Nil(t, got.Pending)
}

func TestIngestionStore_ListByStatus(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	records := store.IngestionStore()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for _, r := range []domain.IngestionRecord{
		{SourceID: "a1", OwnerID: "alice", Kind: domain.KindPDF, Status: domain.StatusCompleted, UpdatedAt: base},
		{SourceID: "a2", OwnerID: "alice", Kind: domain.KindPDF, Status: domain.StatusPartial, UpdatedAt: base.Add(time.Minute)},
		{SourceID: "b1", OwnerID: "bob", Kind: domain.KindPDF, Status: domain.StatusPartial, UpdatedAt: base},
	} {
		require.NoError(t, records.Save(ctx, r))
	}

	partial, err := records.ListByStatus(ctx, "", domain.StatusPartial)
	require.NoError(t, err)
	require.Len(t, partial, 2)
	assert.Equal(t, "a2", partial[0].SourceID)

	all, err := records.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, records.DeleteOwner(ctx, "alice"))
	all, err = records.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, records.Delete(ctx, "b1"))
	_, err = records.Get(ctx, "b1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== SyncStateStore Tests ====================

func TestSyncStateStore_RoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	states := store.SyncStateStore()

	_, err := states.Get(ctx, "alice", "me@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cursor := time.Date(2026, 6, 1, 8, 0, 0, 500, time.UTC)
	require.NoError(t, states.Save(ctx, domain.SyncState{
		OwnerID: "alice", Account: "me@example.com", Cursor: cursor, LastSync: cursor.Add(time.Minute),
	}))

	got, err := states.Get(ctx, "alice", "me@example.com")
	require.NoError(t, err)
	assert.True(t, cursor.Equal(got.Cursor))

	require.NoError(t, states.DeleteOwner(ctx, "alice"))
	_, err = states.Get(ctx, "alice", "me@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFloat32Conversion(t *testing.T) {
	in := []float32{0.5, -1.25, 3}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}
