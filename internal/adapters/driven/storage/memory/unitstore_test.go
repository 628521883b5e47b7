package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

func TestUnitStore_SaveGetDelete(t *testing.T) {
	store := NewUnitStore()
	ctx := context.Background()

	unit := domain.NewDocumentUnit("u1", "alice", "Invoice", []string{"Total $10.00"}, time.Now())
	require.NoError(t, store.Save(ctx, unit))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Invoice", got.Title)
	assert.Equal(t, "alice", got.OwnerID)

	require.NoError(t, store.Delete(ctx, "u1"))
	_, err = store.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUnitStore_DeleteOwner(t *testing.T) {
	store := NewUnitStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.SourceUnit{ID: "a1", OwnerID: "alice"}))
	require.NoError(t, store.Save(ctx, domain.SourceUnit{ID: "a2", OwnerID: "alice"}))
	require.NoError(t, store.Save(ctx, domain.SourceUnit{ID: "b1", OwnerID: "bob"}))

	require.NoError(t, store.DeleteOwner(ctx, "alice"))

	_, err := store.Get(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Get(ctx, "b1")
	assert.NoError(t, err)
}
