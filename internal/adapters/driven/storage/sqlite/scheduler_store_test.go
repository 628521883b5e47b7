package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// ==================== SchedulerStore Tests ====================

func TestSchedulerStore_SaveAndGetTask(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	now := time.Now().UTC().Truncate(time.Second)
	task := &domain.ScheduledTask{
		ID:          domain.TaskIDMailSync,
		Name:        "Mail Sync",
		Interval:    30 * time.Minute,
		LastRun:     now.Add(-30 * time.Minute),
		NextRun:     now,
		LastSuccess: now.Add(-30 * time.Minute),
		Enabled:     true,
	}
	require.NoError(t, schedulerStore.SaveTask(ctx, task))

	retrieved, err := schedulerStore.GetTask(ctx, domain.TaskIDMailSync)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, task.ID, retrieved.ID)
	assert.Equal(t, task.Name, retrieved.Name)
	assert.Equal(t, task.Interval, retrieved.Interval)
	assert.True(t, retrieved.Enabled)
	assert.WithinDuration(t, task.LastRun, retrieved.LastRun, time.Second)
	assert.WithinDuration(t, task.NextRun, retrieved.NextRun, time.Second)
	assert.WithinDuration(t, task.LastSuccess, retrieved.LastSuccess, time.Second)
}

func TestSchedulerStore_GetTask_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	task, err := store.SchedulerStore().GetTask(context.Background(), "non-existent")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestSchedulerStore_SaveTask_Update(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	task := &domain.ScheduledTask{ID: domain.TaskIDReconcile, Name: "Reconcile", Interval: 6 * time.Hour, Enabled: true}
	require.NoError(t, schedulerStore.SaveTask(ctx, task))

	task.Interval = 12 * time.Hour
	task.LastError = "embedding service unavailable"
	task.Enabled = false
	require.NoError(t, schedulerStore.SaveTask(ctx, task))

	retrieved, err := schedulerStore.GetTask(ctx, domain.TaskIDReconcile)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, retrieved.Interval)
	assert.Equal(t, "embedding service unavailable", retrieved.LastError)
	assert.False(t, retrieved.Enabled)
}

func TestSchedulerStore_SaveTask_NilTask(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.SchedulerStore().SaveTask(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSchedulerStore_ListAndDeleteTasks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	tasks, err := schedulerStore.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	require.NoError(t, schedulerStore.SaveTask(ctx, &domain.ScheduledTask{ID: "a", Name: "A", Interval: time.Hour}))
	require.NoError(t, schedulerStore.SaveTask(ctx, &domain.ScheduledTask{ID: "b", Name: "B", Interval: time.Hour}))

	tasks, err = schedulerStore.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	require.NoError(t, schedulerStore.DeleteTask(ctx, "a"))
	retrieved, err := schedulerStore.GetTask(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, retrieved)
}

func TestSchedulerStore_RecordResultAndHistory(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, schedulerStore.RecordResult(ctx, &domain.TaskResult{
		TaskID: domain.TaskIDReconcile, StartedAt: now.Add(-5 * time.Minute), EndedAt: now,
		Success: true, ItemsProcessed: 4,
	}))
	require.NoError(t, schedulerStore.RecordResult(ctx, &domain.TaskResult{
		TaskID: domain.TaskIDReconcile, StartedAt: now, EndedAt: now.Add(time.Minute),
		Success: false, Error: "index write failure",
	}))

	history, err := schedulerStore.GetTaskHistory(ctx, domain.TaskIDReconcile, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Most recent first
	assert.False(t, history[0].Success)
	assert.Equal(t, "index write failure", history[0].Error)
	assert.Equal(t, 4, history[1].ItemsProcessed)

	assert.ErrorIs(t, schedulerStore.RecordResult(ctx, nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, schedulerStore.RecordResult(ctx, &domain.TaskResult{}), domain.ErrInvalidInput)
}

func TestSchedulerStore_RecordResult_SyncCounts(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	now := time.Now().UTC().Truncate(time.Second)
	want := domain.TaskResult{
		TaskID: domain.TaskIDMailSync, OwnerID: "alice",
		StartedAt: now.Add(-time.Minute), EndedAt: now, Success: true,
		ItemsProcessed: 7, Fetched: 9, ItemsPartial: 2, ItemsFailed: 2,
	}
	require.NoError(t, schedulerStore.RecordResult(ctx, &want))

	history, err := schedulerStore.GetTaskHistory(ctx, domain.TaskIDMailSync, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	got := history[0]
	assert.WithinDuration(t, want.StartedAt, got.StartedAt, time.Second)
	assert.WithinDuration(t, want.EndedAt, got.EndedAt, time.Second)
	got.StartedAt, got.EndedAt = want.StartedAt, want.EndedAt
	assert.Equal(t, want, got)
}

func TestSchedulerStore_GetTaskHistory_BadTimestamp(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO task_results (task_id, started_at, ended_at, success)
		VALUES ('reconcile', 'yesterday', 'today', 1)
	`)
	require.NoError(t, err)

	_, err = store.SchedulerStore().GetTaskHistory(ctx, domain.TaskIDReconcile, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start time")
}

func TestSchedulerStore_PruneHistory(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 10; i++ {
		require.NoError(t, schedulerStore.RecordResult(ctx, &domain.TaskResult{
			TaskID:         domain.TaskIDMailSync,
			StartedAt:      now.Add(time.Duration(i) * time.Minute),
			EndedAt:        now.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Success:        true,
			ItemsProcessed: i + 1,
		}))
	}

	require.NoError(t, schedulerStore.PruneHistory(ctx, 3))

	history, err := schedulerStore.GetTaskHistory(ctx, domain.TaskIDMailSync, 100)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 10, history[0].ItemsProcessed)
	assert.Equal(t, 8, history[2].ItemsProcessed)
}

func TestSchedulerStore_TaskWithZeroTimes(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	require.NoError(t, schedulerStore.SaveTask(ctx, &domain.ScheduledTask{ID: "fresh", Name: "Fresh", Interval: time.Hour}))

	retrieved, err := schedulerStore.GetTask(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, retrieved.LastRun.IsZero())
	assert.True(t, retrieved.NextRun.IsZero())
	assert.True(t, retrieved.LastSuccess.IsZero())
}

// ==================== Helper Function Tests ====================

func TestFormatNullableTime(t *testing.T) {
	assert.Nil(t, formatNullableTime(time.Time{}))

	now := time.Now().UTC()
	assert.Equal(t, now.Format(time.RFC3339), formatNullableTime(now))
}

func TestBoolToInt(t *testing.T) {
	assert.Equal(t, 1, boolToInt(true))
	assert.Equal(t, 0, boolToInt(false))
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	assert.Equal(t, "hello", nullString("hello"))
}
