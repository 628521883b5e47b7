package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/core/ports/driving"
	"github.com/custodia-labs/vellum/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// historyKeep is the number of results kept per task.
const historyKeep = 100

// ScheduleScope names the data the background tasks work on.
type ScheduleScope struct {
	// OwnerID is the owner whose accounts are synced and units reconciled.
	OwnerID string

	// Accounts are the mail accounts synced by the mail-sync task.
	Accounts []string

	// FetchLimit bounds the messages fetched per account and run.
	FetchLimit int
}

// Scheduler runs mail sync and reconciliation in the background.
// It is a pure core service with no external control API.
type Scheduler struct {
	config    domain.SchedulerConfig
	store     driven.SchedulerStore
	mailSync  driving.MailSyncService
	ingestion driving.IngestionService
	scope     ScheduleScope
	tick      time.Duration

	mu       sync.Mutex
	running  bool
	inFlight map[string]bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
// mailSync may be nil when no mail account is set up.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	mailSync driving.MailSyncService,
	ingestion driving.IngestionService,
	scope ScheduleScope,
) *Scheduler {
	return &Scheduler{
		config:    config,
		store:     store,
		mailSync:  mailSync,
		ingestion: ingestion,
		scope:     scope,
		tick:      time.Minute,
		inFlight:  make(map[string]bool),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		logger.Debug("scheduler disabled")
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Error("scheduler: failed to initialise tasks: %v", err)
	}

	return s.run(ctx, stopCh)
}

// Stop gracefully shuts down the scheduler and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	builtin := []struct {
		id, name string
	}{
		{domain.TaskIDMailSync, "Mail Sync"},
		{domain.TaskIDReconcile, "Reconcile"},
	}

	for _, b := range builtin {
		cfg := s.config.GetTaskConfig(b.id)
		if b.id == domain.TaskIDMailSync && (s.mailSync == nil || len(s.scope.Accounts) == 0) {
			cfg.Enabled = false
		}
		if err := s.ensureTask(ctx, b.id, b.name, cfg); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now().Add(cfg.Interval),
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Error("scheduler: failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		if !task.Enabled {
			continue
		}
		if !task.NextRun.After(now) {
			s.runTask(ctx, task)
		}
	}
}

// runTask executes a single task in the background. A task still running
// from an earlier tick is skipped.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.mu.Lock()
	if s.inFlight[task.ID] {
		s.mu.Unlock()
		logger.Debug("scheduler: %s still running", task.ID)
		return
	}
	s.inFlight[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, task.ID)
			s.mu.Unlock()
		}()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			OwnerID:   s.scope.OwnerID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDMailSync:
			var report domain.SyncReport
			report, err = s.runMailSync(ctx)
			result.Fetched = report.Fetched
			result.ItemsProcessed = report.Completed + report.Partial
			result.ItemsPartial = report.Partial
			result.ItemsFailed = report.Failed
		case domain.TaskIDReconcile:
			result.ItemsProcessed, err = s.runReconcile(ctx)
		default:
			logger.Warn("scheduler: unknown task ID: %s", task.ID)
			return
		}

		result.EndedAt = time.Now()
		if err != nil {
			result.Error = err.Error()
			task.LastError = err.Error()
			logger.Error("scheduler: %s failed: %v", task.ID, err)
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
		}

		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)

		// Bookkeeping outlives a cancelled run.
		store := context.WithoutCancel(ctx)
		if saveErr := s.store.SaveTask(store, task); saveErr != nil {
			logger.Error("scheduler: failed to save task %s: %v", task.ID, saveErr)
		}
		if recordErr := s.store.RecordResult(store, result); recordErr != nil {
			logger.Error("scheduler: failed to record result for %s: %v", task.ID, recordErr)
		}
		if pruneErr := s.store.PruneHistory(store, historyKeep); pruneErr != nil {
			logger.Error("scheduler: failed to prune history: %v", pruneErr)
		}
	}()
}

// runMailSync syncs every configured account and sums their reports.
func (s *Scheduler) runMailSync(ctx context.Context) (domain.SyncReport, error) {
	var total domain.SyncReport
	if s.mailSync == nil {
		return total, nil
	}

	var errs []error
	for _, account := range s.scope.Accounts {
		report, err := s.mailSync.Sync(ctx, s.scope.OwnerID, account, time.Time{}, s.scope.FetchLimit)
		if report != nil {
			total.Fetched += report.Fetched
			total.Completed += report.Completed
			total.Partial += report.Partial
			total.Failed += report.Failed
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", account, err))
		}
	}
	return total, errors.Join(errs...)
}

// runReconcile retries partial and stale units of the owner.
func (s *Scheduler) runReconcile(ctx context.Context) (int, error) {
	if s.ingestion == nil {
		return 0, nil
	}
	return s.ingestion.Reconcile(ctx, s.scope.OwnerID)
}
