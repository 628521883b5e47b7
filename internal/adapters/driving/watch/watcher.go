// Package watch ingests PDFs and saved emails dropped into an inbox directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driving"
	"github.com/custodia-labs/vellum/internal/core/services"
	"github.com/custodia-labs/vellum/internal/logger"
)

// DefaultSettle is how long a file must stay unchanged before it is queued.
const DefaultSettle = 500 * time.Millisecond

// Queue accepts ingestion tasks. *services.TaskQueue implements it.
type Queue interface {
	Submit(name string, task services.IngestTask) error
}

// Watcher queues new inbox files for ingestion.
type Watcher struct {
	dir     string
	ownerID string
	intake  driving.IntakeService
	queue   Queue

	// Settle debounces the burst of write events a copy produces.
	Settle time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
}

// New creates a watcher for dir.
func New(dir, ownerID string, intake driving.IntakeService, queue Queue) *Watcher {
	return &Watcher{
		dir:     dir,
		ownerID: ownerID,
		intake:  intake,
		queue:   queue,
		Settle:  DefaultSettle,
		pending: make(map[string]time.Time),
	}
}

// kindFor maps a file name to the content it holds.
func kindFor(path string) (domain.ContentKind, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return domain.KindPDF, true
	case ".eml":
		return domain.KindEmail, true
	default:
		return "", false
	}
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~")
}

// Scan queues every eligible file already in the directory.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("read inbox: %w", err)
	}

	queued := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return queued, ctx.Err()
		}
		path := filepath.Join(w.dir, e.Name())
		if e.IsDir() || isHidden(path) {
			continue
		}
		if _, ok := kindFor(path); !ok {
			continue
		}
		if err := w.enqueue(path); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

// Run watches the directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	logger.Info("watching %s", w.dir)

	ticker := time.NewTicker(w.Settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.handleFsEvent(event); ok {
				w.mu.Lock()
				w.pending[path] = time.Now()
				w.mu.Unlock()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error: %v", err)
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

// handleFsEvent returns the path to ingest for an event, if any.
func (w *Watcher) handleFsEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if isHidden(event.Name) {
		return "", false
	}
	if _, ok := kindFor(event.Name); !ok {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return "", false
	}
	return event.Name, true
}

// flush queues files that have been quiet for the settle period.
func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	var ready []string
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.Settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		if err := w.enqueue(path); err != nil {
			logger.Warn("queue %s: %v", filepath.Base(path), err)
		}
	}
}

func (w *Watcher) enqueue(path string) error {
	kind, _ := kindFor(path)
	name := filepath.Base(path)

	err := w.queue.Submit(name, func(ctx context.Context) (*domain.IngestionRecord, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if kind == domain.KindEmail {
			return w.intake.IngestEML(ctx, w.ownerID, data)
		}
		return w.intake.IngestPDF(ctx, w.ownerID, name, data)
	})
	if errors.Is(err, services.ErrQueueFull) {
		logger.Warn("queue full, %s will be picked up on the next scan", name)
	}
	return err
}
