package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/core/ports/driving"
	"github.com/custodia-labs/vellum/internal/logger"
)

// Ensure IngestionService implements the interface.
var _ driving.IngestionService = (*IngestionService)(nil)

// IngestionConfig holds pipeline limits.
type IngestionConfig struct {
	// MaxUnitBytes rejects larger units. Zero disables the check.
	MaxUnitBytes int
}

// IngestionService runs units through classify, chunk, embed and index.
type IngestionService struct {
	units      driven.UnitStore
	records    driven.IngestionStore
	index      driven.VectorIndex
	classifier driven.Classifier
	chunker    driven.Chunker
	embedder   *Embedder
	locks      *IngestLocks
	cfg        IngestionConfig
	now        func() time.Time
}

// NewIngestionService creates an ingestion service. The locks must be
// shared with the AccountService so purges exclude ingestion.
func NewIngestionService(
	units driven.UnitStore,
	records driven.IngestionStore,
	index driven.VectorIndex,
	classifier driven.Classifier,
	chunker driven.Chunker,
	embedder *Embedder,
	locks *IngestLocks,
	cfg IngestionConfig,
) *IngestionService {
	return &IngestionService{
		units:      units,
		records:    records,
		index:      index,
		classifier: classifier,
		chunker:    chunker,
		embedder:   embedder,
		locks:      locks,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Ingest indexes a unit, replacing any previous version of it.
func (s *IngestionService) Ingest(ctx context.Context, unit domain.SourceUnit) (*domain.IngestionRecord, error) {
	if err := unit.Validate(s.cfg.MaxUnitBytes); err != nil {
		return nil, err
	}

	release := s.locks.Unit(unit.OwnerID, unit.ID)
	defer release()

	return s.ingestLocked(ctx, unit)
}

//nolint:gocyclo // Sequential pipeline steps
func (s *IngestionService) ingestLocked(ctx context.Context, unit domain.SourceUnit) (*domain.IngestionRecord, error) {
	prev, err := s.existingRecord(ctx, unit.ID)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.OwnerID != unit.OwnerID {
		return nil, fmt.Errorf("%w: unit %s already belongs to another owner", domain.ErrOwnerMismatch, unit.ID)
	}

	// An unreachable model is not fatal: the unit is recorded with every
	// chunk pending and Reconcile picks it up later.
	version, versionErr := s.embedder.Version(ctx)
	if versionErr != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cls := s.classifier.Classify(unit)
	ns := domain.NamespaceFor(unit, cls.Category, version)

	record := domain.IngestionRecord{
		SourceID:        unit.ID,
		OwnerID:         unit.OwnerID,
		Kind:            unit.Kind,
		Title:           unit.Title,
		Category:        cls.Category,
		Confidence:      cls.Confidence,
		Status:          domain.StatusPartial,
		Reason:          domain.ReasonInProgress,
		EmbedderVersion: version,
		Attempts:        1,
	}
	if prev != nil {
		record.Attempts = prev.Attempts + 1
	}

	if err := s.units.Save(ctx, unit); err != nil {
		return nil, fmt.Errorf("save unit: %w", err)
	}

	chunks := s.chunker.Chunk(unit, cls)
	record.TotalChunks = len(chunks)
	record.Pending = sequences(chunks)

	// Crash marker: a unit left in progress is retried by Reconcile. It is
	// written before any existing chunk is removed.
	if err := s.save(ctx, &record); err != nil {
		return nil, err
	}

	if err := s.removeChunks(ctx, prev, ns, unit.ID); err != nil {
		logger.Warn("%v", err)
		record.Status = domain.StatusFailed
		record.Reason = domain.ReasonIndexWrite
		return s.finish(ctx, &record, err)
	}

	if len(chunks) == 0 {
		record.Status = domain.StatusFailed
		record.Reason = domain.ReasonNoContent
		return s.finish(ctx, &record, nil)
	}

	if versionErr != nil {
		logger.Warn("embedding unavailable for %s: %v", unit.ID, versionErr)
		record.Reason = domain.ReasonEmbeddingFailure
		return s.finish(ctx, &record, nil)
	}

	logger.Debug("ingesting %s: %s, %d chunks into %s", unit.ID, cls.Category, len(chunks), ns.Key())
	err = s.indexChunks(ctx, &record, ns, chunks)
	return s.finish(ctx, &record, err)
}

// removeChunks deletes the unit's chunks from its previous namespace and
// from the namespace it is about to be written to.
func (s *IngestionService) removeChunks(ctx context.Context, prev *domain.IngestionRecord, ns domain.Namespace, sourceID string) error {
	var targets []domain.Namespace
	if prev != nil && prev.EmbedderVersion != "" {
		targets = append(targets, prev.Namespace())
	}
	if ns.EmbedderVersion != "" && (len(targets) == 0 || targets[0] != ns) {
		targets = append(targets, ns)
	}

	for _, target := range targets {
		n, err := s.index.DeleteBySource(ctx, target, sourceID)
		if err != nil {
			return fmt.Errorf("%w: removing previous chunks: %w", domain.ErrIndexWrite, err)
		}
		if n > 0 {
			logger.Debug("removed %d previous chunks of %s from %s", n, sourceID, target.Key())
		}
	}
	return nil
}

// removeStale deletes the unit's chunks from every namespace of the same
// owner and kind except keep.
func (s *IngestionService) removeStale(ctx context.Context, keep domain.Namespace, sourceID string) error {
	namespaces, err := s.index.Namespaces(ctx, keep.OwnerID)
	if err != nil {
		return fmt.Errorf("%w: listing namespaces: %w", domain.ErrIndexWrite, err)
	}
	for _, ns := range namespaces {
		if ns == keep || ns.Kind != keep.Kind {
			continue
		}
		n, err := s.index.DeleteBySource(ctx, ns, sourceID)
		if err != nil {
			return fmt.Errorf("%w: removing stale chunks: %w", domain.ErrIndexWrite, err)
		}
		if n > 0 {
			logger.Debug("removed %d stale chunks of %s from %s", n, sourceID, ns.Key())
		}
	}
	return nil
}

// indexChunks embeds and upserts chunks batch by batch, removing each
// indexed batch from record.Pending. A failed batch stays pending and
// later batches still run; an index write failure stops the unit.
func (s *IngestionService) indexChunks(
	ctx context.Context,
	record *domain.IngestionRecord,
	ns domain.Namespace,
	chunks []domain.Chunk,
) error {
	batch := s.embedder.BatchSize()
	embedFailed := false

	for start := 0; start < len(chunks); start += batch {
		if ctx.Err() != nil {
			record.Reason = domain.ReasonCancelled
			return ctx.Err()
		}

		end := min(start+batch, len(chunks))
		part := chunks[start:end]

		texts := make([]string, len(part))
		for i, c := range part {
			texts[i] = c.Text
		}

		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				record.Reason = domain.ReasonCancelled
				return ctx.Err()
			}
			logger.Warn("embedding chunks %d-%d of %s failed: %v", start, end-1, record.SourceID, err)
			embedFailed = true
			continue
		}

		embedded := make([]domain.EmbeddedChunk, len(part))
		for i, c := range part {
			embedded[i] = domain.EmbeddedChunk{Chunk: c, Vector: vecs[i]}
		}
		if err := s.index.Upsert(ctx, ns, embedded); err != nil {
			logger.Warn("writing chunks %d-%d of %s: %v", start, end-1, record.SourceID, err)
			record.Status = domain.StatusFailed
			record.Reason = domain.ReasonIndexWrite
			return fmt.Errorf("%w: %w", domain.ErrIndexWrite, err)
		}

		record.Pending = removeSequences(record.Pending, part)
	}

	if embedFailed {
		record.Reason = domain.ReasonEmbeddingFailure
	}
	return nil
}

// finish settles the record status and stores it. Storage uses a
// context detached from cancellation so an interrupted run still leaves
// an accurate record.
func (s *IngestionService) finish(ctx context.Context, record *domain.IngestionRecord, runErr error) (*domain.IngestionRecord, error) {
	if record.Status != domain.StatusFailed {
		if len(record.Pending) == 0 {
			record.Status = domain.StatusCompleted
			record.Reason = ""
		} else {
			record.Status = domain.StatusPartial
		}
	}
	if len(record.Pending) == 0 {
		record.Pending = nil
	}

	if err := s.save(context.WithoutCancel(ctx), record); err != nil {
		return nil, err
	}

	switch record.Status {
	case domain.StatusCompleted:
		logger.Info("indexed %s (%s, %d chunks)", record.SourceID, record.Category, record.TotalChunks)
	case domain.StatusPartial:
		logger.Warn("%s is partial: %d of %d chunks pending (%s)",
			record.SourceID, len(record.Pending), record.TotalChunks, record.Reason)
	case domain.StatusFailed:
		logger.Warn("%s failed: %s", record.SourceID, record.Reason)
	}

	if runErr != nil && ctx.Err() != nil {
		return record, runErr
	}
	return record, nil
}

func (s *IngestionService) save(ctx context.Context, record *domain.IngestionRecord) error {
	record.UpdatedAt = s.now()
	if err := s.records.Save(ctx, *record); err != nil {
		return fmt.Errorf("save ingestion record: %w", err)
	}
	return nil
}

func (s *IngestionService) existingRecord(ctx context.Context, sourceID string) (*domain.IngestionRecord, error) {
	rec, err := s.records.Get(ctx, sourceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ingestion record: %w", err)
	}
	return rec, nil
}

// Retry re-embeds the pending chunks of a partial unit. A unit embedded
// with an older model, a unit whose chunking changed and a unit that
// failed on an index write are re-ingested in full.
func (s *IngestionService) Retry(ctx context.Context, sourceID string) (*domain.IngestionRecord, error) {
	rec, err := s.records.Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get ingestion record: %w", err)
	}

	release := s.locks.Unit(rec.OwnerID, sourceID)
	defer release()

	return s.retryLocked(ctx, sourceID)
}

func (s *IngestionService) retryLocked(ctx context.Context, sourceID string) (*domain.IngestionRecord, error) {
	// Re-read under the lock; another run may have settled the unit.
	rec, err := s.records.Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get ingestion record: %w", err)
	}

	if rec.Status == domain.StatusFailed && rec.Reason != domain.ReasonIndexWrite {
		return rec, fmt.Errorf("%w: %s failed with %q and cannot be retried", domain.ErrInvalidInput, sourceID, rec.Reason)
	}

	version, err := s.embedder.Version(ctx)
	if err != nil {
		return rec, err
	}
	if rec.Status == domain.StatusCompleted && rec.EmbedderVersion == version {
		return rec, nil
	}

	unit, err := s.units.Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	if rec.Status != domain.StatusPartial || rec.EmbedderVersion != version {
		return s.ingestLocked(ctx, *unit)
	}

	cls := domain.Classification{Category: rec.Category, Confidence: rec.Confidence}
	chunks := s.chunker.Chunk(*unit, cls)
	if len(chunks) != rec.TotalChunks {
		logger.Debug("chunking of %s changed, re-ingesting", sourceID)
		return s.ingestLocked(ctx, *unit)
	}

	pending := make([]domain.Chunk, 0, len(rec.Pending))
	for _, c := range chunks {
		if slices.Contains(rec.Pending, c.Sequence) {
			pending = append(pending, c)
		}
	}

	// A crash between the in-progress marker and the removal of the
	// previous chunks can leave them in another category's namespace.
	if err := s.removeStale(ctx, rec.Namespace(), sourceID); err != nil {
		logger.Warn("%v", err)
		rec.Status = domain.StatusFailed
		rec.Reason = domain.ReasonIndexWrite
		return s.finish(ctx, rec, err)
	}

	rec.Attempts++
	rec.Reason = domain.ReasonInProgress
	err = s.indexChunks(ctx, rec, rec.Namespace(), pending)
	return s.finish(ctx, rec, err)
}

// Reconcile retries partial units, units that failed on an index write
// and units embedded with a stale embedder version. It returns the number
// of units processed.
func (s *IngestionService) Reconcile(ctx context.Context, ownerID string) (int, error) {
	version, err := s.embedder.Version(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}

	records, err := s.records.ListByStatus(ctx, ownerID, "")
	if err != nil {
		return 0, fmt.Errorf("list ingestion records: %w", err)
	}

	var errs []error
	processed := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if !needsReconcile(rec, version) {
			continue
		}

		logger.Debug("reconciling %s (%s, %s)", rec.SourceID, rec.Status, rec.EmbedderVersion)
		release := s.locks.Unit(rec.OwnerID, rec.SourceID)
		_, err := s.retryLocked(ctx, rec.SourceID)
		release()

		processed++
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.SourceID, err))
		}
	}

	if len(errs) > 0 {
		return processed, fmt.Errorf("reconcile: %w", errors.Join(errs...))
	}
	return processed, nil
}

func needsReconcile(rec domain.IngestionRecord, version string) bool {
	switch rec.Status {
	case domain.StatusPartial:
		return true
	case domain.StatusFailed:
		return rec.Reason == domain.ReasonIndexWrite
	default:
		return rec.EmbedderVersion != version
	}
}

// Status returns the record of a unit.
func (s *IngestionService) Status(ctx context.Context, sourceID string) (*domain.IngestionRecord, error) {
	rec, err := s.records.Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get ingestion record: %w", err)
	}
	return rec, nil
}

// List returns the owner's records, most recently updated first.
func (s *IngestionService) List(ctx context.Context, ownerID string) ([]domain.IngestionRecord, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}
	return s.records.List(ctx, ownerID)
}

// Delete removes a unit, its chunks and its record. A unit of another
// owner is reported as not found.
func (s *IngestionService) Delete(ctx context.Context, ownerID, sourceID string) error {
	release := s.locks.Unit(ownerID, sourceID)
	defer release()

	rec, err := s.records.Get(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("get ingestion record: %w", err)
	}
	if rec.OwnerID != ownerID {
		return fmt.Errorf("unit %s: %w", sourceID, domain.ErrNotFound)
	}

	if rec.EmbedderVersion != "" {
		if _, err := s.index.DeleteBySource(ctx, rec.Namespace(), sourceID); err != nil {
			return fmt.Errorf("%w: delete chunks: %w", domain.ErrIndexWrite, err)
		}
	}
	if err := s.records.Delete(ctx, sourceID); err != nil {
		return fmt.Errorf("delete ingestion record: %w", err)
	}
	if err := s.units.Delete(ctx, sourceID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete unit: %w", err)
	}

	logger.Info("deleted %s", sourceID)
	return nil
}

func sequences(chunks []domain.Chunk) []int {
	out := make([]int, len(chunks))
	for i, c := range chunks {
		out[i] = c.Sequence
	}
	return out
}

func removeSequences(pending []int, done []domain.Chunk) []int {
	out := pending[:0]
	for _, seq := range pending {
		indexed := false
		for _, c := range done {
			if c.Sequence == seq {
				indexed = true
				break
			}
		}
		if !indexed {
			out = append(out, seq)
		}
	}
	return out
}
