package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/vellum/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to
// all store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.vellum/data/vellum.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".vellum", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "vellum.db")

	// Open database with WAL mode for concurrent readers
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// UnitStore returns a UnitStore interface backed by this store.
func (s *Store) UnitStore() driven.UnitStore {
	return &unitStore{store: s}
}

// IngestionStore returns an IngestionStore interface backed by this store.
func (s *Store) IngestionStore() driven.IngestionStore {
	return &ingestionStore{store: s}
}

// SyncStateStore returns a SyncStateStore interface backed by this store.
func (s *Store) SyncStateStore() driven.SyncStateStore {
	return &syncStateStore{store: s}
}

// SchedulerStore returns a SchedulerStore interface backed by this store.
func (s *Store) SchedulerStore() driven.SchedulerStore {
	return &schedulerStore{store: s}
}

// VectorIndex returns a VectorIndex interface backed by this store.
func (s *Store) VectorIndex() driven.VectorIndex {
	return &vectorIndex{store: s}
}

// migrate runs all pending migrations, each in its own transaction.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Unit Store ====================

// unitStore implements driven.UnitStore.
type unitStore struct {
	store *Store
}

var _ driven.UnitStore = (*unitStore)(nil)

// Save stores or replaces a unit.
func (s *unitStore) Save(ctx context.Context, unit domain.SourceUnit) error {
	offsetsJSON, err := json.Marshal(unit.PageOffsets)
	if err != nil {
		return fmt.Errorf("marshalling page offsets: %w", err)
	}
	hintsJSON, err := json.Marshal(unit.Hints)
	if err != nil {
		return fmt.Errorf("marshalling hints: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO units (id, owner_id, kind, title, text, page_offsets, hints, arrived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			kind = excluded.kind,
			title = excluded.title,
			text = excluded.text,
			page_offsets = excluded.page_offsets,
			hints = excluded.hints,
			arrived_at = excluded.arrived_at
	`, unit.ID, unit.OwnerID, string(unit.Kind), unit.Title, unit.Text,
		string(offsetsJSON), string(hintsJSON), formatNullableTimeNano(unit.ArrivedAt))
	if err != nil {
		return fmt.Errorf("saving unit: %w", err)
	}
	return nil
}

// Get retrieves a unit by ID.
func (s *unitStore) Get(ctx context.Context, id string) (*domain.SourceUnit, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, owner_id, kind, title, text, page_offsets, hints, arrived_at
		FROM units WHERE id = ?
	`, id)

	var unit domain.SourceUnit
	var kind, offsetsJSON, hintsJSON string
	var arrivedAt sql.NullString
	if err := row.Scan(&unit.ID, &unit.OwnerID, &kind, &unit.Title, &unit.Text,
		&offsetsJSON, &hintsJSON, &arrivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning unit: %w", err)
	}

	unit.Kind = domain.ContentKind(kind)
	if err := json.Unmarshal([]byte(offsetsJSON), &unit.PageOffsets); err != nil {
		return nil, fmt.Errorf("unmarshalling page offsets: %w", err)
	}
	if err := json.Unmarshal([]byte(hintsJSON), &unit.Hints); err != nil {
		return nil, fmt.Errorf("unmarshalling hints: %w", err)
	}
	unit.ArrivedAt = parseNullableTime(arrivedAt)

	return &unit, nil
}

// Delete removes a unit.
func (s *unitStore) Delete(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM units WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting unit: %w", err)
	}
	return nil
}

// DeleteOwner removes every unit of the owner.
func (s *unitStore) DeleteOwner(ctx context.Context, ownerID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM units WHERE owner_id = ?", ownerID)
	if err != nil {
		return fmt.Errorf("deleting owner units: %w", err)
	}
	return nil
}

// ==================== Ingestion Store ====================

// ingestionStore implements driven.IngestionStore.
type ingestionStore struct {
	store *Store
}

var _ driven.IngestionStore = (*ingestionStore)(nil)

const ingestionColumns = `source_id, owner_id, kind, title, category, confidence, status, reason,
	total_chunks, pending, embedder_version, attempts, updated_at`

// Save stores or replaces a record.
func (s *ingestionStore) Save(ctx context.Context, record domain.IngestionRecord) error {
	pending := record.Pending
	if pending == nil {
		pending = []int{}
	}
	pendingJSON, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshalling pending chunks: %w", err)
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO ingestion_records (`+ingestionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			kind = excluded.kind,
			title = excluded.title,
			category = excluded.category,
			confidence = excluded.confidence,
			status = excluded.status,
			reason = excluded.reason,
			total_chunks = excluded.total_chunks,
			pending = excluded.pending,
			embedder_version = excluded.embedder_version,
			attempts = excluded.attempts,
			updated_at = excluded.updated_at
	`, record.SourceID, record.OwnerID, string(record.Kind), record.Title,
		string(record.Category), record.Confidence, string(record.Status),
		nullString(record.Reason), record.TotalChunks, string(pendingJSON),
		record.EmbedderVersion, record.Attempts, record.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving ingestion record: %w", err)
	}
	return nil
}

// Get retrieves the record of a unit.
func (s *ingestionStore) Get(ctx context.Context, sourceID string) (*domain.IngestionRecord, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+ingestionColumns+" FROM ingestion_records WHERE source_id = ?", sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying ingestion record: %w", err)
	}
	defer rows.Close()

	records, err := scanIngestionRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrNotFound
	}
	return &records[0], nil
}

// List returns the owner's records, most recently updated first.
func (s *ingestionStore) List(ctx context.Context, ownerID string) ([]domain.IngestionRecord, error) {
	return s.ListByStatus(ctx, ownerID, "")
}

// ListByStatus returns records filtered by owner and status.
// Empty values match everything.
func (s *ingestionStore) ListByStatus(
	ctx context.Context, ownerID string, status domain.IngestionStatus,
) ([]domain.IngestionRecord, error) {
	query := "SELECT " + ingestionColumns + " FROM ingestion_records WHERE 1 = 1"
	var args []any
	if ownerID != "" {
		query += " AND owner_id = ?"
		args = append(args, ownerID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY updated_at DESC, source_id ASC"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ingestion records: %w", err)
	}
	defer rows.Close()

	return scanIngestionRecords(rows)
}

// Delete removes a record.
func (s *ingestionStore) Delete(ctx context.Context, sourceID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM ingestion_records WHERE source_id = ?", sourceID)
	if err != nil {
		return fmt.Errorf("deleting ingestion record: %w", err)
	}
	return nil
}

// DeleteOwner removes every record of the owner.
func (s *ingestionStore) DeleteOwner(ctx context.Context, ownerID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM ingestion_records WHERE owner_id = ?", ownerID)
	if err != nil {
		return fmt.Errorf("deleting owner ingestion records: %w", err)
	}
	return nil
}

func scanIngestionRecords(rows *sql.Rows) ([]domain.IngestionRecord, error) {
	var records []domain.IngestionRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var r domain.IngestionRecord
		var kind, category, status, pendingJSON, updatedAt string
		var reason sql.NullString
		if err := rows.Scan(&r.SourceID, &r.OwnerID, &kind, &r.Title, &category, &r.Confidence,
			&status, &reason, &r.TotalChunks, &pendingJSON, &r.EmbedderVersion, &r.Attempts,
			&updatedAt); err != nil {
			return nil, fmt.Errorf("scanning ingestion record: %w", err)
		}
		r.Kind = domain.ContentKind(kind)
		r.Category = domain.Category(category)
		r.Status = domain.IngestionStatus(status)
		r.Reason = reason.String
		if err := json.Unmarshal([]byte(pendingJSON), &r.Pending); err != nil {
			return nil, fmt.Errorf("unmarshalling pending chunks: %w", err)
		}
		if len(r.Pending) == 0 {
			r.Pending = nil
		}
		r.UpdatedAt = parseNullableTime(sql.NullString{String: updatedAt, Valid: true})
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ingestion records: %w", err)
	}
	return records, nil
}

// ==================== Sync State Store ====================

// syncStateStore implements driven.SyncStateStore.
type syncStateStore struct {
	store *Store
}

var _ driven.SyncStateStore = (*syncStateStore)(nil)

// Save stores or updates sync state.
func (s *syncStateStore) Save(ctx context.Context, state domain.SyncState) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_states (owner_id, account, cursor, last_sync)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, account) DO UPDATE SET
			cursor = excluded.cursor,
			last_sync = excluded.last_sync
	`, state.OwnerID, state.Account,
		formatNullableTimeNano(state.Cursor), formatNullableTimeNano(state.LastSync))
	if err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}
	return nil
}

// Get retrieves sync state for an account.
func (s *syncStateStore) Get(ctx context.Context, ownerID, account string) (*domain.SyncState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT owner_id, account, cursor, last_sync
		FROM sync_states WHERE owner_id = ? AND account = ?
	`, ownerID, account)

	var state domain.SyncState
	var cursor, lastSync sql.NullString
	if err := row.Scan(&state.OwnerID, &state.Account, &cursor, &lastSync); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning sync state: %w", err)
	}
	state.Cursor = parseNullableTime(cursor)
	state.LastSync = parseNullableTime(lastSync)

	return &state, nil
}

// DeleteOwner removes every sync state of the owner.
func (s *syncStateStore) DeleteOwner(ctx context.Context, ownerID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM sync_states WHERE owner_id = ?", ownerID)
	if err != nil {
		return fmt.Errorf("deleting owner sync states: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// formatNullableTimeNano formats a time with nanoseconds, or returns nil
// for zero time. Arrival order breaks ranking ties, so precision matters.
func formatNullableTimeNano(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
