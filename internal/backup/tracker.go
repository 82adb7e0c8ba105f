package backup

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"

	"github.com/driveback/driveback/internal/db"
)

const trackerSchema = `
CREATE TABLE IF NOT EXISTS file_records (
    scope TEXT NOT NULL,
    identity TEXT NOT NULL,
    path TEXT NOT NULL,
    size INTEGER NOT NULL,
    remote_modified_at TEXT NOT NULL, -- RFC3339
    content_hash TEXT NOT NULL DEFAULT '',
    last_backed_up_at TEXT NOT NULL DEFAULT '', -- RFC3339, '' = never
    destination_key TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (scope, identity)
);

CREATE INDEX IF NOT EXISTS idx_records_scope ON file_records(scope);
`

// dbFileRecord is the scan target; timestamps are stored as TEXT.
type dbFileRecord struct {
	Scope            string `db:"scope"`
	Identity         string `db:"identity"`
	Path             string `db:"path"`
	Size             int64  `db:"size"`
	RemoteModifiedAt string `db:"remote_modified_at"`
	ContentHash      string `db:"content_hash"`
	LastBackedUpAt   string `db:"last_backed_up_at"`
	DestinationKey   string `db:"destination_key"`
}

// Tracker persists per-file backup state in SQLite, namespaced by scope.
// A single INSERT OR REPLACE per commit keeps upserts atomic; safe for
// concurrent use by one job's worker pool.
type Tracker struct {
	db     *sqlx.DB
	dbPath string
	lock   *flock.Flock
}

// NewTracker creates a Tracker backed by the SQLite database at dbPath.
// Use ":memory:" for tests.
func NewTracker(dbPath string) *Tracker {
	return &Tracker{dbPath: dbPath}
}

// Open acquires the state-file lock and initializes the schema.
func (t *Tracker) Open() error {
	if t.db != nil {
		return fmt.Errorf("tracker already open")
	}

	if t.dbPath != ":memory:" {
		lock := flock.New(t.dbPath + ".lock")
		held, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("lock tracker state: %w", err)
		}
		if !held {
			return fmt.Errorf("tracker state %s is locked by another process", t.dbPath)
		}
		t.lock = lock
	}

	dbx, err := db.Open(db.WithPath(t.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		t.unlock()
		return fmt.Errorf("open tracker state: %w", err)
	}

	if _, err := dbx.Exec(trackerSchema); err != nil {
		dbx.Close()
		t.unlock()
		return fmt.Errorf("initialize tracker schema: %w", err)
	}

	t.db = dbx
	return nil
}

// Close releases the database and the state-file lock.
func (t *Tracker) Close() error {
	if t.db == nil {
		return fmt.Errorf("tracker not open")
	}
	err := t.db.Close()
	t.db = nil
	t.unlock()
	if err != nil {
		return fmt.Errorf("close tracker state: %w", err)
	}
	return nil
}

func (t *Tracker) unlock() {
	if t.lock != nil {
		t.lock.Unlock()
		t.lock = nil
	}
}

// Get returns the record for identity in scope, or nil when untracked.
func (t *Tracker) Get(scope Scope, identity string) (*FileRecord, error) {
	var row dbFileRecord
	err := t.db.Get(&row,
		`SELECT scope, identity, path, size, remote_modified_at, content_hash, last_backed_up_at, destination_key
		 FROM file_records WHERE scope = ? AND identity = ?`,
		scope.String(), identity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query record %s: %w", identity, err)
	}
	return row.toRecord()
}

// Commit upserts the record for identity in scope. A single statement, so
// a crash leaves either the prior record or the new one, never a torn row.
func (t *Tracker) Commit(scope Scope, rec *FileRecord) error {
	if rec == nil {
		return fmt.Errorf("cannot commit nil record")
	}

	row := dbFileRecord{
		Scope:            scope.String(),
		Identity:         rec.Identity,
		Path:             rec.Path,
		Size:             rec.Size,
		RemoteModifiedAt: rec.RemoteModifiedAt.UTC().Format(time.RFC3339Nano),
		ContentHash:      rec.ContentHash,
		DestinationKey:   rec.DestinationKey,
	}
	if !rec.LastBackedUpAt.IsZero() {
		row.LastBackedUpAt = rec.LastBackedUpAt.UTC().Format(time.RFC3339Nano)
	}

	query := `INSERT OR REPLACE INTO file_records
	          (scope, identity, path, size, remote_modified_at, content_hash, last_backed_up_at, destination_key)
	          VALUES (:scope, :identity, :path, :size, :remote_modified_at, :content_hash, :last_backed_up_at, :destination_key)`
	if _, err := t.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("commit record %s: %w", rec.Identity, err)
	}
	slog.Debug("tracker commit", "scope", scope, "identity", rec.Identity, "size", rec.Size)
	return nil
}

// Remove deletes the record for identity in scope. Removing an untracked
// identity is a no-op.
func (t *Tracker) Remove(scope Scope, identity string) error {
	if _, err := t.db.Exec(
		"DELETE FROM file_records WHERE scope = ? AND identity = ?",
		scope.String(), identity); err != nil {
		return fmt.Errorf("remove record %s: %w", identity, err)
	}
	return nil
}

// List returns every record in scope, ordered by identity ascending.
func (t *Tracker) List(scope Scope) ([]FileRecord, error) {
	var rows []dbFileRecord
	err := t.db.Select(&rows,
		`SELECT scope, identity, path, size, remote_modified_at, content_hash, last_backed_up_at, destination_key
		 FROM file_records WHERE scope = ? ORDER BY identity ASC`,
		scope.String())
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	records := make([]FileRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Count returns the number of records in scope.
func (t *Tracker) Count(scope Scope) (int, error) {
	var count int
	if err := t.db.Get(&count,
		"SELECT COUNT(*) FROM file_records WHERE scope = ?", scope.String()); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// TrackerStats summarizes the tracked state of one scope.
type TrackerStats struct {
	Files        int
	Bytes        int64
	LastBackedUp time.Time // zero when no transfer ever succeeded
}

// Stats folds every record in scope into per-scope totals.
func (t *Tracker) Stats(scope Scope) (TrackerStats, error) {
	records, err := t.List(scope)
	if err != nil {
		return TrackerStats{}, err
	}

	var stats TrackerStats
	for _, rec := range records {
		stats.Files++
		stats.Bytes += rec.Size
		if rec.LastBackedUpAt.After(stats.LastBackedUp) {
			stats.LastBackedUp = rec.LastBackedUpAt
		}
	}
	return stats, nil
}

// Reset closes the tracker and moves the state file aside, forcing a cold
// start where everything reclassifies as new. The old state is kept as a
// timestamped .bak file.
func (t *Tracker) Reset() error {
	if t.dbPath == ":memory:" {
		return fmt.Errorf("cannot reset in-memory tracker")
	}
	if t.db != nil {
		if err := t.Close(); err != nil {
			return err
		}
	}
	stamp := time.Now().Format("20060102150405")
	if err := os.Rename(t.dbPath, fmt.Sprintf("%s.%s.bak", t.dbPath, stamp)); err != nil {
		return fmt.Errorf("move tracker state aside: %w", err)
	}
	return nil
}

// toRecord parses the stored timestamps. Malformed rows surface as
// ErrCorruptState rather than being silently dropped: silent loss would
// look like valid-but-stale state and break timestamp detection.
func (r dbFileRecord) toRecord() (*FileRecord, error) {
	modAt, err := time.Parse(time.RFC3339Nano, r.RemoteModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: record %s has bad remote_modified_at %q", ErrCorruptState, r.Identity, r.RemoteModifiedAt)
	}

	rec := &FileRecord{
		Identity:         r.Identity,
		Path:             r.Path,
		Size:             r.Size,
		RemoteModifiedAt: modAt,
		ContentHash:      r.ContentHash,
		DestinationKey:   r.DestinationKey,
	}

	if r.LastBackedUpAt != "" {
		backedUp, err := time.Parse(time.RFC3339Nano, r.LastBackedUpAt)
		if err != nil {
			return nil, fmt.Errorf("%w: record %s has bad last_backed_up_at %q", ErrCorruptState, r.Identity, r.LastBackedUpAt)
		}
		rec.LastBackedUpAt = backedUp
	}

	return rec, nil
}
