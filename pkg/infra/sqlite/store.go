package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/domain/model"
	"github.com/m-mizutani/lookout/pkg/domain/types"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed StateStore. Four tables hold all durable
// state: cursors (per source key), seen_events (the idempotency ledger),
// alerts (keyed by fingerprint, content replaced on conflict), and
// notify_failures (append-only audit log).
//
// SQLite is single-writer; the connection pool is capped at one connection
// so all multi-step sequences are serialized without explicit locking.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// New opens (or creates) the SQLite database at path.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, goerr.Wrap(err, "failed to create state directory",
				goerr.T(types.TagStateStore), goerr.V("path", path))
		}
	}

	dsn := "file:" + path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database",
			goerr.T(types.TagStateStore), goerr.V("path", path))
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}
	if err := db.PingContext(context.Background()); err != nil {
		return nil, goerr.Wrap(err, "failed to ping sqlite database",
			goerr.T(types.TagStateStore), goerr.V("path", path))
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables if they do not exist. Safe every cycle.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cursors (
			source_key TEXT PRIMARY KEY,
			cursor     TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS seen_events (
			fingerprint   TEXT PRIMARY KEY,
			first_seen_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			fingerprint TEXT PRIMARY KEY,
			alert_json  TEXT NOT NULL,
			created_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notify_failures (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint TEXT NOT NULL,
			channel     TEXT NOT NULL,
			error       TEXT NOT NULL,
			created_at  TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return goerr.Wrap(err, "failed to create schema", goerr.T(types.TagStateStore))
		}
	}
	return nil
}

// GetCursor returns the stored cursor for sourceKey, or nil when the source
// has never persisted one. Absence is not an error.
func (s *Store) GetCursor(ctx context.Context, sourceKey string) (*string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor FROM cursors WHERE source_key = ?`, sourceKey).Scan(&cursor)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read cursor",
			goerr.T(types.TagStateStore), goerr.V("source_key", sourceKey))
	}
	return &cursor, nil
}

// SetCursor stores the cursor for sourceKey, replacing any previous value.
func (s *Store) SetCursor(ctx context.Context, sourceKey string, cursor string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cursors(source_key, cursor, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(source_key) DO UPDATE SET
		   cursor = excluded.cursor,
		   updated_at = excluded.updated_at`,
		sourceKey, cursor, s.now().Format(time.RFC3339Nano))
	if err != nil {
		return goerr.Wrap(err, "failed to store cursor",
			goerr.T(types.TagStateStore), goerr.V("source_key", sourceKey))
	}
	return nil
}

// HasSeen reports whether fingerprint is in the seen-set.
func (s *Store) HasSeen(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_events WHERE fingerprint = ? LIMIT 1`, fingerprint).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to query seen-set",
			goerr.T(types.TagStateStore), goerr.V("fingerprint", fingerprint))
	}
	return true, nil
}

// MarkSeen inserts fingerprint into the seen-set. Re-marking an already
// seen fingerprint is a no-op, so crash-retry sequences stay idempotent.
func (s *Store) MarkSeen(ctx context.Context, fingerprint string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_events(fingerprint, first_seen_at) VALUES(?, ?)`,
		fingerprint, s.now().Format(time.RFC3339Nano))
	if err != nil {
		return goerr.Wrap(err, "failed to mark fingerprint seen",
			goerr.T(types.TagStateStore), goerr.V("fingerprint", fingerprint))
	}
	return nil
}

// SaveAlert upserts the alert record keyed by fingerprint. Alert content is
// a pure function of the event, so replacement is safe.
func (s *Store) SaveAlert(ctx context.Context, alert *model.Alert) error {
	raw, err := json.Marshal(alert)
	if err != nil {
		return goerr.Wrap(err, "failed to encode alert",
			goerr.T(types.TagStateStore), goerr.V("fingerprint", alert.Fingerprint))
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO alerts(fingerprint, alert_json, created_at) VALUES(?, ?, ?)`,
		alert.Fingerprint, string(raw), alert.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return goerr.Wrap(err, "failed to store alert",
			goerr.T(types.TagStateStore), goerr.V("fingerprint", alert.Fingerprint))
	}
	return nil
}

// AppendNotifyFailure records one failed delivery attempt. Rows are never
// deduplicated.
func (s *Store) AppendNotifyFailure(ctx context.Context, failure *model.NotifyFailure) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notify_failures(fingerprint, channel, error, created_at) VALUES(?, ?, ?, ?)`,
		failure.Fingerprint, failure.Channel, failure.Error,
		failure.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return goerr.Wrap(err, "failed to record notify failure",
			goerr.T(types.TagStateStore),
			goerr.V("fingerprint", failure.Fingerprint),
			goerr.V("channel", failure.Channel))
	}
	return nil
}

// GetAlert returns the stored alert for fingerprint, or nil when absent.
func (s *Store) GetAlert(ctx context.Context, fingerprint string) (*model.Alert, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT alert_json FROM alerts WHERE fingerprint = ?`, fingerprint).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read alert",
			goerr.T(types.TagStateStore), goerr.V("fingerprint", fingerprint))
	}
	var alert model.Alert
	if err := json.Unmarshal([]byte(raw), &alert); err != nil {
		return nil, goerr.Wrap(err, "failed to decode stored alert",
			goerr.T(types.TagStateStore), goerr.V("fingerprint", fingerprint))
	}
	return &alert, nil
}

// ListNotifyFailures returns all audit rows for fingerprint in insertion
// order.
func (s *Store) ListNotifyFailures(ctx context.Context, fingerprint string) ([]model.NotifyFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, channel, error, created_at
		 FROM notify_failures WHERE fingerprint = ? ORDER BY id`, fingerprint)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list notify failures",
			goerr.T(types.TagStateStore), goerr.V("fingerprint", fingerprint))
	}
	defer rows.Close()

	var failures []model.NotifyFailure
	for rows.Next() {
		var f model.NotifyFailure
		var createdAt string
		if err := rows.Scan(&f.Fingerprint, &f.Channel, &f.Error, &createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan notify failure",
				goerr.T(types.TagStateStore))
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			f.CreatedAt = ts
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate notify failures",
			goerr.T(types.TagStateStore))
	}
	return failures, nil
}
