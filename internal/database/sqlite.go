// Package database implements the SQLite event store: the durable,
// append-only record of observed file changes that populate writes and
// replay consumes in timestamp order.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"packrat-go/internal/database/migrations"
	"packrat-go/internal/model"
	"packrat-go/internal/populate"
	"packrat-go/internal/replay"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNoEvents is returned by aggregate queries over an empty history.
var ErrNoEvents = errors.New("event store holds no events")

// Event type discriminators as stored in the type column.
const (
	typeModify  = "modify"
	typeDelete  = "delete"
	typeSymlink = "symlink"
)

// Store is the SQLite-backed event store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (and migrates) the event store at path.
// path can be a file path or ":memory:" for an in-memory store.
func NewStore(path string) (*Store, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating event store: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// InsertEvents appends a set of events in one transaction. Timestamps are
// normalized to UTC so the timestamp ordering is total.
func (s *Store) InsertEvents(events []model.Event) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO file_events
			(path, revision, type, timestamp, is_downloadable, is_deleted, size, content_hash, target)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		var args []any
		switch ev := ev.(type) {
		case model.Modify:
			args = []any{
				ev.Path, ev.Revision, typeModify, ev.Timestamp.UTC(), ev.IsDownloadable, false,
				sql.NullInt64{Int64: ev.Size, Valid: true},
				sql.NullString{String: ev.ContentHash, Valid: ev.ContentHash != ""},
				nil,
			}
		case model.Delete:
			args = []any{
				ev.Path, nil, typeDelete, ev.Timestamp.UTC(), false, true,
				nil, nil, nil,
			}
		case model.Symlink:
			args = []any{
				ev.Path, ev.Revision, typeSymlink, ev.Timestamp.UTC(), false, false,
				nil, nil,
				sql.NullString{String: ev.Target, Valid: true},
			}
		default:
			return fmt.Errorf("unhandled event variant %T for %q", ev, ev.RemotePath())
		}

		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("inserting event for %q: %w", ev.RemotePath(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing events: %w", err)
	}
	return nil
}

// InsertError records a path whose revision listing failed, so populate does
// not retry it on resume.
func (s *Store) InsertError(path, message string) error {
	_, err := s.db.Exec(
		`INSERT INTO file_errors (path, message) VALUES (?, ?)`,
		path, sql.NullString{String: message, Valid: message != ""},
	)
	if err != nil {
		return fmt.Errorf("recording error for %q: %w", path, err)
	}
	return nil
}

// HasPath reports whether the path already appears in the history or in the
// error table.
func (s *Store) HasPath(path string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS (SELECT 1 FROM file_events WHERE path = ?)
		    OR EXISTS (SELECT 1 FROM file_errors WHERE path = ?)`,
		path, path,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking path %q: %w", path, err)
	}
	return exists, nil
}

// MinTimestamp returns the earliest event timestamp.
// Returns ErrNoEvents when the history is empty.
func (s *Store) MinTimestamp() (time.Time, error) {
	return s.boundaryTimestamp("ASC")
}

// MaxTimestamp returns the latest event timestamp.
// Returns ErrNoEvents when the history is empty.
func (s *Store) MaxTimestamp() (time.Time, error) {
	return s.boundaryTimestamp("DESC")
}

func (s *Store) boundaryTimestamp(order string) (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRow(
		`SELECT timestamp FROM file_events ORDER BY timestamp ` + order + ` LIMIT 1`,
	).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNoEvents
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying timestamp boundary: %w", err)
	}
	return ts, nil
}

// TombstonedPaths returns every path whose earliest event is a delete.
func (s *Store) TombstonedPaths() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT path FROM (
			SELECT path, type,
			       ROW_NUMBER() OVER (PARTITION BY path ORDER BY timestamp ASC) AS row_number
			FROM file_events
		)
		WHERE row_number = 1 AND type = ?`,
		typeDelete,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tombstoned paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scanning tombstoned path: %w", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tombstoned paths: %w", err)
	}
	return paths, nil
}

// Events returns a cursor over the full history ordered ascending by
// timestamp.
func (s *Store) Events() (replay.Cursor, error) {
	rows, err := s.db.Query(`
		SELECT path, revision, type, timestamp, is_downloadable, size, content_hash, target
		FROM file_events
		ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	return &eventCursor{rows: rows}, nil
}

// CheckSchema verifies the store's schema is at the latest migration
// version and not dirty.
func (s *Store) CheckSchema() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents() (int64, error) {
	return s.count("file_events")
}

// CountErrors returns the number of recorded per-path errors.
func (s *Store) CountErrors() (int64, error) {
	return s.count("file_errors")
}

func (s *Store) count(table string) (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// eventCursor adapts sql.Rows to the replay cursor contract.
type eventCursor struct {
	rows *sql.Rows
}

func (c *eventCursor) Next() bool { return c.rows.Next() }

func (c *eventCursor) Event() (model.Event, error) {
	var (
		path           string
		revision       sql.NullString
		eventType      string
		timestamp      time.Time
		isDownloadable bool
		size           sql.NullInt64
		contentHash    sql.NullString
		target         sql.NullString
	)
	if err := c.rows.Scan(&path, &revision, &eventType, &timestamp, &isDownloadable, &size, &contentHash, &target); err != nil {
		return nil, fmt.Errorf("scanning event row: %w", err)
	}

	switch eventType {
	case typeModify:
		return model.Modify{
			Path:           path,
			Revision:       revision.String,
			Timestamp:      timestamp,
			IsDownloadable: isDownloadable,
			Size:           size.Int64,
			ContentHash:    contentHash.String,
		}, nil
	case typeDelete:
		return model.Delete{
			Path:      path,
			Timestamp: timestamp,
		}, nil
	case typeSymlink:
		if !target.Valid {
			return nil, fmt.Errorf("symlink event for %q has no target", path)
		}
		return model.Symlink{
			Path:      path,
			Revision:  revision.String,
			Timestamp: timestamp,
			Target:    target.String,
		}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q for %q", eventType, path)
	}
}

func (c *eventCursor) Err() error   { return c.rows.Err() }
func (c *eventCursor) Close() error { return c.rows.Close() }

// Compile-time checks against the consumer contracts
var (
	_ replay.EventSource = (*Store)(nil)
	_ populate.Store     = (*Store)(nil)
)
