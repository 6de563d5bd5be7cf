package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/contextgg/go-projections/es"
)

// ErrStoreClosed when the store is used after Close
var ErrStoreClosed = errors.New("status store is closed")

// StatusStore persists projection status to SQLite.
// It is suitable for single-process production use.
type StatusStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var _ es.StatusStore = (*StatusStore)(nil)

// NewStatusStore opens or creates the database at path, ":memory:" for testing.
func NewStatusStore(path string) (*StatusStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS projection_status (
			projection_name TEXT NOT NULL,
			object_id TEXT NOT NULL,
			status INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (projection_name, object_id)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_projection_status_status
		ON projection_status(status)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &StatusStore{db: db}, nil
}

// Get returns nil when nothing was stored for the key
func (s *StatusStore) Get(ctx context.Context, projectionName, objectID string) (*es.StatusInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM projection_status
		WHERE projection_name = ? AND object_id = ?
	`, projectionName, objectID).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}

	info := &es.StatusInfo{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return info, nil
}

// Put replaces the entry, last write wins
func (s *StatusStore) Put(ctx context.Context, info *es.StatusInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projection_status (projection_name, object_id, status, updated_at, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(projection_name, object_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			data = excluded.data
	`, info.ProjectionName, info.ObjectID, int(info.Status), time.Now().UTC().Format(time.RFC3339Nano), data)

	if err != nil {
		return fmt.Errorf("save status: %w", err)
	}
	return nil
}

// ListByStatus returns entries in any of the statuses ordered by key
func (s *StatusStore) ListByStatus(ctx context.Context, statuses ...es.ProjectionStatus) ([]*es.StatusInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	out := []*es.StatusInfo{}
	if len(statuses) == 0 {
		return out, nil
	}

	args := make([]interface{}, len(statuses))
	marks := make([]string, len(statuses))
	for i, status := range statuses {
		args[i] = int(status)
		marks[i] = "?"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM projection_status
		WHERE status IN (`+strings.Join(marks, ", ")+`)
		ORDER BY projection_name, object_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		info := &es.StatusInfo{}
		if err := json.Unmarshal(data, info); err != nil {
			return nil, fmt.Errorf("decode status: %w", err)
		}
		out = append(out, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status: %w", err)
	}
	return out, nil
}

// Close implements es.StatusStore
func (s *StatusStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
