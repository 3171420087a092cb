// Package calllog persists the call history in a local SQLite database
// so recent calls survive service restarts.
package calllog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"database/sql"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS calls (
    id          TEXT PRIMARY KEY,
    type        TEXT NOT NULL,
    name        TEXT,
    number      TEXT NOT NULL,
    display_time TEXT NOT NULL,
    created_ns  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calls_created ON calls(created_ns);
`

// Store is the SQLite-backed call history.
type Store struct {
	logger *logger.Logger

	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(l *logger.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		logger: l.WithTag("calllog"),
		db:     db,
	}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record appends a finished call. Errors are logged, not returned: a
// failed history write must never disturb the call state path.
func (s *Store) Record(rec types.CallRecord) {
	if err := s.Add(rec); err != nil {
		s.logger.Errorf("Failed to record call: %v", err)
	}
}

// Add inserts one call record.
func (s *Store) Add(rec types.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO calls (id, type, name, number, display_time, created_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), string(rec.Type), rec.Name, rec.Number, rec.Time, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// Recent returns up to limit calls, most recent first.
func (s *Store) Recent(limit int) ([]types.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT type, name, number, display_time
		FROM calls
		ORDER BY created_ns DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	records := make([]types.CallRecord, 0, limit)
	for rows.Next() {
		var rec types.CallRecord
		var typ string
		if err := rows.Scan(&typ, &rec.Name, &rec.Number, &rec.Time); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		rec.Type = types.CallRecordType(typ)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return records, nil
}
