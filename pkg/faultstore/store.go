// Package faultstore keeps a SQLite journal of subscriber faults so operators
// can inspect recent failures after the fact.
//
// Store implements log.Logger and is meant to be combined with other sinks
// through log.MultiLogger. Only fault events are recorded.
package faultstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wirehome/wirehome-go/pkg/log"
)

// DefaultRecentLimit is used by Recent when limit is not positive.
const DefaultRecentLimit = 100

// Fault is one recorded handler failure.
type Fault struct {
	ID            int64          `json:"id"`
	SubscriberUID string         `json:"subscriber_uid"`
	Kind          string         `json:"kind"`
	Error         string         `json:"error"`
	Context       string         `json:"context,omitempty"`
	Message       map[string]any `json:"message,omitempty"`
	DurationMS    int64          `json:"duration_ms"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Store is a SQLite-backed fault journal.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (and migrates) the journal at path.
// Use ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS faults (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subscriber_uid TEXT NOT NULL,
		kind TEXT NOT NULL,
		error TEXT NOT NULL,
		context TEXT,
		message_json TEXT,
		duration_ms INTEGER DEFAULT 0,
		occurred_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_faults_subscriber ON faults(subscriber_uid);
	CREATE INDEX IF NOT EXISTS idx_faults_occurred_at ON faults(occurred_at);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Log records fault events and ignores everything else. Write errors are
// dropped; use Record to observe them.
func (s *Store) Log(event log.Event) {
	_ = s.Record(event)
}

// Record stores a fault event. Non-fault events are ignored.
func (s *Store) Record(event log.Event) error {
	if event.Category != log.CategoryFault || event.Error == nil {
		return nil
	}

	var msgJSON sql.NullString
	if event.Message != nil {
		data, err := json.Marshal(event.Message)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		msgJSON = sql.NullString{String: string(data), Valid: true}
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO faults (subscriber_uid, kind, error, context, message_json, duration_ms, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.SubscriberUID, event.Kind.String(), event.Error.Message, event.Error.Context,
		msgJSON, event.Duration.Milliseconds(), ts.UTC())
	return err
}

// Recent returns the most recent faults, newest first.
func (s *Store) Recent(limit int) ([]Fault, error) {
	return s.query(`
		SELECT id, subscriber_uid, kind, error, context, message_json, duration_ms, occurred_at
		FROM faults
		ORDER BY id DESC
		LIMIT ?
	`, normalizeLimit(limit))
}

// ForSubscriber returns the most recent faults of one subscriber, newest first.
func (s *Store) ForSubscriber(uid string, limit int) ([]Fault, error) {
	return s.query(`
		SELECT id, subscriber_uid, kind, error, context, message_json, duration_ms, occurred_at
		FROM faults
		WHERE subscriber_uid = ?
		ORDER BY id DESC
		LIMIT ?
	`, uid, normalizeLimit(limit))
}

func (s *Store) query(q string, args ...any) ([]Fault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var faults []Fault
	for rows.Next() {
		var f Fault
		var context, msgJSON sql.NullString

		if err := rows.Scan(&f.ID, &f.SubscriberUID, &f.Kind, &f.Error, &context,
			&msgJSON, &f.DurationMS, &f.OccurredAt); err != nil {
			return nil, err
		}
		if context.Valid {
			f.Context = context.String
		}
		if msgJSON.Valid {
			if err := json.Unmarshal([]byte(msgJSON.String), &f.Message); err != nil {
				return nil, fmt.Errorf("decode message of fault %d: %w", f.ID, err)
			}
		}
		faults = append(faults, f)
	}
	return faults, rows.Err()
}

// CountBySubscriber returns the number of recorded faults per subscriber uid.
func (s *Store) CountBySubscriber() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT subscriber_uid, COUNT(*) FROM faults GROUP BY subscriber_uid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var uid string
		var n int
		if err := rows.Scan(&uid, &n); err != nil {
			return nil, err
		}
		counts[uid] = n
	}
	return counts, rows.Err()
}

// Count returns the total number of recorded faults.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM faults").Scan(&count)
	return count, err
}

// Reset deletes all recorded faults.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM faults`)
	return err
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}

// Compile-time interface satisfaction check.
var _ log.Logger = (*Store)(nil)
