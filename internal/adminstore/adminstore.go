// Package adminstore provides persistent storage for the admin/UI event
// surface: audit rows only. The matcher's authoritative transaction state
// is never persisted here — it stays in-memory in internal/exchange and is
// rebuilt from scratch on restart, per spec §3.
package adminstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the admin audit database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds adminstore configuration.
type Config struct {
	DataDir string
}

// New opens (creating if necessary) the admin audit database under
// cfg.DataDir.
func New(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "xhub-admin.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) initSchema() error {
	schema := `
	-- Audit log of every admin-surface event: a peer connecting or
	-- disconnecting, a transaction reaching a new state, a diagnostic raw
	-- send via POST /send. Diagnostic only; nothing here is read back by
	-- the matcher.
	CREATE TABLE IF NOT EXISTS events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		tx_id      TEXT,
		peer_id    TEXT,
		detail     TEXT,
		recorded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
	CREATE INDEX IF NOT EXISTS idx_events_tx ON events(tx_id);
	CREATE INDEX IF NOT EXISTS idx_events_recorded ON events(recorded_at);

	-- Record of every admin-initiated raw send (POST /send), for audit:
	-- who asked the node to inject what frame to which destination.
	CREATE TABLE IF NOT EXISTS send_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		dst_id     TEXT NOT NULL,
		byte_len   INTEGER NOT NULL,
		requested_at INTEGER NOT NULL,
		error      TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_send_log_dst ON send_log(dst_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordEvent appends one audit row. detail is a short free-form string
// (not a JSON blob — this is diagnostic text, not a replay log).
func (s *Store) RecordEvent(eventType, txID, peerID, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO events (event_type, tx_id, peer_id, detail, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		eventType, txID, peerID, detail, time.Now().Unix(),
	)
	return err
}

// RecordSend appends one audit row for a POST /send request.
func (s *Store) RecordSend(dstID string, byteLen int, sendErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errText sql.NullString
	if sendErr != nil {
		errText = sql.NullString{String: sendErr.Error(), Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO send_log (dst_id, byte_len, requested_at, error) VALUES (?, ?, ?, ?)`,
		dstID, byteLen, time.Now().Unix(), errText,
	)
	return err
}

// Event is one row read back from the events table.
type Event struct {
	ID         int64
	EventType  string
	TxID       string
	PeerID     string
	Detail     string
	RecordedAt int64
}

// RecentEvents returns up to limit most recent audit events, newest first.
func (s *Store) RecentEvents(limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, event_type, COALESCE(tx_id, ''), COALESCE(peer_id, ''), COALESCE(detail, ''), recorded_at
		 FROM events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.TxID, &e.PeerID, &e.Detail, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
