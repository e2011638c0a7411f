// Package history implements the SQLite-backed audit log of matches and
// logins. The matchmaker itself stays purely in memory; this store only
// observes events for operators, nothing reads it on the request path.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/slonopotamus/Atto/internal/events"
)

// Store wraps a SQLite database holding the match and login history.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	matched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	session_id INTEGER NOT NULL,
	owner_user_id INTEGER NOT NULL,
	parties INTEGER NOT NULL,
	players INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS logins (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	logged_in_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	user_id INTEGER NOT NULL,
	remote_addr TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_matches_matched_at ON matches(matched_at);
`

// Open opens or creates the history database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", dbPath, err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Warn().Err(err).Msg("failed to enable WAL mode")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history database ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("history database opened")
	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordMatch appends one committed match.
func (s *Store) RecordMatch(sessionID, ownerUserID uint64, parties int, players int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO matches (session_id, owner_user_id, parties, players) VALUES (?, ?, ?, ?)`,
		int64(sessionID), int64(ownerUserID), parties, players)
	if err != nil {
		return fmt.Errorf("failed to record match: %w", err)
	}
	return nil
}

// RecordLogin appends one successful login.
func (s *Store) RecordLogin(userID uint64, remoteAddr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO logins (user_id, remote_addr) VALUES (?, ?)`,
		int64(userID), remoteAddr)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// MatchRecord is one row of the match history.
type MatchRecord struct {
	ID          int64     `json:"id"`
	MatchedAt   time.Time `json:"matched_at"`
	SessionID   uint64    `json:"session_id"`
	OwnerUserID uint64    `json:"owner_user_id"`
	Parties     int       `json:"parties"`
	Players     int32     `json:"players"`
}

// RecentMatches returns the newest matches, most recent first.
func (s *Store) RecentMatches(limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, matched_at, session_id, owner_user_id, parties, players
		 FROM matches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query match history: %w", err)
	}
	defer rows.Close()

	var result []MatchRecord
	for rows.Next() {
		var r MatchRecord
		var sessionID, ownerID int64
		if err := rows.Scan(&r.ID, &r.MatchedAt, &sessionID, &ownerID, &r.Parties, &r.Players); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		r.SessionID = uint64(sessionID)
		r.OwnerUserID = uint64(ownerID)
		result = append(result, r)
	}
	return result, rows.Err()
}

// MatchCount returns the total number of recorded matches.
func (s *Store) MatchCount() (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM matches`).Scan(&count)
	return count, err
}

// Attach subscribes the store to the event bus so matches and logins
// are recorded as they happen.
func (s *Store) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventMatchCommitted, "history", func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.MatchPayload)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		return s.RecordMatch(payload.SessionID, payload.OwnerUserID, payload.Parties, payload.Players)
	})
	bus.Subscribe(events.EventUserLoggedIn, "history", func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.UserPayload)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		return s.RecordLogin(payload.UserID, payload.RemoteAddr)
	})
}
