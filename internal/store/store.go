// Package store persists conversation turns in SQLite, keyed by
// (user, persona). It assigns canonical message identifiers on insert and
// performs no caching - the session layer owns that.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"maripist/internal/logging"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Record is one persisted conversation turn.
type Record struct {
	ID        string
	UserID    string
	PersonaID string
	Sender    string
	Content   string
	CreatedAt time.Time
}

// MessageStore implements the durable message boundary over SQLite.
type MessageStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewMessageStore initializes the SQLite database at the given path.
func NewMessageStore(path string) (*MessageStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewMessageStore")
	defer timer.Stop()

	logging.Store("Initializing MessageStore at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &MessageStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store("MessageStore initialization complete")
	return s, nil
}

// initialize creates the required tables.
// seq carries the creation order; created_at alone can tie within a second.
func (s *MessageStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		persona_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_owner ON chat_messages(user_id, persona_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Append persists one turn as a single atomic write and returns the
// canonical identifier assigned by the store. On error the turn must not
// be treated as durable.
func (s *MessageStore) Append(userID, personaID, sender, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	logging.StoreDebug("Appending message: persona=%s sender=%s content_len=%d", personaID, sender, len(content))

	_, err := s.db.Exec(
		`INSERT INTO chat_messages (id, user_id, persona_id, sender, content) VALUES (?, ?, ?, ?, ?)`,
		id, userID, personaID, sender, content,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to append message for persona %s: %v", personaID, err)
		return "", fmt.Errorf("failed to append message: %w", err)
	}

	logging.StoreDebug("Message appended: persona=%s id=%s", personaID, id)
	return id, nil
}

// LoadHistory returns all turns for a (user, persona) pair in ascending
// creation order.
func (s *MessageStore) LoadHistory(userID, personaID string) ([]Record, error) {
	timer := logging.StartTimer(logging.CategoryStore, "LoadHistory")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	logging.StoreDebug("Loading history: user=%s persona=%s", userID, personaID)

	rows, err := s.db.Query(
		`SELECT id, user_id, persona_id, sender, content, created_at
		 FROM chat_messages
		 WHERE user_id = ? AND persona_id = ?
		 ORDER BY seq ASC`,
		userID, personaID,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to query history for persona %s: %v", personaID, err)
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.PersonaID, &r.Sender, &r.Content, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	logging.StoreDebug("Loaded %d messages for persona=%s", len(records), personaID)
	return records, nil
}

// Close closes the underlying database.
func (s *MessageStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
