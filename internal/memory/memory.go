// Package memory persists conversation history between turns. The
// agent loop reads prior turns from here when building its transcript
// and writes the user/assistant pair back after each completed turn.
package memory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Message is one stored turn of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation groups messages under a stable identifier.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages,omitempty"`
}

// Store is a SQLite-backed conversation store.
type Store struct {
	db          *sql.DB
	maxMessages int
}

// NewStore opens (creating if needed) the conversation database at
// path. maxMessages bounds how much history a single conversation
// feeds back into the prompt.
func NewStore(path string, maxMessages int) (*Store, error) {
	if maxMessages <= 0 {
		maxMessages = 50
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, maxMessages: maxMessages}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOrCreateConversation ensures a conversation row exists.
func (s *Store) GetOrCreateConversation(id string) (*Conversation, error) {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO conversations (id, created_at, updated_at)
		VALUES (?, ?, ?)
	`, id, now, now)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &Conversation{ID: id, CreatedAt: now, UpdatedAt: now}, nil
}

// AddMessage appends a message to a conversation, creating the
// conversation if it does not exist yet.
func (s *Store) AddMessage(conversationID, role, content string) error {
	if _, err := s.GetOrCreateConversation(conversationID); err != nil {
		return err
	}

	now := time.Now()
	msgID, _ := uuid.NewV7()
	_, err := s.db.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, msgID.String(), conversationID, role, content, now)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = s.db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

// GetMessages returns up to maxMessages of the most recent history for
// a conversation, in chronological order. Errors degrade to an empty
// slice: a broken history store should not block answering.
func (s *Store) GetMessages(conversationID string) []Message {
	rows, err := s.db.Query(`
		SELECT role, content, timestamp FROM (
			SELECT role, content, timestamp
			FROM messages
			WHERE conversation_id = ?
			ORDER BY timestamp DESC
			LIMIT ?
		) ORDER BY timestamp ASC
	`, conversationID, s.maxMessages)
	if err != nil {
		return []Message{}
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.Timestamp); err != nil {
			continue
		}
		messages = append(messages, m)
	}
	return messages
}

// Clear removes a conversation and all its messages.
func (s *Store) Clear(conversationID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// Stats returns storage counters for the health endpoint.
func (s *Store) Stats() map[string]any {
	var convCount, msgCount int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&convCount)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&msgCount)

	return map[string]any{
		"conversations": convCount,
		"messages":      msgCount,
		"max_per_conv":  s.maxMessages,
	}
}
