package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        external_user_id TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        membership_status TEXT NOT NULL DEFAULT 'free' CHECK (membership_status IN ('free', 'premium')),
        conversation_count INTEGER NOT NULL DEFAULT 0,
        message_count INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        title TEXT,
        summary TEXT,
        conversation_count_snapshot INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        sender TEXT NOT NULL CHECK (sender IN ('user', 'ai', 'system')),
        content TEXT NOT NULL,
        content_type TEXT NOT NULL DEFAULT 'text',
        context TEXT NOT NULL DEFAULT '',
        metadata TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        negative_feedback BOOLEAN DEFAULT FALSE,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );

    CREATE TABLE IF NOT EXISTS chunks (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        content TEXT NOT NULL,
        embedding TEXT, -- JSON-encoded []float32
        source TEXT NOT NULL DEFAULT '',
        metadata TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) GetUserByExternalID(externalUserID string) (*User, error) {
	var user User
	err := s.db.QueryRow(
		"SELECT id, external_user_id, password_hash, membership_status, conversation_count, message_count, created_at FROM users WHERE external_user_id = ?",
		externalUserID,
	).Scan(&user.ID, &user.ExternalUserID, &user.PasswordHash, &user.MembershipStatus, &user.ConversationCount, &user.MessageCount, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(externalUserID, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (external_user_id, password_hash) VALUES (?, ?)", externalUserID, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetUserByID(id)
}

func (s *SQLiteStore) GetUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow(
		"SELECT id, external_user_id, password_hash, membership_status, conversation_count, message_count, created_at FROM users WHERE id = ?",
		id,
	).Scan(&user.ID, &user.ExternalUserID, &user.PasswordHash, &user.MembershipStatus, &user.ConversationCount, &user.MessageCount, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) SetMembershipStatus(userID int64, status MembershipStatus) error {
	res, err := s.db.Exec("UPDATE users SET membership_status = ? WHERE id = ?", status, userID)
	if err != nil {
		return fmt.Errorf("failed to update membership status: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("user not found, membership not updated")
	}
	return nil
}

// Quota counter methods. Counters are always recomputed from the
// authoritative tables with parameterized COUNT queries, never
// incremented in place.

func (s *SQLiteStore) CountConversationsByUser(userID int64) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM conversations WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) CountAIMessagesByUser(userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages m
         JOIN conversations c ON m.conversation_id = c.id
         WHERE c.user_id = ? AND m.sender = ?`,
		userID, SenderAI,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ai messages: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) UpdateUserCounters(userID int64, conversationCount, messageCount int) error {
	res, err := s.db.Exec(
		"UPDATE users SET conversation_count = ?, message_count = ? WHERE id = ?",
		conversationCount, messageCount, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user counters: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("user not found, counters not updated")
	}
	return nil
}

// Conversation methods

func (s *SQLiteStore) CreateConversation(userID int64, title *string) (*Conversation, error) {
	conversationID := uuid.NewString()
	stmt, err := s.db.Prepare("INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare conversation insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	_, err = stmt.Exec(conversationID, userID, title, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to execute conversation insert: %w", err)
	}

	snapshot, err := s.refreshConversationSnapshots(userID)
	if err != nil {
		return nil, err
	}

	return &Conversation{
		ID:                        conversationID,
		UserID:                    userID,
		Title:                     title,
		ConversationCountSnapshot: snapshot,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}, nil
}

// refreshConversationSnapshots recomputes the per-conversation snapshot of
// how many conversations the user owns. Called after every conversation
// insert/delete so the snapshot matches the authoritative count.
func (s *SQLiteStore) refreshConversationSnapshots(userID int64) (int, error) {
	count, err := s.CountConversationsByUser(userID)
	if err != nil {
		return 0, err
	}
	_, err = s.db.Exec("UPDATE conversations SET conversation_count_snapshot = ? WHERE user_id = ?", count, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh conversation snapshots: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) GetConversationByID(conversationID string, userID int64) (*Conversation, error) {
	var conv Conversation
	var title, summary sql.NullString
	err := s.db.QueryRow(
		"SELECT id, user_id, title, summary, conversation_count_snapshot, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?",
		conversationID, userID,
	).Scan(&conv.ID, &conv.UserID, &title, &summary, &conv.ConversationCountSnapshot, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if title.Valid {
		conv.Title = &title.String
	}
	if summary.Valid {
		conv.Summary = &summary.String
	}
	return &conv, nil
}

func (s *SQLiteStore) GetConversationsByUserID(userID int64) ([]Conversation, error) {
	rows, err := s.db.Query(
		"SELECT id, user_id, title, summary, conversation_count_snapshot, created_at, updated_at FROM conversations WHERE user_id = ? ORDER BY created_at DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var conv Conversation
		var title, summary sql.NullString
		if err := rows.Scan(&conv.ID, &conv.UserID, &title, &summary, &conv.ConversationCountSnapshot, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		if title.Valid {
			conv.Title = &title.String
		}
		if summary.Valid {
			conv.Summary = &summary.String
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

func (s *SQLiteStore) UpdateConversationTitle(conversationID string, userID int64, title string) error {
	stmt, err := s.db.Prepare("UPDATE conversations SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare conversation title update: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(title, time.Now(), conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to execute conversation title update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("conversation not found or not owned by user, title not updated")
	}
	return nil
}

// DeleteConversation removes a conversation with its messages and chunks in
// one transaction, then refreshes the owner's conversation snapshots.
func (s *SQLiteStore) DeleteConversation(conversationID string, userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM conversations WHERE id = ? AND user_id = ?", conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("conversation not found or not owned by user")
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation messages: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation chunks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete transaction: %w", err)
	}

	if _, err := s.refreshConversationSnapshots(userID); err != nil {
		log.Printf("Warning: failed to refresh conversation snapshots for user %d: %v", userID, err)
	}
	return nil
}

// Message methods

func (s *SQLiteStore) CreateMessage(msg *Message) error {
	if _, err := ParseSender(string(msg.Sender)); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	msg.ID = uuid.NewString() // Ensure ID is set
	msg.CreatedAt = time.Now()
	if msg.ContentType == "" {
		msg.ContentType = "text"
	}

	stmt, err := s.db.Prepare("INSERT INTO messages (id, conversation_id, sender, content, content_type, context, metadata, created_at, negative_feedback) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(msg.ID, msg.ConversationID, msg.Sender, msg.Content, msg.ContentType, msg.Context, msg.Metadata, msg.CreatedAt, msg.NegativeFeedback)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessagesByConversationID(conversationID string, limit int, offset int) ([]Message, error) {
	query := "SELECT id, conversation_id, sender, content, content_type, context, metadata, created_at, negative_feedback FROM messages WHERE conversation_id = ? ORDER BY created_at ASC LIMIT ? OFFSET ?"
	rows, err := s.db.Query(query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// GetLastNMessagesByConversationID returns the most recent n messages in
// chronological order.
func (s *SQLiteStore) GetLastNMessagesByConversationID(conversationID string, n int) ([]Message, error) {
	query := `
        SELECT id, conversation_id, sender, content, content_type, context, metadata, created_at, negative_feedback
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at DESC
        LIMIT ?
    `

	rows, err := s.db.Query(query, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Query returns newest first; callers want conversation order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &msg.ContentType, &msg.Context, &msg.Metadata, &msg.CreatedAt, &msg.NegativeFeedback); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *SQLiteStore) UpdateMessageFeedback(messageID string, negativeFeedback bool) error {
	stmt, err := s.db.Prepare("UPDATE messages SET negative_feedback = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare feedback update: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(negativeFeedback, messageID)
	if err != nil {
		return fmt.Errorf("failed to execute feedback update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("message not found, feedback not updated")
	}
	return nil
}

func (s *SQLiteStore) DeleteMessage(messageID string, userID int64) error {
	res, err := s.db.Exec(
		`DELETE FROM messages WHERE id = ? AND conversation_id IN
         (SELECT id FROM conversations WHERE user_id = ?)`,
		messageID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("message not found or not owned by user")
	}
	return nil
}

// Chunk methods

func (s *SQLiteStore) CreateChunk(chunk *Chunk) error {
	encoded, err := EncodeEmbedding(chunk.Embedding)
	if err != nil {
		return err
	}

	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	chunk.CreatedAt = time.Now()

	stmt, err := s.db.Prepare("INSERT INTO chunks (id, conversation_id, content, embedding, source, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(chunk.ID, chunk.ConversationID, chunk.Content, encoded, chunk.Source, chunk.Metadata, chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute chunk insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChunksByConversationID(conversationID string) ([]Chunk, error) {
	rows, err := s.db.Query(
		"SELECT id, conversation_id, content, embedding, source, metadata, created_at FROM chunks WHERE conversation_id = ?",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		var embedding sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.ConversationID, &chunk.Content, &embedding, &chunk.Source, &chunk.Metadata, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if embedding.Valid {
			vec, err := DecodeEmbedding(embedding.String)
			if err != nil {
				log.Printf("Warning: %v for chunk %s (content: %.50s...). Embedding will be empty.", err, chunk.ID, chunk.Content)
				vec = nil
			}
			chunk.Embedding = vec
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
