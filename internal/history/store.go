// Package history provides SQLite-backed storage for conversations,
// messages and the tool catalog. It uses modernc.org/sqlite for pure-Go,
// CGO-free database access.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	ended_at INTEGER,
	summary TEXT
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	parent_message_id INTEGER REFERENCES messages(id),
	role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'tool')),
	content TEXT NOT NULL,
	tool_id INTEGER,
	tool_name TEXT,
	sequence_number INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(parent_message_id);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);

CREATE TABLE IF NOT EXISTS tools (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	category TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	query_examples TEXT NOT NULL DEFAULT '[]',
	active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store provides access to the assistant's SQLite database. A fresh
// session id is minted per Open, so conversations can be traced back to
// the process run that produced them.
type Store struct {
	db        *sql.DB
	logger    *slog.Logger
	sessionID string
}

// Open opens (creating if needed) the database at path and initializes
// the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	s := &Store{db: db, logger: logger, sessionID: uuid.NewString()}
	s.logger.Debug("History store opened", "path", path, "session_id", s.sessionID)

	return s, nil
}

// SessionID returns the identifier minted for this process run.
func (s *Store) SessionID() string {
	return s.sessionID
}

// Close flushes the WAL and closes the database.
func (s *Store) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("WAL checkpoint failed", "error", err)
	}
	return s.db.Close()
}

// BeginConversation starts a new conversation under the current session.
func (s *Store) BeginConversation(ctx context.Context, title string) (*Conversation, error) {
	now := time.Now()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, title, started_at) VALUES (?, ?, ?)`,
		s.sessionID, title, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("conversation id: %w", err)
	}

	return &Conversation{ID: id, SessionID: s.sessionID, Title: title, StartedAt: now}, nil
}

// EndConversation marks the conversation as ended.
func (s *Store) EndConversation(ctx context.Context, conversationID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UnixMilli(), conversationID)
	if err != nil {
		return fmt.Errorf("end conversation: %w", err)
	}
	return nil
}

// Conversation returns a conversation by id.
func (s *Store) Conversation(ctx context.Context, id int64) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, title, started_at, ended_at, summary
		 FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	return conv, err
}

// RecentConversations returns the most recently started conversations,
// newest first.
func (s *Store) RecentConversations(ctx context.Context, limit int) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, title, started_at, ended_at, summary
		 FROM conversations ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

// SetSummary stores an LLM-generated summary on the conversation.
func (s *Store) SetSummary(ctx context.Context, conversationID int64, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET summary = ? WHERE id = ?`, summary, conversationID)
	if err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("conversation %d: %w", conversationID, ErrNotFound)
	}
	return nil
}

// MessageOption customizes an inserted message.
type MessageOption func(*messageOptions)

type messageOptions struct {
	parentID *int64
	toolID   *int64
	toolName string
}

// WithParent links the message to the user message it answers.
func WithParent(id int64) MessageOption {
	return func(o *messageOptions) { o.parentID = &id }
}

// WithTool attributes the message to a tool invocation.
func WithTool(id int64, name string) MessageOption {
	return func(o *messageOptions) {
		o.toolID = &id
		o.toolName = name
	}
}

// AddMessage appends a message to the conversation, assigning the next
// sequence number.
func (s *Store) AddMessage(ctx context.Context, conversationID int64, role, content string, opts ...MessageOption) (*Message, error) {
	switch role {
	case RoleUser, RoleAssistant, RoleTool:
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	var o messageOptions
	for _, opt := range opts {
		opt(&o)
	}

	now := time.Now()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, parent_message_id, role, content, tool_id, tool_name, sequence_number, created_at)
		 VALUES (?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM messages WHERE conversation_id = ?), ?)`,
		conversationID, o.parentID, role, content, o.toolID, o.toolName, conversationID, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	msg := &Message{
		ID:              id,
		ConversationID:  conversationID,
		ParentMessageID: o.parentID,
		Role:            role,
		Content:         content,
		ToolID:          o.toolID,
		ToolName:        o.toolName,
		CreatedAt:       now,
	}

	row := s.db.QueryRowContext(ctx, `SELECT sequence_number FROM messages WHERE id = ?`, id)
	if err := row.Scan(&msg.SequenceNumber); err != nil {
		return nil, fmt.Errorf("read sequence number: %w", err)
	}

	return msg, nil
}

// AddToolResponse records a tool's output as a tool-role message linked
// to the user message that triggered it.
func (s *Store) AddToolResponse(ctx context.Context, conversationID, parentID, toolID int64, toolName, result string) (*Message, error) {
	return s.AddMessage(ctx, conversationID, RoleTool, result,
		WithParent(parentID), WithTool(toolID, toolName))
}

// AssistantResponseFor returns the assistant message answering the given
// user message, or nil when no response was recorded.
func (s *Store) AssistantResponseFor(ctx context.Context, userMessageID int64) (*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, parent_message_id, role, content, tool_id, tool_name, sequence_number, created_at
		 FROM messages
		 WHERE parent_message_id = ? AND role = 'assistant'
		 ORDER BY created_at ASC, id ASC LIMIT 1`, userMessageID)
	if err != nil {
		return nil, fmt.Errorf("query response: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanMessage(rows)
}

// RecentMessages returns the last messages of the conversation in
// chronological order.
func (s *Store) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, parent_message_id, role, content, tool_id, tool_name, sequence_number, created_at
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY sequence_number DESC, id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MessagesSince returns every message with id greater than the given one,
// in insertion order. This feeds incremental index updates; pass 0 for a
// full scan.
func (s *Store) MessagesSince(ctx context.Context, id int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, parent_message_id, role, content, tool_id, tool_name, sequence_number, created_at
		 FROM messages WHERE id > ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// Stats returns row counts for the stats command.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByRole: map[string]int64{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&st.Conversations); err != nil {
		return nil, fmt.Errorf("count conversations: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&st.Messages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tools WHERE active = 1`).Scan(&st.ActiveTools); err != nil {
		return nil, fmt.Errorf("count tools: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT role, COUNT(*) FROM messages GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("count roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role string
		var n int64
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		st.ByRole[role] = n
	}

	return st, rows.Err()
}

// SyncTools upserts the catalog by tool name and deactivates rows no
// longer present, so dropped tools stop being selectable without losing
// the id history references.
func (s *Store) SyncTools(ctx context.Context, recs []ToolRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	names := make([]any, 0, len(recs))

	for _, rec := range recs {
		examples, err := json.Marshal(rec.QueryExamples)
		if err != nil {
			return fmt.Errorf("marshal examples for %s: %w", rec.Name, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO tools (name, category, description, query_examples, active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 1, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET
				category = excluded.category,
				description = excluded.description,
				query_examples = excluded.query_examples,
				active = 1,
				updated_at = excluded.updated_at`,
			rec.Name, rec.Category, rec.Description, string(examples), now, now)
		if err != nil {
			return fmt.Errorf("upsert tool %s: %w", rec.Name, err)
		}

		names = append(names, rec.Name)
	}

	deactivate := `UPDATE tools SET active = 0, updated_at = ? WHERE active = 1`
	args := []any{now}
	if len(names) > 0 {
		deactivate += ` AND name NOT IN (?` + strings.Repeat(", ?", len(names)-1) + `)`
		args = append(args, names...)
	}
	if _, err := tx.ExecContext(ctx, deactivate, args...); err != nil {
		return fmt.Errorf("deactivate missing tools: %w", err)
	}

	return tx.Commit()
}

// ActiveTools returns the selectable catalog ordered by name.
func (s *Store) ActiveTools(ctx context.Context) ([]ToolRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, description, query_examples, active
		 FROM tools WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tools: %w", err)
	}
	defer rows.Close()

	var out []ToolRecord
	for rows.Next() {
		var rec ToolRecord
		var examples string
		var active int

		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Category, &rec.Description, &examples, &active); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		if err := json.Unmarshal([]byte(examples), &rec.QueryExamples); err != nil {
			return nil, fmt.Errorf("decode examples for %s: %w", rec.Name, err)
		}
		rec.Active = active != 0

		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var startedAt int64
	var endedAt sql.NullInt64
	var summary sql.NullString

	if err := row.Scan(&conv.ID, &conv.SessionID, &conv.Title, &startedAt, &endedAt, &summary); err != nil {
		return nil, err
	}

	conv.StartedAt = time.UnixMilli(startedAt)
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64)
		conv.EndedAt = &t
	}
	conv.Summary = summary.String

	return &conv, nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var parentID, toolID sql.NullInt64
	var toolName sql.NullString
	var createdAt int64

	err := row.Scan(&msg.ID, &msg.ConversationID, &parentID, &msg.Role, &msg.Content,
		&toolID, &toolName, &msg.SequenceNumber, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}

	if parentID.Valid {
		msg.ParentMessageID = &parentID.Int64
	}
	if toolID.Valid {
		msg.ToolID = &toolID.Int64
	}
	msg.ToolName = toolName.String
	msg.CreatedAt = time.UnixMilli(createdAt)

	return &msg, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}
