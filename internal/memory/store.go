package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deskrelay/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.HistoryStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ domain.HistoryStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the history database at dbPath
// and brings its schema up to date.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if !isMemoryPath(dbPath) {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serialises writers anyway, and in-memory
	// databases are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

func dsn(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// Append stores a message. created_at is never earlier than the latest
// message already stored for the same conversation, so history order is
// stable even if the wall clock steps backwards.
func (s *SQLiteStore) Append(ctx context.Context, channel domain.Channel, conversationID string, sender domain.Sender, text string) (domain.Message, error) {
	if !channel.Valid() {
		return domain.Message{}, fmt.Errorf("append: invalid channel %q", channel)
	}
	if !sender.Valid() {
		return domain.Message{}, fmt.Errorf("append: invalid sender %q", sender)
	}
	if conversationID == "" {
		return domain.Message{}, fmt.Errorf("append: empty conversation id")
	}

	var (
		id      int64
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (channel, conversation_id, sender, text, created_at)
		 VALUES (?, ?, ?, ?, MAX(?, COALESCE(
			(SELECT MAX(created_at) FROM messages WHERE channel = ? AND conversation_id = ?), 0)))
		 RETURNING id, created_at`,
		string(channel), conversationID, string(sender), text, s.now().UnixNano(),
		string(channel), conversationID,
	).Scan(&id, &created)
	if err != nil {
		return domain.Message{}, fmt.Errorf("append message (%s/%s): %w", channel, conversationID, err)
	}

	return domain.Message{
		ID:             id,
		Channel:        channel,
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
		CreatedAt:      time.Unix(0, created).UTC(),
	}, nil
}

// Query returns the conversation's messages in ascending creation order.
func (s *SQLiteStore) Query(ctx context.Context, channel domain.Channel, conversationID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, text, created_at FROM messages
		 WHERE channel = ? AND conversation_id = ?
		 ORDER BY created_at ASC, id ASC`,
		string(channel), conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages (%s/%s): %w", channel, conversationID, err)
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var (
			m       domain.Message
			sender  string
			created int64
		)
		if err := rows.Scan(&m.ID, &sender, &m.Text, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Channel = channel
		m.ConversationID = conversationID
		m.Sender = domain.Sender(sender)
		m.CreatedAt = time.Unix(0, created).UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// Count returns the total number of stored messages.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n)
	return n, err
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
