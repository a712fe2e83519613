package chat

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chatlink/internal/dbx"
)

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         string    `json:"sender"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sentAt"`
}

// Cache persists conversation snapshots in the local sqlite database so
// the client has something to show before the hub answers.
type Cache struct {
	db *sql.DB
}

func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// ReplaceConversations swaps the cached conversation list for the given
// snapshot in one transaction.
func (c *Cache) ReplaceConversations(ctx context.Context, convs []Conversation) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
			return fmt.Errorf("failed to clear conversations: %w", err)
		}
		for _, cv := range convs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO conversations (id, title, updated_at) VALUES (?, ?, ?)
			`, cv.ID, cv.Title, cv.UpdatedAt.UTC())
			if err != nil {
				return fmt.Errorf("failed to insert conversation %s: %w", cv.ID, err)
			}
		}
		return nil
	})
}

func (c *Cache) Conversations(ctx context.Context) ([]Conversation, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, updated_at FROM conversations ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var cv Conversation
		if err := rows.Scan(&cv.ID, &cv.Title, &cv.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, cv)
	}
	return convs, rows.Err()
}

// ReplaceMessages swaps the cached history of one conversation.
func (c *Cache) ReplaceMessages(ctx context.Context, conversationID string, msgs []Message) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
			return fmt.Errorf("failed to clear messages: %w", err)
		}
		for _, m := range msgs {
			if err := insertMessage(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendMessage upserts a single incoming message.
func (c *Cache) AppendMessage(ctx context.Context, m Message) error {
	return insertMessage(ctx, c.db, m)
}

func insertMessage(ctx context.Context, db dbx.DBTX, m Message) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, body, sent_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body
	`, m.ID, m.ConversationID, m.Sender, m.Body, m.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
	}
	return nil
}

func (c *Cache) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender, body, sent_at
		FROM messages WHERE conversation_id = ? ORDER BY sent_at
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
