package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"parley/internal/app/user"
)

// MessageRepo persists chat message history.
type MessageRepo struct {
	pool *pgxpool.Pool
}

// StoredMessage is one row of chatroom history.
type StoredMessage struct {
	ID         int64     `json:"id"`
	ChatroomID int64     `json:"chatroomId"`
	SenderID   int64     `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	SentAt     time.Time `json:"sentAt"`
}

// PersistMessage stores one chat message. It satisfies the hub's persister
// contract and is invoked fire-and-forget from the broadcast path.
func (r *MessageRepo) PersistMessage(ctx context.Context, chatroomID int64, sender user.UserInfo, content string, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (chatroom_id, sender_id, content, sent_at)
		 VALUES ($1, $2, $3, $4)`,
		chatroomID, sender.ID, content, sentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// ListRecent returns up to limit most recent messages of a chatroom in
// chronological order.
func (r *MessageRepo) ListRecent(ctx context.Context, chatroomID int64, limit int) ([]StoredMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.chatroom_id, m.sender_id, u.last_name || ' ' || u.first_name, m.content, m.sent_at
		 FROM (
		     SELECT id, chatroom_id, sender_id, content, sent_at
		     FROM messages
		     WHERE chatroom_id = $1
		     ORDER BY sent_at DESC
		     LIMIT $2
		 ) m
		 JOIN users u ON u.id = m.sender_id
		 ORDER BY m.sent_at ASC`,
		chatroomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []StoredMessage
	for rows.Next() {
		var msg StoredMessage
		if err := rows.Scan(&msg.ID, &msg.ChatroomID, &msg.SenderID, &msg.SenderName, &msg.Content, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}

	return messages, nil
}
