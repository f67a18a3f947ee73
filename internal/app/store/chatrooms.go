package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"parley/internal/app/user"
)

// Chatroom is the persisted representation of a chatroom.
type Chatroom struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedBy int64     `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatroomRepo persists chatrooms and their membership.
type ChatroomRepo struct {
	pool *pgxpool.Pool
}

// CreateChatroom inserts a chatroom and enrolls its creator as the first member.
func (r *ChatroomRepo) CreateChatroom(ctx context.Context, title string, createdBy int64) (Chatroom, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Chatroom{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var room Chatroom
	err = tx.QueryRow(ctx,
		`INSERT INTO chatrooms (title, created_by)
		 VALUES ($1, $2)
		 RETURNING id, title, created_by, created_at`,
		title, createdBy,
	).Scan(&room.ID, &room.Title, &room.CreatedBy, &room.CreatedAt)
	if err != nil {
		return Chatroom{}, fmt.Errorf("failed to insert chatroom: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO chatroom_members (chatroom_id, user_id) VALUES ($1, $2)`,
		room.ID, createdBy,
	)
	if err != nil {
		return Chatroom{}, fmt.Errorf("failed to enroll creator: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Chatroom{}, fmt.Errorf("failed to commit chatroom creation: %w", err)
	}

	return room, nil
}

// GetChatroom fetches one chatroom by id.
func (r *ChatroomRepo) GetChatroom(ctx context.Context, chatroomID int64) (Chatroom, error) {
	var room Chatroom
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, created_by, created_at FROM chatrooms WHERE id = $1`,
		chatroomID,
	).Scan(&room.ID, &room.Title, &room.CreatedBy, &room.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return Chatroom{}, ErrNotFound
	}
	if err != nil {
		return Chatroom{}, fmt.Errorf("failed to query chatroom: %w", err)
	}

	return room, nil
}

// DeleteChatroom removes a chatroom; members and messages cascade.
func (r *ChatroomRepo) DeleteChatroom(ctx context.Context, chatroomID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chatrooms WHERE id = $1`, chatroomID)
	if err != nil {
		return fmt.Errorf("failed to delete chatroom: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// AddMember enrolls a user into a chatroom. Re-adding an existing member is a no-op.
func (r *ChatroomRepo) AddMember(ctx context.Context, chatroomID, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chatroom_members (chatroom_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (chatroom_id, user_id) DO NOTHING`,
		chatroomID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	return nil
}

// RemoveMember drops a user from a chatroom. Returns ErrNotFound when the
// user was not a member.
func (r *ChatroomRepo) RemoveMember(ctx context.Context, chatroomID, userID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM chatroom_members WHERE chatroom_id = $1 AND user_id = $2`,
		chatroomID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// IsMember reports whether a user belongs to a chatroom.
func (r *ChatroomRepo) IsMember(ctx context.Context, chatroomID, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM chatroom_members WHERE chatroom_id = $1 AND user_id = $2
		 )`,
		chatroomID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query membership: %w", err)
	}

	return exists, nil
}

// ListMembers returns the identities of all members of a chatroom.
func (r *ChatroomRepo) ListMembers(ctx context.Context, chatroomID int64) ([]user.UserInfo, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.first_name, u.last_name, u.mail
		 FROM chatroom_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.chatroom_id = $1
		 ORDER BY m.joined_at`,
		chatroomID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []user.UserInfo
	for rows.Next() {
		var info user.UserInfo
		if err := rows.Scan(&info.ID, &info.FirstName, &info.LastName, &info.Mail); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate member rows: %w", err)
	}

	return members, nil
}
