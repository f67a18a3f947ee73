package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"parley/internal/app/user"
)

// UserRepo persists user accounts.
type UserRepo struct {
	pool *pgxpool.Pool
}

// CreateUser inserts a new account with a bcrypt password hash and returns
// the stored identity.
func (r *UserRepo) CreateUser(ctx context.Context, firstName, lastName, mail, password string) (user.UserInfo, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.UserInfo{}, fmt.Errorf("failed to hash password: %w", err)
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO users (first_name, last_name, mail, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		firstName, lastName, mail, string(hash),
	).Scan(&id)
	if err != nil {
		return user.UserInfo{}, fmt.Errorf("failed to insert user: %w", err)
	}

	return user.UserInfo{ID: id, FirstName: firstName, LastName: lastName, Mail: mail}, nil
}

// LookupUser fetches a user by id. Returns ErrNotFound when no such user exists.
func (r *UserRepo) LookupUser(ctx context.Context, userID int64) (user.UserInfo, error) {
	var info user.UserInfo
	err := r.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, mail FROM users WHERE id = $1`,
		userID,
	).Scan(&info.ID, &info.FirstName, &info.LastName, &info.Mail)

	if errors.Is(err, pgx.ErrNoRows) {
		return user.UserInfo{}, ErrNotFound
	}
	if err != nil {
		return user.UserInfo{}, fmt.Errorf("failed to query user: %w", err)
	}

	return info, nil
}

// AuthenticateUser verifies a mail/password pair. A missing account and a
// wrong password both return ErrNotFound so callers cannot distinguish them.
func (r *UserRepo) AuthenticateUser(ctx context.Context, mail, password string) (user.UserInfo, error) {
	var (
		info user.UserInfo
		hash string
	)

	err := r.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, mail, password_hash FROM users WHERE mail = $1`,
		mail,
	).Scan(&info.ID, &info.FirstName, &info.LastName, &info.Mail, &hash)

	if errors.Is(err, pgx.ErrNoRows) {
		return user.UserInfo{}, ErrNotFound
	}
	if err != nil {
		return user.UserInfo{}, fmt.Errorf("failed to query user by mail: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return user.UserInfo{}, ErrNotFound
	}

	return info, nil
}

// UpdateAvatarKey stores the object storage key of the user's avatar.
func (r *UserRepo) UpdateAvatarKey(ctx context.Context, userID int64, key string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET avatar_key = $2 WHERE id = $1`,
		userID, key,
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// AvatarKey fetches the stored avatar key for a user. An empty key means no
// avatar has been uploaded yet.
func (r *UserRepo) AvatarKey(ctx context.Context, userID int64) (string, error) {
	var key *string
	err := r.pool.QueryRow(ctx,
		`SELECT avatar_key FROM users WHERE id = $1`,
		userID,
	).Scan(&key)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query avatar key: %w", err)
	}

	if key == nil {
		return "", nil
	}

	return *key, nil
}
