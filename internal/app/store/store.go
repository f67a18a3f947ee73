/*
Package store contains the PostgreSQL repositories backing the REST surface
and the message history. Each repository wraps the shared pgx pool and
exposes domain-level operations; callers never see SQL or driver errors
other than the sentinel ErrNotFound.
*/
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store bundles the repositories sharing one connection pool.
type Store struct {
	Users     *UserRepo
	Chatrooms *ChatroomRepo
	Messages  *MessageRepo
}

// New constructs a Store on top of an initialized pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Users:     &UserRepo{pool: pool},
		Chatrooms: &ChatroomRepo{pool: pool},
		Messages:  &MessageRepo{pool: pool},
	}
}
