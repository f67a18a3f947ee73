/*
Package presence implements the distributed registry of online chatroom users.

Every server instance writes "user X is online in chatroom Y" entries into a
shared Redis backend with a TTL. The registry answers the question "who is
online somewhere", not "who is connected to this instance"; the local
connection table owns the latter. Entries outlive an instance crash until TTL
expiry, which is the intended cleanup path for ungraceful disconnects.
*/
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"parley/internal/app/user"
	"parley/internal/pkg/logx"
)

// Registry is the contract for the distributed presence store.
//
// ListOnline may return a stale or partial set under backend errors; broadcast
// callers must treat an error as "delivery degraded" rather than failing the
// connection that triggered the call.
type Registry interface {
	// Register upserts the presence entry for the user and refreshes its TTL.
	// Idempotent; called on every connect, never on message activity.
	Register(ctx context.Context, chatroomID int64, info user.UserInfo, ttl time.Duration) error

	// Unregister deletes the presence entry and returns the number of users
	// still online in the chatroom after the delete.
	Unregister(ctx context.Context, chatroomID, userID int64) (int64, error)

	// ListOnline returns every user currently registered as online in the chatroom.
	ListOnline(ctx context.Context, chatroomID int64) ([]user.UserInfo, error)

	// GetOne returns the presence entry for a single user.
	// The boolean reports whether the entry exists.
	GetOne(ctx context.Context, chatroomID, userID int64) (user.UserInfo, bool, error)
}

// userKey builds the presence key for a single user in a chatroom.
// Shape: chatroom:{chatroomId}:user:{userId}
func userKey(chatroomID, userID int64) string {
	return fmt.Sprintf("chatroom:%d:user:%d", chatroomID, userID)
}

// roomPattern matches every presence key of a chatroom.
func roomPattern(chatroomID int64) string {
	return fmt.Sprintf("chatroom:%d:user:*", chatroomID)
}

// RedisRegistry is the Redis-backed Registry implementation shared by all
// server instances. It holds no local mutable state, so it needs no in-process
// locking beyond what the Redis client provides.
type RedisRegistry struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// NewRedisRegistry constructs a RedisRegistry on top of an established client.
func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{
		rdb:    rdb,
		logger: logx.Logger().With().Str("component", "PresenceRegistry").Logger(),
	}
}

// Register implements Registry.
func (r *RedisRegistry) Register(ctx context.Context, chatroomID int64, info user.UserInfo, ttl time.Duration) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to serialize presence entry: %w", err)
	}

	key := userKey(chatroomID, info.ID)
	if err := r.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to register presence entry %s: %w", key, err)
	}

	return nil
}

// Unregister implements Registry.
func (r *RedisRegistry) Unregister(ctx context.Context, chatroomID, userID int64) (int64, error) {
	key := userKey(chatroomID, userID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return 0, fmt.Errorf("failed to delete presence entry %s: %w", key, err)
	}

	keys, err := r.scanRoomKeys(ctx, chatroomID)
	if err != nil {
		return 0, err
	}

	return int64(len(keys)), nil
}

// ListOnline implements Registry.
func (r *RedisRegistry) ListOnline(ctx context.Context, chatroomID int64) ([]user.UserInfo, error) {
	keys, err := r.scanRoomKeys(ctx, chatroomID)
	if err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		return []user.UserInfo{}, nil
	}

	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch presence entries: %w", err)
	}

	users := make([]user.UserInfo, 0, len(values))
	for i, val := range values {
		// A key can expire between SCAN and MGET; skip the hole.
		if val == nil {
			continue
		}

		raw, ok := val.(string)
		if !ok {
			r.logger.Warn().Str("key", keys[i]).Msg("Unexpected value type in presence registry.")
			continue
		}

		var info user.UserInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			r.logger.Warn().Err(err).Str("key", keys[i]).Msg("Malformed presence entry skipped.")
			continue
		}

		users = append(users, info)
	}

	return users, nil
}

// GetOne implements Registry.
func (r *RedisRegistry) GetOne(ctx context.Context, chatroomID, userID int64) (user.UserInfo, bool, error) {
	key := userKey(chatroomID, userID)

	raw, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return user.UserInfo{}, false, nil
	}
	if err != nil {
		return user.UserInfo{}, false, fmt.Errorf("failed to fetch presence entry %s: %w", key, err)
	}

	var info user.UserInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return user.UserInfo{}, false, fmt.Errorf("malformed presence entry %s: %w", key, err)
	}

	return info, true, nil
}

// scanRoomKeys collects every presence key of the chatroom via SCAN.
func (r *RedisRegistry) scanRoomKeys(ctx context.Context, chatroomID int64) ([]string, error) {
	var keys []string

	iter := r.rdb.Scan(ctx, 0, roomPattern(chatroomID), 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan presence keys for chatroom %d: %w", chatroomID, err)
	}

	return keys, nil
}
