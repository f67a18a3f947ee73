/*
Package chat contains the core logic of the multi-instance broadcast layer.

This file defines the ConnTable, the per-instance registry of live sockets
keyed by (chatroomId, userId). Connections are exclusively owned by the
instance that accepted them and are never shared across instances.
*/
package chat

import "sync"

// Conn is the opaque sendable handle stored in the connection table.
// *Client implements it; tests substitute recording fakes.
type Conn interface {
	// Send queues a payload for delivery. It must never block the caller on a
	// slow socket; a failure is an implicit disconnect signal for that socket.
	Send(payload []byte) error

	// ForceClose terminates the connection, e.g. when its chatroom is removed.
	ForceClose(reason string)
}

// ConnTable is the process-wide table of live local connections.
// All mutating operations are atomic with respect to concurrent
// connect/disconnect/broadcast calls on the same chatroom.
type ConnTable struct {
	mu    sync.RWMutex
	rooms map[int64]map[int64]Conn
}

// NewConnTable constructs an empty connection table.
func NewConnTable() *ConnTable {
	return &ConnTable{
		rooms: make(map[int64]map[int64]Conn),
	}
}

// Put registers a connection under (chatroomID, userID), replacing any
// previous entry for the same pair.
func (t *ConnTable) Put(chatroomID, userID int64, conn Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bucket, ok := t.rooms[chatroomID]
	if !ok {
		bucket = make(map[int64]Conn)
		t.rooms[chatroomID] = bucket
	}
	bucket[userID] = conn
}

// Remove deletes the connection for (chatroomID, userID) and reports whether
// an entry was actually removed. Empty room buckets are dropped.
func (t *ConnTable) Remove(chatroomID, userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	bucket, ok := t.rooms[chatroomID]
	if !ok {
		return false
	}

	if _, ok := bucket[userID]; !ok {
		return false
	}

	delete(bucket, userID)
	if len(bucket) == 0 {
		delete(t.rooms, chatroomID)
	}
	return true
}

// Get returns the connection for (chatroomID, userID), if present.
func (t *ConnTable) Get(chatroomID, userID int64) (Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	bucket, ok := t.rooms[chatroomID]
	if !ok {
		return nil, false
	}

	conn, ok := bucket[userID]
	return conn, ok
}

// IsEmpty reports whether the instance holds no connections for the chatroom.
func (t *ConnTable) IsEmpty(chatroomID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.rooms[chatroomID]) == 0
}

// UserIDs returns the set of user ids with a live local connection in the
// chatroom. The returned set is a copy and safe to use without the lock.
func (t *ConnTable) UserIDs(chatroomID int64) map[int64]struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make(map[int64]struct{}, len(t.rooms[chatroomID]))
	for userID := range t.rooms[chatroomID] {
		ids[userID] = struct{}{}
	}
	return ids
}

// Snapshot returns a copy of the chatroom's bucket, so fan-out iteration never
// holds the table lock across socket writes.
func (t *ConnTable) Snapshot(chatroomID int64) map[int64]Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := make(map[int64]Conn, len(t.rooms[chatroomID]))
	for userID, conn := range t.rooms[chatroomID] {
		snapshot[userID] = conn
	}
	return snapshot
}

// RoomIDs returns the ids of every chatroom with at least one local connection.
func (t *ConnTable) RoomIDs() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]int64, 0, len(t.rooms))
	for chatroomID := range t.rooms {
		ids = append(ids, chatroomID)
	}
	return ids
}
