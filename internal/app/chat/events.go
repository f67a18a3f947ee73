/*
Package chat contains the core logic of the multi-instance broadcast layer:
the local connection table, the broadcast dispatcher, per-connection pumps,
and the hub orchestrating the WebSocket lifecycle.

This file defines the event types carried by broadcasts, the broadcast scopes,
and the rendering of outbound client payloads.
*/
package chat

import (
	"encoding/json"
	"time"

	"parley/internal/app/user"
)

// EventType identifies the kind of broadcast event. The numeric values are
// part of the client wire format.
type EventType int

const (
	EventText          EventType = 0
	EventConnect       EventType = 1
	EventDisconnect    EventType = 2
	EventRoomRemoved   EventType = 3
	EventMemberAdded   EventType = 4
	EventMemberRemoved EventType = 5
)

// Scope determines which subset of a chatroom's online users receives an
// event relative to its sender.
type Scope string

const (
	// ScopeAll delivers to every online user, sender included.
	ScopeAll Scope = "toAll"

	// ScopeOthers delivers to every online user except the sender.
	ScopeOthers Scope = "toOthers"

	// ScopeSelf delivers only to the sender. Self-scoped events never cross
	// the relay: the sender is always local to the instance that produced them.
	ScopeSelf Scope = "toSelf"
)

// WireTimeFormat is the timestamp layout shown to clients.
const WireTimeFormat = "15:04"

// wireUser is the user block of the outbound client payload.
type wireUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// wireMessage is the payload written to client sockets:
// {user:{id,username}, messageType:int, message:string, timestamp:"HH:mm"}.
type wireMessage struct {
	User        wireUser `json:"user"`
	MessageType int      `json:"messageType"`
	Message     string   `json:"message"`
	Timestamp   string   `json:"timestamp"`
}

// RenderEvent builds the outbound client payload for an event. The returned
// string is delivered verbatim to local sockets and carried unchanged inside
// relay envelopes, so remote instances never re-render it.
func RenderEvent(evt EventType, message string, info user.UserInfo, at time.Time) (string, error) {
	payload, err := json.Marshal(wireMessage{
		User: wireUser{
			ID:       info.ID,
			Username: info.DisplayName(),
		},
		MessageType: int(evt),
		Message:     message,
		Timestamp:   at.Format(WireTimeFormat),
	})
	if err != nil {
		return "", err
	}

	return string(payload), nil
}

// scopeAllows reports whether a user should receive an event under the given
// scope. A nil sender (system events such as room removal) makes ScopeOthers
// deliver to everyone and ScopeSelf to no one.
func scopeAllows(scope Scope, sender *user.UserInfo, userID int64) bool {
	switch scope {
	case ScopeAll:
		return true
	case ScopeOthers:
		return sender == nil || userID != sender.ID
	case ScopeSelf:
		return sender != nil && userID == sender.ID
	default:
		return false
	}
}
