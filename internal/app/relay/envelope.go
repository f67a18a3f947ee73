/*
Package relay carries broadcast events between server instances that do not
share a local connection table.

Each chatroom maps to one Redis pub/sub channel. Every published envelope is
tagged with the publishing instance's origin id; subscribers drop envelopes
they themselves produced, because the publishing instance already delivered
those locally before publishing.
*/
package relay

import (
	"encoding/json"
	"fmt"

	"parley/internal/app/user"
)

// Envelope is the wire format of a cross-instance broadcast.
//
// Message holds the fully rendered client payload; receiving instances write
// it to their local sockets verbatim. OriginID exists purely for loop
// prevention and is never used for ordering.
type Envelope struct {
	EventType int            `json:"eventType"`
	Scope     string         `json:"scope"`
	Message   string         `json:"message"`
	Sender    *user.UserInfo `json:"sender"`
	Timestamp string         `json:"timestamp"`
	OriginID  string         `json:"originId"`
}

// channelName builds the pub/sub channel for a chatroom.
func channelName(chatroomID int64) string {
	return fmt.Sprintf("chatroom:%d:channel", chatroomID)
}

// encodeEnvelope serializes an envelope for publishing.
func encodeEnvelope(env Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode relay envelope: %w", err)
	}
	return payload, nil
}

// decodeEnvelope parses an envelope received from a channel.
func decodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode relay envelope: %w", err)
	}
	return env, nil
}
