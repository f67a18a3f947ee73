/*
Package chat contains the core logic of the multi-instance broadcast layer.

This file defines the Hub, the long-lived component orchestrating the
WebSocket lifecycle: connect, inbound message, disconnect, transport error,
and the membership/room-removal notifications arriving from the REST side.
All state (connection table, subscriptions) is constructor-injected and owned
by the Hub instance, so several hubs can coexist in one test process.
*/
package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/app/presence"
	"parley/internal/app/relay"
	"parley/internal/app/user"
	"parley/internal/pkg/logx"
)

// persistTimeout bounds the background write of a chat message to the store.
const persistTimeout = 5 * time.Second

// MessagePersister is the collaborator contract for storing chat messages.
// Calls are fire-and-forget: the hub never waits for or surfaces the result.
type MessagePersister interface {
	PersistMessage(ctx context.Context, chatroomID int64, sender user.UserInfo, content string, sentAt time.Time) error
}

// Hub owns one instance's view of the broadcast layer.
type Hub struct {
	registry    presence.Registry
	table       *ConnTable
	subs        *subscriptionManager
	dispatcher  *Dispatcher
	messages    MessagePersister
	presenceTTL time.Duration
	logger      zerolog.Logger
}

// NewHub constructs a Hub with its own connection table and subscription set.
func NewHub(registry presence.Registry, broker Broker, messages MessagePersister, presenceTTL time.Duration) *Hub {
	table := NewConnTable()
	subs := newSubscriptionManager(broker)

	return &Hub{
		registry:    registry,
		table:       table,
		subs:        subs,
		dispatcher:  newDispatcher(registry, table, broker, subs),
		messages:    messages,
		presenceTTL: presenceTTL,
		logger:      logx.Logger().With().Str("component", "Hub").Logger(),
	}
}

// Dispatcher exposes the hub's broadcast dispatcher.
func (h *Hub) Dispatcher() *Dispatcher {
	return h.dispatcher
}

// Connect registers an authenticated connection: presence entry first (a
// registry failure is fatal to the connection attempt), then the local table
// and the chatroom's relay subscription, then a CONNECT broadcast to everyone
// online, and finally one self-scoped CONNECT per already-online user so the
// new client can render the roster through the ordinary broadcast path.
func (h *Hub) Connect(ctx context.Context, chatroomID int64, info user.UserInfo, conn Conn) error {
	if err := h.registry.Register(ctx, chatroomID, info, h.presenceTTL); err != nil {
		return err
	}

	h.table.Put(chatroomID, info.ID, conn)

	if err := h.subs.ensureSubscribed(chatroomID, func(env relay.Envelope) {
		h.handleRelayEnvelope(chatroomID, env)
	}); err != nil {
		// The connection still works for local traffic; remote events are
		// missed until the next successful subscribe for this chatroom.
		h.logger.Error().Err(err).Int64("chatroom_id", chatroomID).Msg("Chatroom channel subscription failed.")
	}

	now := time.Now()

	rendered, err := RenderEvent(EventConnect, string(ScopeAll), info, now)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", info.ID).Msg("Failed to render CONNECT event.")
	} else {
		h.dispatcher.Broadcast(ctx, chatroomID, EventConnect, rendered, ScopeAll, &info)
	}

	// Roster bootstrap: one CONNECT per already-online user, delivered only to
	// the new connection via the self scope.
	online, err := h.registry.ListOnline(ctx, chatroomID)
	if err != nil {
		h.logger.Error().Err(err).Int64("chatroom_id", chatroomID).Msg("Roster bootstrap skipped: presence registry unavailable.")
		return nil
	}

	for _, other := range online {
		if other.ID == info.ID {
			continue
		}

		rendered, err := RenderEvent(EventConnect, string(ScopeSelf), other, now)
		if err != nil {
			h.logger.Error().Err(err).Int64("user_id", other.ID).Msg("Failed to render roster CONNECT event.")
			continue
		}

		h.dispatcher.Broadcast(ctx, chatroomID, EventConnect, rendered, ScopeSelf, &info)
	}

	h.logger.Info().Int64("chatroom_id", chatroomID).Int64("user_id", info.ID).Msg("Connection established.")
	return nil
}

// Message handles an inbound text message. The sender's identity is read from
// the presence registry rather than the socket's handshake copy, so stale
// handshake data never leaks into rendered messages. Persistence runs in the
// background and its failure only logs.
func (h *Hub) Message(ctx context.Context, chatroomID, userID int64, content string) {
	info, ok, err := h.registry.GetOne(ctx, chatroomID, userID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("Message dropped: presence registry unavailable.")
		return
	}
	if !ok {
		h.logger.Warn().Int64("chatroom_id", chatroomID).Int64("user_id", userID).Msg("Message dropped: sender has no presence entry.")
		return
	}

	now := time.Now()

	go func() {
		persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := h.messages.PersistMessage(persistCtx, chatroomID, info, content, now); err != nil {
			h.logger.Error().Err(err).Int64("chatroom_id", chatroomID).Msg("Failed to persist chat message.")
		}
	}()

	rendered, err := RenderEvent(EventText, content, info, now)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to render TEXT event.")
		return
	}

	h.dispatcher.Broadcast(ctx, chatroomID, EventText, rendered, ScopeAll, &info)
}

// Disconnect handles a connection teardown. The local connection is removed
// before the DISCONNECT broadcast so the departing user can never receive its
// own notice and no concurrent send races the half-closed socket, and the
// presence entry is removed before the broadcast so the departing user drops
// out of the fan-out's online set (a room whose remaining users are all local
// then never publishes to the relay). If the local entry was already gone
// (e.g. a forced room removal), the broadcast is skipped and only the
// presence entry is cleaned up.
func (h *Hub) Disconnect(ctx context.Context, chatroomID, userID int64) {
	info, hadPresence, err := h.registry.GetOne(ctx, chatroomID, userID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("Presence lookup failed during disconnect.")
	}

	removed := h.table.Remove(chatroomID, userID)

	remaining, unregisterErr := h.registry.Unregister(ctx, chatroomID, userID)
	if unregisterErr != nil {
		// The entry stays behind until TTL expiry; accepted staleness window.
		h.logger.Error().Err(unregisterErr).Int64("user_id", userID).Msg("Presence deregistration failed.")
	}

	if removed && hadPresence {
		rendered, err := RenderEvent(EventDisconnect, string(ScopeOthers), info, time.Now())
		if err != nil {
			h.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to render DISCONNECT event.")
		} else {
			h.dispatcher.Broadcast(ctx, chatroomID, EventDisconnect, rendered, ScopeOthers, &info)
		}
	}

	if unregisterErr == nil && remaining == 0 {
		h.subs.ensureUnsubscribed(chatroomID)
	}

	if h.table.IsEmpty(chatroomID) {
		h.subs.ensureUnsubscribed(chatroomID)
	}

	h.logger.Info().Int64("chatroom_id", chatroomID).Int64("user_id", userID).Msg("Connection closed.")
}

// TransportError handles a failed connection. The classification only affects
// logging; the cleanup is identical to a normal disconnect.
func (h *Hub) TransportError(ctx context.Context, chatroomID, userID int64, cause error) {
	if isExpectedPeerClose(cause) {
		h.logger.Info().Err(cause).Int64("user_id", userID).Msg("Peer closed connection.")
	} else {
		h.logger.Error().Err(cause).Int64("user_id", userID).Msg("Transport error on connection.")
	}

	h.Disconnect(ctx, chatroomID, userID)
}

// MemberAdded broadcasts a membership addition originating from the REST side.
func (h *Hub) MemberAdded(ctx context.Context, chatroomID int64, member user.UserInfo) {
	rendered, err := RenderEvent(EventMemberAdded, "A new user has joined the chatroom!", member, time.Now())
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", member.ID).Msg("Failed to render MEMBER_ADDED event.")
		return
	}

	h.dispatcher.Broadcast(ctx, chatroomID, EventMemberAdded, rendered, ScopeAll, nil)
}

// MemberRemoved broadcasts a membership removal originating from the REST side.
func (h *Hub) MemberRemoved(ctx context.Context, chatroomID int64, member user.UserInfo) {
	rendered, err := RenderEvent(EventMemberRemoved, "A user has left the chatroom!", member, time.Now())
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", member.ID).Msg("Failed to render MEMBER_REMOVED event.")
		return
	}

	h.dispatcher.Broadcast(ctx, chatroomID, EventMemberRemoved, rendered, ScopeAll, nil)
}

// RoomRemoved broadcasts the removal to everyone online, then force-closes
// every local socket of the chatroom and drops its relay subscription.
func (h *Hub) RoomRemoved(ctx context.Context, chatroomID int64) {
	rendered, err := RenderEvent(EventRoomRemoved, "This chatroom has been removed!", user.UserInfo{}, time.Now())
	if err != nil {
		h.logger.Error().Err(err).Int64("chatroom_id", chatroomID).Msg("Failed to render ROOM_REMOVED event.")
	} else {
		h.dispatcher.Broadcast(ctx, chatroomID, EventRoomRemoved, rendered, ScopeAll, nil)
	}

	for userID, conn := range h.table.Snapshot(chatroomID) {
		h.table.Remove(chatroomID, userID)
		conn.ForceClose("This chatroom has been removed!")
	}

	h.subs.ensureUnsubscribed(chatroomID)

	h.logger.Info().Int64("chatroom_id", chatroomID).Msg("Chatroom removed; local connections closed.")
}

// handleRelayEnvelope is the callback installed on every chatroom channel
// subscription. Envelopes from this instance never reach it; the relay drops
// them first. An empty local bucket means the subscription outlived its last
// local connection, so it is torn down instead of delivering.
func (h *Hub) handleRelayEnvelope(chatroomID int64, env relay.Envelope) {
	if h.table.IsEmpty(chatroomID) {
		// This callback runs on the subscription's own consumer goroutine;
		// tearing the subscription down from here must happen asynchronously
		// so the teardown never joins the goroutine it is running on.
		go h.subs.ensureUnsubscribed(chatroomID)
		return
	}

	h.dispatcher.DeliverLocal(chatroomID, env)
}

// Shutdown closes every subscription and force-closes every local connection.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down hub...")

	h.subs.closeAll()

	for _, chatroomID := range h.table.RoomIDs() {
		for userID, conn := range h.table.Snapshot(chatroomID) {
			h.table.Remove(chatroomID, userID)
			conn.ForceClose("Server is shutting down.")
		}
	}

	h.logger.Info().Msg("Hub shutdown complete.")
}
