/*
Package chat contains the core logic of the multi-instance broadcast layer.

This file defines the Dispatcher, the single fan-out path used both for events
that originate locally and for envelopes arriving from the relay. Local
delivery and the decision to publish to the relay are driven by a pure
delivery plan computed from the registry's online set and the local table.
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

// Dispatcher walks the presence registry's view of a chatroom's online users,
// delivers directly to local sockets, and publishes to the relay for the rest.
type Dispatcher struct {
	registry presence.Registry
	table    *ConnTable
	broker   Broker
	subs     *subscriptionManager
	logger   zerolog.Logger
}

func newDispatcher(registry presence.Registry, table *ConnTable, broker Broker, subs *subscriptionManager) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		table:    table,
		broker:   broker,
		subs:     subs,
		logger:   logx.Logger().With().Str("component", "Dispatcher").Logger(),
	}
}

// Broadcast fans an event out to every online user of the chatroom under the
// given scope: local sockets are written directly, and an envelope is
// published to the relay only when some online user lives on another instance
// (single-instance deployments therefore never touch the relay).
//
// Failures never propagate to the caller's transport: a registry error makes
// this one broadcast degrade to a no-op, a relay publish failure means remote
// instances miss this one event, and a socket write failure is an implicit
// disconnect handled by that connection's own lifecycle.
func (d *Dispatcher) Broadcast(ctx context.Context, chatroomID int64, evt EventType, rendered string, scope Scope, sender *user.UserInfo) {
	if rendered == "" {
		d.logger.Warn().Int64("chatroom_id", chatroomID).Msg("Empty broadcast payload ignored.")
		return
	}

	online, err := d.registry.ListOnline(ctx, chatroomID)
	if err != nil {
		d.logger.Error().Err(err).Int64("chatroom_id", chatroomID).Msg("Presence registry unavailable. Broadcast skipped.")
		return
	}

	if len(online) == 0 {
		return
	}

	plan := planDelivery(online, d.table.UserIDs(chatroomID), scope, sender)

	payload := []byte(rendered)
	for _, userID := range plan.localTargets {
		conn, ok := d.table.Get(chatroomID, userID)
		if !ok {
			// Removed between planning and delivery; its disconnect flow owns cleanup.
			continue
		}
		if err := conn.Send(payload); err != nil {
			d.logger.Warn().
				Int64("chatroom_id", chatroomID).
				Int64("user_id", userID).
				Err(err).
				Msg("Local delivery failed for one connection.")
		}
	}

	// A presence entry with no local socket and an entirely empty local bucket
	// means this instance no longer needs the chatroom's channel.
	if plan.sawRemote && d.table.IsEmpty(chatroomID) {
		d.subs.ensureUnsubscribed(chatroomID)
	}

	if plan.relayNeeded {
		env := relay.Envelope{
			EventType: int(evt),
			Scope:     string(scope),
			Message:   rendered,
			Sender:    sender,
			Timestamp: time.Now().Format(WireTimeFormat),
		}

		if err := d.broker.Publish(ctx, chatroomID, env); err != nil {
			d.logger.Error().Err(err).Int64("chatroom_id", chatroomID).Msg("Relay publish failed. Remote instances miss this event.")
		}
	}
}

// DeliverLocal fans a relayed envelope out over the local connection table
// only, re-applying the envelope's scope. This is the re-entry point for
// envelopes produced by other instances; it never consults the registry and
// never publishes back to the relay.
func (d *Dispatcher) DeliverLocal(chatroomID int64, env relay.Envelope) {
	payload := []byte(env.Message)

	for userID, conn := range d.table.Snapshot(chatroomID) {
		if !scopeAllows(Scope(env.Scope), env.Sender, userID) {
			continue
		}

		if err := conn.Send(payload); err != nil {
			d.logger.Warn().
				Int64("chatroom_id", chatroomID).
				Int64("user_id", userID).
				Err(err).
				Msg("Local delivery of relayed envelope failed for one connection.")
		}
	}
}
