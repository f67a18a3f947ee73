package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"parley/internal/app/relay"
	"parley/internal/pkg/logx"
)

// Broker is the slice of the relay the chat layer depends on.
// *relay.Broker is the production implementation.
type Broker interface {
	Publish(ctx context.Context, chatroomID int64, env relay.Envelope) error
	Subscribe(chatroomID int64, fn func(relay.Envelope)) (*relay.Subscription, error)
}

// subscriptionManager tracks the instance's per-chatroom relay subscriptions.
// The invariant it maintains: a subscription exists for a chatroom while this
// instance holds at least one local connection for it. Teardown happens on
// explicit disconnect of the last local user, or lazily when a broadcast pass
// finds the local bucket empty.
type subscriptionManager struct {
	mu     sync.Mutex
	subs   map[int64]*relay.Subscription
	broker Broker
	logger zerolog.Logger
}

func newSubscriptionManager(broker Broker) *subscriptionManager {
	return &subscriptionManager{
		subs:   make(map[int64]*relay.Subscription),
		broker: broker,
		logger: logx.Logger().With().Str("component", "ChannelSubscriptions").Logger(),
	}
}

// ensureSubscribed opens a subscription for the chatroom if none exists yet.
// Subscribing is network I/O, so the lock is not held across the broker call;
// when two connects race, the loser's subscription is closed again.
func (m *subscriptionManager) ensureSubscribed(chatroomID int64, fn func(relay.Envelope)) error {
	m.mu.Lock()
	if _, ok := m.subs[chatroomID]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	sub, err := m.broker.Subscribe(chatroomID, fn)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.subs[chatroomID]; ok {
		m.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	m.subs[chatroomID] = sub
	m.mu.Unlock()

	return nil
}

// ensureUnsubscribed tears down the chatroom's subscription if one exists.
// Safe to call when no subscription is present.
func (m *subscriptionManager) ensureUnsubscribed(chatroomID int64) {
	m.mu.Lock()
	sub, ok := m.subs[chatroomID]
	if ok {
		delete(m.subs, chatroomID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	if err := sub.Close(); err != nil {
		m.logger.Warn().Err(err).Int64("chatroom_id", chatroomID).Msg("Error closing chatroom subscription.")
	}
}

// closeAll tears down every subscription. Used during shutdown.
func (m *subscriptionManager) closeAll() {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[int64]*relay.Subscription)
	m.mu.Unlock()

	for chatroomID, sub := range subs {
		if err := sub.Close(); err != nil {
			m.logger.Warn().Err(err).Int64("chatroom_id", chatroomID).Msg("Error closing chatroom subscription during shutdown.")
		}
	}
}
