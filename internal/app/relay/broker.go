package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"parley/internal/pkg/logx"
)

// Broker publishes broadcast envelopes to per-chatroom Redis channels and
// creates subscriptions that feed received envelopes back into local delivery.
//
// The origin id is generated once per Broker instance at construction; every
// envelope published through the Broker is stamped with it, and the
// subscription loop silently drops envelopes carrying its own origin id.
type Broker struct {
	rdb      *redis.Client
	originID string
	logger   zerolog.Logger
}

// NewBroker constructs a Broker with a fresh per-process origin id.
func NewBroker(rdb *redis.Client) *Broker {
	originID := uuid.NewString()

	return &Broker{
		rdb:      rdb,
		originID: originID,
		logger: logx.Logger().With().
			Str("component", "MessageRelay").
			Str("origin_id", originID).
			Logger(),
	}
}

// OriginID returns the per-process identifier stamped onto published envelopes.
func (b *Broker) OriginID() string {
	return b.originID
}

// Publish serializes the envelope, stamps it with this instance's origin id,
// and publishes it to the chatroom's channel. Delivery is at-most-once and
// best-effort: a failure here means remote instances miss this one event.
func (b *Broker) Publish(ctx context.Context, chatroomID int64, env Envelope) error {
	env.OriginID = b.originID

	payload, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	channel := channelName(chatroomID)
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return err
	}

	b.logger.Debug().Str("channel", channel).Int("event_type", env.EventType).Msg("Envelope published.")
	return nil
}

// Subscribe opens a subscription on the chatroom's channel. Each received
// envelope is decoded, filtered for loop prevention, and handed to fn on the
// subscription's own goroutine. Malformed payloads are logged and dropped
// without affecting the subscription.
//
// The returned Subscription must be closed when the last local connection for
// the chatroom goes away; Close is idempotent.
func (b *Broker) Subscribe(chatroomID int64, fn func(Envelope)) (*Subscription, error) {
	channel := channelName(chatroomID)

	// The pub/sub connection lives until Close; the background context keeps it
	// decoupled from any single request's lifetime.
	pubsub := b.rdb.Subscribe(context.Background(), channel)

	// Confirm the subscription before reporting success, so a caller never
	// believes it is covered by a channel that was never joined.
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	go func() {
		for msg := range pubsub.Channel() {
			b.dispatch(channel, msg.Payload, fn)
		}
	}()

	b.logger.Info().Str("channel", channel).Msg("Subscribed to chatroom channel.")

	return NewSubscription(func() error {
		// Close may be invoked from the consumer goroutine itself (teardown
		// triggered inside fn), so it must not wait for the loop to exit.
		// pubsub.Close unblocks the Channel receive and the loop drains on its own.
		err := pubsub.Close()
		b.logger.Info().Str("channel", channel).Msg("Unsubscribed from chatroom channel.")
		return err
	}), nil
}

// dispatch handles one raw payload received on a chatroom channel: malformed
// payloads and envelopes carrying this instance's own origin id are dropped,
// everything else is handed to fn.
func (b *Broker) dispatch(channel, payload string, fn func(Envelope)) {
	env, err := decodeEnvelope([]byte(payload))
	if err != nil {
		b.logger.Warn().Err(err).Str("channel", channel).Msg("Malformed relay payload dropped.")
		return
	}

	if env.OriginID == b.originID {
		// Our own publication; already delivered locally.
		return
	}

	fn(env)
}

// Subscription is the handle to one per-chatroom channel subscription.
// It exists so that tearing a subscription down is an explicit, deterministic
// call rather than the removal of a callback reference from a container.
type Subscription struct {
	closeFn func() error
	once    sync.Once
}

// NewSubscription wraps a teardown function into a Subscription handle.
func NewSubscription(closeFn func() error) *Subscription {
	return &Subscription{closeFn: closeFn}
}

// Close tears the subscription down. Safe to call more than once; only the
// first call runs the teardown.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.closeFn()
	})
	return err
}
