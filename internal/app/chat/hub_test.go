package chat

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"parley/internal/app/presence"
	"parley/internal/app/relay"
	"parley/internal/app/user"
)

// recordingConn captures every payload delivered to one fake connection.
type recordingConn struct {
	mu       sync.Mutex
	payloads [][]byte
	closed   bool
}

func (c *recordingConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *recordingConn) ForceClose(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// messageTypes decodes the messageType field of every payload delivered so far.
func (c *recordingConn) messageTypes(t *testing.T) []int {
	t.Helper()

	c.mu.Lock()
	defer c.mu.Unlock()

	types := make([]int, 0, len(c.payloads))
	for _, payload := range c.payloads {
		var decoded struct {
			MessageType int `json:"messageType"`
		}
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("delivered payload is not valid JSON: %v", err)
		}
		types = append(types, decoded.MessageType)
	}
	return types
}

// fakeRegistry is an in-memory presence.Registry shared between test hubs,
// standing in for the Redis backend shared between instances.
type fakeRegistry struct {
	mu    sync.Mutex
	rooms map[int64]map[int64]user.UserInfo
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{rooms: make(map[int64]map[int64]user.UserInfo)}
}

func (r *fakeRegistry) Register(ctx context.Context, chatroomID int64, info user.UserInfo, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.rooms[chatroomID]
	if !ok {
		bucket = make(map[int64]user.UserInfo)
		r.rooms[chatroomID] = bucket
	}
	bucket[info.ID] = info
	return nil
}

func (r *fakeRegistry) Unregister(ctx context.Context, chatroomID, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms[chatroomID], userID)
	return int64(len(r.rooms[chatroomID])), nil
}

func (r *fakeRegistry) ListOnline(ctx context.Context, chatroomID int64) ([]user.UserInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]user.UserInfo, 0, len(r.rooms[chatroomID]))
	for _, info := range r.rooms[chatroomID] {
		users = append(users, info)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *fakeRegistry) GetOne(ctx context.Context, chatroomID, userID int64) (user.UserInfo, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.rooms[chatroomID][userID]
	return info, ok, nil
}

var _ presence.Registry = (*fakeRegistry)(nil)

// fakeBus is an in-process stand-in for the Redis pub/sub fabric. Delivery is
// synchronous and, like the real broker's subscription loop, skips subscribers
// carrying the publishing instance's own origin id.
type busSub struct {
	origin string
	fn     func(relay.Envelope)

	// inFlight tracks deliveries currently executing the callback. The fake
	// subscription's Close joins it, standing in for a broker whose teardown
	// waits on the consumer goroutine, so a callback that synchronously tears
	// down its own subscription would hang here exactly as it would in
	// production's worst case.
	inFlight sync.WaitGroup
}

type fakeBus struct {
	mu        sync.Mutex
	subs      map[int64][]*busSub
	published []relay.Envelope
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[int64][]*busSub)}
}

func (b *fakeBus) publish(chatroomID int64, env relay.Envelope) {
	b.mu.Lock()
	b.published = append(b.published, env)
	targets := append([]*busSub(nil), b.subs[chatroomID]...)
	b.mu.Unlock()

	for _, sub := range targets {
		if sub.origin == env.OriginID {
			continue
		}
		sub.inFlight.Add(1)
		sub.fn(env)
		sub.inFlight.Done()
	}
}

func (b *fakeBus) subscribe(chatroomID int64, sub *busSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[chatroomID] = append(b.subs[chatroomID], sub)
}

func (b *fakeBus) unsubscribe(chatroomID int64, sub *busSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.subs[chatroomID][:0]
	for _, s := range b.subs[chatroomID] {
		if s != sub {
			remaining = append(remaining, s)
		}
	}
	b.subs[chatroomID] = remaining
}

func (b *fakeBus) subCount(chatroomID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[chatroomID])
}

func (b *fakeBus) publishCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

// fakeBroker binds one hub to the shared bus under a fixed origin id.
type fakeBroker struct {
	bus    *fakeBus
	origin string
}

func (f *fakeBroker) Publish(ctx context.Context, chatroomID int64, env relay.Envelope) error {
	env.OriginID = f.origin
	f.bus.publish(chatroomID, env)
	return nil
}

func (f *fakeBroker) Subscribe(chatroomID int64, fn func(relay.Envelope)) (*relay.Subscription, error) {
	sub := &busSub{origin: f.origin, fn: fn}
	f.bus.subscribe(chatroomID, sub)

	return relay.NewSubscription(func() error {
		f.bus.unsubscribe(chatroomID, sub)
		sub.inFlight.Wait()
		return nil
	}), nil
}

var _ Broker = (*fakeBroker)(nil)

type nopPersister struct{}

func (nopPersister) PersistMessage(ctx context.Context, chatroomID int64, sender user.UserInfo, content string, sentAt time.Time) error {
	return nil
}

func newTestHub(reg *fakeRegistry, bus *fakeBus, origin string) *Hub {
	return NewHub(reg, &fakeBroker{bus: bus, origin: origin}, nopPersister{}, time.Hour)
}

func testUser(id int64) user.UserInfo {
	return user.UserInfo{ID: id, FirstName: "First", LastName: "Last", Mail: "u@example.com"}
}

func TestConnectBroadcastsAndBootstrapsRoster(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	bus := newFakeBus()
	hub := newTestHub(reg, bus, "origin-a")

	conn1 := &recordingConn{}
	conn2 := &recordingConn{}

	if err := hub.Connect(ctx, 1, testUser(1), conn1); err != nil {
		t.Fatalf("Connect user 1 failed: %v", err)
	}
	if err := hub.Connect(ctx, 1, testUser(2), conn2); err != nil {
		t.Fatalf("Connect user 2 failed: %v", err)
	}

	// User 1 sees its own CONNECT and then user 2's CONNECT.
	got1 := conn1.messageTypes(t)
	want1 := []int{int(EventConnect), int(EventConnect)}
	if len(got1) != len(want1) || got1[0] != want1[0] || got1[1] != want1[1] {
		t.Errorf("conn1 events = %v, want %v", got1, want1)
	}

	// User 2 sees its own CONNECT and one roster CONNECT for user 1.
	got2 := conn2.messageTypes(t)
	if len(got2) != 2 {
		t.Fatalf("conn2 events = %v, want 2 CONNECT events", got2)
	}
	for _, evt := range got2 {
		if evt != int(EventConnect) {
			t.Errorf("conn2 received event %d, want CONNECT only", evt)
		}
	}

	// A fully local room never touches the relay.
	if n := bus.publishCount(); n != 0 {
		t.Errorf("relay publishes = %d, want 0 for single-instance room", n)
	}
}

func TestMessageReachesAllInstancesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	bus := newFakeBus()

	hubA := newTestHub(reg, bus, "origin-a")
	hubB := newTestHub(reg, bus, "origin-b")

	conn1 := &recordingConn{}
	conn2 := &recordingConn{}

	if err := hubA.Connect(ctx, 1, testUser(1), conn1); err != nil {
		t.Fatalf("Connect on hub A failed: %v", err)
	}
	if err := hubB.Connect(ctx, 1, testUser(2), conn2); err != nil {
		t.Fatalf("Connect on hub B failed: %v", err)
	}

	hubA.Message(ctx, 1, 1, "hello")

	// Both users see: two CONNECT events (self plus other), one TEXT. The
	// relayed copies must not echo back and double-deliver.
	for name, conn := range map[string]*recordingConn{"conn1": conn1, "conn2": conn2} {
		types := conn.messageTypes(t)
		if len(types) != 3 {
			t.Fatalf("%s events = %v, want exactly 3", name, types)
		}
		if types[2] != int(EventText) {
			t.Errorf("%s last event = %d, want TEXT", name, types[2])
		}
	}
}

func TestMessageFromUnknownSenderDropped(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	bus := newFakeBus()
	hub := newTestHub(reg, bus, "origin-a")

	conn1 := &recordingConn{}
	if err := hub.Connect(ctx, 1, testUser(1), conn1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	before := len(conn1.messageTypes(t))

	// User 99 has no presence entry; the message must be dropped silently.
	hub.Message(ctx, 1, 99, "ghost message")

	if after := len(conn1.messageTypes(t)); after != before {
		t.Errorf("delivered events grew from %d to %d after ghost message", before, after)
	}
}

func TestDisconnectNotifiesOthersOnly(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	bus := newFakeBus()
	hub := newTestHub(reg, bus, "origin-a")

	conn1 := &recordingConn{}
	conn2 := &recordingConn{}

	if err := hub.Connect(ctx, 1, testUser(1), conn1); err != nil {
		t.Fatalf("Connect user 1 failed: %v", err)
	}
	if err := hub.Connect(ctx, 1, testUser(2), conn2); err != nil {
		t.Fatalf("Connect user 2 failed: %v", err)
	}

	before1 := len(conn1.messageTypes(t))

	hub.Disconnect(ctx, 1, 1)

	// The departing connection is removed before the broadcast, so it never
	// sees its own DISCONNECT.
	if after1 := len(conn1.messageTypes(t)); after1 != before1 {
		t.Errorf("departing connection received %d extra events", after1-before1)
	}

	types2 := conn2.messageTypes(t)
	if types2[len(types2)-1] != int(EventDisconnect) {
		t.Errorf("conn2 last event = %d, want DISCONNECT", types2[len(types2)-1])
	}

	// Presence entry is gone.
	if _, ok, _ := reg.GetOne(ctx, 1, 1); ok {
		t.Error("presence entry survived disconnect")
	}
}

func TestLastDisconnectTearsDownSubscription(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	bus := newFakeBus()
	hub := newTestHub(reg, bus, "origin-a")

	if err := hub.Connect(ctx, 1, testUser(1), &recordingConn{}); err != nil {
		t.Fatalf("Connect user 1 failed: %v", err)
	}
	if err := hub.Connect(ctx, 1, testUser(2), &recordingConn{}); err != nil {
		t.Fatalf("Connect user 2 failed: %v", err)
	}

	if n := bus.subCount(1); n != 1 {
		t.Fatalf("subscriptions = %d, want 1 shared subscription per chatroom", n)
	}

	hub.Disconnect(ctx, 1, 1)
	if n := bus.subCount(1); n != 1 {
		t.Fatalf("subscriptions after first disconnect = %d, want 1", n)
	}

	hub.Disconnect(ctx, 1, 2)
	if n := bus.subCount(1); n != 0 {
		t.Fatalf("subscriptions after last disconnect = %d, want 0", n)
	}
}

func TestRoomRemovedForceClosesLocalConnections(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	bus := newFakeBus()
	hub := newTestHub(reg, bus, "origin-a")

	conn1 := &recordingConn{}
	conn2 := &recordingConn{}

	if err := hub.Connect(ctx, 1, testUser(1), conn1); err != nil {
		t.Fatalf("Connect user 1 failed: %v", err)
	}
	if err := hub.Connect(ctx, 1, testUser(2), conn2); err != nil {
		t.Fatalf("Connect user 2 failed: %v", err)
	}

	hub.RoomRemoved(ctx, 1)

	for name, conn := range map[string]*recordingConn{"conn1": conn1, "conn2": conn2} {
		types := conn.messageTypes(t)
		if types[len(types)-1] != int(EventRoomRemoved) {
			t.Errorf("%s last event = %d, want ROOM_REMOVED", name, types[len(types)-1])
		}
		if !conn.isClosed() {
			t.Errorf("%s not force-closed after room removal", name)
		}
	}

	if n := bus.subCount(1); n != 0 {
		t.Errorf("subscriptions after room removal = %d, want 0", n)
	}

	// A disconnect arriving after the forced close must not broadcast again.
	before := len(conn2.messageTypes(t))
	hub.Disconnect(ctx, 1, 1)
	if after := len(conn2.messageTypes(t)); after != before {
		t.Errorf("late disconnect after forced close produced %d extra events", after-before)
	}
}

func TestMemberAddedWithNoOneOnlineIsNoOp(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	bus := newFakeBus()
	hub := newTestHub(reg, bus, "origin-a")

	hub.MemberAdded(ctx, 1, testUser(5))

	if n := bus.publishCount(); n != 0 {
		t.Errorf("relay publishes = %d, want 0 for empty room", n)
	}
}

func TestRelayedEnvelopeRespectsOthersScope(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	bus := newFakeBus()

	hubA := newTestHub(reg, bus, "origin-a")
	hubB := newTestHub(reg, bus, "origin-b")

	conn1 := &recordingConn{}
	conn2 := &recordingConn{}

	if err := hubA.Connect(ctx, 1, testUser(1), conn1); err != nil {
		t.Fatalf("Connect on hub A failed: %v", err)
	}
	if err := hubB.Connect(ctx, 1, testUser(2), conn2); err != nil {
		t.Fatalf("Connect on hub B failed: %v", err)
	}

	before2 := len(conn2.messageTypes(t))

	// User 1 disconnecting on instance A must notify user 2 on instance B,
	// others-scoped across the relay.
	hubA.Disconnect(ctx, 1, 1)

	types2 := conn2.messageTypes(t)
	if len(types2) != before2+1 {
		t.Fatalf("conn2 events = %v, want exactly one DISCONNECT appended", types2)
	}
	if types2[len(types2)-1] != int(EventDisconnect) {
		t.Errorf("conn2 last event = %d, want DISCONNECT", types2[len(types2)-1])
	}
}

func TestDisconnectFullyLocalRoomNeverPublishes(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	bus := newFakeBus()
	hub := newTestHub(reg, bus, "origin-a")

	if err := hub.Connect(ctx, 1, testUser(1), &recordingConn{}); err != nil {
		t.Fatalf("Connect user 1 failed: %v", err)
	}
	if err := hub.Connect(ctx, 1, testUser(2), &recordingConn{}); err != nil {
		t.Fatalf("Connect user 2 failed: %v", err)
	}

	// The departing user must leave the online set before the DISCONNECT
	// broadcast; with every remaining user local, nothing crosses the relay.
	hub.Disconnect(ctx, 1, 1)
	hub.Disconnect(ctx, 1, 2)

	if n := bus.publishCount(); n != 0 {
		t.Errorf("relay publishes = %d, want 0 for single-instance room", n)
	}
}

func TestStaleSubscriptionSelfHealFromRelayCallback(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	bus := newFakeBus()
	hub := newTestHub(reg, bus, "origin-a")

	if err := hub.Connect(ctx, 1, testUser(1), &recordingConn{}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// The window between the socket leaving the table and the disconnect
	// path's own unsubscribe: the subscription is still live but the local
	// bucket is empty.
	hub.table.Remove(1, 1)

	delivered := make(chan struct{})
	go func() {
		bus.publish(1, relay.Envelope{
			EventType: int(EventText),
			Scope:     string(ScopeAll),
			Message:   `{"messageType":0}`,
			OriginID:  "origin-b",
		})
		close(delivered)
	}()

	// The callback runs on the delivering goroutine and must return even
	// though it triggers the teardown of the very subscription it runs under.
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("relay callback never returned while tearing down an idle subscription")
	}

	deadline := time.Now().Add(2 * time.Second)
	for bus.subCount(1) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stale subscription not torn down after empty-bucket delivery")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	bus := newFakeBus()
	hub := newTestHub(reg, bus, "origin-a")

	conn1 := &recordingConn{}
	if err := hub.Connect(ctx, 1, testUser(1), conn1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	hub.Shutdown()

	if !conn1.isClosed() {
		t.Error("connection not force-closed on shutdown")
	}
	if n := bus.subCount(1); n != 0 {
		t.Errorf("subscriptions after shutdown = %d, want 0", n)
	}
}
