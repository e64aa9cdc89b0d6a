package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitalumni/backend/internal/domain"
)

type flagDirectory struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
}

func (d *flagDirectory) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}

func (d *flagDirectory) ListUsersByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	return nil, nil
}

func (d *flagDirectory) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.online == nil {
		d.online = make(map[uuid.UUID]bool)
	}
	d.online[id] = online
	return nil
}

func (d *flagDirectory) ResetPresence(ctx context.Context) error { return nil }

func (d *flagDirectory) get(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online[id]
}

func newTestClient(userID uuid.UUID) *Client {
	return NewClient(nil, userID)
}

// next reads one outbound frame or fails.
func next(t *testing.T, c *Client) WSEvent {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var ev struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("bad frame %q: %v", data, err)
		}
		return WSEvent{Type: ev.Type, Payload: ev.Payload}
	case <-time.After(time.Second):
		t.Fatal("no frame received")
	}
	return WSEvent{}
}

func expectNone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_AnnounceBroadcastsAndSnapshots(t *testing.T) {
	dir := &flagDirectory{}
	hub := NewHub(NewPresence(), NewLocalBus(), dir, nil, zap.NewNop())

	observer := newTestClient(uuid.New())
	hub.Register(observer)

	alice := newTestClient(uuid.New())
	hub.Register(alice)
	hub.Announce(alice)

	ev := next(t, observer)
	if ev.Type != EventPresenceChanged {
		t.Fatalf("observer got %q", ev.Type)
	}
	var changed PresenceChanged
	json.Unmarshal(ev.Payload.(json.RawMessage), &changed)
	if changed.UserID != alice.UserID || !changed.Online {
		t.Errorf("payload = %+v", changed)
	}

	// alice sees her own presence change, then the snapshot.
	if ev := next(t, alice); ev.Type != EventPresenceChanged {
		t.Fatalf("alice first frame = %q", ev.Type)
	}
	ev = next(t, alice)
	if ev.Type != EventOnlineUsers {
		t.Fatalf("alice second frame = %q", ev.Type)
	}
	var snapshot OnlineUsers
	json.Unmarshal(ev.Payload.(json.RawMessage), &snapshot)
	if len(snapshot.UserIDs) != 1 || snapshot.UserIDs[0] != alice.UserID {
		t.Errorf("snapshot = %v", snapshot.UserIDs)
	}

	if !hub.IsOnline(alice.UserID) || !dir.get(alice.UserID) {
		t.Error("alice not marked online")
	}
}

func TestHub_StaleHandleDisconnectKeepsUserOnline(t *testing.T) {
	dir := &flagDirectory{}
	hub := NewHub(NewPresence(), NewLocalBus(), dir, nil, zap.NewNop())
	userID := uuid.New()

	first := newTestClient(userID)
	second := newTestClient(userID)
	hub.Register(first)
	hub.Register(second)
	hub.Announce(first)
	hub.Announce(second)

	hub.Disconnect(first)
	if !hub.IsOnline(userID) {
		t.Fatal("stale handle disconnect took the user offline")
	}
	if !dir.get(userID) {
		t.Error("persisted flag cleared by stale handle")
	}

	hub.Disconnect(second)
	if hub.IsOnline(userID) {
		t.Fatal("user still online after current handle disconnected")
	}
	if dir.get(userID) {
		t.Error("persisted flag still set")
	}

	// Disconnecting twice is harmless.
	hub.Disconnect(second)
}

func TestHub_SendToUserTargetsCurrentHandle(t *testing.T) {
	hub := NewHub(NewPresence(), NewLocalBus(), nil, nil, zap.NewNop())
	userID := uuid.New()

	old := newTestClient(userID)
	cur := newTestClient(userID)
	hub.Announce(old)
	hub.Announce(cur)
	// Drain the online-users snapshots.
	next(t, old)
	next(t, cur)

	hub.SendToUser(userID, domain.EventMessageReceived, map[string]string{"body": "hi"})

	if ev := next(t, cur); ev.Type != domain.EventMessageReceived {
		t.Errorf("current handle got %q", ev.Type)
	}
	expectNone(t, old)

	// Offline users are skipped silently.
	hub.SendToUser(uuid.New(), domain.EventMessageReceived, nil)
}

func TestHub_CrossInstanceDelivery(t *testing.T) {
	bus := NewLocalBus()
	hubA := NewHub(NewPresence(), bus, nil, nil, zap.NewNop())
	hubB := NewHub(NewPresence(), bus, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hubA.Run(ctx)
	go hubB.Run(ctx)
	waitFor(t, func() bool { return bus.subscribers() == 2 })

	bob := newTestClient(uuid.New())
	hubB.Register(bob)
	hubB.Announce(bob)
	next(t, bob) // presence-changed
	next(t, bob) // online-users

	waitFor(t, func() bool { return hubA.IsOnline(bob.UserID) })

	hubA.SendToUser(bob.UserID, domain.EventMessageReceived, map[string]string{"body": "hello from A"})
	if ev := next(t, bob); ev.Type != domain.EventMessageReceived {
		t.Fatalf("bob got %q", ev.Type)
	}

	hubB.Disconnect(bob)
	waitFor(t, func() bool { return !hubA.IsOnline(bob.UserID) })
}

func TestHub_RelayDuringDisconnect(t *testing.T) {
	for i := 0; i < 200; i++ {
		hub := NewHub(NewPresence(), NewLocalBus(), nil, nil, zap.NewNop())
		c := newTestClient(uuid.New())
		hub.Register(c)
		hub.Announce(c)

		drained := make(chan struct{})
		go func() {
			for range c.send {
			}
			close(drained)
		}()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				hub.SendToUser(c.UserID, domain.EventMessageReceived, map[string]int{"n": j})
			}
		}()
		go func() {
			defer wg.Done()
			hub.Disconnect(c)
		}()
		wg.Wait()

		select {
		case <-drained:
		case <-time.After(time.Second):
			t.Fatal("send channel not closed after disconnect")
		}
	}
}

func TestClient_EnqueueAfterClose(t *testing.T) {
	c := newTestClient(uuid.New())
	if !c.enqueue([]byte("{}")) {
		t.Fatal("enqueue on open client failed")
	}
	c.close()
	c.close()
	if c.enqueue([]byte("{}")) {
		t.Error("enqueue succeeded after close")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
