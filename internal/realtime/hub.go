// Package realtime owns the live channel: who is online and delivery of
// chat and presence events to connected clients.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitalumni/backend/internal/domain"
	"github.com/kitalumni/backend/internal/metrics"
)

// Presence and error event names.
const (
	EventPresenceChanged = "presence-changed"
	EventOnlineUsers     = "online-users"
	EventError           = "error"
)

const (
	publishTimeout = 5 * time.Second
	persistTimeout = 5 * time.Second
)

type PresenceChanged struct {
	UserID uuid.UUID `json:"userId"`
	Online bool      `json:"online"`
}

type OnlineUsers struct {
	UserIDs []uuid.UUID `json:"userIds"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Hub delivers events to the clients connected to this instance and
// exchanges them with other instances through the bus.
type Hub struct {
	presence *Presence
	bus      Bus
	users    domain.Directory
	metrics  metrics.Recorder
	logger   *zap.Logger
	origin   string

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a hub. users may be nil, in which case the persisted
// online flag is not maintained.
func NewHub(presence *Presence, bus Bus, users domain.Directory, recorder metrics.Recorder, logger *zap.Logger) *Hub {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Hub{
		presence: presence,
		bus:      bus,
		users:    users,
		metrics:  recorder,
		logger:   logger,
		origin:   uuid.NewString(),
		clients:  make(map[*Client]struct{}),
	}
}

// Run consumes bus events from other instances until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	events, err := h.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Origin == h.origin {
				continue
			}
			h.apply(ev)
		}
	}
}

func (h *Hub) apply(ev Event) {
	if ev.Type == EventPresenceChanged {
		var frame struct {
			Payload PresenceChanged `json:"payload"`
		}
		if err := json.Unmarshal(ev.Frame, &frame); err == nil {
			h.presence.MarkRemote(frame.Payload.UserID, frame.Payload.Online)
		}
	}

	if ev.Target == uuid.Nil {
		h.deliverAll(ev.Frame)
		return
	}
	if c, ok := h.presence.Handle(ev.Target); ok {
		h.metrics.RecordRelay(ev.Type, c.enqueue(ev.Frame))
	}
}

// Register adds a connected client as a broadcast observer. It is not online
// until it announces.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("client registered", zap.String("userID", c.UserID.String()))
}

// Announce makes c its user's current handle, tells everyone the user is
// online and sends c the current online list.
func (h *Hub) Announce(c *Client) {
	h.presence.Announce(c)
	h.metrics.SetOnlineUsers(h.presence.LocalCount())
	h.persist(c.UserID, true)

	h.Broadcast(EventPresenceChanged, PresenceChanged{UserID: c.UserID, Online: true})
	h.send(c, EventOnlineUsers, OnlineUsers{UserIDs: h.presence.OnlineUsers()})
}

// Disconnect unregisters c. The user goes offline only if c was still their
// current handle.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()

	if !h.presence.Remove(c) {
		return
	}
	h.metrics.SetOnlineUsers(h.presence.LocalCount())
	h.persist(c.UserID, false)
	h.Broadcast(EventPresenceChanged, PresenceChanged{UserID: c.UserID, Online: false})
	h.logger.Debug("client went offline", zap.String("userID", c.UserID.String()))
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	return h.presence.IsOnline(userID)
}

func (h *Hub) OnlineUsers() []uuid.UUID {
	return h.presence.OnlineUsers()
}

// SendToUser relays an event to userID's current handle. Users on other
// instances are reached through the bus. Delivery is best-effort.
func (h *Hub) SendToUser(userID uuid.UUID, eventType string, payload interface{}) {
	frame, ok := h.encode(eventType, payload)
	if !ok {
		return
	}

	if c, ok := h.presence.Handle(userID); ok {
		h.metrics.RecordRelay(eventType, c.enqueue(frame))
		return
	}

	h.metrics.RecordRelay(eventType, false)
	h.publish(Event{Type: eventType, Target: userID, Frame: frame})
}

// Broadcast sends an event to every connected client on every instance.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	frame, ok := h.encode(eventType, payload)
	if !ok {
		return
	}
	h.deliverAll(frame)
	h.publish(Event{Type: eventType, Frame: frame})
}

// SendError reports a failed inbound frame back to its sender.
func (h *Hub) SendError(c *Client, message string) {
	h.send(c, EventError, ErrorPayload{Message: message})
}

func (h *Hub) send(c *Client, eventType string, payload interface{}) {
	if frame, ok := h.encode(eventType, payload); ok {
		c.enqueue(frame)
	}
}

func (h *Hub) deliverAll(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.enqueue(frame) {
			h.logger.Debug("dropping frame for slow client", zap.String("userID", c.UserID.String()))
		}
	}
}

func (h *Hub) encode(eventType string, payload interface{}) ([]byte, bool) {
	frame, err := json.Marshal(WSEvent{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("type", eventType), zap.Error(err))
		return nil, false
	}
	return frame, true
}

func (h *Hub) publish(ev Event) {
	ev.Origin = h.origin

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := h.bus.Publish(ctx, ev); err != nil {
		h.logger.Warn("failed to publish event", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (h *Hub) persist(userID uuid.UUID, online bool) {
	if h.users == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := h.users.SetOnline(ctx, userID, online); err != nil {
		h.logger.Warn("failed to persist presence",
			zap.String("userID", userID.String()),
			zap.Bool("online", online),
			zap.Error(err),
		)
	}
}
