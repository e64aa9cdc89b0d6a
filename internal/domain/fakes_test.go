package domain

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memDirectory is an in-memory Directory.
type memDirectory struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*User
	online map[uuid.UUID]bool
}

func newMemDirectory(users ...*User) *memDirectory {
	d := &memDirectory{
		users:  make(map[uuid.UUID]*User),
		online: make(map[uuid.UUID]bool),
	}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *memDirectory) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	cp.IsOnline = d.online[id]
	return &cp, nil
}

func (d *memDirectory) ListUsersByRole(ctx context.Context, role Role) ([]*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*User
	for _, u := range d.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *memDirectory) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.online[id] = online
	return nil
}

func (d *memDirectory) ResetPresence(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.online = make(map[uuid.UUID]bool)
	return nil
}

// memConnections is an in-memory ConnectionRepository with the same
// conditional-update semantics as the SQL store.
type memConnections struct {
	mu       sync.Mutex
	requests []*ConnectionRequest
	edges    map[[2]uuid.UUID]bool
}

func newMemConnections() *memConnections {
	return &memConnections{edges: make(map[[2]uuid.UUID]bool)}
}

func (r *memConnections) CreateRequest(ctx context.Context, p CreateRequestParams) (*ConnectionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := &ConnectionRequest{
		ID:        uuid.New(),
		FromID:    p.FromID,
		ToID:      p.ToID,
		TokenHash: p.TokenHash,
		Status:    RequestStatusPending,
		ExpiresAt: p.ExpiresAt,
		CreatedAt: time.Now(),
	}
	r.requests = append(r.requests, req)
	cp := *req
	return &cp, nil
}

func (r *memConnections) HasPendingRequest(ctx context.Context, fromID, toID uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.FromID == fromID && req.ToID == toID && req.Status == RequestStatusPending && req.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memConnections) DeletePendingRequests(ctx context.Context, fromID, toID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	kept := r.requests[:0]
	for _, req := range r.requests {
		if req.FromID == fromID && req.ToID == toID && req.Status == RequestStatusPending {
			n++
			continue
		}
		kept = append(kept, req)
	}
	r.requests = kept
	return n, nil
}

func (r *memConnections) resolve(p ResolveRequestParams, status RequestStatus) (*ConnectionRequest, error) {
	for _, req := range r.requests {
		if req.TokenHash != p.TokenHash || req.Status != RequestStatusPending {
			continue
		}
		if !req.ExpiresAt.After(p.Now) || req.FromID != p.FromID || req.ToID != p.ToID {
			continue
		}
		now := p.Now
		req.Status = status
		req.ResolvedAt = &now
		if status == RequestStatusConnected {
			r.edges[[2]uuid.UUID{req.FromID, req.ToID}] = true
			r.edges[[2]uuid.UUID{req.ToID, req.FromID}] = true
		}
		cp := *req
		return &cp, nil
	}
	return nil, ErrRequestNotFound
}

func (r *memConnections) AcceptRequest(ctx context.Context, p ResolveRequestParams) (*ConnectionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolve(p, RequestStatusConnected)
}

func (r *memConnections) RejectRequest(ctx context.Context, p ResolveRequestParams) (*ConnectionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolve(p, RequestStatusRejected)
}

func (r *memConnections) ListIncomingRequests(ctx context.Context, userID uuid.UUID, now time.Time) ([]*ConnectionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ConnectionRequest
	for _, req := range r.requests {
		if req.ToID == userID && req.Status == RequestStatusPending && req.ExpiresAt.After(now) {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memConnections) DeleteStaleRequests(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	kept := r.requests[:0]
	for _, req := range r.requests {
		if req.Status == RequestStatusPending && req.ExpiresAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, req)
	}
	r.requests = kept
	return n, nil
}

func (r *memConnections) AreConnected(ctx context.Context, a, b uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.edges[[2]uuid.UUID{a, b}], nil
}

func (r *memConnections) RemoveConnection(ctx context.Context, a, b uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.edges, [2]uuid.UUID{a, b})
	delete(r.edges, [2]uuid.UUID{b, a})
	return nil
}

func (r *memConnections) ListConnections(ctx context.Context, userID uuid.UUID) ([]*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*User
	for edge := range r.edges {
		if edge[0] == userID {
			out = append(out, &User{ID: edge[1]})
		}
	}
	return out, nil
}

func (r *memConnections) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func (r *memConnections) statusOf(id uuid.UUID) RequestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.ID == id {
			return req.Status
		}
	}
	return ""
}

// mailbox captures notifications.
type mailbox struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

type sentMail struct {
	Address string
	Subject string
	Body    string
}

func (m *mailbox) Notify(ctx context.Context, address, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{Address: address, Subject: subject, Body: body})
	return nil
}

func (m *mailbox) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}
	}
	return m.sent[len(m.sent)-1]
}

// memChats is an in-memory ChatRepository.
type memChats struct {
	mu       sync.Mutex
	messages []*ChatMessage
}

func (r *memChats) CreateMessage(ctx context.Context, senderID, receiverID uuid.UUID, body string) (*ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := &ChatMessage{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		CreatedAt:  time.Now(),
	}
	r.messages = append(r.messages, msg)
	cp := *msg
	return &cp, nil
}

func (r *memChats) GetMessage(ctx context.Context, id uuid.UUID) (*ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrMessageNotFound
}

func (r *memChats) UpdateMessageBody(ctx context.Context, id, senderID uuid.UUID, body string) (*ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id && m.SenderID == senderID {
			now := time.Now()
			m.Body = body
			m.EditedAt = &now
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrMessageNotFound
}

func (r *memChats) DeleteMessage(ctx context.Context, id, senderID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.messages {
		if m.ID == id && m.SenderID == senderID {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			return nil
		}
	}
	return ErrMessageNotFound
}

func (r *memChats) GetHistory(ctx context.Context, a, b uuid.UUID) ([]*ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ChatMessage
	for _, m := range r.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// recordingRelay captures relayed events.
type recordingRelay struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
	events []relayedEvent
}

type relayedEvent struct {
	UserID  uuid.UUID
	Type    string
	Payload interface{}
}

func newRecordingRelay(online ...uuid.UUID) *recordingRelay {
	r := &recordingRelay{online: make(map[uuid.UUID]bool)}
	for _, id := range online {
		r.online[id] = true
	}
	return r
}

func (r *recordingRelay) IsOnline(userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[userID]
}

func (r *recordingRelay) SendToUser(userID uuid.UUID, eventType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, relayedEvent{UserID: userID, Type: eventType, Payload: payload})
}

func (r *recordingRelay) snapshot() []relayedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]relayedEvent(nil), r.events...)
}
