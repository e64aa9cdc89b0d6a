package realtime

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Presence tracks which users hold a live channel. Each user has at most one
// local handle; a newer announce replaces the older one.
//
// Users connected to other instances are learned from the bus and kept in a
// separate set, so a local disconnect never clears a remote session.
type Presence struct {
	mu      sync.RWMutex
	handles map[uuid.UUID]*Client
	remote  map[uuid.UUID]struct{}
}

func NewPresence() *Presence {
	return &Presence{
		handles: make(map[uuid.UUID]*Client),
		remote:  make(map[uuid.UUID]struct{}),
	}
}

// Announce records c as its user's current handle and returns the handle it
// replaced, if any.
func (p *Presence) Announce(c *Client) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.handles[c.UserID]
	p.handles[c.UserID] = c
	return prev
}

// Remove drops c only if it is still its user's current handle. It reports
// whether the user went offline locally.
func (p *Presence) Remove(c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.handles[c.UserID]; !ok || cur != c {
		return false
	}
	delete(p.handles, c.UserID)
	return true
}

// Handle returns the current local handle for userID.
func (p *Presence) Handle(userID uuid.UUID) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.handles[userID]
	return c, ok
}

// MarkRemote records a presence change reported by another instance.
func (p *Presence) MarkRemote(userID uuid.UUID, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if online {
		p.remote[userID] = struct{}{}
	} else {
		delete(p.remote, userID)
	}
}

func (p *Presence) IsOnline(userID uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.handles[userID]; ok {
		return true
	}
	_, ok := p.remote[userID]
	return ok
}

// OnlineUsers returns every known online user, local or remote, sorted.
func (p *Presence) OnlineUsers() []uuid.UUID {
	p.mu.RLock()
	seen := make(map[uuid.UUID]struct{}, len(p.handles)+len(p.remote))
	for id := range p.handles {
		seen[id] = struct{}{}
	}
	for id := range p.remote {
		seen[id] = struct{}{}
	}
	p.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// LocalCount is the number of users with a handle on this instance.
func (p *Presence) LocalCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handles)
}
