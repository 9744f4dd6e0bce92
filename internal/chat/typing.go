package chat

import (
	"context"
	"sync"
	"time"
)

// Typing tracks which display names are currently composing in each room.
// The state is ephemeral and lost on restart. Entries expire after the
// configured TTL so a client that crashes mid-type does not leave a stale
// indicator behind.
type Typing struct {
	mu       sync.Mutex
	rooms    map[string]map[string]time.Time
	ttl      time.Duration
	onExpire func(roomID, name string)
}

// NewTyping constructs the typing tracker. ttl of zero disables expiry.
// onExpire is invoked outside the lock for every entry the sweep removes.
func NewTyping(ttl time.Duration, onExpire func(roomID, name string)) *Typing {
	return &Typing{
		rooms:    make(map[string]map[string]time.Time),
		ttl:      ttl,
		onExpire: onExpire,
	}
}

// Start marks a member as typing. Calling it again refreshes the expiry.
func (t *Typing) Start(roomID, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	members, ok := t.rooms[roomID]
	if !ok {
		members = make(map[string]time.Time)
		t.rooms[roomID] = members
	}
	members[name] = time.Now()
}

// Stop clears a member's typing flag. Returns false if it was not set.
func (t *Typing) Stop(roomID, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	members, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	if _, present := members[name]; !present {
		return false
	}
	delete(members, name)
	if len(members) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}

// Of returns the names currently typing in the room.
func (t *Typing) Of(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	members, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	return names
}

// Clear drops all typing state for a room.
func (t *Typing) Clear(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, roomID)
}

// Run sweeps for expired entries until the context is canceled. It returns
// immediately when expiry is disabled.
func (t *Typing) Run(ctx context.Context) {
	if t.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(t.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.sweep(now)
		}
	}
}

func (t *Typing) sweep(now time.Time) {
	type expired struct{ roomID, name string }
	var stale []expired

	t.mu.Lock()
	for roomID, members := range t.rooms {
		for name, started := range members {
			if now.Sub(started) >= t.ttl {
				delete(members, name)
				stale = append(stale, expired{roomID, name})
			}
		}
		if len(members) == 0 {
			delete(t.rooms, roomID)
		}
	}
	t.mu.Unlock()

	if t.onExpire == nil {
		return
	}
	for _, entry := range stale {
		t.onExpire(entry.roomID, entry.name)
	}
}
