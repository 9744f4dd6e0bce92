package chat

import (
	"sort"
	"sync"
)

// Members tracks which display names are currently connected to each room.
// It is a derived view over live sessions, never persisted.
type Members struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

// NewMembers initializes an empty membership tracker.
func NewMembers() *Members {
	return &Members{rooms: make(map[string]map[string]struct{})}
}

// Join adds a member to a room and returns the updated member list. The
// uniqueness check and the insert happen under one lock, so two concurrent
// joins with the same name cannot both succeed.
func (m *Members) Join(roomID, name string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		m.rooms[roomID] = members
	}
	if _, taken := members[name]; taken {
		return nil, ErrNameTaken
	}
	members[name] = struct{}{}
	return sortedNames(members), nil
}

// Leave removes a member and returns the updated member list. Leaving a room
// one is not in is a no-op.
func (m *Members) Leave(roomID, name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	delete(members, name)
	if len(members) == 0 {
		delete(m.rooms, roomID)
		return nil
	}
	return sortedNames(members)
}

// Count returns the number of members currently in the room.
func (m *Members) Count(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms[roomID])
}

// Of returns the current member list for the room.
func (m *Members) Of(roomID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	return sortedNames(members)
}

// Clear drops the whole member set for a room, typically on room deletion.
func (m *Members) Clear(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
}

func sortedNames(members map[string]struct{}) []string {
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
