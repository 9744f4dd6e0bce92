package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fenggwsx/StudyChat/internal/storage"
)

// Store is an in-process implementation of storage.Store. Nothing survives a
// restart; it backs ephemeral deployments and tests.
type Store struct {
	mu       sync.Mutex
	rooms    map[string]storage.Room
	messages map[string][]storage.Message
	nextID   uint64
}

// NewStore initializes an empty in-process store.
func NewStore() *Store {
	return &Store{
		rooms:    make(map[string]storage.Room),
		messages: make(map[string][]storage.Message),
	}
}

// Close is a no-op for the in-process store.
func (s *Store) Close() error { return nil }

// Migrate is a no-op for the in-process store.
func (s *Store) Migrate(ctx context.Context) error { return nil }

// CreateRoom stores a new room record.
func (s *Store) CreateRoom(ctx context.Context, room *storage.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = *room
	return nil
}

// DeleteRoom removes a room and its messages.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.rooms, roomID)
	delete(s.messages, roomID)
	return nil
}

// ListRooms returns every room ordered by creation time.
func (s *Store) ListRooms(ctx context.Context) ([]storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]storage.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].Name < rooms[j].Name
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

// AppendMessage stores a new message and assigns its ID.
func (s *Store) AppendMessage(ctx context.Context, msg *storage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return storage.ErrNotFound
	}
	s.nextID++
	msg.ID = s.nextID
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], *msg)
	return nil
}

// ListMessages returns up to limit of the latest messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, roomID string, limit int) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.messages[roomID]
	start := 0
	if limit > 0 && len(stored) > limit {
		start = len(stored) - limit
	}
	messages := make([]storage.Message, len(stored)-start)
	copy(messages, stored[start:])
	return messages, nil
}

// LastSeq returns the highest assigned sequence number for the room, or zero.
func (s *Store) LastSeq(ctx context.Context, roomID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.messages[roomID]
	if len(stored) == 0 {
		return 0, nil
	}
	return stored[len(stored)-1].Seq, nil
}
