package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/StudyChat/internal/auth"
	"github.com/fenggwsx/StudyChat/internal/storage"
)

// Registry owns the set of chat rooms. It keeps an in-memory index over the
// backing store so name-uniqueness checks and inserts happen under one lock.
type Registry struct {
	mu       sync.RWMutex
	store    storage.Store
	rooms    map[string]storage.Room
	byName   map[string]string
	defaults map[string]struct{}
}

// NewRegistry constructs a registry over the given store. defaults lists the
// room names that must always exist and can never be deleted.
func NewRegistry(store storage.Store, defaults []string) *Registry {
	defaultSet := make(map[string]struct{}, len(defaults))
	for _, name := range defaults {
		defaultSet[normalizeName(name)] = struct{}{}
	}
	return &Registry{
		store:    store,
		rooms:    make(map[string]storage.Room),
		byName:   make(map[string]string),
		defaults: defaultSet,
	}
}

// Load hydrates the in-memory index from the store.
func (r *Registry) Load(ctx context.Context) error {
	rooms, err := r.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range rooms {
		r.rooms[room.ID] = room
		r.byName[normalizeName(room.Name)] = room.ID
	}
	return nil
}

// EnsureDefaults creates any missing default room and returns the rooms it
// created. Safe to call repeatedly; existing rooms are left untouched.
func (r *Registry) EnsureDefaults(ctx context.Context) ([]storage.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.defaults))
	for name := range r.defaults {
		names = append(names, name)
	}
	sort.Strings(names)

	var created []storage.Room
	for _, name := range names {
		if _, ok := r.byName[name]; ok {
			continue
		}
		room := storage.Room{
			ID:        uuid.NewString(),
			Name:      name,
			Admin:     systemAuthor,
			Default:   true,
			CreatedAt: time.Now().UTC(),
		}
		if err := r.store.CreateRoom(ctx, &room); err != nil {
			return created, fmt.Errorf("create default room %s: %w", name, err)
		}
		r.rooms[room.ID] = room
		r.byName[name] = room.ID
		created = append(created, room)
	}
	return created, nil
}

// Create adds a room. Room names are unique case-insensitively; secret may
// be empty for a public room. A failed store write leaves no trace in the
// index.
func (r *Registry) Create(ctx context.Context, name, admin, secret string) (storage.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Room{}, errors.New("room name required")
	}

	var secretHash string
	if secret != "" {
		hash, err := auth.HashSecret(secret)
		if err != nil {
			return storage.Room{}, err
		}
		secretHash = hash
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	normalized := normalizeName(name)
	if _, ok := r.byName[normalized]; ok {
		return storage.Room{}, ErrDuplicateRoom
	}

	room := storage.Room{
		ID:         uuid.NewString(),
		Name:       name,
		Admin:      admin,
		SecretHash: secretHash,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.store.CreateRoom(ctx, &room); err != nil {
		return storage.Room{}, fmt.Errorf("create room: %w", err)
	}
	r.rooms[room.ID] = room
	r.byName[normalized] = room.ID
	return room, nil
}

// Delete removes a room. Default rooms are protected; only the recorded
// admin display name may delete a room. Ownership compares display names,
// not stable identities.
func (r *Registry) Delete(ctx context.Context, roomID, requester string) (storage.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return storage.Room{}, ErrRoomNotFound
	}
	if room.Default {
		return storage.Room{}, ErrProtectedRoom
	}
	if room.Admin != requester {
		return storage.Room{}, ErrNotAuthorized
	}

	if err := r.store.DeleteRoom(ctx, roomID); err != nil {
		return storage.Room{}, fmt.Errorf("delete room: %w", err)
	}
	delete(r.rooms, roomID)
	delete(r.byName, normalizeName(room.Name))
	return room, nil
}

// Get returns the room with the given ID.
func (r *Registry) Get(roomID string) (storage.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return storage.Room{}, ErrRoomNotFound
	}
	return room, nil
}

// GetByName returns the room with the given name, case-insensitively.
func (r *Registry) GetByName(name string) (storage.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[normalizeName(name)]
	if !ok {
		return storage.Room{}, ErrRoomNotFound
	}
	return r.rooms[id], nil
}

// CheckSecret validates a supplied secret against the room's stored hash.
// Public rooms accept any supplied secret, including none.
func (r *Registry) CheckSecret(roomID, supplied string) error {
	room, err := r.Get(roomID)
	if err != nil {
		return err
	}
	if room.SecretHash == "" {
		return nil
	}
	if err := auth.CompareSecret(room.SecretHash, supplied); err != nil {
		return ErrBadPassword
	}
	return nil
}

// List returns all rooms ordered by creation time then name, so snapshots
// are stable across calls.
func (r *Registry) List() []storage.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]storage.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].Name < rooms[j].Name
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
