package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fenggwsx/StudyChat/internal/storage"
)

// systemAuthor names the server itself on seeded messages and default rooms.
const systemAuthor = "system"

// Messages is the append-only message store for all rooms. Appends are
// serialized: the sequence assignment, the store write, and the delivery
// callback run under one lock, so fan-out order always matches append order.
type Messages struct {
	mu       sync.Mutex
	store    storage.Store
	registry *Registry
	limit    int
	seqs     map[string]uint64
	sink     func(storage.Message)
}

// NewMessages constructs the message store. limit caps how many messages a
// history call returns; zero means unlimited.
func NewMessages(store storage.Store, registry *Registry, limit int) *Messages {
	return &Messages{
		store:    store,
		registry: registry,
		limit:    limit,
		seqs:     make(map[string]uint64),
	}
}

// Notify registers a delivery callback invoked once per stored message, in
// append order. A message that failed to store is never delivered.
func (m *Messages) Notify(sink func(storage.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// Append validates the room, assigns the next sequence position, persists
// the message, and hands it to the delivery callback.
func (m *Messages) Append(ctx context.Context, roomID, author, authorID, body string) (storage.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.registry.Get(roomID); err != nil {
		return storage.Message{}, err
	}

	seq, err := m.nextSeq(ctx, roomID)
	if err != nil {
		return storage.Message{}, err
	}

	msg := storage.Message{
		RoomID:    roomID,
		Seq:       seq,
		Author:    author,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.AppendMessage(ctx, &msg); err != nil {
		return storage.Message{}, fmt.Errorf("append message: %w", err)
	}
	m.seqs[roomID] = seq

	if m.sink != nil {
		m.sink(msg)
	}
	return msg, nil
}

// AppendSystem stores a server-authored message, bypassing delivery. Used to
// seed welcome messages before anyone is connected to the room.
func (m *Messages) AppendSystem(ctx context.Context, roomID, body string) (storage.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.registry.Get(roomID); err != nil {
		return storage.Message{}, err
	}
	seq, err := m.nextSeq(ctx, roomID)
	if err != nil {
		return storage.Message{}, err
	}
	msg := storage.Message{
		RoomID:    roomID,
		Seq:       seq,
		Author:    systemAuthor,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.AppendMessage(ctx, &msg); err != nil {
		return storage.Message{}, fmt.Errorf("append system message: %w", err)
	}
	m.seqs[roomID] = seq
	return msg, nil
}

// History returns the room's messages in chronological order. Repeated calls
// return the same data until a new append occurs.
func (m *Messages) History(ctx context.Context, roomID string) ([]storage.Message, error) {
	if _, err := m.registry.Get(roomID); err != nil {
		return nil, err
	}
	messages, err := m.store.ListMessages(ctx, roomID, m.limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// Drop forgets the sequence counter for a deleted room. The store cascade
// removes the rows themselves.
func (m *Messages) Drop(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seqs, roomID)
}

// nextSeq must be called with the lock held. Counters for rooms that predate
// this process are recovered lazily from the store.
func (m *Messages) nextSeq(ctx context.Context, roomID string) (uint64, error) {
	if seq, ok := m.seqs[roomID]; ok {
		return seq + 1, nil
	}
	last, err := m.store.LastSeq(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return last + 1, nil
}
