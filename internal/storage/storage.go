package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Room is a persisted chat room record. SecretHash is empty for public
// rooms. Default rooms are seeded at startup and can never be deleted.
type Room struct {
	ID         string
	Name       string
	Admin      string
	SecretHash string
	Default    bool
	CreatedAt  time.Time
}

// Message is a persisted chat message. Seq is the server-assigned per-room
// order position; messages are append-only and never mutated.
type Message struct {
	ID        uint64
	RoomID    string
	Seq       uint64
	Author    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// Store defines the catalog operations the chat core relies on. Both the
// durable SQLite backend and the in-process backend implement it.
type Store interface {
	Close() error
	Migrate(ctx context.Context) error

	CreateRoom(ctx context.Context, room *Room) error
	DeleteRoom(ctx context.Context, roomID string) error
	ListRooms(ctx context.Context) ([]Room, error)

	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
	LastSeq(ctx context.Context, roomID string) (uint64, error)
}
