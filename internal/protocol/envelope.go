package protocol

import "time"

// EventType enumerates every event that crosses the wire. Each type has
// exactly one payload struct below.
type EventType string

const (
	// server -> client
	EventChannelsList   EventType = "channels_list"
	EventRoomCreated    EventType = "room_created"
	EventReceiveHistory EventType = "receive_history"
	EventRoomUsers      EventType = "room_users"
	EventReceiveMessage EventType = "receive_message"
	EventUserTyping     EventType = "user_typing"
	EventUserStopTyping EventType = "user_stop_typing"
	EventRoomDeleted    EventType = "room_deleted"
	EventRoomError      EventType = "room_error"

	// client -> server
	EventCreateRoom  EventType = "create_room"
	EventJoinRoom    EventType = "join_room"
	EventSendMessage EventType = "send_message"
	EventTyping      EventType = "typing"
	EventStopTyping  EventType = "stop_typing"
	EventDeleteRoom  EventType = "delete_room"
)

// Envelope wraps every event sent over the wire.
type Envelope struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Token     string      `json:"token,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Room describes a chat room in list snapshots and creation acks. The access
// secret never leaves the server; Protected tells clients to prompt for one.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Admin     string    `json:"admin"`
	Protected bool      `json:"protected"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single stored chat message.
type Message struct {
	ID        uint64    `json:"id"`
	RoomID    string    `json:"room_id"`
	Seq       uint64    `json:"seq"`
	Author    string    `json:"author"`
	AuthorID  string    `json:"author_id,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelsList carries the current room snapshot.
type ChannelsList struct {
	Rooms []Room `json:"rooms"`
}

// CreateRoomRequest asks the server to create a room.
type CreateRoomRequest struct {
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
}

// JoinRoomRequest asks the server to bind this connection to a room.
type JoinRoomRequest struct {
	RoomID   string `json:"room_id"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
}

// ReceiveHistory delivers the room's message history to a joiner.
type ReceiveHistory struct {
	RoomID   string    `json:"room_id"`
	Messages []Message `json:"messages"`
}

// RoomUsers is the membership snapshot broadcast on presence changes.
type RoomUsers struct {
	RoomID string   `json:"room_id"`
	Users  []string `json:"users"`
}

// SendMessageRequest submits a message to the sender's current room.
type SendMessageRequest struct {
	RoomID string `json:"room_id"`
	Body   string `json:"body"`
}

// TypingRequest starts or stops the sender's typing indicator.
type TypingRequest struct {
	RoomID string `json:"room_id"`
	User   string `json:"user"`
}

// UserTyping notifies other room members about a typing-state change.
type UserTyping struct {
	RoomID string `json:"room_id"`
	User   string `json:"user"`
}

// DeleteRoomRequest asks the server to delete a room.
type DeleteRoomRequest struct {
	RoomID string `json:"room_id"`
	User   string `json:"user"`
}

// RoomDeleted announces a room removal to every connection.
type RoomDeleted struct {
	RoomID string `json:"room_id"`
}

// RoomError reports a validation or authorization failure to the
// originating connection only.
type RoomError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
