package chat

import "errors"

// Room-operation errors. All of them describe client input or state, not
// infrastructure failures; the gateway reports them to the originating
// connection only and never retries.
var (
	ErrDuplicateRoom = errors.New("a room with that name already exists")
	ErrRoomNotFound  = errors.New("room not found")
	ErrProtectedRoom = errors.New("default rooms cannot be deleted")
	ErrNotAuthorized = errors.New("only the room admin can delete this room")
	ErrNameTaken     = errors.New("that name is already taken in this room")
	ErrBadPassword   = errors.New("wrong room password")
	ErrNotInRoom     = errors.New("join a room first")
)

// Code maps a room-operation error to its wire code for room_error events.
// Unrecognized errors report as internal failures.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateRoom):
		return "duplicate_room"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrProtectedRoom):
		return "protected_room"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrNameTaken):
		return "name_taken"
	case errors.Is(err, ErrBadPassword):
		return "bad_password"
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	default:
		return "internal"
	}
}
