package server

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/StudyChat/internal/auth"
	"github.com/fenggwsx/StudyChat/internal/config"
	"github.com/fenggwsx/StudyChat/internal/protocol"
	"github.com/fenggwsx/StudyChat/internal/storage/memory"
)

const waitFor = 2 * time.Second

// testConn is an in-memory envelopeConn. Envelopes pushed to in are read by
// the session loop; envelopes written by the server land on out.
type testConn struct {
	in   chan protocol.Envelope
	out  chan protocol.Envelope
	done chan struct{}
	once sync.Once
}

func newTestConn() *testConn {
	return &testConn{
		in:   make(chan protocol.Envelope, 16),
		out:  make(chan protocol.Envelope, 64),
		done: make(chan struct{}),
	}
}

func (c *testConn) ReadEnvelope(ctx context.Context) (protocol.Envelope, error) {
	select {
	case env := <-c.in:
		return env, nil
	case <-c.done:
		return protocol.Envelope{}, io.EOF
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	}
}

func (c *testConn) WriteEnvelope(ctx context.Context, env protocol.Envelope) error {
	select {
	case c.out <- env:
		return nil
	case <-c.done:
		return io.EOF
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *testConn) Ping() error        { return nil }
func (c *testConn) RemoteAddr() string { return "testconn" }

func (c *testConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// push submits a client event to the session loop.
func (c *testConn) push(t *testing.T, eventType protocol.EventType, token string, payload interface{}) {
	t.Helper()
	env := protocol.Envelope{ID: uuid.NewString(), Type: eventType, Timestamp: time.Now(), Token: token, Payload: payload}
	select {
	case c.in <- env:
	case <-time.After(waitFor):
		t.Fatalf("timed out pushing %s", eventType)
	}
}

// expect reads server events until one of the wanted type arrives, skipping
// unrelated broadcasts.
func (c *testConn) expect(t *testing.T, want protocol.EventType) protocol.Envelope {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case env := <-c.out:
			if env.Type == want {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

// collectUntil reads server events until the wanted type arrives and returns
// everything that was skipped along the way.
func (c *testConn) collectUntil(t *testing.T, want protocol.EventType) []protocol.Envelope {
	t.Helper()
	var skipped []protocol.Envelope
	deadline := time.After(waitFor)
	for {
		select {
		case env := <-c.out:
			if env.Type == want {
				return skipped
			}
			skipped = append(skipped, env)
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.ServerConfig{
		DefaultRooms: []string{"general"},
		HistoryLimit: 200,
		JWT: config.JWTConfig{
			Secret:     "test-secret",
			Issuer:     "studychat-test",
			Expiration: time.Hour,
		},
	}
	app := NewApp(cfg, memory.NewStore())
	require.NoError(t, app.bootstrap(context.Background()))
	return app
}

// dial connects a fake client and consumes the initial room list.
func dial(t *testing.T, app *App) *testConn {
	t.Helper()
	conn := newTestConn()
	go app.handleConn(context.Background(), conn)
	t.Cleanup(func() { _ = conn.Close() })
	conn.expect(t, protocol.EventChannelsList)
	return conn
}

func joinRoom(t *testing.T, conn *testConn, roomID, user, password string) protocol.ReceiveHistory {
	t.Helper()
	conn.push(t, protocol.EventJoinRoom, "", protocol.JoinRoomRequest{RoomID: roomID, User: user, Password: password})
	env := conn.expect(t, protocol.EventReceiveHistory)
	history, err := protocol.DecodePayload[protocol.ReceiveHistory](env.Payload)
	require.NoError(t, err)
	conn.expect(t, protocol.EventRoomUsers)
	return history
}

func generalRoomID(t *testing.T, app *App) string {
	t.Helper()
	room, err := app.registry.GetByName("general")
	require.NoError(t, err)
	return room.ID
}

func decodeError(t *testing.T, env protocol.Envelope) protocol.RoomError {
	t.Helper()
	payload, err := protocol.DecodePayload[protocol.RoomError](env.Payload)
	require.NoError(t, err)
	return payload
}

func TestConnectSendsRoomList(t *testing.T) {
	app := newTestApp(t)
	conn := newTestConn()
	go app.handleConn(context.Background(), conn)
	t.Cleanup(func() { _ = conn.Close() })

	env := conn.expect(t, protocol.EventChannelsList)
	list, err := protocol.DecodePayload[protocol.ChannelsList](env.Payload)
	require.NoError(t, err)
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, "general", list.Rooms[0].Name)
	assert.False(t, list.Rooms[0].Protected)
}

func TestCreateRoomAndDuplicate(t *testing.T) {
	app := newTestApp(t)
	conn := dial(t, app)

	conn.push(t, protocol.EventCreateRoom, "", protocol.CreateRoomRequest{Name: "homework", User: "Ana"})
	env := conn.expect(t, protocol.EventRoomCreated)
	room, err := protocol.DecodePayload[protocol.Room](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "homework", room.Name)
	assert.Equal(t, "Ana", room.Admin)

	// Every connection gets a refreshed room list, the creator included.
	env = conn.expect(t, protocol.EventChannelsList)
	list, err := protocol.DecodePayload[protocol.ChannelsList](env.Payload)
	require.NoError(t, err)
	assert.Len(t, list.Rooms, 2)

	conn.push(t, protocol.EventCreateRoom, "", protocol.CreateRoomRequest{Name: "Homework", User: "Bob"})
	failure := decodeError(t, conn.expect(t, protocol.EventRoomError))
	assert.Equal(t, "duplicate_room", failure.Code)
}

func TestJoinWrongPassword(t *testing.T) {
	app := newTestApp(t)
	creator := dial(t, app)

	creator.push(t, protocol.EventCreateRoom, "", protocol.CreateRoomRequest{Name: "private", User: "Ana", Password: "pw"})
	env := creator.expect(t, protocol.EventRoomCreated)
	room, err := protocol.DecodePayload[protocol.Room](env.Payload)
	require.NoError(t, err)
	assert.True(t, room.Protected)

	joiner := dial(t, app)
	joiner.push(t, protocol.EventJoinRoom, "", protocol.JoinRoomRequest{RoomID: room.ID, User: "Bob", Password: "nope"})
	failure := decodeError(t, joiner.expect(t, protocol.EventRoomError))
	assert.Equal(t, "bad_password", failure.Code)
	assert.Equal(t, 0, app.members.Count(room.ID))

	joinRoom(t, joiner, room.ID, "Bob", "pw")
	assert.Equal(t, 1, app.members.Count(room.ID))
}

func TestJoinNameTaken(t *testing.T) {
	app := newTestApp(t)
	roomID := generalRoomID(t, app)

	first := dial(t, app)
	joinRoom(t, first, roomID, "Ana", "")

	second := dial(t, app)
	second.push(t, protocol.EventJoinRoom, "", protocol.JoinRoomRequest{RoomID: roomID, User: "Ana"})
	failure := decodeError(t, second.expect(t, protocol.EventRoomError))
	assert.Equal(t, "name_taken", failure.Code)
	assert.Equal(t, 1, app.members.Count(roomID))
}

func TestJoinUnknownRoom(t *testing.T) {
	app := newTestApp(t)
	conn := dial(t, app)

	conn.push(t, protocol.EventJoinRoom, "", protocol.JoinRoomRequest{RoomID: "no-such-room", User: "Ana"})
	failure := decodeError(t, conn.expect(t, protocol.EventRoomError))
	assert.Equal(t, "room_not_found", failure.Code)
}

func TestHistoryAndMessageOrder(t *testing.T) {
	app := newTestApp(t)
	roomID := generalRoomID(t, app)

	ana := dial(t, app)
	history := joinRoom(t, ana, roomID, "Ana", "")
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "system", history.Messages[0].Author)
	assert.Equal(t, "Welcome to general!", history.Messages[0].Body)

	ana.push(t, protocol.EventSendMessage, "", protocol.SendMessageRequest{Body: "m1"})
	ana.push(t, protocol.EventSendMessage, "", protocol.SendMessageRequest{Body: "m2"})

	env := ana.expect(t, protocol.EventReceiveMessage)
	first, err := protocol.DecodePayload[protocol.Message](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "m1", first.Body)
	assert.Equal(t, "Ana", first.Author)

	env = ana.expect(t, protocol.EventReceiveMessage)
	second, err := protocol.DecodePayload[protocol.Message](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "m2", second.Body)
	assert.Greater(t, second.Seq, first.Seq)

	// A later joiner replays the full log in order.
	bob := dial(t, app)
	replay := joinRoom(t, bob, roomID, "Bob", "")
	require.Len(t, replay.Messages, 3)
	assert.Equal(t, "Welcome to general!", replay.Messages[0].Body)
	assert.Equal(t, "m1", replay.Messages[1].Body)
	assert.Equal(t, "m2", replay.Messages[2].Body)
}

func TestSendBeforeJoin(t *testing.T) {
	app := newTestApp(t)
	conn := dial(t, app)

	conn.push(t, protocol.EventSendMessage, "", protocol.SendMessageRequest{Body: "hello"})
	failure := decodeError(t, conn.expect(t, protocol.EventRoomError))
	assert.Equal(t, "not_in_room", failure.Code)
}

func TestEmptyMessageRejected(t *testing.T) {
	app := newTestApp(t)
	roomID := generalRoomID(t, app)

	conn := dial(t, app)
	joinRoom(t, conn, roomID, "Ana", "")

	conn.push(t, protocol.EventSendMessage, "", protocol.SendMessageRequest{Body: "   "})
	failure := decodeError(t, conn.expect(t, protocol.EventRoomError))
	assert.Equal(t, "invalid_payload", failure.Code)
}

func TestTypingRelayExcludesSender(t *testing.T) {
	app := newTestApp(t)
	roomID := generalRoomID(t, app)

	ana := dial(t, app)
	joinRoom(t, ana, roomID, "Ana", "")
	bob := dial(t, app)
	joinRoom(t, bob, roomID, "Bob", "")

	ana.push(t, protocol.EventTyping, "", protocol.TypingRequest{RoomID: roomID, User: "Ana"})
	env := bob.expect(t, protocol.EventUserTyping)
	typing, err := protocol.DecodePayload[protocol.UserTyping](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "Ana", typing.User)

	// Sending a message implies stop-typing for the room's other members.
	ana.push(t, protocol.EventSendMessage, "", protocol.SendMessageRequest{Body: "done typing"})
	stop := bob.expect(t, protocol.EventUserStopTyping)
	stopped, err := protocol.DecodePayload[protocol.UserTyping](stop.Payload)
	require.NoError(t, err)
	assert.Equal(t, "Ana", stopped.User)
	bob.expect(t, protocol.EventReceiveMessage)

	// The sender never sees their own typing relay.
	skipped := ana.collectUntil(t, protocol.EventReceiveMessage)
	for _, env := range skipped {
		assert.NotEqual(t, protocol.EventUserTyping, env.Type)
		assert.NotEqual(t, protocol.EventUserStopTyping, env.Type)
	}
}

func TestDisconnectUpdatesPresence(t *testing.T) {
	app := newTestApp(t)
	roomID := generalRoomID(t, app)

	ana := dial(t, app)
	joinRoom(t, ana, roomID, "Ana", "")
	bob := dial(t, app)
	joinRoom(t, bob, roomID, "Bob", "")

	require.NoError(t, ana.Close())

	env := bob.expect(t, protocol.EventRoomUsers)
	users, err := protocol.DecodePayload[protocol.RoomUsers](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, users.Users)

	// The freed name is immediately reusable.
	ana2 := dial(t, app)
	joinRoom(t, ana2, roomID, "Ana", "")
	assert.Equal(t, 2, app.members.Count(roomID))
}

func TestSwitchingRoomsLeavesPrevious(t *testing.T) {
	app := newTestApp(t)
	generalID := generalRoomID(t, app)

	ana := dial(t, app)
	ana.push(t, protocol.EventCreateRoom, "", protocol.CreateRoomRequest{Name: "homework", User: "Ana"})
	env := ana.expect(t, protocol.EventRoomCreated)
	room, err := protocol.DecodePayload[protocol.Room](env.Payload)
	require.NoError(t, err)

	joinRoom(t, ana, generalID, "Ana", "")
	joinRoom(t, ana, room.ID, "Ana", "")

	assert.Equal(t, 0, app.members.Count(generalID))
	assert.Equal(t, 1, app.members.Count(room.ID))
}

func TestDeleteRoomAuthorization(t *testing.T) {
	app := newTestApp(t)
	generalID := generalRoomID(t, app)

	ana := dial(t, app)
	ana.push(t, protocol.EventCreateRoom, "", protocol.CreateRoomRequest{Name: "club", User: "Ana"})
	env := ana.expect(t, protocol.EventRoomCreated)
	room, err := protocol.DecodePayload[protocol.Room](env.Payload)
	require.NoError(t, err)

	bob := dial(t, app)
	bob.push(t, protocol.EventDeleteRoom, "", protocol.DeleteRoomRequest{RoomID: room.ID, User: "Bob"})
	failure := decodeError(t, bob.expect(t, protocol.EventRoomError))
	assert.Equal(t, "not_authorized", failure.Code)
	_, err = app.registry.Get(room.ID)
	assert.NoError(t, err)

	bob.push(t, protocol.EventDeleteRoom, "", protocol.DeleteRoomRequest{RoomID: generalID, User: "Bob"})
	failure = decodeError(t, bob.expect(t, protocol.EventRoomError))
	assert.Equal(t, "protected_room", failure.Code)
}

func TestDeleteRoomEvictsMembers(t *testing.T) {
	app := newTestApp(t)

	ana := dial(t, app)
	ana.push(t, protocol.EventCreateRoom, "", protocol.CreateRoomRequest{Name: "club", User: "Ana"})
	env := ana.expect(t, protocol.EventRoomCreated)
	room, err := protocol.DecodePayload[protocol.Room](env.Payload)
	require.NoError(t, err)

	joinRoom(t, ana, room.ID, "Ana", "")
	bob := dial(t, app)
	joinRoom(t, bob, room.ID, "Bob", "")

	ana.push(t, protocol.EventDeleteRoom, "", protocol.DeleteRoomRequest{RoomID: room.ID, User: "Ana"})

	deleted := bob.expect(t, protocol.EventRoomDeleted)
	payload, err := protocol.DecodePayload[protocol.RoomDeleted](deleted.Payload)
	require.NoError(t, err)
	assert.Equal(t, room.ID, payload.RoomID)
	ana.expect(t, protocol.EventRoomDeleted)

	assert.Equal(t, 0, app.members.Count(room.ID))

	// Evicted members must rejoin a room before speaking again.
	bob.push(t, protocol.EventSendMessage, "", protocol.SendMessageRequest{Body: "anyone?"})
	failure := decodeError(t, bob.expect(t, protocol.EventRoomError))
	assert.Equal(t, "not_in_room", failure.Code)
}

func TestJoinRecordsIdentity(t *testing.T) {
	app := newTestApp(t)
	roomID := generalRoomID(t, app)

	token, err := auth.NewToken(app.cfg.JWT, "uid-42", "Ana")
	require.NoError(t, err)

	conn := dial(t, app)
	conn.push(t, protocol.EventJoinRoom, token, protocol.JoinRoomRequest{RoomID: roomID, User: "Ana"})
	conn.expect(t, protocol.EventReceiveHistory)
	conn.expect(t, protocol.EventRoomUsers)

	conn.push(t, protocol.EventSendMessage, "", protocol.SendMessageRequest{Body: "hi"})
	env := conn.expect(t, protocol.EventReceiveMessage)
	msg, err := protocol.DecodePayload[protocol.Message](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "uid-42", msg.AuthorID)
	assert.Equal(t, "Ana", msg.Author)
}

func TestJoinIgnoresInvalidToken(t *testing.T) {
	app := newTestApp(t)
	roomID := generalRoomID(t, app)

	conn := dial(t, app)
	conn.push(t, protocol.EventJoinRoom, "garbage-token", protocol.JoinRoomRequest{RoomID: roomID, User: "Ana"})
	conn.expect(t, protocol.EventReceiveHistory)
	conn.expect(t, protocol.EventRoomUsers)

	conn.push(t, protocol.EventSendMessage, "", protocol.SendMessageRequest{Body: "hi"})
	env := conn.expect(t, protocol.EventReceiveMessage)
	msg, err := protocol.DecodePayload[protocol.Message](env.Payload)
	require.NoError(t, err)
	assert.Empty(t, msg.AuthorID)
}
