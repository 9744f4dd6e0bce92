package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fenggwsx/StudyChat/internal/auth"
	"github.com/fenggwsx/StudyChat/internal/chat"
	"github.com/fenggwsx/StudyChat/internal/protocol"
)

var errInvalidPayload = errors.New("invalid payload")

// dispatch routes one inbound envelope to its handler. Handlers run on the
// connection's read goroutine, so a client's own events stay ordered.
func (a *App) dispatch(ctx context.Context, session *clientSession, env protocol.Envelope) {
	switch env.Type {
	case protocol.EventCreateRoom:
		a.handleCreateRoom(ctx, session, env)
	case protocol.EventJoinRoom:
		a.handleJoinRoom(ctx, session, env)
	case protocol.EventSendMessage:
		a.handleSendMessage(ctx, session, env)
	case protocol.EventTyping:
		a.handleTyping(ctx, session, env, true)
	case protocol.EventStopTyping:
		a.handleTyping(ctx, session, env, false)
	case protocol.EventDeleteRoom:
		a.handleDeleteRoom(ctx, session, env)
	default:
		log.Printf("unhandled event type: %s", env.Type)
	}
}

func (a *App) handleCreateRoom(ctx context.Context, session *clientSession, env protocol.Envelope) {
	req, err := protocol.DecodePayload[protocol.CreateRoomRequest](env.Payload)
	if err != nil {
		a.roomError(ctx, session, errInvalidPayload)
		return
	}

	creator := session.displayName(strings.TrimSpace(req.User))
	if creator == "" {
		a.roomError(ctx, session, fmt.Errorf("%w: user required", errInvalidPayload))
		return
	}

	room, err := a.registry.Create(ctx, req.Name, creator, req.Password)
	if err != nil {
		a.roomError(ctx, session, err)
		return
	}

	welcome := fmt.Sprintf("Welcome to %s! Created by %s.", room.Name, creator)
	if _, err := a.messages.AppendSystem(ctx, room.ID, welcome); err != nil {
		log.Printf("seed welcome room=%s: %v", room.ID, err)
	}

	if err := session.send(ctx, a.newEnvelope(protocol.EventRoomCreated, toProtocolRoom(room))); err != nil {
		return
	}
	a.hub.ToAll(a.newEnvelope(protocol.EventChannelsList, a.channelsSnapshot()))
	log.Printf("room created id=%s name=%s admin=%s remote=%s", room.ID, room.Name, creator, session.conn.RemoteAddr())
}

func (a *App) handleJoinRoom(ctx context.Context, session *clientSession, env protocol.Envelope) {
	req, err := protocol.DecodePayload[protocol.JoinRoomRequest](env.Payload)
	if err != nil {
		a.roomError(ctx, session, errInvalidPayload)
		return
	}

	a.recordIdentity(session, env.Token)

	name := session.displayName(strings.TrimSpace(req.User))
	if name == "" {
		a.roomError(ctx, session, fmt.Errorf("%w: user required", errInvalidPayload))
		return
	}

	room, err := a.registry.Get(req.RoomID)
	if err != nil {
		a.roomError(ctx, session, err)
		return
	}
	if err := a.registry.CheckSecret(room.ID, req.Password); err != nil {
		a.roomError(ctx, session, err)
		return
	}

	history, err := a.messages.History(ctx, room.ID)
	if err != nil {
		a.roomError(ctx, session, err)
		return
	}

	curName, curRoom := session.snapshot()
	var members []string
	if curRoom == room.ID && curName == name {
		// Re-join of the same room by the same session: refresh history and
		// presence without touching membership.
		members = a.members.Of(room.ID)
	} else {
		members, err = a.members.Join(room.ID, name)
		if err != nil {
			a.roomError(ctx, session, err)
			return
		}
		a.leaveCurrentRoom(session)
		session.bind(name, room.ID)
		a.hub.Subscribe(room.ID, session.id)
	}

	payload := protocol.ReceiveHistory{RoomID: room.ID, Messages: make([]protocol.Message, 0, len(history))}
	for _, msg := range history {
		payload.Messages = append(payload.Messages, toProtocolMessage(msg))
	}
	if err := session.send(ctx, a.newEnvelope(protocol.EventReceiveHistory, payload)); err != nil {
		return
	}

	a.hub.ToRoom(room.ID, a.newEnvelope(protocol.EventRoomUsers, protocol.RoomUsers{RoomID: room.ID, Users: members}))
	log.Printf("join room=%s user=%s members=%d remote=%s", room.Name, name, len(members), session.conn.RemoteAddr())
}

func (a *App) handleSendMessage(ctx context.Context, session *clientSession, env protocol.Envelope) {
	name, roomID := session.snapshot()
	if roomID == "" {
		a.roomError(ctx, session, chat.ErrNotInRoom)
		return
	}

	req, err := protocol.DecodePayload[protocol.SendMessageRequest](env.Payload)
	if err != nil {
		a.roomError(ctx, session, errInvalidPayload)
		return
	}
	if req.RoomID != "" && req.RoomID != roomID {
		a.roomError(ctx, session, chat.ErrNotInRoom)
		return
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		a.roomError(ctx, session, fmt.Errorf("%w: message empty", errInvalidPayload))
		return
	}

	if a.typing.Stop(roomID, name) {
		a.hub.ToRoomExcept(roomID, session.id, a.newEnvelope(protocol.EventUserStopTyping, protocol.UserTyping{RoomID: roomID, User: name}))
	}

	// The delivery callback fans the stored message out to the room,
	// including the sender, before Append returns.
	if _, err := a.messages.Append(ctx, roomID, name, session.getUserID(), body); err != nil {
		a.roomError(ctx, session, err)
		return
	}
}

func (a *App) handleTyping(ctx context.Context, session *clientSession, env protocol.Envelope, start bool) {
	name, roomID := session.snapshot()
	if roomID == "" {
		a.roomError(ctx, session, chat.ErrNotInRoom)
		return
	}

	if start {
		a.typing.Start(roomID, name)
		a.hub.ToRoomExcept(roomID, session.id, a.newEnvelope(protocol.EventUserTyping, protocol.UserTyping{RoomID: roomID, User: name}))
		return
	}
	if a.typing.Stop(roomID, name) {
		a.hub.ToRoomExcept(roomID, session.id, a.newEnvelope(protocol.EventUserStopTyping, protocol.UserTyping{RoomID: roomID, User: name}))
	}
}

func (a *App) handleDeleteRoom(ctx context.Context, session *clientSession, env protocol.Envelope) {
	req, err := protocol.DecodePayload[protocol.DeleteRoomRequest](env.Payload)
	if err != nil {
		a.roomError(ctx, session, errInvalidPayload)
		return
	}

	requester := session.displayName(strings.TrimSpace(req.User))
	room, err := a.registry.Delete(ctx, req.RoomID, requester)
	if err != nil {
		a.roomError(ctx, session, err)
		return
	}

	a.messages.Drop(room.ID)
	a.members.Clear(room.ID)
	a.typing.Clear(room.ID)
	a.evictRoom(room.ID)
	a.hub.DropRoom(room.ID)

	a.hub.ToAll(a.newEnvelope(protocol.EventRoomDeleted, protocol.RoomDeleted{RoomID: room.ID}))
	a.hub.ToAll(a.newEnvelope(protocol.EventChannelsList, a.channelsSnapshot()))
	log.Printf("room deleted id=%s name=%s by=%s", room.ID, room.Name, requester)
}

// leaveCurrentRoom detaches the session from its previous room, if any, and
// notifies that room's remaining members.
func (a *App) leaveCurrentRoom(session *clientSession) {
	name, roomID := session.snapshot()
	if roomID == "" {
		return
	}
	if a.typing.Stop(roomID, name) {
		a.hub.ToRoomExcept(roomID, session.id, a.newEnvelope(protocol.EventUserStopTyping, protocol.UserTyping{RoomID: roomID, User: name}))
	}
	remaining := a.members.Leave(roomID, name)
	a.hub.Unsubscribe(roomID, session.id)
	session.clearRoom()
	a.hub.ToRoom(roomID, a.newEnvelope(protocol.EventRoomUsers, protocol.RoomUsers{RoomID: roomID, Users: remaining}))
}

// recordIdentity parses an optional identity token and pins the stable user
// ID to the session. Invalid tokens are ignored; identity enriches stored
// messages but does not gate any room operation.
func (a *App) recordIdentity(session *clientSession, token string) {
	token = strings.TrimSpace(token)
	if token == "" || session.getUserID() != "" {
		return
	}
	claims, err := auth.ParseToken(a.cfg.JWT, token)
	if err != nil {
		log.Printf("identity token rejected remote=%s: %v", session.conn.RemoteAddr(), err)
		return
	}
	session.setUserID(claims.UserID)
}

// roomError reports a failure to the originating connection only. Errors
// outside the room taxonomy are logged and reported as internal.
func (a *App) roomError(ctx context.Context, session *clientSession, err error) {
	code := chat.Code(err)
	message := err.Error()
	if code == "internal" && !errors.Is(err, errInvalidPayload) {
		log.Printf("internal error session=%s: %v", session.id, err)
		message = "internal error"
	}
	if code == "internal" && errors.Is(err, errInvalidPayload) {
		code = "invalid_payload"
	}
	payload := protocol.RoomError{Code: code, Message: message}
	if sendErr := session.send(ctx, a.newEnvelope(protocol.EventRoomError, payload)); sendErr != nil {
		log.Printf("send room_error: %v", sendErr)
	}
}
