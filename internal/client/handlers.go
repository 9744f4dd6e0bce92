package client

import (
	"fmt"
	"log"

	"github.com/fenggwsx/StudyChat/internal/protocol"
)

// processEnvelope applies one server event to the model.
func (a *App) processEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.EventChannelsList:
		a.handleChannelsList(env)
	case protocol.EventRoomCreated:
		a.handleRoomCreated(env)
	case protocol.EventReceiveHistory:
		a.handleHistory(env)
	case protocol.EventRoomUsers:
		a.handleRoomUsers(env)
	case protocol.EventReceiveMessage:
		a.handleMessage(env)
	case protocol.EventUserTyping:
		a.handleTyping(env, true)
	case protocol.EventUserStopTyping:
		a.handleTyping(env, false)
	case protocol.EventRoomDeleted:
		a.handleRoomDeleted(env)
	case protocol.EventRoomError:
		a.handleRoomError(env)
	default:
		log.Printf("unhandled event type: %s", env.Type)
	}
}

func (a *App) handleChannelsList(env protocol.Envelope) {
	list, err := protocol.DecodePayload[protocol.ChannelsList](env.Payload)
	if err != nil {
		a.logf("Bad room list: %v", err)
		return
	}
	a.rooms = list.Rooms
}

func (a *App) handleRoomCreated(env protocol.Envelope) {
	room, err := protocol.DecodePayload[protocol.Room](env.Payload)
	if err != nil {
		a.logf("Bad room ack: %v", err)
		return
	}
	a.logf("Room %s created; %cjoin %s to enter", room.Name, a.cfg.CommandPrefix, room.Name)
}

func (a *App) handleHistory(env protocol.Envelope) {
	history, err := protocol.DecodePayload[protocol.ReceiveHistory](env.Payload)
	if err != nil {
		a.logf("Bad history: %v", err)
		return
	}
	a.roomID = history.RoomID
	a.roomName = history.RoomID
	for _, room := range a.rooms {
		if room.ID == history.RoomID {
			a.roomName = room.Name
		}
	}
	a.typers = make(map[string]struct{})
	a.lines = nil
	a.logf("Joined %s", a.roomName)
	for _, msg := range history.Messages {
		a.lines = append(a.lines, a.renderMessage(msg))
	}
}

func (a *App) handleRoomUsers(env protocol.Envelope) {
	users, err := protocol.DecodePayload[protocol.RoomUsers](env.Payload)
	if err != nil || users.RoomID != a.roomID {
		return
	}
	a.logf("Members (%d): %s", len(users.Users), joinNames(users.Users))
}

func (a *App) handleMessage(env protocol.Envelope) {
	msg, err := protocol.DecodePayload[protocol.Message](env.Payload)
	if err != nil || msg.RoomID != a.roomID {
		return
	}
	delete(a.typers, msg.Author)
	a.lines = append(a.lines, a.renderMessage(msg))
}

func (a *App) handleTyping(env protocol.Envelope, start bool) {
	typing, err := protocol.DecodePayload[protocol.UserTyping](env.Payload)
	if err != nil || typing.RoomID != a.roomID {
		return
	}
	if start {
		a.typers[typing.User] = struct{}{}
	} else {
		delete(a.typers, typing.User)
	}
}

func (a *App) handleRoomDeleted(env protocol.Envelope) {
	deleted, err := protocol.DecodePayload[protocol.RoomDeleted](env.Payload)
	if err != nil {
		return
	}
	if deleted.RoomID == a.roomID {
		a.roomID = ""
		a.roomName = ""
		a.typers = make(map[string]struct{})
		a.logf("The room you were in was deleted")
	}
}

func (a *App) handleRoomError(env protocol.Envelope) {
	roomErr, err := protocol.DecodePayload[protocol.RoomError](env.Payload)
	if err != nil {
		a.logf("Server error")
		return
	}
	a.lines = append(a.lines, a.styles.errorText.Render(fmt.Sprintf("! %s", roomErr.Message)))
}

func (a *App) renderMessage(msg protocol.Message) string {
	timestamp := msg.CreatedAt.Local().Format("15:04")
	author := a.styles.author.Render(msg.Author)
	return fmt.Sprintf("%s %s: %s", a.styles.timestamp.Render(timestamp), author, msg.Body)
}

func joinNames(names []string) string {
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	return out
}
