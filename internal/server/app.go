package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/StudyChat/internal/chat"
	"github.com/fenggwsx/StudyChat/internal/config"
	"github.com/fenggwsx/StudyChat/internal/protocol"
	"github.com/fenggwsx/StudyChat/internal/storage"
)

// App coordinates network listeners, session lifecycle, and room-scoped
// fan-out. All client-originated events pass through one dispatch path per
// connection; shared room state lives in the chat components.
type App struct {
	cfg      config.ServerConfig
	store    storage.Store
	registry *chat.Registry
	members  *chat.Members
	messages *chat.Messages
	typing   *chat.Typing
	hub      *Hub

	mu       sync.Mutex
	sessions map[string]*clientSession

	listener  net.Listener
	closeOnce sync.Once
}

// NewApp constructs a server instance using the provided dependencies.
func NewApp(cfg config.ServerConfig, store storage.Store) *App {
	registry := chat.NewRegistry(store, cfg.DefaultRooms)
	a := &App{
		cfg:      cfg,
		store:    store,
		registry: registry,
		members:  chat.NewMembers(),
		messages: chat.NewMessages(store, registry, cfg.HistoryLimit),
		hub:      NewHub(),
		sessions: make(map[string]*clientSession),
	}
	a.typing = chat.NewTyping(cfg.TypingTTL, a.typingExpired)
	a.messages.Notify(a.deliverMessage)
	return a
}

// Run starts the TCP and HTTP listeners and serves until the context is
// canceled.
func (a *App) Run(ctx context.Context) error {
	if err := a.bootstrap(ctx); err != nil {
		return err
	}

	go a.typing.Run(ctx)

	listener, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	a.listener = listener

	httpServer := &http.Server{
		Addr:           a.cfg.HTTPAddr,
		Handler:        a.routes(),
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 2)

	go func() {
		<-ctx.Done()
		a.closeOnce.Do(func() {
			_ = a.listener.Close()
		})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go func() {
		for {
			conn, err := a.listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					errCh <- nil
					return
				}
				errCh <- err
				return
			}
			go a.handleConn(ctx, newTCPConn(conn, a.cfg))
		}
	}()

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	return <-errCh
}

// bootstrap migrates the store, hydrates the registry, and guarantees the
// default rooms exist, each seeded with a welcome message.
func (a *App) bootstrap(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := a.registry.Load(ctx); err != nil {
		return err
	}
	created, err := a.registry.EnsureDefaults(ctx)
	if err != nil {
		return err
	}
	for _, room := range created {
		welcome := fmt.Sprintf("Welcome to %s!", room.Name)
		if _, err := a.messages.AppendSystem(ctx, room.ID, welcome); err != nil {
			return err
		}
	}
	return nil
}

// handleConn runs one connection's session from registration to cleanup. It
// blocks until the peer disconnects or the context ends.
func (a *App) handleConn(parentCtx context.Context, conn envelopeConn) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	session := newClientSession(conn)
	a.addSession(session)
	a.hub.Register(session.id, session.sendCh)

	go func() {
		session.writeLoop(ctx)
		cancel()
	}()

	defer a.dropSession(session)

	if err := session.send(ctx, a.newEnvelope(protocol.EventChannelsList, a.channelsSnapshot())); err != nil {
		return
	}

	for {
		env, err := conn.ReadEnvelope(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("read session=%s remote=%s: %v", session.id, conn.RemoteAddr(), err)
			}
			return
		}
		a.dispatch(ctx, session, env)
	}
}

// dropSession applies disconnect semantics: membership removal, typing
// cleanup, and a presence broadcast to the remaining room members.
func (a *App) dropSession(session *clientSession) {
	name, roomID := session.snapshot()
	if roomID != "" {
		if a.typing.Stop(roomID, name) {
			a.hub.ToRoomExcept(roomID, session.id, a.newEnvelope(protocol.EventUserStopTyping, protocol.UserTyping{RoomID: roomID, User: name}))
		}
		remaining := a.members.Leave(roomID, name)
		a.hub.Unsubscribe(roomID, session.id)
		a.hub.ToRoom(roomID, a.newEnvelope(protocol.EventRoomUsers, protocol.RoomUsers{RoomID: roomID, Users: remaining}))
	}
	a.hub.Unregister(session.id)
	a.removeSession(session.id)
	session.close()
}

func (a *App) addSession(session *clientSession) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[session.id] = session
}

func (a *App) removeSession(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
}

// evictRoom detaches every session bound to a deleted room.
func (a *App) evictRoom(roomID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, session := range a.sessions {
		if _, bound := session.snapshot(); bound == roomID {
			session.clearRoom()
		}
	}
}

// deliverMessage fans a stored message out to its room. Invoked by the
// message store in append order.
func (a *App) deliverMessage(msg storage.Message) {
	a.hub.ToRoom(msg.RoomID, a.newEnvelope(protocol.EventReceiveMessage, toProtocolMessage(msg)))
}

// typingExpired broadcasts a stop-typing notice for entries the TTL sweep
// removed.
func (a *App) typingExpired(roomID, name string) {
	a.hub.ToRoom(roomID, a.newEnvelope(protocol.EventUserStopTyping, protocol.UserTyping{RoomID: roomID, User: name}))
}

func (a *App) newEnvelope(eventType protocol.EventType, payload interface{}) protocol.Envelope {
	return protocol.Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

func (a *App) channelsSnapshot() protocol.ChannelsList {
	rooms := a.registry.List()
	snapshot := protocol.ChannelsList{Rooms: make([]protocol.Room, 0, len(rooms))}
	for _, room := range rooms {
		snapshot.Rooms = append(snapshot.Rooms, toProtocolRoom(room))
	}
	return snapshot
}

func toProtocolRoom(room storage.Room) protocol.Room {
	return protocol.Room{
		ID:        room.ID,
		Name:      room.Name,
		Admin:     room.Admin,
		Protected: room.SecretHash != "",
		CreatedAt: room.CreatedAt,
	}
}

func toProtocolMessage(msg storage.Message) protocol.Message {
	return protocol.Message{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		Seq:       msg.Seq,
		Author:    msg.Author,
		AuthorID:  msg.AuthorID,
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt,
	}
}
