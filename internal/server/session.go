package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/StudyChat/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// clientSession tracks per-connection state and outbound delivery. A session
// is bound to at most one room at a time; its display name is fixed by the
// first successful join.
type clientSession struct {
	id     string
	conn   envelopeConn
	sendCh chan protocol.Envelope

	mu     sync.Mutex
	name   string
	roomID string
	userID string

	closeOnce sync.Once
}

func newClientSession(conn envelopeConn) *clientSession {
	return &clientSession{
		id:     uuid.NewString(),
		conn:   conn,
		sendCh: make(chan protocol.Envelope, 64),
	}
}

// send queues an envelope for this connection, blocking until there is room
// or the context ends. Hub broadcasts bypass this and drop instead.
func (s *clientSession) send(ctx context.Context, env protocol.Envelope) error {
	select {
	case s.sendCh <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeLoop drains the outbound queue onto the connection and keeps it alive
// with periodic pings. It returns on the first write failure.
func (s *clientSession) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-s.sendCh:
			if !ok {
				return
			}
			if err := s.conn.WriteEnvelope(ctx, env); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.Ping(); err != nil {
				return
			}
		}
	}
}

// bind fixes the session's display name and room after a successful join.
func (s *clientSession) bind(name, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.roomID = roomID
}

// clearRoom detaches the session from its room, keeping the display name.
func (s *clientSession) clearRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = ""
}

// snapshot returns the current (name, room) binding.
func (s *clientSession) snapshot() (name, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name, s.roomID
}

// displayName returns the bound name, or fallback before the first join.
func (s *clientSession) displayName(fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.name != "" {
		return s.name
	}
	return fallback
}

func (s *clientSession) setUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

func (s *clientSession) getUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *clientSession) close() {
	s.closeOnce.Do(func() {
		close(s.sendCh)
	})
}
