package client

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/StudyChat/internal/config"
	"github.com/fenggwsx/StudyChat/internal/protocol"
)

// Session manages the client-side socket to the StudyChat server.
type Session struct {
	cfg       config.ClientConfig
	conn      net.Conn
	encoder   *protocol.Encoder
	decoder   *protocol.Decoder
	cancelFn  context.CancelFunc
	envelopes chan protocol.Envelope
	closed    chan struct{}
}

// NewSession initializes a session with configuration.
func NewSession(cfg config.ClientConfig) *Session {
	return &Session{
		cfg:       cfg,
		envelopes: make(chan protocol.Envelope, 64),
		closed:    make(chan struct{}),
	}
}

// Connect dials the server and starts the read loop.
func (s *Session) Connect(ctx context.Context) error {
	if s.cfg.ServerAddr == "" {
		return net.ErrClosed
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.ServerAddr)
	if err != nil {
		return err
	}
	s.conn = conn
	s.encoder = protocol.NewEncoder(conn)
	s.decoder = protocol.NewDecoder(conn, 0)
	// The read loop outlives the dial context, which the caller may cancel
	// as soon as Connect returns.
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancelFn = cancel
	go s.readLoop(loopCtx)
	return nil
}

// Close terminates the session.
func (s *Session) Close() error {
	if s.cancelFn != nil {
		s.cancelFn()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Send dispatches an envelope to the server.
func (s *Session) Send(ctx context.Context, env protocol.Envelope) error {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	env.Timestamp = time.Now()
	return s.encoder.Encode(ctx, env)
}

// Envelopes exposes server events to the UI loop.
func (s *Session) Envelopes() <-chan protocol.Envelope {
	return s.envelopes
}

// Closed is closed once the read loop ends.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

func (s *Session) readLoop(ctx context.Context) {
	defer close(s.closed)
	for {
		if ctx.Err() != nil {
			return
		}
		env, err := s.decoder.Decode(ctx)
		if err != nil {
			return
		}
		select {
		case s.envelopes <- env:
		case <-ctx.Done():
			return
		}
	}
}
