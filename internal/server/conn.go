package server

import (
	"context"
	"net"
	"time"

	"github.com/fenggwsx/StudyChat/internal/config"
	"github.com/fenggwsx/StudyChat/internal/protocol"
)

// envelopeConn abstracts one client connection's framing so the session
// gateway works identically over the TCP protocol and websockets.
type envelopeConn interface {
	ReadEnvelope(ctx context.Context) (protocol.Envelope, error)
	WriteEnvelope(ctx context.Context, env protocol.Envelope) error
	Ping() error
	RemoteAddr() string
	Close() error
}

// tcpConn frames envelopes with the length-prefixed JSON codec.
type tcpConn struct {
	conn         net.Conn
	encoder      *protocol.Encoder
	decoder      *protocol.Decoder
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func newTCPConn(conn net.Conn, cfg config.ServerConfig) *tcpConn {
	return &tcpConn{
		conn:         conn,
		encoder:      protocol.NewEncoder(conn),
		decoder:      protocol.NewDecoder(conn, cfg.MaxFrameBytes),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (c *tcpConn) ReadEnvelope(ctx context.Context) (protocol.Envelope, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return protocol.Envelope{}, err
		}
	}
	return c.decoder.Decode(ctx)
}

func (c *tcpConn) WriteEnvelope(ctx context.Context, env protocol.Envelope) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.encoder.Encode(ctx, env)
}

// Ping is a no-op; liveness on raw TCP comes from read deadlines.
func (c *tcpConn) Ping() error { return nil }

func (c *tcpConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}
