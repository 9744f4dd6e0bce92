package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fenggwsx/StudyChat/internal/auth"
	"github.com/fenggwsx/StudyChat/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Accepts any origin; tighten this behind a trusted proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// routes builds the HTTP surface: identity token issuance and the websocket
// upgrade endpoint.
func (a *App) routes() *gin.Engine {
	r := gin.Default()
	r.GET("/identity", a.handleIdentity)
	r.GET("/ws", a.serveWebSocket)
	return r
}

// handleIdentity mints an identity token for a display name. The stable user
// ID is generated server-side; the caller keeps the token for later joins.
func (a *App) handleIdentity(c *gin.Context) {
	name := strings.TrimSpace(c.Query("user"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user query parameter required"})
		return
	}

	userID := uuid.NewString()
	token, err := auth.NewToken(a.cfg.JWT, userID, name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": userID, "name": name})
}

// serveWebSocket upgrades the HTTP connection and runs the same session
// gateway the TCP listener uses.
func (a *App) serveWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	a.handleConn(c.Request.Context(), newWSConn(conn, a.cfg.MaxFrameBytes))
}

// wsConn adapts a gorilla websocket connection to the envelope transport.
// One JSON envelope travels per text message; liveness uses ping/pong
// control frames with read deadlines.
type wsConn struct {
	conn *websocket.Conn
}

func newWSConn(conn *websocket.Conn, maxFrameBytes int) *wsConn {
	if maxFrameBytes > 0 {
		conn.SetReadLimit(int64(maxFrameBytes))
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadEnvelope(ctx context.Context) (protocol.Envelope, error) {
	var env protocol.Envelope
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, err
	}
	return env, nil
}

func (c *wsConn) WriteEnvelope(ctx context.Context, env protocol.Envelope) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(env)
}

func (c *wsConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
