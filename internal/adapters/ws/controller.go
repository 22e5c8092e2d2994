// Package ws is the websocket edge: it upgrades connections, pumps frames,
// and translates inbound client signals into core operations.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dcha68893-afk/moodchat/internal/app"
	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Coord    *app.Coordinator
	Identity core.Identity

	ReadLimit  int64
	SendBuffer int
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSocket verifies the credential, upgrades, registers the connection
// (which flips presence), greets the client, and starts the pumps.
func (ctl *Controller) HandleSocket(ctx context.Context, c *gin.Context) {
	credential := c.GetString("client_token")
	userID, err := ctl.Identity.Verify(c.Request.Context(), credential)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("identity rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		sock.SetReadLimit(ctl.ReadLimit)
	}

	conn := &wsConn{
		conn: sock,
		send: make(chan core.Frame, ctl.sendBuffer()),
	}

	connID := ctl.Coord.Registry.Register(userID, conn)
	log.Info().Str("module", "ws").Str("user", string(userID)).Str("conn", string(connID)).Msg("new WS connection")

	ctl.sendPayload(conn, core.ConnectionEstablished{ConnectionID: connID, UserID: userID})

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, userID, connID, conn)
}

func (ctl *Controller) sendBuffer() int {
	if ctl.SendBuffer > 0 {
		return ctl.SendBuffer
	}
	return 32
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, userID domain.UserID, connID domain.ConnectionID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "ws").Str("conn", string(connID)).Msg("readPump closing")
		cancel()
		ctl.Coord.Registry.Unregister(connID)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "ws").Str("conn", string(connID)).Msg("readPump read error")
				return
			}
			ctl.Coord.Registry.Touch(connID)
			ctl.dispatch(ctx, userID, c, data)
		}
	}
}

func (ctl *Controller) sendPayload(c *wsConn, p core.Payload) {
	frame, err := core.Encode(p)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("kind", string(p.Type())).Msg("encode payload")
		return
	}
	_ = c.TrySend(frame)
}
