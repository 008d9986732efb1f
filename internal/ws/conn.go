package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Conn is one realtime client. The hub only ever touches send; the socket
// is owned by the read and write pumps.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	userID     string
	authUserID string

	closeOnce sync.Once
}

func newConn(id string, ws *websocket.Conn, buffer int) *Conn {
	return &Conn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, buffer),
	}
}

func (c *Conn) ID() string {
	return c.id
}

// UserID is the authenticated user if any, otherwise the last id the
// client announced.
func (c *Conn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authUserID != "" {
		return c.authUserID
	}
	return c.userID
}

// resolveUser picks the acting user for a command. An authenticated
// connection cannot act as someone else.
func (c *Conn) resolveUser(claimed string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authUserID != "" {
		return c.authUserID
	}
	if claimed != "" {
		c.userID = claimed
	}
	return c.userID
}

// enqueue hands a frame to the write pump without blocking. A full buffer
// drops the frame.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		zlog.Warn().Str("conn_id", c.id).Str("user_id", c.UserID()).Msg("send buffer full, dropping frame")
		return false
	}
}

// close stops the write pump. The hub must have forgotten the connection
// before this is called.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				zlog.Debug().Err(err).Str("conn_id", c.id).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
