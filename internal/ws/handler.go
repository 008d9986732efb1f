package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/pkg/models"
)

// Engine is the part of the room engine reachable from the socket.
type Engine interface {
	GetRoom(ctx context.Context, roomID, viewerID string) (*models.Room, error)
	Enqueue(ctx context.Context, roomID, songID, userID string) (*models.QueueEntry, error)
	Dequeue(ctx context.Context, roomID, entryID, requesterID string) error
	Move(ctx context.Context, roomID, entryID string, from, to int, requesterID string) error
	ClearQueue(ctx context.Context, roomID, requesterID string) error
	CastVote(ctx context.Context, songID, userID string, value int) (models.VoteResult, error)
	RemoveVote(ctx context.Context, songID, userID string) (models.VoteResult, error)
	Playback(ctx context.Context, roomID, userID string, cmd models.PlaybackCommand) error
	PlaybackState(ctx context.Context, roomID, userID string, state models.PlaybackState) error
}

type Handler struct {
	hub      *Hub
	engine   Engine
	validate *validator.Validate
	upgrader websocket.Upgrader
	buffer   int
}

// NewHandler accepts any origin when allowedOrigins is empty or contains "*".
func NewHandler(hub *Hub, engine Engine, allowedOrigins []string) *Handler {
	h := &Handler{
		hub:      hub,
		engine:   engine,
		validate: validator.New(),
		buffer:   sendBuffer,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		// same host is always fine
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

func (h *Handler) logger(c *Conn) *zerolog.Logger {
	l := zlog.With().
		Str("conn_id", c.ID()).
		Str("user_id", c.UserID()).
		Str("room_id", h.hub.RoomOf(c)).
		Logger()
	return &l
}

// HandleWebSocket upgrades the request and runs the read loop until the
// client goes away. A roomId path parameter subscribes the connection
// straight away.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zlog.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	conn := newConn(uuid.NewString(), ws, h.buffer)
	conn.authUserID = c.GetString("user_id")
	go conn.writePump()

	defer func() {
		h.hub.Remove(conn)
		conn.close()
		h.logger(conn).Debug().Msg("connection closed")
	}()

	h.logger(conn).Debug().Msg("connection opened")

	ctx := c.Request.Context()
	if roomID := c.Param("roomId"); roomID != "" {
		h.dispatch(ctx, conn, map[string]any{
			"type":   "joinRoom",
			"roomId": roomID,
		})
	}

	h.readLoop(ctx, conn)
}

func (h *Handler) readLoop(ctx context.Context, c *Conn) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger(c).Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var raw map[string]any
		if err := json.Unmarshal(message, &raw); err != nil {
			h.reply(c, "", apperr.InvalidArgument("malformed frame"))
			continue
		}
		h.dispatch(ctx, c, raw)
	}
}
