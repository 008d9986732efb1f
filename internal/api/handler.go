// Package api exposes the room engine over HTTP.
package api

import (
	"context"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/internal/auth"
	"github.com/collab-room-system/internal/room"
	"github.com/collab-room-system/pkg/models"
)

type Engine interface {
	CreateRoom(ctx context.Context, code, name, hostID string) (*models.Room, error)
	JoinRoom(ctx context.Context, roomID, userID string, isGuest bool) (*models.Room, error)
	LeaveRoom(ctx context.Context, roomID, userID string) (*models.Room, error)
	GetRoom(ctx context.Context, roomID, viewerID string) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code, viewerID string) (*models.Room, error)
	UpdateRoom(ctx context.Context, roomID string, patch room.Patch) (*models.Room, error)
	DeleteRoom(ctx context.Context, roomID string) (string, error)
	AddSong(ctx context.Context, roomID string, track models.Track, userID string) (*models.Room, error)
	RemoveSong(ctx context.Context, roomID, songID, requesterID string) (*models.Room, error)

	Enqueue(ctx context.Context, roomID, songID, userID string) (*models.QueueEntry, error)
	Dequeue(ctx context.Context, roomID, entryID, requesterID string) error
	Move(ctx context.Context, roomID, entryID string, from, to int, requesterID string) error
	ClearQueue(ctx context.Context, roomID, requesterID string) error
	ListQueue(ctx context.Context, roomID string) ([]models.QueueEntry, error)

	CastVote(ctx context.Context, songID, userID string, value int) (models.VoteResult, error)
	RemoveVote(ctx context.Context, songID, userID string) (models.VoteResult, error)
	VoteAggregate(ctx context.Context, songID, userID string) (models.VoteResult, error)
}

type Users interface {
	CreateGuest(ctx context.Context, name string) (*models.User, error)
	Get(ctx context.Context, userID string) (*models.User, error)
}

type Catalog interface {
	Search(ctx context.Context, query string, limit int) ([]models.Track, error)
}

type Handler struct {
	engine  Engine
	users   Users
	catalog Catalog
}

// NewHandler wires the REST routes. catalog may be nil when no provider is
// configured; search then answers 503.
func NewHandler(engine Engine, users Users, catalog Catalog) *Handler {
	return &Handler{engine: engine, users: users, catalog: catalog}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rooms := r.Group("/room")
	{
		rooms.POST("", h.createRoom)
		rooms.GET("/code/:code", h.getRoomByCode)
		rooms.GET("/:id", h.getRoom)
		rooms.PATCH("/:id", h.updateRoom)
		rooms.DELETE("/:id", h.deleteRoom)
		rooms.POST("/:id/join", h.joinRoom)
		rooms.POST("/:id/leave", h.leaveRoom)
		rooms.POST("/:id/songs", h.addSong)
		rooms.DELETE("/:id/songs/:songId", h.removeSong)
	}

	queue := r.Group("/queue")
	{
		queue.GET("/:roomId", h.listQueue)
		queue.POST("/:roomId", h.enqueue)
		queue.DELETE("/:roomId", h.clearQueue)
		queue.DELETE("/:roomId/:queueId", h.dequeue)
		queue.POST("/:roomId/:queueId/move", h.moveEntry)
	}

	votes := r.Group("/vote")
	{
		votes.GET("/song/:songId", h.voteAggregate)
		votes.POST("/song/:songId", h.castVote)
		votes.DELETE("/song/:songId", h.removeVote)
	}

	users := r.Group("/users")
	{
		users.POST("/guest", h.createGuest)
		users.GET("/:id", h.getUser)
	}

	r.GET("/search/songs", h.searchSongs)
}

func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		zlog.Error().Err(err).Str("method", c.Request.Method).Str("path", c.FullPath()).Msg("request failed")
	} else {
		zlog.Debug().Err(err).Str("method", c.Request.Method).Str("path", c.FullPath()).Int("status", status).Msg("request rejected")
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

// bind decodes an optional JSON body. DELETE requests often carry none.
func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.InvalidArgument("invalid request body: %v", err)
	}
	return nil
}

// actor returns the authenticated user when there is one, otherwise the id
// the client supplied in the body or the userId query parameter.
func actor(c *gin.Context, claimed string) string {
	if userID := c.GetString(auth.ContextUserID); userID != "" {
		return userID
	}
	if claimed != "" {
		return claimed
	}
	return c.Query("userId")
}

func requireActor(c *gin.Context, claimed string) (string, error) {
	userID := actor(c, claimed)
	if userID == "" {
		return "", apperr.InvalidArgument("userId is required")
	}
	return userID, nil
}
