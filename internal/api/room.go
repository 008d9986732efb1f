package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/collab-room-system/internal/room"
	"github.com/collab-room-system/pkg/models"
)

type createRoomRequest struct {
	Code   string `json:"code"`
	Name   string `json:"name" binding:"required,max=255"`
	HostID string `json:"hostId"`
}

func (h *Handler) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hostID, err := requireActor(c, req.HostID)
	if err != nil {
		writeError(c, err)
		return
	}

	created, err := h.engine.CreateRoom(c.Request.Context(), req.Code, req.Name, hostID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) getRoom(c *gin.Context) {
	r, err := h.engine.GetRoom(c.Request.Context(), c.Param("id"), actor(c, ""))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) getRoomByCode(c *gin.Context) {
	r, err := h.engine.GetRoomByCode(c.Request.Context(), c.Param("code"), actor(c, ""))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type updateRoomRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1,max=255"`
	IsActive *bool   `json:"isActive"`
}

func (h *Handler) updateRoom(c *gin.Context) {
	var req updateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.engine.UpdateRoom(c.Request.Context(), c.Param("id"), room.Patch{
		Name:     req.Name,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) deleteRoom(c *gin.Context) {
	id, err := h.engine.DeleteRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

type membershipRequest struct {
	UserID  string `json:"userId"`
	IsGuest bool   `json:"isGuest"`
}

func (h *Handler) joinRoom(c *gin.Context) {
	var req membershipRequest
	if err := bind(c, &req); err != nil {
		writeError(c, err)
		return
	}
	userID, err := requireActor(c, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	r, err := h.engine.JoinRoom(c.Request.Context(), c.Param("id"), userID, req.IsGuest)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) leaveRoom(c *gin.Context) {
	var req membershipRequest
	if err := bind(c, &req); err != nil {
		writeError(c, err)
		return
	}
	userID, err := requireActor(c, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	r, err := h.engine.LeaveRoom(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type addSongRequest struct {
	SongData models.Track `json:"songData"`
	UserID   string       `json:"userId"`
}

func (h *Handler) addSong(c *gin.Context) {
	var req addSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := requireActor(c, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	r, err := h.engine.AddSong(c.Request.Context(), c.Param("id"), req.SongData, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) removeSong(c *gin.Context) {
	var req membershipRequest
	if err := bind(c, &req); err != nil {
		writeError(c, err)
		return
	}
	userID, err := requireActor(c, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	r, err := h.engine.RemoveSong(c.Request.Context(), c.Param("id"), c.Param("songId"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
