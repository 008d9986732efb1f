package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type enqueueRequest struct {
	SongID string `json:"songId" binding:"required"`
	UserID string `json:"userId"`
}

func (h *Handler) enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := requireActor(c, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	entry, err := h.engine.Enqueue(c.Request.Context(), c.Param("roomId"), req.SongID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) listQueue(c *gin.Context) {
	entries, err := h.engine.ListQueue(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

type requesterRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) dequeue(c *gin.Context) {
	var req requesterRequest
	if err := bind(c, &req); err != nil {
		writeError(c, err)
		return
	}
	userID, err := requireActor(c, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.engine.Dequeue(c.Request.Context(), c.Param("roomId"), c.Param("queueId"), userID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type moveRequest struct {
	NewPosition int    `json:"newPosition" binding:"required"`
	UserID      string `json:"userId"`
}

func (h *Handler) moveEntry(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := requireActor(c, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	err = h.engine.Move(c.Request.Context(), c.Param("roomId"), c.Param("queueId"), 0, req.NewPosition, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) clearQueue(c *gin.Context) {
	var req requesterRequest
	if err := bind(c, &req); err != nil {
		writeError(c, err)
		return
	}
	userID, err := requireActor(c, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.engine.ClearQueue(c.Request.Context(), c.Param("roomId"), userID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
