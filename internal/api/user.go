package api

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/pkg/models"
)

type guestRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) createGuest(c *gin.Context) {
	var req guestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.users.CreateGuest(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) getUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) searchSongs(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusOK, gin.H{"items": []models.Track{}})
		return
	}
	if h.catalog == nil {
		writeError(c, apperr.Upstream(errors.New("track catalog is not configured"), "spotify"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	tracks, err := h.catalog.Search(c.Request.Context(), query, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": tracks})
}
