package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// The room is derived from the song; roomId in the body is accepted for
// compatibility and ignored.
type voteRequest struct {
	UserID    string `json:"userId"`
	VoteValue int    `json:"voteValue"`
	RoomID    string `json:"roomId"`
}

func (h *Handler) castVote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := requireActor(c, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.engine.CastVote(c.Request.Context(), c.Param("songId"), userID, req.VoteValue)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) removeVote(c *gin.Context) {
	var req voteRequest
	if err := bind(c, &req); err != nil {
		writeError(c, err)
		return
	}
	userID, err := requireActor(c, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.engine.RemoveVote(c.Request.Context(), c.Param("songId"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) voteAggregate(c *gin.Context) {
	res, err := h.engine.VoteAggregate(c.Request.Context(), c.Param("songId"), actor(c, ""))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
