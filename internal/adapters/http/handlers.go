package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/nearby/internal/app/orch"
	"github.com/dkeye/nearby/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	orch *orch.Orchestrator
}

type UserRequest struct {
	Username   string `json:"username" binding:"required,max=36"`
	PostalCode string `json:"pincode" binding:"omitempty,numeric,max=12"`
	Gender     string `json:"gender" binding:"required,oneof=male female"`
}

// GET /api/rooms: list active rooms
func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

// GET /api/users/:id: read a directory profile
func (h *handlers) getUser(c *gin.Context) {
	p, err := h.orch.Directory.Get(c.Request.Context(), domain.UserID(c.Param("id")))
	switch {
	case errors.Is(err, domain.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("get user")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directory unavailable"})
	default:
		c.JSON(http.StatusOK, p)
	}
}

// PUT /api/users/:id: register or update a profile
func (h *handlers) putUser(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if len(id) > domain.MaxUserIDLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id too long"})
		return
	}
	p, err := domain.NewProfile(domain.UserID(id), req.Username, req.PostalCode, domain.Gender(req.Gender))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orch.Directory.Upsert(c.Request.Context(), *p); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("put user")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directory unavailable"})
		return
	}
	stored, err := h.orch.Directory.Get(c.Request.Context(), p.ID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directory unavailable"})
		return
	}
	c.JSON(http.StatusOK, stored)
}
