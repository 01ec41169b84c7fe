package users

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studiobook/backend/internal/middleware"
	"github.com/studiobook/backend/pkg/response"
)

// Handler handles profile HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a profile handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// UpdateProfileRequest is the body for PATCH /api/me.
type UpdateProfileRequest struct {
	FullName string `json:"full_name" binding:"required"`
}

// GetProfile handles GET /api/me. Requires the authenticated stage.
func (h *Handler) GetProfile(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	u, err := h.repo.GetByExternalID(c.Request.Context(), sess.UserID)
	if err != nil {
		response.Internal(c, "failed to load profile")
		return
	}
	if u == nil {
		// Signed in at the provider but not yet synced locally.
		response.NotFound(c, "profile not found")
		return
	}
	response.OK(c, u)
}

// UpdateProfile handles PATCH /api/me.
func (h *Handler) UpdateProfile(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	var body UpdateProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "full_name required")
		return
	}
	body.FullName = strings.TrimSpace(body.FullName)
	if len(body.FullName) < 1 || len(body.FullName) > 255 {
		response.BadRequest(c, "full_name must be 1–255 characters")
		return
	}
	u, err := h.repo.UpdateFullName(c.Request.Context(), sess.UserID, body.FullName)
	if err != nil {
		response.Internal(c, "failed to update profile")
		return
	}
	if u == nil {
		response.NotFound(c, "profile not found")
		return
	}
	response.OK(c, u)
}
