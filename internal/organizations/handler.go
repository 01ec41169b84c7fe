package organizations

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/studiobook/backend/internal/middleware"
	"github.com/studiobook/backend/pkg/response"
)

// Handler handles organization HTTP endpoints. Organizations are mastered in
// the identity provider; this surface is read-only except for slug checks
// used by onboarding.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an organizations handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// GetCurrent handles GET /api/organization. Runs behind the org-scoped stage,
// so the tenant is already resolved into the request context.
func (h *Handler) GetCurrent(c *gin.Context) {
	org := middleware.TenantFrom(c)
	if org == nil {
		response.Forbidden(c, "no organization selected")
		return
	}
	response.OK(c, org)
}

// CheckSlugRequest is the body for POST /api/organization/slug-check.
type CheckSlugRequest struct {
	Slug string `json:"slug" binding:"required"`
}

// CheckSlugResponse reports whether a candidate slug can be used and why not.
type CheckSlugResponse struct {
	Slug      string `json:"slug"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// CheckSlug handles POST /api/organization/slug-check. Validates format and
// reserved words before hitting the database for uniqueness.
func (h *Handler) CheckSlug(c *gin.Context) {
	var body CheckSlugRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "slug required")
		return
	}
	slug := strings.ToLower(strings.TrimSpace(body.Slug))

	if v := ValidateSlugFormat(slug); v != SlugValid {
		response.OK(c, CheckSlugResponse{Slug: slug, Available: false, Reason: string(v)})
		return
	}
	taken, err := h.repo.SlugTaken(c.Request.Context(), slug)
	if err != nil {
		h.logger.Error("slug availability check failed", zap.Error(err), zap.String("slug", slug))
		response.Internal(c, "failed to check slug")
		return
	}
	if taken {
		response.OK(c, CheckSlugResponse{Slug: slug, Available: false, Reason: "taken"})
		return
	}
	response.OK(c, CheckSlugResponse{Slug: slug, Available: true})
}

// SuggestSlugRequest is the body for POST /api/organization/slug-suggest.
type SuggestSlugRequest struct {
	Name string `json:"name" binding:"required"`
}

// SuggestSlug handles POST /api/organization/slug-suggest. Derives a slug
// candidate from a display name.
func (h *Handler) SuggestSlug(c *gin.Context) {
	var body SuggestSlugRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name required")
		return
	}
	slug := Slugify(body.Name)
	if slug == "" {
		response.BadRequest(c, "name has no usable characters")
		return
	}
	response.OK(c, CheckSlugResponse{Slug: slug, Available: true})
}
