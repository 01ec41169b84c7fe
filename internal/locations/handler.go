package locations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/studiobook/backend/internal/middleware"
	"github.com/studiobook/backend/internal/models"
	"github.com/studiobook/backend/internal/tenancy"
	"github.com/studiobook/backend/pkg/response"
)

// Handler handles location HTTP endpoints.
type Handler struct {
	pool   *pgxpool.Pool
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a locations handler.
func NewHandler(pool *pgxpool.Pool, repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pool: pool, repo: repo, logger: logger}
}

func (h *Handler) inTenant(c *gin.Context, fn func(tx pgx.Tx) error) error {
	sess := middleware.SessionFrom(c)
	tenantID, _ := middleware.TenantIDFrom(c)
	return tenancy.WithTenant(c.Request.Context(), h.pool, sess.UserID, tenantID, fn)
}

// LocationRequest is the body for create and update.
type LocationRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}

// List handles GET /api/locations. Staff stage.
func (h *Handler) List(c *gin.Context) {
	tenantID, _ := middleware.TenantIDFrom(c)
	includeDeleted := c.Query("include_deleted") == "true"

	var list []*models.Location
	err := h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		list, err = h.repo.WithTx(tx).List(c.Request.Context(), tenantID, includeDeleted)
		return err
	})
	if err != nil {
		h.logger.Error("list locations failed", zap.Error(err))
		response.Internal(c, "failed to load locations")
		return
	}
	response.OK(c, list)
}

// Create handles POST /api/locations. Admin stage.
func (h *Handler) Create(c *gin.Context) {
	var body LocationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name required")
		return
	}
	tenantID, _ := middleware.TenantIDFrom(c)

	l := &models.Location{OrganizationID: tenantID, Name: body.Name, Address: body.Address}
	err := h.inTenant(c, func(tx pgx.Tx) error {
		return h.repo.WithTx(tx).Create(c.Request.Context(), l)
	})
	if err != nil {
		h.logger.Error("create location failed", zap.Error(err))
		response.Internal(c, "failed to create location")
		return
	}
	response.Created(c, l)
}

// Update handles PUT /api/locations/:id. Admin stage.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid location id")
		return
	}
	var body LocationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name required")
		return
	}
	tenantID, _ := middleware.TenantIDFrom(c)

	l := &models.Location{ID: id, OrganizationID: tenantID, Name: body.Name, Address: body.Address}
	var updated bool
	err = h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		updated, err = h.repo.WithTx(tx).Update(c.Request.Context(), l)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to update location")
		return
	}
	if !updated {
		response.NotFound(c, "location not found")
		return
	}
	response.OK(c, l)
}

// Archive handles DELETE /api/locations/:id. Admin stage.
func (h *Handler) Archive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid location id")
		return
	}

	var archived bool
	err = h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		archived, err = h.repo.WithTx(tx).Archive(c.Request.Context(), id)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to archive location")
		return
	}
	if !archived {
		response.NotFound(c, "location not found")
		return
	}
	response.OK(c, gin.H{"status": "archived"})
}

// Restore handles POST /api/locations/:id/restore. Admin stage.
func (h *Handler) Restore(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid location id")
		return
	}

	var restored bool
	err = h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		restored, err = h.repo.WithTx(tx).Restore(c.Request.Context(), id)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to restore location")
		return
	}
	if !restored {
		response.NotFound(c, "location is not archived")
		return
	}
	response.OK(c, gin.H{"status": "active"})
}
