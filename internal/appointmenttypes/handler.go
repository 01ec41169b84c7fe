package appointmenttypes

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

// Handler handles appointment type HTTP endpoints. All operations run inside
// a tenancy transaction.
type Handler struct {
	pool   *pgxpool.Pool
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an appointment types handler.
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

// TypeRequest is the body for create and update.
type TypeRequest struct {
	Name        string `json:"name" binding:"required"`
	DurationMin int    `json:"duration_min" binding:"required,min=5,max=480"`
	PriceCents  int    `json:"price_cents" binding:"min=0"`
}

// List handles GET /api/appointment-types. Staff stage. Pass
// include_deleted=true to see archived offerings; omission means active only.
func (h *Handler) List(c *gin.Context) {
	tenantID, _ := middleware.TenantIDFrom(c)
	includeDeleted := c.Query("include_deleted") == "true"

	var list []*models.AppointmentType
	err := h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		list, err = h.repo.WithTx(tx).List(c.Request.Context(), tenantID, includeDeleted)
		return err
	})
	if err != nil {
		h.logger.Error("list appointment types failed", zap.Error(err))
		response.Internal(c, "failed to load appointment types")
		return
	}
	response.OK(c, list)
}

// Get handles GET /api/appointment-types/:id. Staff stage.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid appointment type id")
		return
	}
	includeDeleted := c.Query("include_deleted") == "true"

	var t *models.AppointmentType
	err = h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		t, err = h.repo.WithTx(tx).GetByID(c.Request.Context(), id, includeDeleted)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to load appointment type")
		return
	}
	if t == nil {
		response.NotFound(c, "appointment type not found")
		return
	}
	response.OK(c, t)
}

// Create handles POST /api/appointment-types. Admin stage.
func (h *Handler) Create(c *gin.Context) {
	var body TypeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name and duration_min (5-480) required")
		return
	}
	tenantID, _ := middleware.TenantIDFrom(c)

	t := &models.AppointmentType{
		OrganizationID: tenantID,
		Name:           body.Name,
		DurationMin:    body.DurationMin,
		PriceCents:     body.PriceCents,
	}
	err := h.inTenant(c, func(tx pgx.Tx) error {
		return h.repo.WithTx(tx).Create(c.Request.Context(), t)
	})
	if err != nil {
		h.logger.Error("create appointment type failed", zap.Error(err))
		response.Internal(c, "failed to create appointment type")
		return
	}
	response.Created(c, t)
}

// Update handles PUT /api/appointment-types/:id. Admin stage.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid appointment type id")
		return
	}
	var body TypeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name and duration_min (5-480) required")
		return
	}
	tenantID, _ := middleware.TenantIDFrom(c)

	t := &models.AppointmentType{
		ID:             id,
		OrganizationID: tenantID,
		Name:           body.Name,
		DurationMin:    body.DurationMin,
		PriceCents:     body.PriceCents,
	}
	var updated bool
	err = h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		updated, err = h.repo.WithTx(tx).Update(c.Request.Context(), t)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to update appointment type")
		return
	}
	if !updated {
		response.NotFound(c, "appointment type not found")
		return
	}
	response.OK(c, t)
}

// Archive handles DELETE /api/appointment-types/:id. Admin stage. Soft
// delete; the retention job purges it later.
func (h *Handler) Archive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid appointment type id")
		return
	}

	var archived bool
	err = h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		archived, err = h.repo.WithTx(tx).Archive(c.Request.Context(), id)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to archive appointment type")
		return
	}
	if !archived {
		response.NotFound(c, "appointment type not found")
		return
	}
	response.OK(c, gin.H{"status": "archived"})
}

// Restore handles POST /api/appointment-types/:id/restore. Admin stage.
func (h *Handler) Restore(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid appointment type id")
		return
	}

	var restored bool
	err = h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		restored, err = h.repo.WithTx(tx).Restore(c.Request.Context(), id)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to restore appointment type")
		return
	}
	if !restored {
		response.NotFound(c, "appointment type is not archived")
		return
	}
	response.OK(c, gin.H{"status": "active"})
}
