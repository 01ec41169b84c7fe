package appointments

import (
	"errors"
	"time"

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

// Handler handles appointment HTTP endpoints.
type Handler struct {
	pool   *pgxpool.Pool
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an appointments handler.
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

// CreateRequest is the body for POST /api/appointments.
type CreateRequest struct {
	AppointmentTypeID uuid.UUID  `json:"appointment_type_id" binding:"required"`
	InstructorID      uuid.UUID  `json:"instructor_id" binding:"required"`
	LocationID        *uuid.UUID `json:"location_id"`
	StartsAt          time.Time  `json:"starts_at" binding:"required"`
	EndsAt            time.Time  `json:"ends_at" binding:"required"`
}

// UpdateRequest is the body for PUT /api/appointments/:id. Version is the
// version the client last read; a mismatch means someone else edited first.
type UpdateRequest struct {
	CreateRequest
	Status  models.AppointmentStatus `json:"status" binding:"required,oneof=scheduled cancelled completed"`
	Version int                      `json:"version" binding:"required,min=1"`
}

// List handles GET /api/appointments. Staff stage. Optional instructor_id
// filter.
func (h *Handler) List(c *gin.Context) {
	tenantID, _ := middleware.TenantIDFrom(c)

	var instructorID *uuid.UUID
	if raw := c.Query("instructor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid instructor_id")
			return
		}
		instructorID = &id
	}

	var list []*models.Appointment
	err := h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		list, err = h.repo.WithTx(tx).ListByOrganization(c.Request.Context(), tenantID, instructorID)
		return err
	})
	if err != nil {
		h.logger.Error("list appointments failed", zap.Error(err))
		response.Internal(c, "failed to load appointments")
		return
	}
	response.OK(c, list)
}

// Get handles GET /api/appointments/:id. Staff stage.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid appointment id")
		return
	}

	var a *models.Appointment
	err = h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		a, err = h.repo.WithTx(tx).GetByID(c.Request.Context(), id)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to load appointment")
		return
	}
	if a == nil {
		response.NotFound(c, "appointment not found")
		return
	}
	response.OK(c, a)
}

// Create handles POST /api/appointments. Staff stage.
func (h *Handler) Create(c *gin.Context) {
	var body CreateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "appointment_type_id, instructor_id, starts_at, ends_at required")
		return
	}
	if !body.EndsAt.After(body.StartsAt) {
		response.BadRequest(c, "ends_at must be after starts_at")
		return
	}
	tenantID, _ := middleware.TenantIDFrom(c)

	a := &models.Appointment{
		OrganizationID:    tenantID,
		AppointmentTypeID: body.AppointmentTypeID,
		InstructorID:      body.InstructorID,
		LocationID:        body.LocationID,
		StartsAt:          body.StartsAt,
		EndsAt:            body.EndsAt,
	}
	err := h.inTenant(c, func(tx pgx.Tx) error {
		return h.repo.WithTx(tx).Create(c.Request.Context(), a)
	})
	if err != nil {
		h.logger.Error("create appointment failed", zap.Error(err))
		response.Internal(c, "failed to create appointment")
		return
	}
	response.Created(c, a)
}

// Update handles PUT /api/appointments/:id. Staff stage. Optimistic lock: the
// caller echoes the version it read; a stale version is a 409 carrying the
// current row so the client can rebase.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid appointment id")
		return
	}
	var body UpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid appointment payload")
		return
	}
	if !body.EndsAt.After(body.StartsAt) {
		response.BadRequest(c, "ends_at must be after starts_at")
		return
	}
	tenantID, _ := middleware.TenantIDFrom(c)

	a := &models.Appointment{
		ID:                id,
		OrganizationID:    tenantID,
		AppointmentTypeID: body.AppointmentTypeID,
		InstructorID:      body.InstructorID,
		LocationID:        body.LocationID,
		StartsAt:          body.StartsAt,
		EndsAt:            body.EndsAt,
		Status:            body.Status,
		Version:           body.Version,
	}
	err = h.inTenant(c, func(tx pgx.Tx) error {
		return h.repo.WithTx(tx).Update(c.Request.Context(), a)
	})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.NotFound(c, "appointment not found")
	case errors.Is(err, ErrVersionConflict):
		response.Conflict(c, "appointment was modified concurrently; reload and retry")
	case err != nil:
		response.Internal(c, "failed to update appointment")
	default:
		response.OK(c, a)
	}
}

// Cancel handles POST /api/appointments/:id/cancel. Staff stage.
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid appointment id")
		return
	}

	var cancelled bool
	err = h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		cancelled, err = h.repo.WithTx(tx).Cancel(c.Request.Context(), id)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to cancel appointment")
		return
	}
	if !cancelled {
		response.Conflict(c, "appointment is not in scheduled status")
		return
	}
	response.OK(c, gin.H{"status": "cancelled"})
}
