package memberships

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

// assignableRoles are the fine-grained roles admins may hand out in-app.
// super_admin only ever arrives via identity sync.
var assignableRoles = map[string]struct{}{
	models.RoleAdmin:      {},
	models.RoleInstructor: {},
	models.RoleStaff:      {},
	models.RoleStudent:    {},
	models.RoleGuardian:   {},
}

// Handler handles membership HTTP endpoints. Every operation runs inside a
// tenancy transaction so the row-level policies back the application checks.
type Handler struct {
	pool          *pgxpool.Pool
	repo          *Repository
	retentionDays int
	logger        *zap.Logger
}

// NewHandler creates a memberships handler.
func NewHandler(pool *pgxpool.Pool, repo *Repository, retentionDays int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pool: pool, repo: repo, retentionDays: retentionDays, logger: logger}
}

func (h *Handler) inTenant(c *gin.Context, fn func(tx pgx.Tx) error) error {
	sess := middleware.SessionFrom(c)
	tenantID, _ := middleware.TenantIDFrom(c)
	return tenancy.WithTenant(c.Request.Context(), h.pool, sess.UserID, tenantID, fn)
}

// List handles GET /api/memberships. Staff stage.
func (h *Handler) List(c *gin.Context) {
	tenantID, _ := middleware.TenantIDFrom(c)
	includeRemoved := c.Query("include_removed") == "true"

	var list []*models.Membership
	err := h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		list, err = h.repo.WithTx(tx).ListByOrganization(c.Request.Context(), tenantID, includeRemoved)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to load memberships")
		return
	}
	response.OK(c, list)
}

// RemovedMembership is a removed membership annotated with its purge urgency
// for client dismissal policy.
type RemovedMembership struct {
	*models.Membership
	DaysRemaining int     `json:"days_remaining"`
	Urgency       Urgency `json:"urgency"`
}

// ListRemoved handles GET /api/memberships/removed. Admin stage.
func (h *Handler) ListRemoved(c *gin.Context) {
	tenantID, _ := middleware.TenantIDFrom(c)

	var list []*models.Membership
	err := h.inTenant(c, func(tx pgx.Tx) error {
		var err error
		list, err = h.repo.WithTx(tx).ListByOrganization(c.Request.Context(), tenantID, true)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to load memberships")
		return
	}

	now := time.Now()
	out := make([]RemovedMembership, 0)
	for _, m := range list {
		if m.Status != models.MembershipStatusRemoved || m.RemovedAt == nil {
			continue
		}
		remaining := h.retentionDays - int(now.Sub(*m.RemovedAt).Hours()/24)
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, RemovedMembership{
			Membership:    m,
			DaysRemaining: remaining,
			Urgency:       ClassifyUrgency(*m.RemovedAt, now, h.retentionDays),
		})
	}
	response.OK(c, out)
}

// Remove handles POST /api/memberships/:id/remove. Admin stage. Soft delete:
// the membership enters the retention grace window.
func (h *Handler) Remove(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid membership id")
		return
	}
	sess := middleware.SessionFrom(c)

	err = h.inTenant(c, func(tx pgx.Tx) error {
		l := NewLifecycle(h.repo.WithTx(tx), h.retentionDays, h.logger)
		return l.Remove(c.Request.Context(), id, sess.UserID)
	})
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "membership not found")
	case errors.Is(err, ErrAlreadyRemoved):
		response.Conflict(c, "membership is already removed")
	case err != nil:
		response.Internal(c, "failed to remove membership")
	default:
		response.OK(c, gin.H{"status": "removed"})
	}
}

// Restore handles POST /api/memberships/:id/restore. Admin stage.
func (h *Handler) Restore(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid membership id")
		return
	}

	err = h.inTenant(c, func(tx pgx.Tx) error {
		l := NewLifecycle(h.repo.WithTx(tx), h.retentionDays, h.logger)
		return l.Restore(c.Request.Context(), id)
	})
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "membership not found")
	case errors.Is(err, ErrNotRemoved):
		response.Conflict(c, "membership is not removed")
	case errors.Is(err, ErrExpired):
		response.Gone(c, "retention window expired; membership can no longer be restored")
	case err != nil:
		response.Internal(c, "failed to restore membership")
	default:
		response.OK(c, gin.H{"status": "active"})
	}
}

// Delete handles DELETE /api/memberships/:id. Admin stage. Permanent:
// dependents cascade, booked appointments block.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid membership id")
		return
	}

	err = h.inTenant(c, func(tx pgx.Tx) error {
		l := NewLifecycle(h.repo.WithTx(tx), h.retentionDays, h.logger)
		return l.PermanentlyDelete(c.Request.Context(), id)
	})
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "membership not found")
	case errors.Is(err, ErrNotRemoved):
		response.Conflict(c, "membership must be removed before permanent deletion")
	case errors.Is(err, ErrRestrictedDelete):
		response.Conflict(c, "membership has booked appointments; reassign them first")
	case err != nil:
		response.Internal(c, "failed to delete membership")
	default:
		response.NoContent(c)
	}
}

// AssignRoleRequest is the body for PATCH /api/memberships/:id/role.
type AssignRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// AssignRole handles PATCH /api/memberships/:id/role. Admin stage. This is
// how the fine-grained roles (instructor, student, guardian) are set;
// identity sync only ever produces super_admin and staff.
func (h *Handler) AssignRole(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid membership id")
		return
	}
	var body AssignRoleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "role required")
		return
	}
	if _, ok := assignableRoles[body.Role]; !ok {
		response.BadRequest(c, "role is not assignable")
		return
	}

	var updated bool
	err = h.inTenant(c, func(tx pgx.Tx) error {
		repo := h.repo.WithTx(tx)
		m, err := repo.GetByID(c.Request.Context(), id, false)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNotFound
		}
		updated, err = repo.UpdateRole(c.Request.Context(), m.UserID, m.OrganizationID, body.Role)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound) || (err == nil && !updated):
		response.NotFound(c, "membership not found")
	case err != nil:
		response.Internal(c, "failed to update role")
	default:
		response.OK(c, gin.H{"role": body.Role})
	}
}
