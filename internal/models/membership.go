package models

import (
	"time"

	"github.com/google/uuid"
)

// Membership roles, least to most privileged within a tenant.
const (
	RoleGuardian   = "guardian"
	RoleStudent    = "student"
	RoleStaff      = "staff"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// MembershipStatus is the lifecycle status of a membership.
type MembershipStatus string

const (
	MembershipStatusActive  MembershipStatus = "active"
	MembershipStatusRemoved MembershipStatus = "removed"
)

// Membership binds a user to an organization with a role. At most one active
// membership exists per (user, organization) pair. Removal is a soft delete:
// dependents (qualifications, availability) are retained so a restore within
// the grace window is lossless.
type Membership struct {
	ID             uuid.UUID        `json:"id"`
	UserID         uuid.UUID        `json:"user_id"`
	OrganizationID uuid.UUID        `json:"organization_id"`
	Role           string           `json:"role"`
	Status         MembershipStatus `json:"status"`
	RemovedAt      *time.Time       `json:"removed_at,omitempty"`
	RemovedBy      *string          `json:"removed_by,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
