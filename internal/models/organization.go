package models

import (
	"time"

	"github.com/google/uuid"
)

// OrgStatus is the lifecycle status of an organization.
type OrgStatus string

const (
	OrgStatusActive  OrgStatus = "active"
	OrgStatusDeleted OrgStatus = "deleted"
)

// Organization represents a tenant (a teaching business). All business data
// is scoped to exactly one organization. The slug is the public subdomain
// identifier and must be globally unique.
type Organization struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Status     OrgStatus `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
