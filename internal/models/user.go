package models

import (
	"time"

	"github.com/google/uuid"
)

// UserStatus is the lifecycle status of a user.
type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusDeleted UserStatus = "deleted"
)

// User represents a person. The identity provider is the system of record;
// rows are created and updated by identity-sync events and soft-deleted via
// the status flag.
type User struct {
	ID         uuid.UUID  `json:"id"`
	ExternalID string     `json:"external_id"`
	Email      string     `json:"email"`
	FullName   string     `json:"full_name"`
	Status     UserStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
