package models

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentType is a bookable lesson/appointment offering, scoped to one
// organization. Soft-deleted via DeletedAt (archive) and purged by the daily
// cleanup job after the retention window.
type AppointmentType struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Name           string     `json:"name"`
	DurationMin    int        `json:"duration_min"`
	PriceCents     int        `json:"price_cents"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Location is a physical or virtual teaching location, scoped to one
// organization. Same archive/purge lifecycle as AppointmentType.
type Location struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Name           string     `json:"name"`
	Address        string     `json:"address"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AppointmentStatus is the lifecycle status of an appointment.
type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

// Appointment is a booked lesson. InstructorID references a membership with a
// restrict-style foreign key, so an instructor with booked appointments blocks
// the membership purge until the appointments are reassigned or resolved.
// Version supports optimistic locking on updates.
type Appointment struct {
	ID                uuid.UUID         `json:"id"`
	OrganizationID    uuid.UUID         `json:"organization_id"`
	AppointmentTypeID uuid.UUID         `json:"appointment_type_id"`
	InstructorID      uuid.UUID         `json:"instructor_id"`
	LocationID        *uuid.UUID        `json:"location_id,omitempty"`
	StartsAt          time.Time         `json:"starts_at"`
	EndsAt            time.Time         `json:"ends_at"`
	Status            AppointmentStatus `json:"status"`
	Version           int               `json:"version"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
