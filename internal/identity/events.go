// Package identity defines the identity-provider webhook event types and the
// mapping from provider roles to local membership roles.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event type strings as sent by the identity provider.
const (
	TypeUserCreated       = "user.created"
	TypeUserUpdated       = "user.updated"
	TypeUserDeleted       = "user.deleted"
	TypeOrgCreated        = "organization.created"
	TypeOrgUpdated        = "organization.updated"
	TypeOrgDeleted        = "organization.deleted"
	TypeMembershipCreated = "organizationMembership.created"
	TypeMembershipUpdated = "organizationMembership.updated"
	TypeMembershipDeleted = "organizationMembership.deleted"
)

// ErrUnhandledEventType marks event types the processor does not act on.
// Such events are completed as no-ops rather than failed, since the provider
// emits types we never subscribed to.
var ErrUnhandledEventType = errors.New("unhandled event type")

// Event is the tagged union of identity-provider change events. Each variant
// carries its typed payload; the processor matches exhaustively.
type Event interface {
	isEvent()
}

// UserPayload is the user object inside user.* events.
type UserPayload struct {
	ID       string `json:"id"`
	Email    string `json:"email_address"`
	FullName string `json:"full_name"`
}

// OrgPayload is the organization object inside organization.* events.
type OrgPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// MembershipPayload is the membership object inside organizationMembership.*
// events. Role is the provider's coarse role (org:admin / org:member).
type MembershipPayload struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"organization_id"`
	Role   string `json:"role"`
}

// UserUpserted covers user.created and user.updated.
type UserUpserted struct{ User UserPayload }

// UserDeleted covers user.deleted (soft delete locally).
type UserDeleted struct{ UserID string }

// OrgUpserted covers organization.created and organization.updated.
type OrgUpserted struct{ Org OrgPayload }

// OrgDeleted covers organization.deleted (soft delete locally).
type OrgDeleted struct{ OrgID string }

// MembershipCreated covers organizationMembership.created.
type MembershipCreated struct{ Membership MembershipPayload }

// MembershipRoleUpdated covers organizationMembership.updated.
type MembershipRoleUpdated struct{ Membership MembershipPayload }

// MembershipDeleted covers organizationMembership.deleted (soft delete
// locally; the removal enters the retention grace window).
type MembershipDeleted struct{ Membership MembershipPayload }

func (UserUpserted) isEvent()          {}
func (UserDeleted) isEvent()           {}
func (OrgUpserted) isEvent()           {}
func (OrgDeleted) isEvent()            {}
func (MembershipCreated) isEvent()     {}
func (MembershipRoleUpdated) isEvent() {}
func (MembershipDeleted) isEvent()     {}

// deleteRef is the minimal shape of deletion payloads.
type deleteRef struct {
	ID string `json:"id"`
}

// ParseEvent converts a provider event type plus raw data into a typed event.
// Unknown types return ErrUnhandledEventType; malformed payloads are fatal for
// the event.
func ParseEvent(eventType string, data json.RawMessage) (Event, error) {
	switch eventType {
	case TypeUserCreated, TypeUserUpdated:
		var p UserPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", eventType, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("parse %s: missing user id", eventType)
		}
		return UserUpserted{User: p}, nil
	case TypeUserDeleted:
		var p deleteRef
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", eventType, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("parse %s: missing user id", eventType)
		}
		return UserDeleted{UserID: p.ID}, nil
	case TypeOrgCreated, TypeOrgUpdated:
		var p OrgPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", eventType, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("parse %s: missing organization id", eventType)
		}
		return OrgUpserted{Org: p}, nil
	case TypeOrgDeleted:
		var p deleteRef
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", eventType, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("parse %s: missing organization id", eventType)
		}
		return OrgDeleted{OrgID: p.ID}, nil
	case TypeMembershipCreated, TypeMembershipUpdated, TypeMembershipDeleted:
		var p MembershipPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", eventType, err)
		}
		if p.UserID == "" || p.OrgID == "" {
			return nil, fmt.Errorf("parse %s: missing membership refs", eventType)
		}
		switch eventType {
		case TypeMembershipCreated:
			return MembershipCreated{Membership: p}, nil
		case TypeMembershipUpdated:
			return MembershipRoleUpdated{Membership: p}, nil
		default:
			return MembershipDeleted{Membership: p}, nil
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnhandledEventType, eventType)
	}
}
