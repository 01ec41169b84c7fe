package identity

import "github.com/studiobook/backend/internal/models"

// Provider coarse roles.
const (
	ProviderRoleAdmin  = "org:admin"
	ProviderRoleMember = "org:member"
)

// MapRole maps the provider's coarse organization role to the local role
// enum. Unknown roles fall back to the least-privileged synced role (staff);
// this never fails. Fine-grained roles (instructor, student, guardian) are
// assigned by in-app membership procedures, never by sync.
func MapRole(providerRole string) string {
	switch providerRole {
	case ProviderRoleAdmin:
		return models.RoleSuperAdmin
	case ProviderRoleMember:
		return models.RoleStaff
	default:
		return models.RoleStaff
	}
}
