package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiobook/backend/internal/models"
)

func TestParseEventUserCreated(t *testing.T) {
	data := json.RawMessage(`{"id":"user_abc","email_address":"jo@example.com","full_name":"Jo Smith"}`)
	ev, err := ParseEvent(TypeUserCreated, data)
	require.NoError(t, err)

	u, ok := ev.(UserUpserted)
	require.True(t, ok)
	assert.Equal(t, "user_abc", u.User.ID)
	assert.Equal(t, "jo@example.com", u.User.Email)
}

func TestParseEventMembershipVariants(t *testing.T) {
	data := json.RawMessage(`{"user_id":"user_abc","organization_id":"org_xyz","role":"org:admin"}`)

	ev, err := ParseEvent(TypeMembershipCreated, data)
	require.NoError(t, err)
	_, ok := ev.(MembershipCreated)
	assert.True(t, ok)

	ev, err = ParseEvent(TypeMembershipUpdated, data)
	require.NoError(t, err)
	_, ok = ev.(MembershipRoleUpdated)
	assert.True(t, ok)

	ev, err = ParseEvent(TypeMembershipDeleted, data)
	require.NoError(t, err)
	_, ok = ev.(MembershipDeleted)
	assert.True(t, ok)
}

func TestParseEventMissingRefs(t *testing.T) {
	_, err := ParseEvent(TypeMembershipCreated, json.RawMessage(`{"user_id":"user_abc"}`))
	assert.Error(t, err)

	_, err = ParseEvent(TypeUserDeleted, json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestParseEventMalformedPayload(t *testing.T) {
	_, err := ParseEvent(TypeOrgCreated, json.RawMessage(`{not json`))
	assert.Error(t, err)
}

func TestParseEventUnhandledType(t *testing.T) {
	_, err := ParseEvent("session.created", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnhandledEventType)
}

func TestMapRole(t *testing.T) {
	assert.Equal(t, models.RoleSuperAdmin, MapRole("org:admin"))
	assert.Equal(t, models.RoleStaff, MapRole("org:member"))
	assert.Equal(t, models.RoleStaff, MapRole("org:billing"))
	assert.Equal(t, models.RoleStaff, MapRole(""))
}
