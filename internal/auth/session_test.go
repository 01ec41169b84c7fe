package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "session-secret-for-tests"

func mintToken(t *testing.T, secret string, sub, orgID, orgRole string, exp time.Time) string {
	t.Helper()
	claims := sessionClaims{
		OrgID:   orgID,
		OrgRole: orgRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestResolveValidToken(t *testing.T) {
	svc := NewSessionService(testSecret)
	token := mintToken(t, testSecret, "user_2x", "org_7a", "org:admin", time.Now().Add(time.Hour))

	sess := svc.Resolve(token)

	assert.False(t, sess.Anonymous())
	assert.Equal(t, "user_2x", sess.UserID)
	assert.Equal(t, "org_7a", sess.OrganizationID)
	assert.Equal(t, "org:admin", sess.OrganizationRole)
}

func TestResolveNoOrgClaims(t *testing.T) {
	svc := NewSessionService(testSecret)
	token := mintToken(t, testSecret, "user_2x", "", "", time.Now().Add(time.Hour))

	sess := svc.Resolve(token)

	assert.False(t, sess.Anonymous())
	assert.Empty(t, sess.OrganizationID)
	assert.Empty(t, sess.OrganizationRole)
}

func TestResolveFailsOpenToAnonymous(t *testing.T) {
	svc := NewSessionService(testSecret)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"wrong secret": mintToken(t, "other-secret", "user_2x", "org_7a", "org:member", time.Now().Add(time.Hour)),
		"expired":      mintToken(t, testSecret, "user_2x", "org_7a", "org:member", time.Now().Add(-time.Minute)),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			sess := svc.Resolve(token)
			assert.True(t, sess.Anonymous())
			assert.Empty(t, sess.OrganizationID)
		})
	}
}

func TestResolveRejectsUnsignedToken(t *testing.T) {
	svc := NewSessionService(testSecret)
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user_2x"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	assert.True(t, svc.Resolve(token).Anonymous())
}
