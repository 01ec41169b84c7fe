// Package auth resolves verified identity from identity-provider session
// tokens. Token verification lives here and nowhere else; the session
// middleware calls Resolve exactly once per request and threads the result
// through context.
package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Session is the verified identity extracted from a request. Empty fields
// mean the corresponding claim was absent: an all-empty Session is an
// anonymous caller, a Session with UserID but no OrganizationID is a signed-in
// caller with no tenant selected.
type Session struct {
	UserID           string
	OrganizationID   string // external (identity-provider) organization id
	OrganizationRole string
}

// Anonymous reports whether the session carries no verified identity.
func (s Session) Anonymous() bool { return s.UserID == "" }

// sessionClaims are the claims the identity provider puts in session tokens.
type sessionClaims struct {
	OrgID   string `json:"org_id"`
	OrgRole string `json:"org_role"`
	jwt.RegisteredClaims
}

// SessionService verifies provider-issued session tokens.
type SessionService struct {
	secret []byte
}

// NewSessionService creates a session service with the HS256 secret shared
// with the identity provider.
func NewSessionService(secret string) *SessionService {
	return &SessionService{secret: []byte(secret)}
}

// Resolve verifies a session token and returns the identity it carries.
// It fails open: a missing, malformed, or expired token yields the anonymous
// session rather than an error, so downstream authorization stages make the
// actual access decision.
func (s *SessionService) Resolve(token string) Session {
	if token == "" {
		return Session{}
	}
	claims, err := s.verify(token)
	if err != nil {
		return Session{}
	}
	return Session{
		UserID:           claims.Subject,
		OrganizationID:   claims.OrgID,
		OrganizationRole: claims.OrgRole,
	}
}

func (s *SessionService) verify(tokenString string) (*sessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
