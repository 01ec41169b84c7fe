package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/studiobook/backend/internal/auth"
	"github.com/studiobook/backend/internal/models"
)

const (
	// ContextSession is the gin context key for the resolved auth.Session.
	ContextSession = "session"
	// ContextTenant is the gin context key for the resolved *models.Organization.
	ContextTenant = "tenant"
	// ContextTenantID is the gin context key for the internal tenant uuid.
	ContextTenantID = "tenant_id"
)

// Session returns a middleware that resolves the caller's identity from the
// Authorization bearer token and stores it in context. This is the only place
// token verification happens; it always passes the request through — the
// chain stages make the access decision.
func Session(sessions *auth.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
		c.Set(ContextSession, sessions.Resolve(token))
		c.Next()
	}
}

// SessionFrom returns the session resolved by the Session middleware. An
// absent key yields the anonymous session.
func SessionFrom(c *gin.Context) auth.Session {
	if v, ok := c.Get(ContextSession); ok {
		if s, ok := v.(auth.Session); ok {
			return s
		}
	}
	return auth.Session{}
}

// TenantFrom returns the tenant attached by the org-scoped stage, or nil.
func TenantFrom(c *gin.Context) *models.Organization {
	if v, ok := c.Get(ContextTenant); ok {
		if org, ok := v.(*models.Organization); ok {
			return org
		}
	}
	return nil
}

// TenantIDFrom returns the internal tenant id attached by the org-scoped
// stage. The boolean is false before that stage has run.
func TenantIDFrom(c *gin.Context) (uuid.UUID, bool) {
	if v, ok := c.Get(ContextTenantID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id, true
		}
	}
	return uuid.Nil, false
}
