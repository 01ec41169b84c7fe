// Package guard provides page-level equivalents of the authorization chain
// for server-rendered views. Failures redirect instead of returning
// structured errors, and every check is memoized per request so nested views
// can each declare the same requirement without repeating the expensive work.
package guard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studiobook/backend/internal/middleware"
)

// Default redirect targets.
const (
	DefaultSignInURL       = "/sign-in"
	DefaultOnboardingURL   = "/onboarding"
	DefaultUnauthorizedURL = "/unauthorized"
)

// Guard builds redirect-based page guards. Compose after the session
// middleware.
type Guard struct {
	tenants         middleware.TenantResolver
	SignInURL       string
	OnboardingURL   string
	UnauthorizedURL string
}

// New creates a guard with the default redirect targets.
func New(tenants middleware.TenantResolver) *Guard {
	return &Guard{
		tenants:         tenants,
		SignInURL:       DefaultSignInURL,
		OnboardingURL:   DefaultOnboardingURL,
		UnauthorizedURL: DefaultUnauthorizedURL,
	}
}

// RequireAuthenticated redirects anonymous callers to sign-in.
func (g *Guard) RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.checkAuthenticated(c) {
			return
		}
		c.Next()
	}
}

// RequireTenant redirects callers without a provisioned tenant context to
// onboarding (after the authentication check).
func (g *Guard) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.checkAuthenticated(c) || !g.checkTenant(c) {
			return
		}
		c.Next()
	}
}

// RequireStaff redirects callers without a staff role to the unauthorized
// page (after the authentication and tenant checks).
func (g *Guard) RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.checkAuthenticated(c) || !g.checkTenant(c) {
			return
		}
		if middleware.SessionFrom(c).OrganizationRole == "" {
			redirect(c, g.UnauthorizedURL)
			return
		}
		c.Next()
	}
}

func (g *Guard) checkAuthenticated(c *gin.Context) bool {
	if middleware.SessionFrom(c).Anonymous() {
		redirect(c, g.SignInURL)
		return false
	}
	return true
}

func (g *Guard) checkTenant(c *gin.Context) bool {
	sess := middleware.SessionFrom(c)
	if sess.OrganizationID == "" {
		redirect(c, g.OnboardingURL)
		return false
	}
	// Shares the chain's context keys, so a page running both a guard and an
	// org-scoped procedure resolves the tenant once.
	if middleware.TenantFrom(c) != nil {
		return true
	}
	org, err := g.tenants.GetByExternalID(c.Request.Context(), sess.OrganizationID)
	if err != nil || org == nil {
		redirect(c, g.OnboardingURL)
		return false
	}
	c.Set(middleware.ContextTenant, org)
	c.Set(middleware.ContextTenantID, org.ID)
	return true
}

func redirect(c *gin.Context, url string) {
	c.Redirect(http.StatusFound, url)
	c.Abort()
}
