package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiobook/backend/internal/auth"
	"github.com/studiobook/backend/internal/middleware"
	"github.com/studiobook/backend/internal/models"
)

type fakeTenantResolver struct {
	orgs  map[string]*models.Organization
	calls int
}

func (f *fakeTenantResolver) GetByExternalID(_ context.Context, externalID string) (*models.Organization, error) {
	f.calls++
	return f.orgs[externalID], nil
}

func sessionStub(sess auth.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextSession, sess)
		c.Next()
	}
}

func pageRouter(sess auth.Session, handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessionStub(sess))
	handlers = append(handlers, func(c *gin.Context) { c.String(http.StatusOK, "page") })
	r.GET("/app/page", handlers...)
	return r
}

func TestGuardAnonymousRedirectsToSignIn(t *testing.T) {
	g := New(&fakeTenantResolver{})
	r := pageRouter(auth.Session{}, g.RequireStaff())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/app/page", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, DefaultSignInURL, w.Header().Get("Location"))
}

func TestGuardNoTenantRedirectsToOnboarding(t *testing.T) {
	g := New(&fakeTenantResolver{})
	r := pageRouter(auth.Session{UserID: "user_1"}, g.RequireTenant())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/app/page", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, DefaultOnboardingURL, w.Header().Get("Location"))
}

func TestGuardNoStaffRoleRedirectsToUnauthorized(t *testing.T) {
	resolver := &fakeTenantResolver{orgs: map[string]*models.Organization{
		"org_ext1": {ExternalID: "org_ext1", Slug: "joes-music"},
	}}
	g := New(resolver)
	r := pageRouter(auth.Session{UserID: "user_1", OrganizationID: "org_ext1"}, g.RequireStaff())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/app/page", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, DefaultUnauthorizedURL, w.Header().Get("Location"))
}

func TestGuardStaffPasses(t *testing.T) {
	resolver := &fakeTenantResolver{orgs: map[string]*models.Organization{
		"org_ext1": {ExternalID: "org_ext1", Slug: "joes-music"},
	}}
	g := New(resolver)
	sess := auth.Session{UserID: "user_1", OrganizationID: "org_ext1", OrganizationRole: models.RoleInstructor}
	r := pageRouter(sess, g.RequireStaff())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/app/page", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "page", w.Body.String())
}

func TestGuardMemoizesTenantLookup(t *testing.T) {
	resolver := &fakeTenantResolver{orgs: map[string]*models.Organization{
		"org_ext1": {ExternalID: "org_ext1", Slug: "joes-music"},
	}}
	g := New(resolver)
	sess := auth.Session{UserID: "user_1", OrganizationID: "org_ext1", OrganizationRole: models.RoleStaff}
	// Nested layouts each declare their own guard.
	r := pageRouter(sess, g.RequireTenant(), g.RequireStaff(), g.RequireStaff())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/app/page", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, resolver.calls)
}
