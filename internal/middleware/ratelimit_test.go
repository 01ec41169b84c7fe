package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/studiobook/backend/config"
	"github.com/studiobook/backend/internal/auth"
)

func newLimitedRouter(cfg config.RateLimitConfig, action string, class ActionClass) *gin.Engine {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(cfg, memory.NewStore())
	r := gin.New()
	r.Use(sessionStub(auth.Session{UserID: "user_1"}))
	r.POST("/probe", rl.Limit(action, class), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRateLimiterRejectsOverQuota(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Window: time.Minute, Create: 10, Mutate: 30, Delete: 20, Bulk: 5}
	r := newLimitedRouter(cfg, "appointments.create", ClassCreate)

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", "/probe", nil))
		require.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
	}

	w := httptest.NewRecorder()
	start := time.Now()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/probe", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Reset must land within the window measured from the first request.
	reset := w.Header().Get("X-RateLimit-Reset")
	require.NotEmpty(t, reset)
	resetUnix, err := strconv.ParseInt(reset, 10, 64)
	require.NoError(t, err)
	assert.LessOrEqual(t, resetUnix, start.Add(cfg.Window+time.Second).Unix())
}

func TestRateLimiterWindowElapses(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Window: 200 * time.Millisecond, Create: 1, Mutate: 1, Delete: 1, Bulk: 1}
	r := newLimitedRouter(cfg, "memberships.remove", ClassDelete)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/probe", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/probe", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	time.Sleep(250 * time.Millisecond)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/probe", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterDisabledPassesThrough(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: false, Window: time.Minute, Create: 1}
	r := newLimitedRouter(cfg, "anything", ClassCreate)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", "/probe", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimiterKeysAreIndependentPerAction(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Window: time.Minute, Create: 1, Mutate: 1, Delete: 1, Bulk: 1}
	rl := NewRateLimiter(cfg, memory.NewStore())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessionStub(auth.Session{UserID: "user_1"}))
	r.POST("/a", rl.Limit("a", ClassCreate), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/b", rl.Limit("b", ClassCreate), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/a", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// Exhausting action "a" must not affect action "b" for the same user.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/a", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/b", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
