package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-decision-support-server/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	w := perform(newRouter(SecurityHeaders()), http.MethodGet, "/ping", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"), "HSTS only in release mode")
}

func TestCorrelationID(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(CorrelationID())
	r.GET("/ping", func(c *gin.Context) {
		seen = c.GetString(CorrelationIDKey)
		c.Status(http.StatusOK)
	})

	w := perform(r, http.MethodGet, "/ping", map[string]string{CorrelationIDHeader: "corr-123"})
	assert.Equal(t, "corr-123", w.Header().Get(CorrelationIDHeader))
	assert.Equal(t, "corr-123", seen)

	w = perform(r, http.MethodGet, "/ping", nil)
	assert.Len(t, w.Header().Get(CorrelationIDHeader), 36)
	assert.Equal(t, w.Header().Get(CorrelationIDHeader), seen)
}

func TestRequestTimeout(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	r := gin.New()
	r.Use(RequestTimeout(50 * time.Millisecond))
	r.GET("/ping", func(c *gin.Context) {
		deadline, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	perform(r, http.MethodGet, "/ping", nil)

	require.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now(), deadline, time.Second)
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS([]string{"https://ehr.example.org"}))

	w := perform(r, http.MethodGet, "/ping", map[string]string{"Origin": "https://ehr.example.org"})
	assert.Equal(t, "https://ehr.example.org", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = perform(r, http.MethodGet, "/ping", map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = perform(r, http.MethodOptions, "/ping", map[string]string{"Origin": "https://ehr.example.org"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = perform(newRouter(CORS([]string{"*"})), http.MethodGet, "/ping", map[string]string{"Origin": "https://any.example"})
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestAuditLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := newRouter(CorrelationID(), AuditLogger(logger))

	perform(r, http.MethodGet, "/ping?tenantId=t-1", map[string]string{CorrelationIDHeader: "corr-1"})
	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "corr-1", entry.Data["correlation_id"])
	assert.Equal(t, 200, entry.Data["status"])
	assert.Equal(t, "/ping", entry.Data["path"])
	assert.Equal(t, "t-1", entry.Data["tenant_id"])

	perform(r, http.MethodGet, "/missing", nil)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestRecovery(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := gin.New()
	r.Use(CorrelationID(), Recovery(logger))
	r.GET("/boom", func(c *gin.Context) {
		panic("unexpected")
	})

	w := perform(r, http.MethodGet, "/boom", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrInternalServer)
	assert.Equal(t, "Recovered from handler panic", hook.LastEntry().Message)
}

func TestTenantRateLimiter(t *testing.T) {
	limiter, err := NewTenantRateLimiter(domain.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 2})
	require.NoError(t, err)
	r := newRouter(limiter.Middleware())

	tenantA := map[string]string{TenantIDHeader: "tenant-a"}
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", tenantA).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", tenantA).Code)

	w := perform(r, http.MethodGet, "/ping", tenantA)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrRateLimit)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", map[string]string{TenantIDHeader: "tenant-b"}).Code,
		"buckets are per tenant")
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping?tenantId=tenant-c", nil).Code)
}

func TestNewTenantRateLimiter_Validation(t *testing.T) {
	_, err := NewTenantRateLimiter(domain.RateLimitConfig{RequestsPerSecond: 0, Burst: 1})
	assert.Error(t, err)
	_, err = NewTenantRateLimiter(domain.RateLimitConfig{RequestsPerSecond: 1, Burst: 0})
	assert.Error(t, err)
}
