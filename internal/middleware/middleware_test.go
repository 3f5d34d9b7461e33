package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assign-override-api/internal/models"
	"github.com/noah-isme/assign-override-api/internal/service"
)

func newRouter(tokens *service.TokenService, capabilities ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", JWT(tokens), RequireCapability(capabilities...), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.String(http.StatusOK, claims.UserID)
	})
	return r
}

func call(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresBearerToken(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret", Expiry: time.Hour})
	r := newRouter(tokens)

	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Bearer not-a-token").Code)
}

func TestRequireCapability(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret", Expiry: time.Hour})
	r := newRouter(tokens, models.CapabilityManageOverrides)

	granted, _, err := tokens.Issue("teacher-1", "", []string{models.CapabilityManageOverrides})
	require.NoError(t, err)
	w := call(r, "Bearer "+granted)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "teacher-1", w.Body.String())

	denied, _, err := tokens.Issue("student-1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, call(r, "Bearer "+denied).Code)
}

func TestRequireCapabilityWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", RequireCapability(models.CapabilityManagePrivacy), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)
}

func TestMetricsSkipsProbeRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/overrides/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/overrides/o1", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}
