package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/stockcore/internal/infrastructure/auth"
	"github.com/erp/stockcore/internal/infrastructure/config"
	"github.com/erp/stockcore/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret-32-characters"

func signToken(t *testing.T, tenantID, userID uuid.UUID, expiresIn time.Duration, permissions ...string) string {
	t.Helper()
	now := time.Now()
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
		TenantID:    tenantID.String(),
		UserID:      userID.String(),
		Permissions: permissions,
		TokenType:   "access",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	verifier := auth.NewTokenVerifier(config.JWTConfig{Enabled: true, Secret: testSecret})

	router := gin.New()
	router.Use(RequestID())
	router.Use(JWTAuth(JWTMiddlewareConfig{Verifier: verifier, SkipPaths: []string{"/health"}}))
	router.Use(Tenant(TenantConfig{SkipPaths: []string{"/health"}}))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/stock", RequirePermission("stock:write"), func(c *gin.Context) {
		tenantID, _ := GetTenantID(c)
		c.JSON(http.StatusOK, gin.H{"tenant": tenantID.String(), "user": GetUserID(c).String()})
	})
	return router
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestJWTAuth(t *testing.T) {
	router := newAuthRouter()
	tenantID, userID := uuid.New(), uuid.New()

	t.Run("skip path needs no token", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stock", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeUnauthorized, errorCode(t, w))
	})

	t.Run("expired token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/stock", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+signToken(t, tenantID, userID, -time.Hour, "stock:write"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenExpired, errorCode(t, w))
	})

	t.Run("missing permission", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/stock", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+signToken(t, tenantID, userID, time.Hour, "stock:read"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("claims win over headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/stock", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+signToken(t, tenantID, userID, time.Hour, "stock:write"))
		req.Header.Set(TenantHeaderKey, uuid.NewString())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tenantID.String(), body["tenant"])
		assert.Equal(t, userID.String(), body["user"])
	})
}

func TestTenant_Headers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(trust bool) *gin.Engine {
		router := gin.New()
		router.Use(Tenant(TenantConfig{TrustHeaders: trust}))
		router.GET("/t", func(c *gin.Context) {
			tenantID, ok := GetTenantID(c)
			require.True(t, ok)
			c.String(http.StatusOK, tenantID.String())
		})
		return router
	}

	tenantID := uuid.New()

	tests := []struct {
		name     string
		trust    bool
		tenant   string
		user     string
		wantCode int
	}{
		{"trusted header", true, tenantID.String(), "", http.StatusOK},
		{"trusted header with user", true, tenantID.String(), uuid.NewString(), http.StatusOK},
		{"header ignored without trust", false, tenantID.String(), "", http.StatusBadRequest},
		{"missing tenant", true, "", "", http.StatusBadRequest},
		{"malformed tenant", true, "tenant-1", "", http.StatusBadRequest},
		{"nil tenant", true, uuid.Nil.String(), "", http.StatusBadRequest},
		{"malformed user", true, tenantID.String(), "bob", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/t", nil)
			if tt.tenant != "" {
				req.Header.Set(TenantHeaderKey, tt.tenant)
			}
			if tt.user != "" {
				req.Header.Set(UserHeaderKey, tt.user)
			}
			w := httptest.NewRecorder()
			newRouter(tt.trust).ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tenantID.String(), w.Body.String())
			}
		})
	}
}
