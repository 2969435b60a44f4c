package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/bhhunter/rental-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-access-secret-key-123456789"

func setupTestJWTService() *jwt.Service {
	return jwt.NewService(testSecret, "bh-hunter", time.Hour)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	return router
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	token, err := jwtService.GenerateAccessToken(42, "maria", "tenant")
	require.NoError(t, err)

	router.GET("/protected", AuthMiddleware(jwtService, quietLogger()), func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		require.True(t, exists)
		assert.Equal(t, models.RoleTenant, userCtx.Role)
		assert.Equal(t, models.Actor{UserID: 42, Role: models.RoleTenant}, userCtx.Actor())
		c.JSON(http.StatusOK, gin.H{"message": "success", "username": userCtx.Username})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "maria")
}

func TestAuthMiddleware_MissingAuthHeader(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	router.GET("/protected", AuthMiddleware(jwtService, quietLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_AUTH_HEADER")
	assert.Contains(t, w.Body.String(), w.Header().Get("X-Request-ID"))
}

func TestAuthMiddleware_InvalidAuthFormat(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	router.GET("/protected", AuthMiddleware(jwtService, quietLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	tests := []struct {
		name   string
		header string
	}{
		{"Missing Bearer", "some-token"},
		{"Wrong prefix", "Basic some-token"},
		{"Empty Bearer", "Bearer "},
		{"No token", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			req.Header.Set("Authorization", tt.header)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_AUTH_FORMAT")
		})
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	router.GET("/protected", AuthMiddleware(jwtService, quietLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	wrongSecret, err := jwt.NewService("wrong-secret-key", "bh-hunter", time.Hour).GenerateAccessToken(1, "owner", "OWNER")
	require.NoError(t, err)
	unknownRole, err := jwtService.GenerateAccessToken(1, "guest", "GUEST")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"Wrong secret", wrongSecret},
		{"Unknown role", unknownRole},
		{"Random string", "randomstringnotavalidtoken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			body := w.Body.String()
			hasValidError := strings.Contains(body, "INVALID_TOKEN") || strings.Contains(body, "TOKEN_EXPIRED")
			assert.True(t, hasValidError, "Expected INVALID_TOKEN or TOKEN_EXPIRED error, got: %s", body)
		})
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	token, err := jwtService.GenerateAccessTokenWithExpiry(42, "maria", "TENANT", -time.Minute)
	require.NoError(t, err)

	router.GET("/protected", AuthMiddleware(jwtService, quietLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
}

func TestRequireRole(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	router.GET("/admin", AuthMiddleware(jwtService, quietLogger()), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "admin area"})
	})
	router.GET("/no-auth", RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	tests := []struct {
		name   string
		path   string
		role   string
		status int
		code   string
	}{
		{"admin allowed", "/admin", "ADMIN", http.StatusOK, ""},
		{"tenant forbidden", "/admin", "TENANT", http.StatusForbidden, "INSUFFICIENT_PERMISSIONS"},
		{"missing user context", "/no-auth", "ADMIN", http.StatusUnauthorized, "MISSING_USER_CONTEXT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwtService.GenerateAccessToken(9, "someone", tt.role)
			require.NoError(t, err)

			req := httptest.NewRequest("GET", tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Contains(t, w.Body.String(), tt.code)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	router := setupTestRouter()
	router.Use(RequestLogger(quietLogger()))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))
	generated := w.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "trace-123", w.Body.String())
}
