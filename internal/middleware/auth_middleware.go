package middleware

import (
	"net/http"
	"strings"

	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/bhhunter/rental-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID   int64           `json:"user_id"`
	Username string          `json:"username"`
	Role     models.UserRole `json:"role"`
}

// Actor converts the user context into the identity services authorize against
func (u UserContext) Actor() models.Actor {
	return models.Actor{UserID: u.UserID, Role: u.Role}
}

// Recipient converts the user context into a notification recipient
func (u UserContext) Recipient() models.Recipient {
	return models.Recipient{Role: u.Role, UserID: u.UserID}
}

// AuthMiddleware creates a middleware that validates JWT tokens
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry := logger.WithFields(logrus.Fields{
			"path":       c.Request.URL.Path,
			"ip":         c.ClientIP(),
			"request_id": GetRequestID(c),
		})

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			entry.Warn("AUTH FAILED: missing authorization header")
			abortUnauthorized(c, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			entry.Warn("AUTH FAILED: invalid auth format")
			abortUnauthorized(c, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			entry.Warn("AUTH FAILED: empty token")
			abortUnauthorized(c, "unauthorized", "Token cannot be empty", "INVALID_AUTH_FORMAT")
			return
		}

		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			if jwtService.IsTokenExpired(tokenString) {
				entry.WithError(err).Warn("AUTH FAILED: token expired")
				abortUnauthorized(c, "token_expired", "Access token has expired. Please sign in again.", "TOKEN_EXPIRED")
			} else {
				entry.WithError(err).Warn("AUTH FAILED: invalid token")
				abortUnauthorized(c, "invalid_token", "Invalid access token", "INVALID_TOKEN")
			}
			return
		}

		role := models.UserRole(strings.ToUpper(claims.Role))
		if !role.IsValid() {
			entry.WithField("role", claims.Role).Warn("AUTH FAILED: unknown role")
			abortUnauthorized(c, "invalid_token", "Invalid access token", "INVALID_TOKEN")
			return
		}

		c.Set(UserContextKey, UserContext{
			UserID:   claims.UserID,
			Username: claims.Username,
			Role:     role,
		})
		c.Next()
	}
}

// RequireRole creates a middleware that checks the user holds one of the roles
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			abortUnauthorized(c, "unauthorized", "User context not found. Auth middleware may not be applied.", "MISSING_USER_CONTEXT")
			return
		}

		for _, role := range roles {
			if userCtx.Role == role {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error":      "forbidden",
			"message":    "You don't have permission to access this resource",
			"code":       "INSUFFICIENT_PERMISSIONS",
			"request_id": GetRequestID(c),
		})
		c.Abort()
	}
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}

	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}

	return userCtx, true
}

// MustGetUserContext retrieves the user context or panics (use only after AuthMiddleware)
func MustGetUserContext(c *gin.Context) UserContext {
	userCtx, exists := GetUserContext(c)
	if !exists {
		panic("user context not found - ensure AuthMiddleware is applied")
	}
	return userCtx
}

func abortUnauthorized(c *gin.Context, errKey, message, code string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":      errKey,
		"message":    message,
		"code":       code,
		"request_id": GetRequestID(c),
	})
	c.Abort()
}
