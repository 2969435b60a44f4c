package handlers

import (
	"net/http"
	"strconv"

	"github.com/bhhunter/rental-backend/internal/domain"
	"github.com/bhhunter/rental-backend/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func respondError(c *gin.Context, status int, errKey, code, message string) {
	c.JSON(status, ErrorResponse{
		Error:     errKey,
		Message:   message,
		Code:      code,
		RequestID: middleware.GetRequestID(c),
	})
}

// respondDomainError maps a service error onto its HTTP status.
// Internal errors never leak their cause to the client.
func respondDomainError(c *gin.Context, logger *logrus.Logger, err error, action string) {
	code := domain.CodeOf(err)
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "validation_error", code, err.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", code, err.Error())
	case domain.IsForbidden(err):
		respondError(c, http.StatusForbidden, "forbidden", code, err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "conflict", code, err.Error())
	default:
		if code == "" {
			code = domain.CodeInternal
		}
		logger.WithFields(logrus.Fields{
			"request_id": middleware.GetRequestID(c),
			"code":       code,
		}).WithError(err).Errorf("Failed to %s", action)
		status := http.StatusInternalServerError
		if code == domain.CodeGatewayError || code == domain.CodeGatewayNotConfigured {
			status = http.StatusBadGateway
		}
		respondError(c, status, "internal_error", code, "Failed to "+action)
	}
}

func requireUser(c *gin.Context) (middleware.UserContext, bool) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "MISSING_USER_CONTEXT", "User not authenticated")
	}
	return userCtx, ok
}

func parseIDParam(c *gin.Context, name, label string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid_request", domain.CodeInvalidInput, "Invalid "+label+" ID")
		return 0, false
	}
	return id, true
}

// bindOptionalJSON accepts an empty body for endpoints whose payload is optional
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", domain.CodeInvalidInput, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
