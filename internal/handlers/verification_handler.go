package handlers

import (
	"context"
	"net/http"

	"github.com/bhhunter/rental-backend/internal/domain"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// VerificationAPI is the document review workflow as seen by HTTP
type VerificationAPI interface {
	ReviewDocument(ctx context.Context, documentID, adminID int64, req models.ReviewDocumentRequest) (*models.VerificationDocument, error)
	RemoveDocument(ctx context.Context, documentID, adminID int64) error
	GetVerificationStatus(ctx context.Context, userID int64, role models.UserRole) (*models.VerificationStatusResponse, error)
}

// VerificationHandler handles identity verification requests
type VerificationHandler struct {
	verification VerificationAPI
	logger       *logrus.Logger
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(verification VerificationAPI, logger *logrus.Logger) *VerificationHandler {
	return &VerificationHandler{verification: verification, logger: logger}
}

// GetStatus handles GET /api/v1/verification/status
func (h *VerificationHandler) GetStatus(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	status, err := h.verification.GetVerificationStatus(c.Request.Context(), userCtx.UserID, userCtx.Role)
	if err != nil {
		respondDomainError(c, h.logger, err, "get verification status")
		return
	}

	c.JSON(http.StatusOK, status)
}

// ReviewDocument handles PATCH /api/v1/admin/verification-documents/:id
func (h *VerificationHandler) ReviewDocument(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	documentID, ok := parseIDParam(c, "id", "document")
	if !ok {
		return
	}

	var req models.ReviewDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", domain.CodeInvalidInput, "Invalid request body: "+err.Error())
		return
	}

	doc, err := h.verification.ReviewDocument(c.Request.Context(), documentID, userCtx.UserID, req)
	if err != nil {
		respondDomainError(c, h.logger, err, "review document")
		return
	}

	c.JSON(http.StatusOK, gin.H{"document": doc})
}

// RemoveDocument handles DELETE /api/v1/admin/verification-documents/:id
func (h *VerificationHandler) RemoveDocument(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	documentID, ok := parseIDParam(c, "id", "document")
	if !ok {
		return
	}

	if err := h.verification.RemoveDocument(c.Request.Context(), documentID, userCtx.UserID); err != nil {
		respondDomainError(c, h.logger, err, "remove document")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Document removed"})
}
