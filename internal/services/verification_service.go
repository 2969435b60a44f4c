package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/bhhunter/rental-backend/internal/database"
	"github.com/bhhunter/rental-backend/internal/domain"
	"github.com/bhhunter/rental-backend/internal/events"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// VerificationService reviews uploaded documents and derives account verification levels
type VerificationService struct {
	store  database.VerificationStore
	bus    *events.Bus
	logger *logrus.Logger
}

// NewVerificationService creates a new VerificationService
func NewVerificationService(store database.VerificationStore, bus *events.Bus, logger *logrus.Logger) *VerificationService {
	return &VerificationService{
		store:  store,
		bus:    bus,
		logger: logger,
	}
}

// ReviewDocument approves or rejects a PENDING document, then recomputes the owner's level
func (s *VerificationService) ReviewDocument(ctx context.Context, documentID, adminID int64, req models.ReviewDocumentRequest) (*models.VerificationDocument, error) {
	if req.Status != models.VerificationStatusApproved && req.Status != models.VerificationStatusRejected {
		return nil, domain.Invalid(domain.CodeInvalidReviewStatus, "status must be APPROVED or REJECTED")
	}

	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.VerificationStatusPending {
		return nil, domain.Conflict("verification document", domain.CodeDocumentAlreadyReview, "document has already been reviewed")
	}

	var reason *string
	if req.Status == models.VerificationStatusRejected {
		reason = req.RejectReason
	}
	ok, err := s.store.ReviewDocument(ctx, documentID, adminID, req.Status, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to review document: %w", err)
	}
	if !ok {
		return nil, domain.Conflict("verification document", domain.CodeDocumentAlreadyReview, "document has already been reviewed")
	}

	reviewed, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	payload := events.VerificationDocumentReviewed{
		VerificationDocumentID: reviewed.ID,
		AdminID:                adminID,
		UserID:                 reviewed.UserID,
		UserRole:               reviewed.UserRole,
		RejectReason:           reviewed.RejectReason,
	}
	if req.Status == models.VerificationStatusApproved {
		events.Publish(ctx, s.bus, events.VerificationDocumentApproved{VerificationDocumentReviewed: payload})
	} else {
		events.Publish(ctx, s.bus, events.VerificationDocumentRejected{VerificationDocumentReviewed: payload})
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"admin_id":    adminID,
		"status":      req.Status,
	}).Info("Verification document reviewed")

	if _, err := s.RecomputeVerificationLevel(ctx, reviewed.UserID, reviewed.UserRole); err != nil {
		s.logger.WithError(err).WithField("user_id", reviewed.UserID).Error("Failed to recompute verification level")
	}
	return reviewed, nil
}

// RemoveDocument soft-deletes a document and recomputes the owner's level
func (s *VerificationService) RemoveDocument(ctx context.Context, documentID, adminID int64) error {
	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}

	ok, err := s.store.SoftDeleteDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if !ok {
		return domain.NotFound("verification document", domain.CodeDocumentNotFound)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"admin_id":    adminID,
	}).Info("Verification document removed")

	if _, err := s.RecomputeVerificationLevel(ctx, doc.UserID, doc.UserRole); err != nil {
		s.logger.WithError(err).WithField("user_id", doc.UserID).Error("Failed to recompute verification level")
	}
	return nil
}

// RecomputeVerificationLevel derives level and registration status from the profile and
// approved documents, writing them only when they changed
func (s *VerificationService) RecomputeVerificationLevel(ctx context.Context, userID int64, role models.UserRole) (*models.Account, error) {
	account, err := s.loadAccount(ctx, userID, role)
	if err != nil {
		return nil, err
	}

	approved, err := s.store.ApprovedTypes(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to load approved documents: %w", err)
	}

	level, registration := deriveVerification(account, approved)
	if level == account.VerificationLevel && registration == account.RegistrationStatus {
		return account, nil
	}

	if err := s.store.UpdateAccountVerification(ctx, userID, role, level, registration); err != nil {
		return nil, fmt.Errorf("failed to update verification level: %w", err)
	}
	previous := account.VerificationLevel
	account.VerificationLevel = level
	account.RegistrationStatus = registration

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"role":    role,
		"from":    previous,
		"to":      level,
	}).Info("Verification level changed")

	if level != previous {
		ref := events.AccountRef{ID: userID, UserRole: role, ResourceType: strings.ToLower(string(role))}
		switch level {
		case models.VerificationLevelFullyVerified:
			events.Publish(ctx, s.bus, events.AccountFullyVerified{AccountRef: ref})
		case models.VerificationLevelUnverified:
			events.Publish(ctx, s.bus, events.AccountSetupRequired{AccountRef: ref})
		}
	}
	return account, nil
}

// GetVerificationStatus returns the account's progress and its non-deleted documents
func (s *VerificationService) GetVerificationStatus(ctx context.Context, userID int64, role models.UserRole) (*models.VerificationStatusResponse, error) {
	account, err := s.loadAccount(ctx, userID, role)
	if err != nil {
		return nil, err
	}

	docs, err := s.store.ListDocuments(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	return &models.VerificationStatusResponse{
		RegistrationStatus: account.RegistrationStatus,
		VerificationLevel:  account.VerificationLevel,
		Documents:          docs,
	}, nil
}

func (s *VerificationService) loadDocument(ctx context.Context, id int64) (*models.VerificationDocument, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return nil, domain.NotFound("verification document", domain.CodeDocumentNotFound)
	}
	return doc, nil
}

func (s *VerificationService) loadAccount(ctx context.Context, userID int64, role models.UserRole) (*models.Account, error) {
	if role != models.RoleTenant && role != models.RoleOwner {
		return nil, domain.Forbidden(domain.CodeRoleNotAllowed, "only tenants and owners have verification profiles")
	}
	account, err := s.store.GetAccount(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, domain.NotFound("account", domain.CodeAccountNotFound)
	}
	return account, nil
}

// deriveVerification computes the level and registration status for an account
func deriveVerification(account *models.Account, approved []models.VerificationType) (models.VerificationLevel, models.RegistrationStatus) {
	if !account.IsProfileComplete() {
		return models.VerificationLevelUnverified, models.RegistrationStatusPending
	}

	have := make(map[models.VerificationType]bool, len(approved))
	for _, t := range approved {
		have[t] = true
	}
	for _, required := range models.RequiredVerificationTypes[account.Role] {
		if !have[required] {
			return models.VerificationLevelProfileOnly, models.RegistrationStatusCompleted
		}
	}
	return models.VerificationLevelFullyVerified, models.RegistrationStatusCompleted
}
