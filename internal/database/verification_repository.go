package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// VerificationRepository handles verification_documents and the verification
// columns of the tenants and owners tables
type VerificationRepository struct {
	db sqlx.ExtContext
}

// NewVerificationRepository creates a new VerificationRepository
func NewVerificationRepository(db sqlx.ExtContext) *VerificationRepository {
	return &VerificationRepository{db: db}
}

const documentColumns = `
	id, user_id, user_role, verification_type, status, reject_reason, file_url,
	expires_at, verified_by_id, reviewed_at, is_deleted, created_at, updated_at`

// GetDocument retrieves a non-deleted document. Returns nil, nil when not found.
func (r *VerificationRepository) GetDocument(ctx context.Context, id int64) (*models.VerificationDocument, error) {
	var doc models.VerificationDocument
	query := `SELECT` + documentColumns + ` FROM verification_documents WHERE id = $1 AND is_deleted = FALSE`

	err := sqlx.GetContext(ctx, r.db, &doc, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verification document: %w", err)
	}
	return &doc, nil
}

// ReviewDocument records an admin decision; only a PENDING document matches
func (r *VerificationRepository) ReviewDocument(ctx context.Context, id, adminID int64, status models.VerificationStatus, rejectReason *string) (bool, error) {
	query := `
		UPDATE verification_documents
		SET status = $1, reject_reason = $2, verified_by_id = $3,
			reviewed_at = NOW(), updated_at = NOW()
		WHERE id = $4 AND is_deleted = FALSE AND status = $5
	`

	res, err := r.db.ExecContext(ctx, query, status, rejectReason, adminID, id, models.VerificationStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to review verification document: %w", err)
	}
	return affected(res)
}

// SoftDeleteDocument flags a document as deleted
func (r *VerificationRepository) SoftDeleteDocument(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE verification_documents SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND is_deleted = FALSE`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete verification document: %w", err)
	}
	return affected(res)
}

// ListDocuments returns the non-deleted documents of a user
func (r *VerificationRepository) ListDocuments(ctx context.Context, userID int64, role models.UserRole) ([]*models.VerificationDocument, error) {
	query := `SELECT` + documentColumns + `
		FROM verification_documents
		WHERE user_id = $1 AND user_role = $2 AND is_deleted = FALSE
		ORDER BY created_at DESC`

	docs := []*models.VerificationDocument{}
	if err := sqlx.SelectContext(ctx, r.db, &docs, query, userID, role); err != nil {
		return nil, fmt.Errorf("failed to list verification documents: %w", err)
	}
	return docs, nil
}

// ApprovedTypes returns the distinct document types a user has approved
func (r *VerificationRepository) ApprovedTypes(ctx context.Context, userID int64, role models.UserRole) ([]models.VerificationType, error) {
	query := `
		SELECT DISTINCT verification_type
		FROM verification_documents
		WHERE user_id = $1 AND user_role = $2 AND status = $3 AND is_deleted = FALSE
	`

	types := []models.VerificationType{}
	if err := sqlx.SelectContext(ctx, r.db, &types, query, userID, role, models.VerificationStatusApproved); err != nil {
		return nil, fmt.Errorf("failed to list approved document types: %w", err)
	}
	return types, nil
}

// GetAccount loads the verification-relevant fields of a tenant or owner.
// Returns nil, nil when not found.
func (r *VerificationRepository) GetAccount(ctx context.Context, userID int64, role models.UserRole) (*models.Account, error) {
	table, err := accountTable(role)
	if err != nil {
		return nil, err
	}

	var account models.Account
	query := fmt.Sprintf(`
		SELECT id, firstname, lastname, address, age, phone_number,
			   verification_level, registration_status
		FROM %s
		WHERE id = $1 AND is_deleted = FALSE
	`, table)

	err = sqlx.GetContext(ctx, r.db, &account, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	account.Role = role
	return &account, nil
}

// UpdateAccountVerification writes the derived verification level and registration status
func (r *VerificationRepository) UpdateAccountVerification(ctx context.Context, userID int64, role models.UserRole, level models.VerificationLevel, status models.RegistrationStatus) error {
	table, err := accountTable(role)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s SET verification_level = $1, registration_status = $2, updated_at = NOW()
		WHERE id = $3
	`, table)

	if _, err := r.db.ExecContext(ctx, query, level, status, userID); err != nil {
		return fmt.Errorf("failed to update account verification: %w", err)
	}
	return nil
}

func accountTable(role models.UserRole) (string, error) {
	switch role {
	case models.RoleTenant:
		return "tenants", nil
	case models.RoleOwner:
		return "owners", nil
	}
	return "", fmt.Errorf("role %q has no verification profile", role)
}
