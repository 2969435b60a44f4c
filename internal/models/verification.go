package models

import "time"

// VerificationStatus represents the review state of a verification document
type VerificationStatus string

const (
	VerificationStatusPending  VerificationStatus = "PENDING"
	VerificationStatusApproved VerificationStatus = "APPROVED"
	VerificationStatusRejected VerificationStatus = "REJECTED"
	VerificationStatusExpired  VerificationStatus = "EXPIRED"
)

// VerificationType names the kind of credential uploaded
type VerificationType string

const (
	VerificationTypeValidID         VerificationType = "VALID_ID"
	VerificationTypeDTI             VerificationType = "DTI"
	VerificationTypeBIR             VerificationType = "BIR"
	VerificationTypeFireCertificate VerificationType = "FIRE_CERTIFICATE"
	VerificationTypeSanitaryPermit  VerificationType = "SANITARY_PERMIT"
	VerificationTypeSEC             VerificationType = "SEC"
)

// RequiredVerificationTypes lists the documents each role needs approved to be fully verified
var RequiredVerificationTypes = map[UserRole][]VerificationType{
	RoleTenant: {VerificationTypeValidID},
	RoleOwner: {
		VerificationTypeDTI,
		VerificationTypeBIR,
		VerificationTypeFireCertificate,
		VerificationTypeSanitaryPermit,
		VerificationTypeSEC,
	},
}

// VerificationDocument is an uploaded credential awaiting or past admin review
type VerificationDocument struct {
	ID               int64              `json:"id" db:"id"`
	UserID           int64              `json:"user_id" db:"user_id"`
	UserRole         UserRole           `json:"user_role" db:"user_role"`
	VerificationType VerificationType   `json:"verification_type" db:"verification_type"`
	Status           VerificationStatus `json:"status" db:"status"`
	RejectReason     *string            `json:"reject_reason,omitempty" db:"reject_reason"`
	FileURL          string             `json:"file_url" db:"file_url"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty" db:"expires_at"`
	VerifiedByID     *int64             `json:"verified_by_id,omitempty" db:"verified_by_id"`
	ReviewedAt       *time.Time         `json:"reviewed_at,omitempty" db:"reviewed_at"`
	IsDeleted        bool               `json:"-" db:"is_deleted"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`
}

// ReviewDocumentRequest is the admin review body
type ReviewDocumentRequest struct {
	Status       VerificationStatus `json:"status" binding:"required"`
	RejectReason *string            `json:"reject_reason,omitempty"`
}

// VerificationStatusResponse summarises an account's verification progress
type VerificationStatusResponse struct {
	RegistrationStatus RegistrationStatus      `json:"registration_status"`
	VerificationLevel  VerificationLevel       `json:"verification_level"`
	Documents          []*VerificationDocument `json:"documents"`
}
