package models

// UserRole identifies which kind of account an actor is acting as
type UserRole string

const (
	RoleTenant UserRole = "TENANT"
	RoleOwner  UserRole = "OWNER"
	RoleAdmin  UserRole = "ADMIN"
)

// IsValid reports whether r is one of the known roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleTenant, RoleOwner, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller of a service operation
type Actor struct {
	UserID int64
	Role   UserRole
}

// VerificationLevel is derived from profile completeness and approved documents
type VerificationLevel string

const (
	VerificationLevelUnverified    VerificationLevel = "UNVERIFIED"
	VerificationLevelProfileOnly   VerificationLevel = "PROFILE_ONLY"
	VerificationLevelFullyVerified VerificationLevel = "FULLY_VERIFIED"
)

// RegistrationStatus tracks whether the profile part of onboarding is done
type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "PENDING"
	RegistrationStatusCompleted RegistrationStatus = "COMPLETED"
)

// Account is the verification-relevant projection of a tenant or owner row
type Account struct {
	ID                 int64              `json:"id" db:"id"`
	Role               UserRole           `json:"role" db:"role"`
	Firstname          *string            `json:"firstname,omitempty" db:"firstname"`
	Lastname           *string            `json:"lastname,omitempty" db:"lastname"`
	Address            *string            `json:"address,omitempty" db:"address"`
	Age                *int               `json:"age,omitempty" db:"age"`
	PhoneNumber        *string            `json:"phone_number,omitempty" db:"phone_number"`
	VerificationLevel  VerificationLevel  `json:"verification_level" db:"verification_level"`
	RegistrationStatus RegistrationStatus `json:"registration_status" db:"registration_status"`
}

// IsProfileComplete reports whether every profile field needed for verification is filled in
func (a *Account) IsProfileComplete() bool {
	filled := func(s *string) bool { return s != nil && *s != "" }
	return filled(a.Firstname) &&
		filled(a.Lastname) &&
		filled(a.Address) &&
		a.Age != nil && *a.Age > 0 &&
		filled(a.PhoneNumber)
}
