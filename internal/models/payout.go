package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutStatus represents the state of an owner payout
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "PENDING"
	PayoutStatusCompleted PayoutStatus = "COMPLETED"
)

// Payout is the owner-facing transfer derived from a paid payment
type Payout struct {
	ID        int64           `json:"id" db:"id"`
	OwnerID   int64           `json:"owner_id" db:"owner_id"`
	PaymentID int64           `json:"payment_id" db:"payment_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Currency  string          `json:"currency" db:"currency"`
	Status    PayoutStatus    `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
