package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WithdrawalStatus represents the review state of a withdrawal
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusCompleted WithdrawalStatus = "completed"
	WithdrawalStatusRejected  WithdrawalStatus = "rejected"
)

// Withdrawal represents a request to pay out earnings
type Withdrawal struct {
	ID             uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	UserID         uuid.UUID         `gorm:"type:uuid;index;not null" json:"user_id"`
	Amount         decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"amount"`
	PaymentMethod  string            `gorm:"type:varchar(50);not null" json:"payment_method"` // paypal, bank, crypto
	PaymentDetails datatypes.JSONMap `gorm:"type:jsonb" json:"payment_details"`
	Status         WithdrawalStatus  `gorm:"type:varchar(20);not null" json:"status"`
	FailureReason  string            `gorm:"type:text" json:"failure_reason,omitempty"`
	ProcessedAt    *time.Time        `json:"processed_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (w *Withdrawal) BeforeCreate(tx *gorm.DB) error {
	ensureID(&w.ID)
	return nil
}
