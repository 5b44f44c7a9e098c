package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DonationStatus represents the on-chain state of a donation
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusConfirmed DonationStatus = "confirmed"
	DonationStatusFailed    DonationStatus = "failed"
)

// Donation is a crypto transfer to the receiving address
type Donation struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID        uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	TxHash        string          `gorm:"type:varchar(66);uniqueIndex;not null" json:"tx_hash"`
	Network       string          `gorm:"type:varchar(30);not null" json:"network"`
	Currency      string          `gorm:"type:varchar(10);not null" json:"currency"`
	Amount        decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"amount"`
	FromAddress   string          `gorm:"type:varchar(42)" json:"from_address"`
	BlockNumber   uint64          `json:"block_number"`
	Confirmations uint64          `json:"confirmations"`
	Status        DonationStatus  `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (d *Donation) BeforeCreate(tx *gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
