package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Profile is the public identity of a user
type Profile struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Username     *string         `gorm:"type:varchar(50);uniqueIndex" json:"username"`
	ReferralCode string          `gorm:"type:varchar(20);uniqueIndex;not null" json:"referral_code"`
	Earnings     decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"earnings"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// BeforeCreate assigns the profile ID
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// HasUsername reports whether the profile has been completed
func (p *Profile) HasUsername() bool {
	return p.Username != nil && *p.Username != ""
}
