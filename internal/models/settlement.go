package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettlementEffect names a monetary effect that may be applied once per reference
type SettlementEffect string

const (
	EffectReferralBonus   SettlementEffect = "referral_bonus"
	EffectSignupBonus     SettlementEffect = "signup_bonus"
	EffectPotContribution SettlementEffect = "pot_contribution"
)

// Settlement is a ledger row. (reference, effect) is unique.
type Settlement struct {
	ID        uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	Reference string           `gorm:"type:varchar(255);not null;uniqueIndex:idx_settlements_reference_effect" json:"reference"`
	Effect    SettlementEffect `gorm:"type:varchar(32);not null;uniqueIndex:idx_settlements_reference_effect" json:"effect"`
	UserID    uuid.UUID        `gorm:"type:uuid;index;not null" json:"user_id"`
	Amount    decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"amount"`
	CreatedAt time.Time        `json:"created_at"`
}

// BeforeCreate assigns the settlement ID
func (s *Settlement) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
