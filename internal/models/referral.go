package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReferralStatus represents the status of a referral
type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusCompleted ReferralStatus = "completed"
)

// Referral records how a user arrived. A user is referred at most once.
type Referral struct {
	ID               uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ReferrerID       *uuid.UUID     `gorm:"type:uuid;index" json:"referrer_id"`
	ReferredID       uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null" json:"referred_id"`
	ReferralCodeUsed string         `gorm:"type:varchar(20)" json:"referral_code_used"`
	Status           ReferralStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
}

// BeforeCreate assigns the referral ID
func (r *Referral) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
