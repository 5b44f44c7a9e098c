package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ShortURL maps a short code to a referral link
type ShortURL struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ShortCode    string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"short_code"`
	LongURL      string    `gorm:"type:text;not null" json:"long_url"`
	ReferralCode string    `gorm:"type:varchar(20);index;not null" json:"referral_code"`
	Clicks       int64     `gorm:"not null;default:0" json:"clicks"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *ShortURL) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// ReferralClick logs a resolved short link
type ReferralClick struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ShortCode    string    `gorm:"type:varchar(16);index;not null" json:"short_code"`
	ReferralCode string    `gorm:"type:varchar(20);not null" json:"referral_code"`
	UserAgent    string    `gorm:"type:text" json:"user_agent"`
	IPAddress    string    `gorm:"type:varchar(64)" json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r *ReferralClick) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
