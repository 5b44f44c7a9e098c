package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EarningType is the origin of an earning row
type EarningType string

const (
	EarningTypeClick    EarningType = "click"
	EarningTypeOffer    EarningType = "offer"
	EarningTypeReferral EarningType = "referral"
	EarningTypeSignup   EarningType = "signup"
)

// EarningStatus represents whether an earning has been confirmed
type EarningStatus string

const (
	EarningStatusPending   EarningStatus = "pending"
	EarningStatusCompleted EarningStatus = "completed"
)

// Click is a visit through a referral code
type Click struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	ReferralCode string    `gorm:"type:varchar(20);not null;index:idx_clicks_ip_code_created,priority:2" json:"referral_code"`
	IPAddress    string    `gorm:"type:varchar(64);not null;index:idx_clicks_ip_code_created,priority:1" json:"ip_address"`
	UserAgent    string    `gorm:"type:text" json:"user_agent"`
	CreatedAt    time.Time `gorm:"index:idx_clicks_ip_code_created,priority:3" json:"created_at"`
}

func (c *Click) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// Earning is a single credit entry shown to the user
type Earning struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Type      EarningType     `gorm:"type:varchar(20);not null" json:"type"`
	Status    EarningStatus   `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

func (e *Earning) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// Share records a user sharing their link on a platform
type Share struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Platform  string    `gorm:"type:varchar(50);not null" json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Share) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// UserStats is a derived per-user aggregate
type UserStats struct {
	UserID          uuid.UUID       `gorm:"type:uuid;primary_key" json:"user_id"`
	TotalEarned     decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_earned"`
	CompletedOffers int64           `gorm:"not null;default:0" json:"completed_offers"`
	CurrentStreak   int64           `gorm:"not null;default:0" json:"current_streak"`
	Clicks          int64           `gorm:"not null;default:0" json:"clicks"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName overrides the pluralised default
func (UserStats) TableName() string {
	return "user_stats"
}

// StatsDelta is an additive change to UserStats
type StatsDelta struct {
	TotalEarned     decimal.Decimal
	CompletedOffers int64
	Clicks          int64
}
