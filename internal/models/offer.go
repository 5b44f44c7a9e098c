package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Offer is a partner task a user can complete for a reward
type Offer struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	Category    string          `gorm:"type:varchar(50)" json:"category"`
	Reward      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"reward"`
	URL         string          `gorm:"type:text;not null" json:"url"`
	IsActive    bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (o *Offer) BeforeCreate(tx *gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OfferClick is a tracked offer visit and the reward it earned
type OfferClick struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	OfferID   uuid.UUID       `gorm:"type:uuid;index;not null" json:"offer_id"`
	Reward    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"reward"`
	IPAddress string          `gorm:"type:varchar(64)" json:"ip_address"`
	UserAgent string          `gorm:"type:text" json:"user_agent"`
	CreatedAt time.Time       `json:"created_at"`
}

func (o *OfferClick) BeforeCreate(tx *gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
