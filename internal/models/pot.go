package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Pot is the community contribution total. Exactly one row is current.
type Pot struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_amount"`
	IsCurrent   bool            `gorm:"not null;default:false" json:"is_current"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableName keeps the single-row table name
func (Pot) TableName() string {
	return "pot"
}

// BeforeCreate assigns the pot ID
func (p *Pot) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// PotContribution is one settled payment added to the pot
type PotContribution struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID        uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	PaymentID     uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"payment_id"`
	PaymentIntent string          `gorm:"type:varchar(255);not null" json:"payment_intent"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Status        string          `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// BeforeCreate assigns the contribution ID
func (c *PotContribution) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
