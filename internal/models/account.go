package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account holds the credentials behind a profile. Its ID is shared with the profile.
type Account struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Email        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"column:password_hash;type:varchar(255)" json:"-"`
	GoogleID     *string    `gorm:"column:google_id;type:varchar(255);uniqueIndex" json:"-"`
	TOTPSecret   string     `gorm:"column:totp_secret;type:varchar(64)" json:"-"`
	TOTPEnabled  bool       `gorm:"column:totp_enabled;default:false" json:"totp_enabled"`
	IsAdmin      bool       `gorm:"default:false" json:"is_admin"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// BeforeCreate assigns the account ID
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
