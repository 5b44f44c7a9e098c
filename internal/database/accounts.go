package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateAccount inserts an account and its profile in one transaction
func (s *Store) CreateAccount(ctx context.Context, account *models.Account, profile *models.Profile) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.conn(ctx).Create(account).Error; err != nil {
			return mapError(err)
		}
		profile.ID = account.ID
		return mapError(s.conn(ctx).Create(profile).Error)
	})
}

// GetAccount fetches an account by ID
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := s.conn(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &account, nil
}

// GetAccountByEmail fetches an account by its email
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := s.conn(ctx).First(&account, "email = ?", email).Error; err != nil {
		return nil, mapError(err)
	}
	return &account, nil
}

// GetAccountByGoogleID fetches an account linked to a Google subject
func (s *Store) GetAccountByGoogleID(ctx context.Context, googleID string) (*models.Account, error) {
	var account models.Account
	if err := s.conn(ctx).First(&account, "google_id = ?", googleID).Error; err != nil {
		return nil, mapError(err)
	}
	return &account, nil
}

// LinkGoogleAccount attaches a Google subject to an existing account
func (s *Store) LinkGoogleAccount(ctx context.Context, id uuid.UUID, googleID string) error {
	return s.updateAccount(ctx, id, map[string]interface{}{"google_id": googleID})
}

// UpdateAccountTOTP stores the TOTP secret and whether it is enforced
func (s *Store) UpdateAccountTOTP(ctx context.Context, id uuid.UUID, secret string, enabled bool) error {
	return s.updateAccount(ctx, id, map[string]interface{}{
		"totp_secret":  secret,
		"totp_enabled": enabled,
	})
}

// UpdateLastLogin records a successful sign-in
func (s *Store) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.updateAccount(ctx, id, map[string]interface{}{"last_login_at": at})
}

func (s *Store) updateAccount(ctx context.Context, id uuid.UUID, values map[string]interface{}) error {
	result := s.conn(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProfile fetches a profile by user ID
func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := s.conn(ctx).First(&profile, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &profile, nil
}

// GetProfileByReferralCode resolves the owner of a referral code
func (s *Store) GetProfileByReferralCode(ctx context.Context, code string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.conn(ctx).First(&profile, "referral_code = ?", code).Error; err != nil {
		return nil, mapError(err)
	}
	return &profile, nil
}

// SetUsername sets the username once. ErrConflict when one is already set.
func (s *Store) SetUsername(ctx context.Context, id uuid.UUID, username string) error {
	result := s.conn(ctx).Model(&models.Profile{}).
		Where("id = ? AND username IS NULL", id).
		Update("username", username)
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetProfile(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// UsernameTaken reports whether another profile already uses username
func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Profile{}).Where("username = ?", username).Count(&count).Error
	return count > 0, mapError(err)
}

// IncrementEarnings adds amount to the profile's earnings and returns the new balance
func (s *Store) IncrementEarnings(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var profile models.Profile
	result := s.conn(ctx).Model(&profile).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "earnings"}}}).
		Where("id = ?", id).
		Update("earnings", gorm.Expr("earnings + ?", amount))
	if result.Error != nil {
		return decimal.Zero, mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return decimal.Zero, ErrNotFound
	}
	return profile.Earnings, nil
}

// DebitEarnings subtracts amount only when the balance covers it
func (s *Store) DebitEarnings(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var profile models.Profile
	result := s.conn(ctx).Model(&profile).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "earnings"}}}).
		Where("id = ? AND earnings >= ?", id, amount).
		Update("earnings", gorm.Expr("earnings - ?", amount))
	if result.Error != nil {
		return decimal.Zero, mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetProfile(ctx, id); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, ErrInsufficientFunds
	}
	return profile.Earnings, nil
}

// CountProfiles returns the number of registered users
func (s *Store) CountProfiles(ctx context.Context) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Profile{}).Count(&count).Error
	return count, mapError(err)
}

// SumEarnings returns the total credited to all users
func (s *Store) SumEarnings(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := s.conn(ctx).Model(&models.Profile{}).Select("SUM(earnings)").Scan(&total).Error
	if err != nil {
		return decimal.Zero, mapError(err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
