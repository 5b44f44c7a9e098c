package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/models"
)

// CreateReferral inserts a referral. ErrDuplicate when the user was already referred.
func (s *Store) CreateReferral(ctx context.Context, referral *models.Referral) error {
	return mapError(s.conn(ctx).Create(referral).Error)
}

// GetReferralByReferred returns how a user arrived
func (s *Store) GetReferralByReferred(ctx context.Context, referredID uuid.UUID) (*models.Referral, error) {
	var referral models.Referral
	if err := s.conn(ctx).First(&referral, "referred_id = ?", referredID).Error; err != nil {
		return nil, mapError(err)
	}
	return &referral, nil
}

// ListReferralsByReferrer lists the users a referrer brought in, newest first
func (s *Store) ListReferralsByReferrer(ctx context.Context, referrerID uuid.UUID) ([]models.Referral, error) {
	var referrals []models.Referral
	err := s.conn(ctx).
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Find(&referrals).Error
	return referrals, mapError(err)
}

// CountCompletedReferrals counts the referrer's completed referrals
func (s *Store) CountCompletedReferrals(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Referral{}).
		Where("referrer_id = ? AND status = ?", referrerID, models.ReferralStatusCompleted).
		Count(&count).Error
	return count, mapError(err)
}

// CreateSettlement claims (reference, effect). ErrDuplicate when already claimed.
func (s *Store) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	return mapError(s.conn(ctx).Create(settlement).Error)
}
