package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/models"
)

// CreateDonation inserts a donation. ErrDuplicate when the tx hash is known.
func (s *Store) CreateDonation(ctx context.Context, donation *models.Donation) error {
	return mapError(s.conn(ctx).Create(donation).Error)
}

// ListPendingDonations lists donations still waiting for confirmations
func (s *Store) ListPendingDonations(ctx context.Context, limit int) ([]models.Donation, error) {
	var donations []models.Donation
	err := s.conn(ctx).
		Where("status = ?", models.DonationStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&donations).Error
	return donations, mapError(err)
}

// UpdateDonationStatus records new confirmations and status for a pending donation
func (s *Store) UpdateDonationStatus(ctx context.Context, id uuid.UUID, status models.DonationStatus, confirmations uint64) error {
	result := s.conn(ctx).Model(&models.Donation{}).
		Where("id = ? AND status = ?", id, models.DonationStatusPending).
		Updates(map[string]interface{}{
			"status":        status,
			"confirmations": confirmations,
		})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// CreateWithdrawal inserts a withdrawal request
func (s *Store) CreateWithdrawal(ctx context.Context, withdrawal *models.Withdrawal) error {
	return mapError(s.conn(ctx).Create(withdrawal).Error)
}

// GetWithdrawal fetches a withdrawal by ID
func (s *Store) GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := s.conn(ctx).First(&withdrawal, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &withdrawal, nil
}

// ListWithdrawals lists a user's withdrawals, newest first
func (s *Store) ListWithdrawals(ctx context.Context, userID uuid.UUID) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	err := s.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&withdrawals).Error
	return withdrawals, mapError(err)
}

// ListWithdrawalsByStatus lists withdrawals for review, oldest first
func (s *Store) ListWithdrawalsByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	err := s.conn(ctx).Where("status = ?", status).Order("created_at ASC").Find(&withdrawals).Error
	return withdrawals, mapError(err)
}

// UpdateWithdrawalStatus resolves a pending withdrawal. ErrConflict when it was already resolved.
func (s *Store) UpdateWithdrawalStatus(ctx context.Context, id uuid.UUID, status models.WithdrawalStatus, reason string) error {
	result := s.conn(ctx).Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, models.WithdrawalStatusPending).
		Updates(map[string]interface{}{
			"status":         status,
			"failure_reason": reason,
			"processed_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetWithdrawal(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}
