package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockClickKey serializes click tracking for one (ip, code) pair until the transaction ends
func (s *Store) LockClickKey(ctx context.Context, ip, code string) error {
	return mapError(s.conn(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", ip+"|"+code).Error)
}

// CountRecentClicks counts clicks from ip on code at or after since
func (s *Store) CountRecentClicks(ctx context.Context, ip, code string, since time.Time) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Click{}).
		Where("ip_address = ? AND referral_code = ? AND created_at >= ?", ip, code, since).
		Count(&count).Error
	return count, mapError(err)
}

// CreateClick inserts a click
func (s *Store) CreateClick(ctx context.Context, click *models.Click) error {
	return mapError(s.conn(ctx).Create(click).Error)
}

// CountClicksByUser counts clicks on the user's code
func (s *Store) CountClicksByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Click{}).Where("user_id = ?", userID).Count(&count).Error
	return count, mapError(err)
}

// TotalClicks counts all clicks
func (s *Store) TotalClicks(ctx context.Context) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Click{}).Count(&count).Error
	return count, mapError(err)
}

// CreateEarning inserts an earning entry
func (s *Store) CreateEarning(ctx context.Context, earning *models.Earning) error {
	return mapError(s.conn(ctx).Create(earning).Error)
}

// ListEarnings lists a user's earning entries, newest first
func (s *Store) ListEarnings(ctx context.Context, userID uuid.UUID, limit int) ([]models.Earning, error) {
	var earnings []models.Earning
	err := s.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&earnings).Error
	return earnings, mapError(err)
}

// GetUserStats returns the user's aggregate, zero-valued when none exists yet
func (s *Store) GetUserStats(ctx context.Context, userID uuid.UUID) (*models.UserStats, error) {
	stats := models.UserStats{UserID: userID}
	err := s.conn(ctx).Where("user_id = ?", userID).Limit(1).Find(&stats).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &stats, nil
}

// IncrementUserStats upserts the user's aggregate by delta and returns the result
func (s *Store) IncrementUserStats(ctx context.Context, userID uuid.UUID, delta models.StatsDelta) (*models.UserStats, error) {
	stats := models.UserStats{
		UserID:          userID,
		TotalEarned:     delta.TotalEarned,
		CompletedOffers: delta.CompletedOffers,
		Clicks:          delta.Clicks,
		UpdatedAt:       time.Now().UTC(),
	}
	err := s.conn(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"total_earned":     gorm.Expr("user_stats.total_earned + EXCLUDED.total_earned"),
					"completed_offers": gorm.Expr("user_stats.completed_offers + EXCLUDED.completed_offers"),
					"clicks":           gorm.Expr("user_stats.clicks + EXCLUDED.clicks"),
					"updated_at":       gorm.Expr("EXCLUDED.updated_at"),
				}),
			},
			clause.Returning{},
		).
		Create(&stats).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &stats, nil
}

// ListActiveOffers lists offers users can take
func (s *Store) ListActiveOffers(ctx context.Context, category string) ([]models.Offer, error) {
	var offers []models.Offer
	query := s.conn(ctx).Where("is_active = ?", true)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	err := query.Order("created_at ASC").Find(&offers).Error
	return offers, mapError(err)
}

// GetOffer fetches an offer by ID
func (s *Store) GetOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	if err := s.conn(ctx).First(&offer, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &offer, nil
}

// CreateOfferClick inserts an offer click
func (s *Store) CreateOfferClick(ctx context.Context, click *models.OfferClick) error {
	return mapError(s.conn(ctx).Create(click).Error)
}

// CreateShare inserts a share
func (s *Store) CreateShare(ctx context.Context, share *models.Share) error {
	return mapError(s.conn(ctx).Create(share).Error)
}

// CreateShortURL inserts a short link. ErrDuplicate on code collision.
func (s *Store) CreateShortURL(ctx context.Context, short *models.ShortURL) error {
	return mapError(s.conn(ctx).Create(short).Error)
}

// GetShortURL fetches a short link by code
func (s *Store) GetShortURL(ctx context.Context, code string) (*models.ShortURL, error) {
	var short models.ShortURL
	if err := s.conn(ctx).First(&short, "short_code = ?", code).Error; err != nil {
		return nil, mapError(err)
	}
	return &short, nil
}

// IncrementShortURLClicks bumps the short link's counter
func (s *Store) IncrementShortURLClicks(ctx context.Context, code string) error {
	result := s.conn(ctx).Model(&models.ShortURL{}).
		Where("short_code = ?", code).
		Update("clicks", gorm.Expr("clicks + 1"))
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateReferralClick logs a resolved short link
func (s *Store) CreateReferralClick(ctx context.Context, click *models.ReferralClick) error {
	return mapError(s.conn(ctx).Create(click).Error)
}
