// Package tracking records referral clicks, offer clicks and shares, and serves stats.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/config"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/metrics"
	"github.com/santaspot/backend/internal/models"
	"github.com/santaspot/backend/internal/realtime"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const recentEarningsLimit = 10

var (
	ErrDuplicateClick  = errors.New("click already recorded for this visitor")
	ErrUnknownCode     = errors.New("unknown referral code")
	ErrOfferNotFound   = errors.New("offer not found")
	ErrInvalidPlatform = errors.New("platform is required")
)

// Store is the persistence used for tracking and stats
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetProfileByReferralCode(ctx context.Context, code string) (*models.Profile, error)
	CountProfiles(ctx context.Context) (int64, error)
	SumEarnings(ctx context.Context) (decimal.Decimal, error)
	CountCompletedReferrals(ctx context.Context, referrerID uuid.UUID) (int64, error)
	GetCurrentPot(ctx context.Context) (*models.Pot, error)

	LockClickKey(ctx context.Context, ip, code string) error
	CountRecentClicks(ctx context.Context, ip, code string, since time.Time) (int64, error)
	CreateClick(ctx context.Context, click *models.Click) error
	CountClicksByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	TotalClicks(ctx context.Context) (int64, error)
	CreateEarning(ctx context.Context, earning *models.Earning) error
	ListEarnings(ctx context.Context, userID uuid.UUID, limit int) ([]models.Earning, error)
	GetUserStats(ctx context.Context, userID uuid.UUID) (*models.UserStats, error)
	IncrementUserStats(ctx context.Context, userID uuid.UUID, delta models.StatsDelta) (*models.UserStats, error)

	ListActiveOffers(ctx context.Context, category string) ([]models.Offer, error)
	GetOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	CreateOfferClick(ctx context.Context, click *models.OfferClick) error
	CreateShare(ctx context.Context, share *models.Share) error
}

// Publisher pushes per-user stats changes
type Publisher interface {
	PublishUserStats(ctx context.Context, change realtime.StatsChange) error
}

// Service implements click, offer and share tracking
type Service struct {
	store   Store
	pub     Publisher
	rewards config.RewardsConfig
	log     *zap.Logger
	metrics *metrics.Metrics

	now  func() time.Time
	rand func() float64
}

// NewService creates a tracking service
func NewService(store Store, pub Publisher, rewards config.RewardsConfig, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		pub:     pub,
		rewards: rewards,
		log:     log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		rand:    rand.Float64,
	}
}

// ClickInput identifies a visit through a referral code
type ClickInput struct {
	ReferralCode string
	IPAddress    string
	UserAgent    string
}

// TrackClick records a visit and credits a pending click reward to the code's owner.
// A repeat visit from the same address within the dedupe window writes nothing.
func (s *Service) TrackClick(ctx context.Context, in ClickInput) (*models.Click, error) {
	code := strings.TrimSpace(in.ReferralCode)
	if code == "" {
		s.metrics.RecordClick("rejected")
		return nil, ErrUnknownCode
	}

	var click *models.Click
	var stats *models.UserStats
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockClickKey(ctx, in.IPAddress, code); err != nil {
			return fmt.Errorf("failed to lock click key: %w", err)
		}

		owner, err := s.store.GetProfileByReferralCode(ctx, code)
		if errors.Is(err, database.ErrNotFound) {
			return ErrUnknownCode
		}
		if err != nil {
			return err
		}

		recent, err := s.store.CountRecentClicks(ctx, in.IPAddress, code, s.now().Add(-s.rewards.ClickDedupeWindow))
		if err != nil {
			return fmt.Errorf("failed to check recent clicks: %w", err)
		}
		if recent > 0 {
			return ErrDuplicateClick
		}

		click = &models.Click{
			UserID:       owner.ID,
			ReferralCode: code,
			IPAddress:    in.IPAddress,
			UserAgent:    in.UserAgent,
		}
		if err := s.store.CreateClick(ctx, click); err != nil {
			return fmt.Errorf("failed to record click: %w", err)
		}
		if err := s.store.CreateEarning(ctx, &models.Earning{
			UserID: owner.ID,
			Amount: s.rewards.ClickReward,
			Type:   models.EarningTypeClick,
			Status: models.EarningStatusPending,
		}); err != nil {
			return fmt.Errorf("failed to record click earning: %w", err)
		}
		stats, err = s.store.IncrementUserStats(ctx, owner.ID, models.StatsDelta{Clicks: 1})
		return err
	})

	switch {
	case errors.Is(err, ErrDuplicateClick):
		s.metrics.RecordClick("duplicate")
		return nil, err
	case errors.Is(err, ErrUnknownCode):
		s.metrics.RecordClick("rejected")
		return nil, err
	case err != nil:
		return nil, err
	}

	s.metrics.RecordClick("recorded")
	s.publish(ctx, stats)
	return click, nil
}

// ListOffers returns active offers, optionally in one category
func (s *Service) ListOffers(ctx context.Context, category string) ([]models.Offer, error) {
	return s.store.ListActiveOffers(ctx, strings.TrimSpace(category))
}

// TrackOfferClick records an offer visit. The reward varies uniformly within +/-25% of the
// offer's base reward and is added to the user's stats with one completed offer.
func (s *Service) TrackOfferClick(ctx context.Context, userID, offerID uuid.UUID, ipAddress, userAgent string) (*models.OfferClick, error) {
	offer, err := s.store.GetOffer(ctx, offerID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	if !offer.IsActive {
		return nil, ErrOfferNotFound
	}

	multiplier := decimal.NewFromFloat(0.75 + s.rand()*0.5)
	reward := offer.Reward.Mul(multiplier).Round(2)

	click := &models.OfferClick{
		UserID:    userID,
		OfferID:   offer.ID,
		Reward:    reward,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	var stats *models.UserStats
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateOfferClick(ctx, click); err != nil {
			return fmt.Errorf("failed to record offer click: %w", err)
		}
		stats, err = s.store.IncrementUserStats(ctx, userID, models.StatsDelta{
			TotalEarned:     reward,
			CompletedOffers: 1,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("offer click tracked",
		zap.String("user_id", userID.String()),
		zap.String("offer_id", offer.ID.String()),
		zap.String("reward", reward.StringFixed(2)))
	s.publish(ctx, stats)
	return click, nil
}

// RecordShare stores that a user shared their link on platform
func (s *Service) RecordShare(ctx context.Context, userID uuid.UUID, platform string) (*models.Share, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return nil, ErrInvalidPlatform
	}
	share := &models.Share{UserID: userID, Platform: platform}
	if err := s.store.CreateShare(ctx, share); err != nil {
		return nil, fmt.Errorf("failed to record share: %w", err)
	}
	return share, nil
}

// Dashboard is a user's summary
type Dashboard struct {
	Earnings           decimal.Decimal   `json:"earnings"`
	Clicks             int64             `json:"clicks"`
	CompletedReferrals int64             `json:"completed_referrals"`
	PotTotal           decimal.Decimal   `json:"pot_total"`
	Stats              *models.UserStats `json:"stats"`
	RecentEarnings     []models.Earning  `json:"recent_earnings"`
}

// Dashboard collects the caller's earnings, activity and the pot total
func (s *Service) Dashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	clicks, err := s.store.CountClicksByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	referrals, err := s.store.CountCompletedReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}
	pot, err := s.store.GetCurrentPot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pot: %w", err)
	}
	stats, err := s.store.GetUserStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.ListEarnings(ctx, userID, recentEarningsLimit)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Earnings:           profile.Earnings,
		Clicks:             clicks,
		CompletedReferrals: referrals,
		PotTotal:           pot.TotalAmount,
		Stats:              stats,
		RecentEarnings:     recent,
	}, nil
}

// LiveStats are the public site-wide counters
type LiveStats struct {
	TotalUsers    int64           `json:"total_users"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	TotalClicks   int64           `json:"total_clicks"`
	PotTotal      decimal.Decimal `json:"pot_total"`
}

// LiveStats returns the site-wide counters
func (s *Service) LiveStats(ctx context.Context) (*LiveStats, error) {
	users, err := s.store.CountProfiles(ctx)
	if err != nil {
		return nil, err
	}
	earnings, err := s.store.SumEarnings(ctx)
	if err != nil {
		return nil, err
	}
	clicks, err := s.store.TotalClicks(ctx)
	if err != nil {
		return nil, err
	}
	pot, err := s.store.GetCurrentPot(ctx)
	if err != nil {
		return nil, err
	}
	return &LiveStats{
		TotalUsers:    users,
		TotalEarnings: earnings,
		TotalClicks:   clicks,
		PotTotal:      pot.TotalAmount,
	}, nil
}

func (s *Service) publish(ctx context.Context, stats *models.UserStats) {
	if stats == nil || s.pub == nil {
		return
	}
	change := realtime.StatsChange{
		UserID:          stats.UserID,
		TotalEarned:     stats.TotalEarned,
		CompletedOffers: stats.CompletedOffers,
		Clicks:          stats.Clicks,
		At:              s.now(),
	}
	if profile, err := s.store.GetProfile(ctx, stats.UserID); err == nil {
		change.Earnings = profile.Earnings
	}
	if err := s.pub.PublishUserStats(ctx, change); err != nil {
		s.log.Warn("failed to publish stats change", zap.String("user_id", stats.UserID.String()), zap.Error(err))
	}
}
