// Package settlement applies monetary effects exactly once. Each effect claims a
// (reference, effect) row in the settlement ledger inside the same transaction that
// moves the money, so retries, redeliveries and concurrent triggers collapse into one.
package settlement

import (
	"context"
	"errors"
	"fmt"
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

var (
	ErrAlreadySettled  = errors.New("already settled")
	ErrAlreadyReferred = errors.New("user already referred")
	ErrNoReferralCode  = errors.New("referral code is empty")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrPaymentFailed   = errors.New("payment has failed")
)

// Store is the persistence the settlement workflow needs
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	AfterCommit(ctx context.Context, fn func())

	GetProfileByReferralCode(ctx context.Context, code string) (*models.Profile, error)
	IncrementEarnings(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	CreateReferral(ctx context.Context, referral *models.Referral) error
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error
	CreateEarning(ctx context.Context, earning *models.Earning) error
	IncrementUserStats(ctx context.Context, userID uuid.UUID, delta models.StatsDelta) (*models.UserStats, error)

	GetPaymentByIntent(ctx context.Context, intent string) (*models.Payment, error)
	CreateContribution(ctx context.Context, contribution *models.PotContribution) error
	IncrementPot(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)
	UpdatePaymentStatus(ctx context.Context, intent string, from []models.PaymentStatus, to models.PaymentStatus, reason string) (bool, error)
}

// Publisher pushes aggregate changes to subscribers
type Publisher interface {
	PublishPot(ctx context.Context, change realtime.PotChange) error
	PublishUserStats(ctx context.Context, change realtime.StatsChange) error
}

// Service runs the reward settlement workflow
type Service struct {
	store   Store
	pub     Publisher
	rewards config.RewardsConfig
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewService creates a settlement service
func NewService(store Store, pub Publisher, rewards config.RewardsConfig, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, pub: pub, rewards: rewards, log: log, metrics: m}
}

// ReferralResult describes what ApplyReferralBonus did
type ReferralResult struct {
	Referral         models.Referral   `json:"referral"`
	BonusApplied     bool              `json:"bonus_applied"`
	ReferrerEarnings decimal.Decimal   `json:"-"`
	ReferrerStats    *models.UserStats `json:"-"`
}

// ApplyReferralBonus records how referredID arrived and credits the code's owner once.
// Unknown codes and self-referrals record a pending referral without a bonus.
func (s *Service) ApplyReferralBonus(ctx context.Context, referredID uuid.UUID, code string) (*ReferralResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNoReferralCode
	}

	bonus := s.rewards.ReferralBonus
	var result ReferralResult

	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		referrer, err := s.store.GetProfileByReferralCode(ctx, code)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("failed to resolve referral code: %w", err)
		}

		if referrer == nil || referrer.ID == referredID {
			result.Referral = models.Referral{
				ReferredID:       referredID,
				ReferralCodeUsed: code,
				Status:           models.ReferralStatusPending,
			}
			return s.createReferral(ctx, &result.Referral)
		}

		if err := s.claim(ctx, referredID.String(), models.EffectReferralBonus, referrer.ID, bonus); err != nil {
			return err
		}

		earnings, err := s.store.IncrementEarnings(ctx, referrer.ID, bonus)
		if err != nil {
			return fmt.Errorf("failed to credit referrer: %w", err)
		}
		if err := s.store.CreateEarning(ctx, &models.Earning{
			UserID: referrer.ID,
			Amount: bonus,
			Type:   models.EarningTypeReferral,
			Status: models.EarningStatusCompleted,
		}); err != nil {
			return fmt.Errorf("failed to record referral earning: %w", err)
		}
		stats, err := s.store.IncrementUserStats(ctx, referrer.ID, models.StatsDelta{TotalEarned: bonus})
		if err != nil {
			return fmt.Errorf("failed to update referrer stats: %w", err)
		}

		referrerID := referrer.ID
		result.Referral = models.Referral{
			ReferrerID:       &referrerID,
			ReferredID:       referredID,
			ReferralCodeUsed: code,
			Status:           models.ReferralStatusCompleted,
		}
		if err := s.createReferral(ctx, &result.Referral); err != nil {
			return err
		}

		result.BonusApplied = true
		result.ReferrerEarnings = earnings
		result.ReferrerStats = stats
		return nil
	})
	if err != nil {
		s.metrics.RecordSettlement(string(models.EffectReferralBonus), outcome(err))
		return nil, err
	}

	if !result.BonusApplied {
		s.metrics.RecordSettlement(string(models.EffectReferralBonus), "pending")
		s.log.Info("referral recorded without bonus",
			zap.String("referred_id", referredID.String()), zap.String("code", code))
		return &result, nil
	}

	s.metrics.RecordSettlement(string(models.EffectReferralBonus), "applied")
	s.log.Info("referral bonus applied",
		zap.String("referrer_id", result.Referral.ReferrerID.String()),
		zap.String("referred_id", referredID.String()),
		zap.String("amount", bonus.StringFixed(2)))
	s.store.AfterCommit(ctx, func() {
		s.publishStats(ctx, result.ReferrerStats, result.ReferrerEarnings)
	})
	return &result, nil
}

// ApplySignupBonus credits a new user's one-time welcome bonus
func (s *Service) ApplySignupBonus(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	bonus := s.rewards.SignupBonus
	var earnings decimal.Decimal
	var stats *models.UserStats

	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.claim(ctx, userID.String(), models.EffectSignupBonus, userID, bonus); err != nil {
			return err
		}

		var err error
		earnings, err = s.store.IncrementEarnings(ctx, userID, bonus)
		if err != nil {
			return fmt.Errorf("failed to credit signup bonus: %w", err)
		}
		if err := s.store.CreateEarning(ctx, &models.Earning{
			UserID: userID,
			Amount: bonus,
			Type:   models.EarningTypeSignup,
			Status: models.EarningStatusCompleted,
		}); err != nil {
			return fmt.Errorf("failed to record signup earning: %w", err)
		}
		stats, err = s.store.IncrementUserStats(ctx, userID, models.StatsDelta{TotalEarned: bonus})
		return err
	})
	s.metrics.RecordSettlement(string(models.EffectSignupBonus), outcome(err))
	if err != nil {
		return decimal.Zero, err
	}

	s.store.AfterCommit(ctx, func() {
		s.publishStats(ctx, stats, earnings)
	})
	return earnings, nil
}

// PaymentResult describes a settled payment
type PaymentResult struct {
	Payment  models.Payment
	PotTotal decimal.Decimal
	Earnings decimal.Decimal
}

// SettlePayment adds a confirmed payment to the pot and completes it. source names the trigger
// (webhook, redirect, poller) for logs and metrics.
func (s *Service) SettlePayment(ctx context.Context, intent, source string) (*PaymentResult, error) {
	var result PaymentResult

	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		payment, err := s.store.GetPaymentByIntent(ctx, intent)
		if err != nil {
			return fmt.Errorf("failed to load payment %s: %w", intent, err)
		}
		switch payment.Status {
		case models.PaymentStatusCompleted:
			return ErrAlreadySettled
		case models.PaymentStatusFailed:
			return ErrPaymentFailed
		}
		if !payment.Amount.IsPositive() {
			return ErrInvalidAmount
		}

		if err := s.claim(ctx, intent, models.EffectPotContribution, payment.UserID, payment.Amount); err != nil {
			return err
		}

		err = s.store.CreateContribution(ctx, &models.PotContribution{
			UserID:        payment.UserID,
			PaymentID:     payment.ID,
			PaymentIntent: intent,
			Amount:        payment.Amount,
			Status:        string(models.PaymentStatusCompleted),
		})
		if errors.Is(err, database.ErrDuplicate) {
			return ErrAlreadySettled
		}
		if err != nil {
			return fmt.Errorf("failed to record contribution: %w", err)
		}

		if result.Earnings, err = s.store.IncrementEarnings(ctx, payment.UserID, payment.Amount); err != nil {
			return fmt.Errorf("failed to credit contributor: %w", err)
		}
		if result.PotTotal, err = s.store.IncrementPot(ctx, payment.Amount); err != nil {
			return fmt.Errorf("failed to increment pot: %w", err)
		}

		moved, err := s.store.UpdatePaymentStatus(ctx, intent,
			models.SourcesFor(models.PaymentStatusCompleted), models.PaymentStatusCompleted, "")
		if err != nil {
			return fmt.Errorf("failed to complete payment: %w", err)
		}
		if !moved {
			return fmt.Errorf("payment %s: %w", intent, database.ErrConflict)
		}

		result.Payment = *payment
		result.Payment.Status = models.PaymentStatusCompleted
		return nil
	})
	if err != nil {
		s.metrics.RecordSettlement(string(models.EffectPotContribution), outcome(err))
		return nil, err
	}

	s.metrics.RecordSettlement(string(models.EffectPotContribution), "applied")
	s.metrics.RecordPaymentStatus(string(models.PaymentStatusCompleted), source)
	s.metrics.SetPotTotal(result.PotTotal.InexactFloat64())
	s.log.Info("payment settled",
		zap.String("payment_intent", intent),
		zap.String("source", source),
		zap.String("amount", result.Payment.Amount.StringFixed(2)),
		zap.String("pot_total", result.PotTotal.StringFixed(2)))

	s.store.AfterCommit(ctx, func() {
		if err := s.pub.PublishPot(ctx, realtime.PotChange{
			TotalAmount: result.PotTotal,
			Delta:       result.Payment.Amount,
			At:          time.Now().UTC(),
		}); err != nil {
			s.log.Warn("failed to publish pot change", zap.Error(err))
		}
	})
	return &result, nil
}

// claim inserts the ledger row for (reference, effect)
func (s *Service) claim(ctx context.Context, reference string, effect models.SettlementEffect, userID uuid.UUID, amount decimal.Decimal) error {
	err := s.store.CreateSettlement(ctx, &models.Settlement{
		Reference: reference,
		Effect:    effect,
		UserID:    userID,
		Amount:    amount,
	})
	if errors.Is(err, database.ErrDuplicate) {
		return ErrAlreadySettled
	}
	if err != nil {
		return fmt.Errorf("failed to record %s settlement: %w", effect, err)
	}
	return nil
}

func (s *Service) createReferral(ctx context.Context, referral *models.Referral) error {
	err := s.store.CreateReferral(ctx, referral)
	if errors.Is(err, database.ErrDuplicate) {
		return ErrAlreadyReferred
	}
	if err != nil {
		return fmt.Errorf("failed to record referral: %w", err)
	}
	return nil
}

func (s *Service) publishStats(ctx context.Context, stats *models.UserStats, earnings decimal.Decimal) {
	if stats == nil {
		return
	}
	err := s.pub.PublishUserStats(ctx, realtime.StatsChange{
		UserID:          stats.UserID,
		TotalEarned:     stats.TotalEarned,
		CompletedOffers: stats.CompletedOffers,
		Clicks:          stats.Clicks,
		Earnings:        earnings,
		At:              time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("failed to publish stats change", zap.String("user_id", stats.UserID.String()), zap.Error(err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrAlreadySettled), errors.Is(err, ErrAlreadyReferred):
		return "duplicate"
	default:
		return "failed"
	}
}
