package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/models"
	"github.com/santaspot/backend/internal/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Supported payout methods
var paymentMethods = map[string]bool{
	"paypal": true,
	"bank":   true,
	"crypto": true,
}

var (
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
	ErrInsufficientFunds    = errors.New("insufficient earnings")
	ErrTOTPRequired         = errors.New("a valid authenticator code is required")
	ErrNotFound             = errors.New("withdrawal not found")
	ErrAlreadyProcessed     = errors.New("withdrawal already processed")
)

// Store is the withdrawal persistence
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	IncrementEarnings(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	DebitEarnings(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)

	CreateWithdrawal(ctx context.Context, withdrawal *models.Withdrawal) error
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, userID uuid.UUID) ([]models.Withdrawal, error)
	ListWithdrawalsByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.Withdrawal, error)
	UpdateWithdrawalStatus(ctx context.Context, id uuid.UUID, status models.WithdrawalStatus, reason string) error
}

// Service handles payout requests against earnings
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService creates a withdrawal service
func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

// Request is a payout request from a user
type Request struct {
	Amount         decimal.Decimal
	PaymentMethod  string
	PaymentDetails map[string]interface{}
	TOTPCode       string
}

// RequestWithdrawal debits earnings and queues a pending withdrawal for review.
// The debit only succeeds while earnings cover the amount.
func (s *Service) RequestWithdrawal(ctx context.Context, userID uuid.UUID, req Request) (*models.Withdrawal, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !paymentMethods[method] {
		return nil, ErrInvalidPaymentMethod
	}

	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account.TOTPEnabled && !utils.ValidateTOTP(account.TOTPSecret, req.TOTPCode) {
		return nil, ErrTOTPRequired
	}

	withdrawal := &models.Withdrawal{
		UserID:         userID,
		Amount:         amount,
		PaymentMethod:  method,
		PaymentDetails: req.PaymentDetails,
		Status:         models.WithdrawalStatusPending,
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.DebitEarnings(ctx, userID, amount); err != nil {
			if errors.Is(err, database.ErrInsufficientFunds) {
				return ErrInsufficientFunds
			}
			return fmt.Errorf("failed to debit earnings: %w", err)
		}
		return s.store.CreateWithdrawal(ctx, withdrawal)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("withdrawal requested",
		zap.String("withdrawal_id", withdrawal.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("method", method))
	return withdrawal, nil
}

// ListWithdrawals returns the user's withdrawals, newest first
func (s *Service) ListWithdrawals(ctx context.Context, userID uuid.UUID) ([]models.Withdrawal, error) {
	return s.store.ListWithdrawals(ctx, userID)
}

// ListPending returns withdrawals awaiting review, oldest first
func (s *Service) ListPending(ctx context.Context) ([]models.Withdrawal, error) {
	return s.store.ListWithdrawalsByStatus(ctx, models.WithdrawalStatusPending)
}

// Complete marks a pending withdrawal as paid out
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	if err := s.resolve(ctx, id, models.WithdrawalStatusCompleted, ""); err != nil {
		return nil, err
	}
	s.log.Info("withdrawal completed", zap.String("withdrawal_id", id.String()))
	return s.store.GetWithdrawal(ctx, id)
}

// Reject declines a pending withdrawal and returns the amount to the user's earnings
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Withdrawal, error) {
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		withdrawal, err := s.store.GetWithdrawal(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := s.resolve(ctx, id, models.WithdrawalStatusRejected, reason); err != nil {
			return err
		}
		_, err = s.store.IncrementEarnings(ctx, withdrawal.UserID, withdrawal.Amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("withdrawal rejected", zap.String("withdrawal_id", id.String()), zap.String("reason", reason))
	return s.store.GetWithdrawal(ctx, id)
}

func (s *Service) resolve(ctx context.Context, id uuid.UUID, status models.WithdrawalStatus, reason string) error {
	err := s.store.UpdateWithdrawalStatus(ctx, id, status, reason)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, database.ErrConflict):
		return ErrAlreadyProcessed
	}
	return err
}
