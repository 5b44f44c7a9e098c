// Package auth handles sign-up, sign-in, token refresh, Google sign-in and TOTP enrolment.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/models"
	"github.com/santaspot/backend/internal/utils"
	"go.uber.org/zap"
)

// referralCodeAttempts bounds retries on referral code collisions
const referralCodeAttempts = 5

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters and contain letters and digits")
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTOTPRequired       = errors.New("authenticator code required")
	ErrInvalidTOTP        = errors.New("invalid authenticator code")
	ErrTOTPNotSetup       = errors.New("authenticator is not set up")
	ErrTOTPEnabled        = errors.New("authenticator is already enabled")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Store is the account persistence
type Store interface {
	CreateAccount(ctx context.Context, account *models.Account, profile *models.Profile) error
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByGoogleID(ctx context.Context, googleID string) (*models.Account, error)
	LinkGoogleAccount(ctx context.Context, id uuid.UUID, googleID string) error
	UpdateAccountTOTP(ctx context.Context, id uuid.UUID, secret string, enabled bool) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// Service authenticates users and issues tokens
type Service struct {
	store      Store
	tokens     *utils.TokenManager
	google     *GoogleProvider
	totpIssuer string
	log        *zap.Logger
}

// NewService creates an auth service. google may be nil when Google sign-in is disabled.
func NewService(store Store, tokens *utils.TokenManager, google *GoogleProvider, totpIssuer string, log *zap.Logger) *Service {
	return &Service{store: store, tokens: tokens, google: google, totpIssuer: totpIssuer, log: log}
}

// Result is returned on successful authentication
type Result struct {
	Account *models.Account `json:"account"`
	Profile *models.Profile `json:"profile"`
	Tokens  utils.TokenPair `json:"tokens"`
	Created bool            `json:"created"`
}

// SignUp registers an email/password account with a fresh referral code
func (s *Service) SignUp(ctx context.Context, email, password string) (*Result, error) {
	email = normalizeEmail(email)
	if !utils.IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, ErrWeakPassword
	}
	if _, err := s.store.GetAccountByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account, profile, err := s.createAccount(ctx, &models.Account{Email: email, PasswordHash: hash})
	if err != nil {
		return nil, err
	}
	s.log.Info("account created", zap.String("user_id", account.ID.String()))
	return s.issue(ctx, account, profile, true)
}

// SignIn checks credentials and, when enabled, the authenticator code
func (s *Service) SignIn(ctx context.Context, email, password, totpCode string) (*Result, error) {
	account, err := s.store.GetAccountByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if account.PasswordHash == "" || !utils.CheckPasswordHash(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if account.TOTPEnabled {
		if totpCode == "" {
			return nil, ErrTOTPRequired
		}
		if !utils.ValidateTOTP(account.TOTPSecret, totpCode) {
			return nil, ErrInvalidTOTP
		}
	}

	profile, err := s.store.GetProfile(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return s.issue(ctx, account, profile, false)
}

// Refresh exchanges a refresh token for a new token pair
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	claims, err := s.tokens.ValidateToken(refreshToken, utils.TokenKindRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}
	account, err := s.store.GetAccount(ctx, claims.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	profile, err := s.store.GetProfile(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	pair, err := s.tokens.GenerateTokenPair(account.ID, account.Email, account.IsAdmin)
	if err != nil {
		return nil, err
	}
	return &Result{Account: account, Profile: profile, Tokens: pair}, nil
}

// ValidateAccessToken returns the claims of a valid access token
func (s *Service) ValidateAccessToken(token string) (*utils.Claims, error) {
	claims, err := s.tokens.ValidateToken(token, utils.TokenKindAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SetupTOTP generates a new authenticator secret. It stays disabled until EnableTOTP.
func (s *Service) SetupTOTP(ctx context.Context, userID uuid.UUID) (*utils.TOTPKey, error) {
	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account.TOTPEnabled {
		return nil, ErrTOTPEnabled
	}

	key, err := utils.GenerateTOTPKey(s.totpIssuer, account.Email)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateAccountTOTP(ctx, userID, key.Secret, false); err != nil {
		return nil, fmt.Errorf("failed to store authenticator secret: %w", err)
	}
	return key, nil
}

// EnableTOTP turns on the authenticator after checking a code from it
func (s *Service) EnableTOTP(ctx context.Context, userID uuid.UUID, code string) error {
	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return err
	}
	if account.TOTPEnabled {
		return ErrTOTPEnabled
	}
	if account.TOTPSecret == "" {
		return ErrTOTPNotSetup
	}
	if !utils.ValidateTOTP(account.TOTPSecret, code) {
		return ErrInvalidTOTP
	}
	if err := s.store.UpdateAccountTOTP(ctx, userID, account.TOTPSecret, true); err != nil {
		return err
	}
	s.log.Info("authenticator enabled", zap.String("user_id", userID.String()))
	return nil
}

// createAccount inserts the account and profile, drawing a new referral code on collision
func (s *Service) createAccount(ctx context.Context, account *models.Account) (*models.Account, *models.Profile, error) {
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := utils.GenerateReferralCode(utils.ReferralCodeLength)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate referral code: %w", err)
		}

		profile := &models.Profile{ReferralCode: code}
		err = s.store.CreateAccount(ctx, account, profile)
		if err == nil {
			return account, profile, nil
		}
		if !errors.Is(err, database.ErrDuplicate) {
			return nil, nil, fmt.Errorf("failed to create account: %w", err)
		}
		if _, err := s.store.GetAccountByEmail(ctx, account.Email); err == nil {
			return nil, nil, ErrEmailTaken
		}
		account.ID = uuid.Nil
	}
	return nil, nil, fmt.Errorf("no free referral code after %d attempts", referralCodeAttempts)
}

func (s *Service) issue(ctx context.Context, account *models.Account, profile *models.Profile, created bool) (*Result, error) {
	pair, err := s.tokens.GenerateTokenPair(account.ID, account.Email, account.IsAdmin)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.store.UpdateLastLogin(ctx, account.ID, now); err != nil {
		s.log.Warn("failed to record sign-in", zap.String("user_id", account.ID.String()), zap.Error(err))
	} else {
		account.LastLoginAt = &now
	}
	return &Result{Account: account, Profile: profile, Tokens: pair, Created: created}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
