// Package referral manages profile completion, referral links and short links.
package referral

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/models"
	"github.com/santaspot/backend/internal/services/settlement"
	"github.com/santaspot/backend/internal/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
	shortCodeAttempts = 5
	referralParam     = "referral"
)

var (
	ErrInvalidUsername  = errors.New("username must be at least 3 characters")
	ErrUsernameTaken    = errors.New("username is already taken")
	ErrProfileCompleted = errors.New("profile is already complete")
	ErrInvalidLink      = errors.New("link has no referral code")
	ErrLinkNotFound     = errors.New("short link not found")
	ErrProfileNotFound  = errors.New("profile not found")
)

// Store is the persistence used by the referral service
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	SetUsername(ctx context.Context, id uuid.UUID, username string) error
	UsernameTaken(ctx context.Context, username string) (bool, error)
	ListReferralsByReferrer(ctx context.Context, referrerID uuid.UUID) ([]models.Referral, error)
	GetReferralByReferred(ctx context.Context, referredID uuid.UUID) (*models.Referral, error)

	CreateShortURL(ctx context.Context, short *models.ShortURL) error
	GetShortURL(ctx context.Context, code string) (*models.ShortURL, error)
	IncrementShortURLClicks(ctx context.Context, code string) error
	CreateReferralClick(ctx context.Context, click *models.ReferralClick) error
}

// Rewarder credits profile completion bonuses
type Rewarder interface {
	ApplySignupBonus(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ApplyReferralBonus(ctx context.Context, referredID uuid.UUID, code string) (*settlement.ReferralResult, error)
}

// Service implements the referral features
type Service struct {
	store       Store
	rewards     Rewarder
	frontendURL string
	log         *zap.Logger

	newShortCode func() (string, error)
}

// NewService creates a referral service. Links point at frontendURL.
func NewService(store Store, rewards Rewarder, frontendURL string, log *zap.Logger) *Service {
	return &Service{
		store:        store,
		rewards:      rewards,
		frontendURL:  strings.TrimRight(frontendURL, "/"),
		log:          log,
		newShortCode: utils.GenerateShortCode,
	}
}

// ProfileView is a profile with the username suggestion for incomplete profiles
type ProfileView struct {
	*models.Profile
	Email             string `json:"email"`
	SuggestedUsername string `json:"suggested_username,omitempty"`
	ReferralLink      string `json:"referral_link"`
	ReferredBy        string `json:"referred_by,omitempty"`
}

// GetProfile returns the caller's profile
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*ProfileView, error) {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	view := &ProfileView{
		Profile:      profile,
		Email:        account.Email,
		ReferralLink: s.GenerateReferralLink(profile.ReferralCode),
	}
	if !profile.HasUsername() {
		view.SuggestedUsername = NormalizeUsername(utils.EmailLocalPart(account.Email))
	}

	switch referral, err := s.store.GetReferralByReferred(ctx, userID); {
	case errors.Is(err, database.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load referral: %w", err)
	default:
		view.ReferredBy = referral.ReferralCodeUsed
	}
	return view, nil
}

// CompletionResult describes a completed profile
type CompletionResult struct {
	Profile  *models.Profile            `json:"profile"`
	Referral *settlement.ReferralResult `json:"referral,omitempty"`
}

// CompleteProfile sets the username once, credits the signup bonus and records the
// referral code the user arrived with. Everything commits together.
func (s *Service) CompleteProfile(ctx context.Context, userID uuid.UUID, username, referralCode string) (*CompletionResult, error) {
	username = NormalizeUsername(username)
	if len(username) < minUsernameLength {
		return nil, ErrInvalidUsername
	}

	var result CompletionResult
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		taken, err := s.store.UsernameTaken(ctx, username)
		if err != nil {
			return err
		}
		if taken {
			return ErrUsernameTaken
		}

		switch err := s.store.SetUsername(ctx, userID, username); {
		case errors.Is(err, database.ErrConflict):
			return ErrProfileCompleted
		case errors.Is(err, database.ErrDuplicate):
			return ErrUsernameTaken
		case errors.Is(err, database.ErrNotFound):
			return ErrProfileNotFound
		case err != nil:
			return fmt.Errorf("failed to set username: %w", err)
		}

		switch _, err := s.rewards.ApplySignupBonus(ctx, userID); {
		case errors.Is(err, settlement.ErrAlreadySettled):
			return ErrProfileCompleted
		case err != nil:
			return err
		}

		if strings.TrimSpace(referralCode) != "" {
			if result.Referral, err = s.rewards.ApplyReferralBonus(ctx, userID, referralCode); err != nil {
				return err
			}
		}

		result.Profile, err = s.store.GetProfile(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("profile completed",
		zap.String("user_id", userID.String()),
		zap.String("username", username),
		zap.Bool("referred", result.Referral != nil && result.Referral.BonusApplied))
	return &result, nil
}

// NormalizeUsername lowercases and slugifies a requested username
func NormalizeUsername(username string) string {
	normalized := slug.Make(strings.TrimSpace(username))
	if len(normalized) > maxUsernameLength {
		normalized = strings.Trim(normalized[:maxUsernameLength], "-")
	}
	return normalized
}

// GenerateReferralLink builds the signup link carrying code
func (s *Service) GenerateReferralLink(code string) string {
	return s.frontendURL + "/signup?" + url.Values{referralParam: {code}}.Encode()
}

// ParseReferralLink extracts the referral code from a signup link
func ParseReferralLink(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	code := u.Query().Get(referralParam)
	if code == "" {
		return "", ErrInvalidLink
	}
	return code, nil
}

// ReferralLink returns the caller's referral link
func (s *Service) ReferralLink(ctx context.Context, userID uuid.UUID) (string, error) {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.GenerateReferralLink(profile.ReferralCode), nil
}

// ReferralQR renders the caller's referral link as a PNG QR code
func (s *Service) ReferralQR(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	link, err := s.ReferralLink(ctx, userID)
	if err != nil {
		return nil, err
	}
	return utils.QRCodePNG(link)
}

// ListReferrals returns the referrals credited to userID, newest first
func (s *Service) ListReferrals(ctx context.Context, userID uuid.UUID) ([]models.Referral, error) {
	return s.store.ListReferralsByReferrer(ctx, userID)
}

// CreateShortLink creates a short code for the caller's referral link
func (s *Service) CreateShortLink(ctx context.Context, userID uuid.UUID) (*models.ShortURL, error) {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < shortCodeAttempts; attempt++ {
		code, err := s.newShortCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate short code: %w", err)
		}

		short := &models.ShortURL{
			ShortCode:    code,
			LongURL:      s.GenerateReferralLink(profile.ReferralCode),
			ReferralCode: profile.ReferralCode,
		}
		err = s.store.CreateShortURL(ctx, short)
		if errors.Is(err, database.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create short link: %w", err)
		}
		return short, nil
	}
	return nil, fmt.Errorf("no free short code after %d attempts", shortCodeAttempts)
}

// ResolveShortLink logs the visit and returns the target URL
func (s *Service) ResolveShortLink(ctx context.Context, code, ipAddress, userAgent string) (string, error) {
	short, err := s.store.GetShortURL(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return "", ErrLinkNotFound
	}
	if err != nil {
		return "", err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateReferralClick(ctx, &models.ReferralClick{
			ShortCode:    short.ShortCode,
			ReferralCode: short.ReferralCode,
			UserAgent:    userAgent,
			IPAddress:    ipAddress,
		}); err != nil {
			return err
		}
		return s.store.IncrementShortURLClicks(ctx, short.ShortCode)
	})
	if err != nil {
		return "", fmt.Errorf("failed to record short link visit: %w", err)
	}
	return short.LongURL, nil
}

func (s *Service) loadProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	return profile, err
}
