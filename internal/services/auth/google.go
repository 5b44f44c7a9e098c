package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/santaspot/backend/internal/config"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"go.uber.org/zap"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

var (
	ErrGoogleDisabled   = errors.New("google sign-in is not configured")
	ErrGoogleUnverified = errors.New("google account email is not verified")
	ErrGoogleExchange   = errors.New("google authorization failed")
)

// GoogleUser is the subset of the userinfo response we use
type GoogleUser struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// GoogleProvider runs the OAuth code exchange against Google
type GoogleProvider struct {
	conf        *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider returns nil when Google sign-in is not configured
func NewGoogleProvider(cfg config.GoogleConfig) *GoogleProvider {
	if !cfg.Enabled() {
		return nil
	}
	return &GoogleProvider{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// AuthCodeURL is where the browser is sent to consent
func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the user's Google identity
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*GoogleUser, error) {
	token, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGoogleExchange, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.conf.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch google user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo returned %d", ErrGoogleExchange, resp.StatusCode)
	}

	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode google user: %w", err)
	}
	if user.Subject == "" || user.Email == "" {
		return nil, fmt.Errorf("%w: incomplete user info", ErrGoogleExchange)
	}
	return &user, nil
}

// GoogleAuthURL returns the consent URL for state
func (s *Service) GoogleAuthURL(state string) (string, error) {
	if s.google == nil {
		return "", ErrGoogleDisabled
	}
	return s.google.AuthCodeURL(state), nil
}

// GoogleSignIn completes the OAuth flow. A known Google ID signs in; a verified email that
// matches an existing account is linked; otherwise a new account is created.
func (s *Service) GoogleSignIn(ctx context.Context, code string) (*Result, error) {
	if s.google == nil {
		return nil, ErrGoogleDisabled
	}
	user, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	account, err := s.store.GetAccountByGoogleID(ctx, user.Subject)
	if err == nil {
		return s.signInExisting(ctx, account)
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	if !user.EmailVerified {
		return nil, ErrGoogleUnverified
	}
	email := normalizeEmail(user.Email)

	account, err = s.store.GetAccountByEmail(ctx, email)
	if err == nil {
		if err := s.store.LinkGoogleAccount(ctx, account.ID, user.Subject); err != nil {
			return nil, fmt.Errorf("failed to link google account: %w", err)
		}
		subject := user.Subject
		account.GoogleID = &subject
		s.log.Info("google account linked", zap.String("user_id", account.ID.String()))
		return s.signInExisting(ctx, account)
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	subject := user.Subject
	account, profile, err := s.createAccount(ctx, &models.Account{Email: email, GoogleID: &subject})
	if err != nil {
		return nil, err
	}
	s.log.Info("account created via google", zap.String("user_id", account.ID.String()))
	return s.issue(ctx, account, profile, true)
}

func (s *Service) signInExisting(ctx context.Context, account *models.Account) (*Result, error) {
	profile, err := s.store.GetProfile(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return s.issue(ctx, account, profile, false)
}
