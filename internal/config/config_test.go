package config

import (
	"testing"
	"time"

	"github.com/santaspot/backend/internal/secrets"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("PUBLIC_URL", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("FRONTEND_URL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("REFERRAL_BONUS", "")

	cfg := Load(secrets.StaticSource{})

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Server.PublicURL)
	assert.Equal(t, "santaspot-development-secret", cfg.JWT.Secret)
	assert.True(t, cfg.Rewards.ReferralBonus.Equal(decimal.NewFromInt(50)))
	assert.True(t, cfg.Rewards.SignupBonus.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 24*time.Hour, cfg.Rewards.ClickDedupeWindow)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Security.CORSAllowedOrigins)
	assert.False(t, cfg.Google.Enabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PUBLIC_URL", "https://go.santaspot.example/")
	t.Setenv("FRONTEND_URL", "https://santaspot.example/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://santaspot.example, https://admin.santaspot.example ,")
	t.Setenv("REFERRAL_BONUS", "75.50")
	t.Setenv("POLL_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("RECONCILE_INTERVAL", "90s")
	t.Setenv("STRIPE_CURRENCY", "EUR")
	t.Setenv("ENVIRONMENT", "production")

	cfg := Load(secrets.StaticSource{
		"JWT_SECRET":           "from-vault",
		"GOOGLE_CLIENT_ID":     "client",
		"GOOGLE_CLIENT_SECRET": "secret",
	})

	assert.Equal(t, "https://go.santaspot.example", cfg.Server.PublicURL)
	assert.Equal(t, "https://santaspot.example", cfg.FrontendURL)
	assert.Equal(t, []string{"https://santaspot.example", "https://admin.santaspot.example"}, cfg.Security.CORSAllowedOrigins)
	assert.Equal(t, "75.5", cfg.Rewards.ReferralBonus.String())
	assert.Equal(t, 10, cfg.Poller.MaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.Poller.ReconcileInterval)
	assert.Equal(t, "eur", cfg.Stripe.Currency)
	assert.Equal(t, "from-vault", cfg.JWT.Secret)
	assert.True(t, cfg.Google.Enabled())
	assert.True(t, cfg.IsProduction())
}
