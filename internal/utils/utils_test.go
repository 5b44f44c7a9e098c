package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACRoundTrip(t *testing.T) {
	sig := SignHMAC("1700000000.{\"id\":1}", "whsec")
	assert.Len(t, sig, 64)
	assert.True(t, VerifyHMAC("1700000000.{\"id\":1}", sig, "whsec"))
	assert.False(t, VerifyHMAC("1700000000.{\"id\":2}", sig, "whsec"))
	assert.False(t, VerifyHMAC("1700000000.{\"id\":1}", sig, "other"))
}

func TestTokenManager(t *testing.T) {
	m := NewTokenManager("secret", time.Minute, time.Hour)
	userID := uuid.New()

	pair, err := m.GenerateTokenPair(userID, "a@example.com", true)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(60), pair.ExpiresIn)

	claims, err := m.ValidateToken(pair.AccessToken, TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.True(t, claims.IsAdmin)

	_, err = m.ValidateToken(pair.AccessToken, TokenKindRefresh)
	assert.Error(t, err)

	_, err = m.ValidateToken(pair.RefreshToken, TokenKindRefresh)
	assert.NoError(t, err)

	other := NewTokenManager("different", time.Minute, time.Hour)
	_, err = other.ValidateToken(pair.AccessToken, TokenKindAccess)
	assert.Error(t, err)
}

func TestTokenManagerExpired(t *testing.T) {
	m := NewTokenManager("secret", time.Minute, time.Hour)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	pair, err := m.GenerateTokenPair(uuid.New(), "a@example.com", false)
	require.NoError(t, err)

	_, err = m.ValidateToken(pair.AccessToken, TokenKindAccess)
	assert.Error(t, err)
}

func TestGenerateReferralCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateReferralCode(ReferralCodeLength)
		require.NoError(t, err)
		assert.Len(t, code, ReferralCodeLength)
		assert.Regexp(t, "^[A-Z0-9]+$", code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)

	short, err := GenerateShortCode()
	require.NoError(t, err)
	assert.Regexp(t, "^[a-zA-Z0-9]{6}$", short)
}

func TestPasswords(t *testing.T) {
	assert.Error(t, ValidatePassword("short1"))
	assert.Error(t, ValidatePassword("onlyletters"))
	assert.NoError(t, ValidatePassword("letters123"))

	hash, err := HashPassword("letters123")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("letters123", hash))
	assert.False(t, CheckPasswordHash("letters124", hash))
}

func TestEmailHelpers(t *testing.T) {
	assert.True(t, IsValidEmail("santa@northpole.org"))
	assert.False(t, IsValidEmail("santa"))
	assert.False(t, IsValidEmail("santa@localhost"))
	assert.Equal(t, "santa", EmailLocalPart("santa@northpole.org"))
}

func TestTOTPKey(t *testing.T) {
	key, err := GenerateTOTPKey("Santa's Pot", "santa@northpole.org")
	require.NoError(t, err)
	assert.NotEmpty(t, key.Secret)
	assert.True(t, bytes.HasPrefix(key.QRCode, []byte("\x89PNG")))

	code, err := totp.GenerateCode(key.Secret, time.Now())
	require.NoError(t, err)
	assert.True(t, ValidateTOTP(key.Secret, code))
	assert.False(t, ValidateTOTP(key.Secret, "000000x"))
}
