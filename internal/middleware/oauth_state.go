package middleware

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/santaspot/backend/internal/utils"
)

// OAuthState protects the Google sign-in redirect with a signed state cookie
type OAuthState struct {
	Secret     string
	CookieName string
	MaxAge     int // seconds
	Secure     bool
}

// NewOAuthState returns a state helper with a ten minute cookie
func NewOAuthState(secret string, secure bool) *OAuthState {
	return &OAuthState{Secret: secret, CookieName: "oauth_state", MaxAge: 600, Secure: secure}
}

// Issue generates a state value and stores its signature in a cookie
func (s *OAuthState) Issue(c *gin.Context) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.CookieName, utils.SignHMAC(state, s.Secret), s.MaxAge, "/", "", s.Secure, true)
	return state, nil
}

// Verify checks state against the cookie and clears it
func (s *OAuthState) Verify(c *gin.Context, state string) bool {
	cookie, err := c.Cookie(s.CookieName)
	if err != nil || cookie == "" || state == "" {
		return false
	}
	c.SetCookie(s.CookieName, "", -1, "/", "", s.Secure, true)
	return utils.VerifyHMAC(state, cookie, s.Secret)
}
