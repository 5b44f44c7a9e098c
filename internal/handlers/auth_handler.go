package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/middleware"
	"github.com/santaspot/backend/internal/security"
	"github.com/santaspot/backend/internal/services/auth"
	"github.com/santaspot/backend/internal/utils"
	"go.uber.org/zap"
)

// AuthService is what the auth endpoints need
type AuthService interface {
	SignUp(ctx context.Context, email, password string) (*auth.Result, error)
	SignIn(ctx context.Context, email, password, totpCode string) (*auth.Result, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Result, error)
	GoogleAuthURL(state string) (string, error)
	GoogleSignIn(ctx context.Context, code string) (*auth.Result, error)
	SetupTOTP(ctx context.Context, userID uuid.UUID) (*utils.TOTPKey, error)
	EnableTOTP(ctx context.Context, userID uuid.UUID, code string) error
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	auth  AuthService
	state *middleware.OAuthState
	guard *security.SignInGuard
	log   *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc AuthService, state *middleware.OAuthState, log *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, state: state, log: log}
}

// WithSignInGuard enables lockout after repeated failed sign-ins
func (h *AuthHandler) WithSignInGuard(guard *security.SignInGuard) *AuthHandler {
	h.guard = guard
	return h
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code"`
}

// SignUp registers a new account
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	res, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// SignIn authenticates with email and password
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	if blocked, until := h.guard.Blocked(req.Email, c.ClientIP()); blocked {
		retry := int(time.Until(until).Seconds()) + 1
		c.Header("Retry-After", strconv.Itoa(retry))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many failed sign-in attempts"})
		return
	}

	res, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password, req.TOTPCode)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrInvalidTOTP) {
			h.guard.RecordFailure(req.Email, c.ClientIP())
		}
		respondError(c, h.log, err)
		return
	}
	h.guard.Reset(req.Email)
	c.JSON(http.StatusOK, res)
}

// Refresh issues a new token pair
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh_token is required")
		return
	}

	res, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GoogleLogin redirects to the Google consent screen
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	state, err := h.state.Issue(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	url, err := h.auth.GoogleAuthURL(state)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// GoogleCallback completes Google sign-in
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if !h.state.Verify(c, c.Query("state")) {
		badRequest(c, "invalid oauth state")
		return
	}
	code := c.Query("code")
	if code == "" {
		badRequest(c, "authorization code is required")
		return
	}

	res, err := h.auth.GoogleSignIn(c.Request.Context(), code)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SetupTOTP starts authenticator enrolment
func (h *AuthHandler) SetupTOTP(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	key, err := h.auth.SetupTOTP(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret":  key.Secret,
		"url":     key.URL,
		"qr_code": "data:image/png;base64," + base64.StdEncoding.EncodeToString(key.QRCode),
	})
}

// EnableTOTP confirms enrolment with a code from the authenticator
func (h *AuthHandler) EnableTOTP(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "code is required")
		return
	}

	if err := h.auth.EnableTOTP(c.Request.Context(), userID, req.Code); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": true})
}
