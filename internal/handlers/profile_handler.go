package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/models"
	"github.com/santaspot/backend/internal/services/referral"
	"go.uber.org/zap"
)

// ReferralService is what the profile and referral endpoints need
type ReferralService interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*referral.ProfileView, error)
	CompleteProfile(ctx context.Context, userID uuid.UUID, username, referralCode string) (*referral.CompletionResult, error)
	ReferralLink(ctx context.Context, userID uuid.UUID) (string, error)
	ReferralQR(ctx context.Context, userID uuid.UUID) ([]byte, error)
	ListReferrals(ctx context.Context, userID uuid.UUID) ([]models.Referral, error)
	CreateShortLink(ctx context.Context, userID uuid.UUID) (*models.ShortURL, error)
	ResolveShortLink(ctx context.Context, code, ipAddress, userAgent string) (string, error)
}

// ProfileHandler handles profile completion, referral links and short links
type ProfileHandler struct {
	referrals ReferralService
	baseURL   string
	log       *zap.Logger
}

// NewProfileHandler creates a new profile handler. baseURL prefixes short links.
func NewProfileHandler(referrals ReferralService, baseURL string, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{referrals: referrals, baseURL: baseURL, log: log}
}

// GetProfile returns the caller's profile
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.referrals.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// CompleteProfile sets the username and applies an optional referral code
func (h *ProfileHandler) CompleteProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Username     string `json:"username" binding:"required"`
		ReferralCode string `json:"referral_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username is required")
		return
	}

	res, err := h.referrals.CompleteProfile(c.Request.Context(), userID, req.Username, req.ReferralCode)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListReferrals returns the referrals the caller made
func (h *ProfileHandler) ListReferrals(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.referrals.ListReferrals(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"referrals": list})
}

// ReferralLink returns the caller's signup link
func (h *ProfileHandler) ReferralLink(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	link, err := h.referrals.ReferralLink(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": link})
}

// ReferralQR returns the signup link as a PNG QR code
func (h *ProfileHandler) ReferralQR(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	png, err := h.referrals.ReferralQR(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// CreateShortLink creates a short link to the caller's signup link
func (h *ProfileHandler) CreateShortLink(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	short, err := h.referrals.CreateShortLink(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"short_code": short.ShortCode,
		"short_url":  h.baseURL + "/r/" + short.ShortCode,
		"long_url":   short.LongURL,
	})
}

// RedirectShortLink logs the click and redirects to the long URL
func (h *ProfileHandler) RedirectShortLink(c *gin.Context) {
	longURL, err := h.referrals.ResolveShortLink(c.Request.Context(), c.Param("code"), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Redirect(http.StatusFound, longURL)
}
