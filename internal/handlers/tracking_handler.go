package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/models"
	"github.com/santaspot/backend/internal/services/tracking"
	"go.uber.org/zap"
)

// TrackingService records clicks, offers and shares and reports stats
type TrackingService interface {
	TrackClick(ctx context.Context, in tracking.ClickInput) (*models.Click, error)
	ListOffers(ctx context.Context, category string) ([]models.Offer, error)
	TrackOfferClick(ctx context.Context, userID, offerID uuid.UUID, ipAddress, userAgent string) (*models.OfferClick, error)
	RecordShare(ctx context.Context, userID uuid.UUID, platform string) (*models.Share, error)
	Dashboard(ctx context.Context, userID uuid.UUID) (*tracking.Dashboard, error)
	LiveStats(ctx context.Context) (*tracking.LiveStats, error)
}

// TrackingHandler handles click tracking, offers, shares and stats
type TrackingHandler struct {
	tracking TrackingService
	log      *zap.Logger
}

// NewTrackingHandler creates a new tracking handler
func NewTrackingHandler(svc TrackingService, log *zap.Logger) *TrackingHandler {
	return &TrackingHandler{tracking: svc, log: log}
}

// TrackClick records a public visit through a referral code
func (h *TrackingHandler) TrackClick(c *gin.Context) {
	var req struct {
		ReferralCode string `json:"referral_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "referral_code is required")
		return
	}

	click, err := h.tracking.TrackClick(c.Request.Context(), tracking.ClickInput{
		ReferralCode: req.ReferralCode,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, click)
}

// ListOffers returns active offers, optionally filtered by ?category=
func (h *TrackingHandler) ListOffers(c *gin.Context) {
	offers, err := h.tracking.ListOffers(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

// TrackOfferClick credits the caller for opening an offer
func (h *TrackingHandler) TrackOfferClick(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	offerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid offer id")
		return
	}

	click, err := h.tracking.TrackOfferClick(c.Request.Context(), userID, offerID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, click)
}

// RecordShare records that the caller shared their link
func (h *TrackingHandler) RecordShare(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Platform string `json:"platform"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	share, err := h.tracking.RecordShare(c.Request.Context(), userID, req.Platform)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, share)
}

// Dashboard returns the caller's summary
func (h *TrackingHandler) Dashboard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	d, err := h.tracking.Dashboard(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// LiveStats returns public site-wide counters
func (h *TrackingHandler) LiveStats(c *gin.Context) {
	stats, err := h.tracking.LiveStats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
