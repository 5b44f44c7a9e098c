package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/models"
	"go.uber.org/zap"
)

// DonationService records on-chain donations
type DonationService interface {
	RecordDonation(ctx context.Context, userID uuid.UUID, network, txHash string) (*models.Donation, error)
}

// DonationHandler handles crypto donations
type DonationHandler struct {
	donations DonationService
	log       *zap.Logger
}

// NewDonationHandler creates a new donation handler
func NewDonationHandler(donations DonationService, log *zap.Logger) *DonationHandler {
	return &DonationHandler{donations: donations, log: log}
}

// RecordDonation verifies a transaction hash and stores the donation
func (h *DonationHandler) RecordDonation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Network string `json:"network" binding:"required"`
		TxHash  string `json:"tx_hash" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "network and tx_hash are required")
		return
	}

	d, err := h.donations.RecordDonation(c.Request.Context(), userID, req.Network, req.TxHash)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if d.Status == models.DonationStatusPending {
		status = http.StatusAccepted
	}
	c.JSON(status, d)
}
