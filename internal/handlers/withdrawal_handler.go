package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/models"
	"github.com/santaspot/backend/internal/services/withdrawal"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WithdrawalService handles payouts and their review
type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, userID uuid.UUID, req withdrawal.Request) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, userID uuid.UUID) ([]models.Withdrawal, error)
	ListPending(ctx context.Context) ([]models.Withdrawal, error)
	Complete(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Withdrawal, error)
}

// WithdrawalHandler handles withdrawal requests and admin review
type WithdrawalHandler struct {
	withdrawals WithdrawalService
	log         *zap.Logger
}

// NewWithdrawalHandler creates a new withdrawal handler
func NewWithdrawalHandler(withdrawals WithdrawalService, log *zap.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals, log: log}
}

// RequestWithdrawal debits earnings and queues a payout for review
func (h *WithdrawalHandler) RequestWithdrawal(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Amount         decimal.Decimal        `json:"amount"`
		PaymentMethod  string                 `json:"payment_method" binding:"required"`
		PaymentDetails map[string]interface{} `json:"payment_details"`
		TOTPCode       string                 `json:"totp_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "payment_method is required")
		return
	}

	w, err := h.withdrawals.RequestWithdrawal(c.Request.Context(), userID, withdrawal.Request{
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		PaymentDetails: req.PaymentDetails,
		TOTPCode:       req.TOTPCode,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// ListWithdrawals returns the caller's withdrawals
func (h *WithdrawalHandler) ListWithdrawals(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.withdrawals.ListWithdrawals(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

// ListPending returns withdrawals awaiting review
func (h *WithdrawalHandler) ListPending(c *gin.Context) {
	list, err := h.withdrawals.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

// Complete marks a withdrawal as paid out
func (h *WithdrawalHandler) Complete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid withdrawal id")
		return
	}
	w, err := h.withdrawals.Complete(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Reject refuses a withdrawal and refunds its amount
func (h *WithdrawalHandler) Reject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid withdrawal id")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	w, err := h.withdrawals.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
