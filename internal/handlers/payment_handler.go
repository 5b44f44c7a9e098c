package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/models"
	"github.com/santaspot/backend/internal/services/payment"
	"github.com/santaspot/backend/internal/services/payment/processor"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxWebhookBody bounds the webhook payload read into memory
const maxWebhookBody = 1 << 16

// PaymentService is what the payment endpoints need
type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*payment.IntentResult, error)
	ConfirmRedirect(ctx context.Context, userID uuid.UUID, intent, redirectStatus string) (*models.Payment, error)
	GetPayment(ctx context.Context, userID uuid.UUID, intent string) (*models.Payment, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// PaymentHandler handles card contributions to the pot
type PaymentHandler struct {
	payments PaymentService
	log      *zap.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, log: log}
}

// CreateIntent opens a payment intent for the given amount
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	res, err := h.payments.CreatePaymentIntent(c.Request.Context(), userID, req.Amount)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Confirm resolves a payment after the processor redirects the user back
func (h *PaymentHandler) Confirm(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		PaymentIntent  string `json:"payment_intent" binding:"required"`
		RedirectStatus string `json:"redirect_status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "payment_intent and redirect_status are required")
		return
	}

	p, err := h.payments.ConfirmRedirect(c.Request.Context(), userID, req.PaymentIntent, req.RedirectStatus)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetPayment returns one of the caller's payments
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	p, err := h.payments.GetPayment(c.Request.Context(), userID, c.Param("intent"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// StripeWebhook verifies and applies a processor event. The raw body is needed for the signature.
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.log.Warn("webhook body too large", zap.Int64("limit", tooLarge.Limit))
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}
	if err != nil {
		badRequest(c, "failed to read body")
		return
	}

	if err := h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader(processor.SignatureHeader)); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
