package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/middleware"
	"github.com/santaspot/backend/internal/services/auth"
	"github.com/santaspot/backend/internal/services/crypto"
	"github.com/santaspot/backend/internal/services/payment"
	"github.com/santaspot/backend/internal/services/referral"
	"github.com/santaspot/backend/internal/services/settlement"
	"github.com/santaspot/backend/internal/services/tracking"
	"github.com/santaspot/backend/internal/services/withdrawal"
	"go.uber.org/zap"
)

// errorStatus maps service errors to HTTP status codes. Anything else is a 500.
var errorStatus = []struct {
	err    error
	status int
}{
	{auth.ErrInvalidEmail, http.StatusBadRequest},
	{auth.ErrWeakPassword, http.StatusBadRequest},
	{auth.ErrEmailTaken, http.StatusConflict},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrTOTPRequired, http.StatusUnauthorized},
	{auth.ErrInvalidTOTP, http.StatusUnauthorized},
	{auth.ErrInvalidToken, http.StatusUnauthorized},
	{auth.ErrTOTPNotSetup, http.StatusBadRequest},
	{auth.ErrTOTPEnabled, http.StatusConflict},
	{auth.ErrGoogleDisabled, http.StatusNotFound},
	{auth.ErrGoogleUnverified, http.StatusForbidden},
	{auth.ErrGoogleExchange, http.StatusUnauthorized},

	{referral.ErrInvalidUsername, http.StatusBadRequest},
	{referral.ErrUsernameTaken, http.StatusConflict},
	{referral.ErrProfileCompleted, http.StatusConflict},
	{referral.ErrInvalidLink, http.StatusBadRequest},
	{referral.ErrLinkNotFound, http.StatusNotFound},
	{referral.ErrProfileNotFound, http.StatusNotFound},

	{settlement.ErrAlreadySettled, http.StatusConflict},
	{settlement.ErrAlreadyReferred, http.StatusConflict},
	{settlement.ErrNoReferralCode, http.StatusBadRequest},
	{settlement.ErrInvalidAmount, http.StatusBadRequest},
	{settlement.ErrPaymentFailed, http.StatusConflict},

	{tracking.ErrDuplicateClick, http.StatusTooManyRequests},
	{tracking.ErrUnknownCode, http.StatusNotFound},
	{tracking.ErrOfferNotFound, http.StatusNotFound},
	{tracking.ErrInvalidPlatform, http.StatusBadRequest},

	{payment.ErrInvalidAmount, http.StatusBadRequest},
	{payment.ErrInvalidStatus, http.StatusBadRequest},
	{payment.ErrPaymentNotFound, http.StatusNotFound},
	{payment.ErrNotOwner, http.StatusNotFound},
	{payment.ErrInvalidWebhook, http.StatusBadRequest},

	{crypto.ErrInvalidTxHash, http.StatusBadRequest},
	{crypto.ErrUnsupportedNetwork, http.StatusBadRequest},
	{crypto.ErrTransactionNotFound, http.StatusNotFound},
	{crypto.ErrTransactionPending, http.StatusConflict},
	{crypto.ErrTransactionFailed, http.StatusUnprocessableEntity},
	{crypto.ErrWrongRecipient, http.StatusUnprocessableEntity},
	{crypto.ErrInvalidAmount, http.StatusUnprocessableEntity},
	{crypto.ErrDuplicateDonation, http.StatusConflict},
	{crypto.ErrDonationsUnavailable, http.StatusServiceUnavailable},

	{withdrawal.ErrInvalidAmount, http.StatusBadRequest},
	{withdrawal.ErrInvalidPaymentMethod, http.StatusBadRequest},
	{withdrawal.ErrInsufficientFunds, http.StatusConflict},
	{withdrawal.ErrTOTPRequired, http.StatusUnauthorized},
	{withdrawal.ErrNotFound, http.StatusNotFound},
	{withdrawal.ErrAlreadyProcessed, http.StatusConflict},

	{database.ErrNotFound, http.StatusNotFound},
	{database.ErrDuplicate, http.StatusConflict},
	{database.ErrInsufficientFunds, http.StatusConflict},
	{database.ErrConflict, http.StatusConflict},
}

func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes the mapped status. Internal errors are logged and not echoed.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": errorMessage(err)})
}

// errorMessage returns the outermost sentinel message so wrapped details stay server-side
func errorMessage(err error) string {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.err.Error()
		}
	}
	return err.Error()
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// currentUser returns the authenticated user or writes a 401
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
	}
	return id, ok
}
