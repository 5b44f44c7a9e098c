package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/santaspot/backend/internal/handlers"
)

// SetupWebhookRoutes configures routes called by external providers. They authenticate
// by signature, not by token.
func SetupWebhookRoutes(router *gin.Engine, paymentHandler *handlers.PaymentHandler) {
	webhookGroup := router.Group("/webhooks")
	{
		webhookGroup.POST("/stripe", paymentHandler.StripeWebhook)
	}
}
