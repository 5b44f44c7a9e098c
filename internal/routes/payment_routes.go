package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/santaspot/backend/internal/handlers"
	"github.com/santaspot/backend/internal/middleware"
)

// SetupPaymentRoutes sets up card payment and donation routes
func SetupPaymentRoutes(router *gin.Engine, paymentHandler *handlers.PaymentHandler, donationHandler *handlers.DonationHandler, opts Options) {
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(opts.Tokens))
	{
		payments := api.Group("/payments")
		{
			payments.POST("/intents", paymentHandler.CreateIntent)
			payments.POST("/confirm", paymentHandler.Confirm)
			payments.GET("/:intent", paymentHandler.GetPayment)
		}

		api.POST("/donations", donationHandler.RecordDonation)
	}
}
