package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/santaspot/backend/internal/handlers"
	"github.com/santaspot/backend/internal/metrics"
	"github.com/santaspot/backend/internal/middleware"
	"go.uber.org/zap"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Auth       *handlers.AuthHandler
	Profile    *handlers.ProfileHandler
	Payment    *handlers.PaymentHandler
	Donation   *handlers.DonationHandler
	Withdrawal *handlers.WithdrawalHandler
	Tracking   *handlers.TrackingHandler
	Realtime   *handlers.RealtimeHandler
	Health     *handlers.HealthHandler
}

// Options configures the shared middleware
type Options struct {
	Tokens        middleware.TokenValidator
	RateLimiter   *middleware.RateLimiter
	SecureHeaders middleware.SecureHeadersConfig
	CORSOrigins   []string
	Metrics       *metrics.Metrics
	Log           *zap.Logger

	// TrustedProxies lists the CIDRs allowed to set X-Forwarded-For. Empty trusts none.
	TrustedProxies []string
	// StripeWebhooks mounts /webhooks/stripe; leave off when no signing secret is configured
	StripeWebhooks bool
}

// NewRouter builds the gin engine with global middleware and every route
func NewRouter(h Handlers, opts Options) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	router.Use(
		middleware.RequestLogger(opts.Log, opts.Metrics),
		middleware.Recovery(opts.Log),
		middleware.SecureHeadersMiddleware(opts.SecureHeaders),
		middleware.CORSMiddleware(opts.CORSOrigins),
	)

	router.GET("/health", h.Health.Health)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	RegisterAuthRoutes(router, h.Auth, opts)
	RegisterProfileRoutes(router, h.Profile, opts)
	RegisterTrackingRoutes(router, h.Tracking, h.Realtime, opts)
	RegisterWithdrawalRoutes(router, h.Withdrawal, opts)
	SetupPaymentRoutes(router, h.Payment, h.Donation, opts)
	if opts.StripeWebhooks {
		SetupWebhookRoutes(router, h.Payment)
	}

	return router, nil
}

// RegisterAuthRoutes registers authentication routes
func RegisterAuthRoutes(router *gin.Engine, authHandler *handlers.AuthHandler, opts Options) {
	authGroup := router.Group("/api/auth")
	authGroup.Use(opts.RateLimiter.AuthRateLimiterMiddleware())
	{
		authGroup.POST("/signup", authHandler.SignUp)
		authGroup.POST("/signin", authHandler.SignIn)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.GET("/google/login", authHandler.GoogleLogin)
		authGroup.GET("/google/callback", authHandler.GoogleCallback)
	}

	totpGroup := router.Group("/api/auth/totp")
	totpGroup.Use(middleware.AuthMiddleware(opts.Tokens))
	{
		totpGroup.POST("/setup", authHandler.SetupTOTP)
		totpGroup.POST("/enable", authHandler.EnableTOTP)
	}
}

// RegisterProfileRoutes registers profile, referral and short link routes
func RegisterProfileRoutes(router *gin.Engine, profileHandler *handlers.ProfileHandler, opts Options) {
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(opts.Tokens))
	{
		api.GET("/profile", profileHandler.GetProfile)
		api.POST("/profile/complete", profileHandler.CompleteProfile)
		api.GET("/referrals", profileHandler.ListReferrals)
		api.GET("/referrals/link", profileHandler.ReferralLink)
		api.GET("/referrals/qr", profileHandler.ReferralQR)
		api.POST("/links", profileHandler.CreateShortLink)
	}

	router.GET("/r/:code", opts.RateLimiter.IPRateLimiterMiddleware(), profileHandler.RedirectShortLink)
}

// RegisterTrackingRoutes registers click, offer, share, stats and realtime routes
func RegisterTrackingRoutes(router *gin.Engine, trackingHandler *handlers.TrackingHandler, realtimeHandler *handlers.RealtimeHandler, opts Options) {
	public := router.Group("/api")
	public.Use(opts.RateLimiter.IPRateLimiterMiddleware())
	{
		public.POST("/clicks", trackingHandler.TrackClick)
		public.GET("/stats/live", trackingHandler.LiveStats)
		public.GET("/realtime/pot", realtimeHandler.PotStream)
	}

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(opts.Tokens))
	{
		api.GET("/offers", trackingHandler.ListOffers)
		api.POST("/offers/:id/click", trackingHandler.TrackOfferClick)
		api.POST("/shares", trackingHandler.RecordShare)
		api.GET("/stats/dashboard", trackingHandler.Dashboard)
		api.GET("/realtime/stats", realtimeHandler.StatsStream)
	}
}

// RegisterWithdrawalRoutes registers withdrawal and admin review routes
func RegisterWithdrawalRoutes(router *gin.Engine, withdrawalHandler *handlers.WithdrawalHandler, opts Options) {
	api := router.Group("/api/withdrawals")
	api.Use(middleware.AuthMiddleware(opts.Tokens))
	{
		api.POST("", withdrawalHandler.RequestWithdrawal)
		api.GET("", withdrawalHandler.ListWithdrawals)
	}

	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(opts.Tokens), middleware.AdminMiddleware())
	{
		admin.GET("/withdrawals", withdrawalHandler.ListPending)
		admin.POST("/withdrawals/:id/complete", withdrawalHandler.Complete)
		admin.POST("/withdrawals/:id/reject", withdrawalHandler.Reject)
	}
}
