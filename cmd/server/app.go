package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/santaspot/backend/internal/config"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/handlers"
	"github.com/santaspot/backend/internal/jobs"
	"github.com/santaspot/backend/internal/metrics"
	"github.com/santaspot/backend/internal/middleware"
	"github.com/santaspot/backend/internal/queue"
	"github.com/santaspot/backend/internal/realtime"
	"github.com/santaspot/backend/internal/routes"
	"github.com/santaspot/backend/internal/security"
	"github.com/santaspot/backend/internal/services/auth"
	"github.com/santaspot/backend/internal/services/crypto"
	"github.com/santaspot/backend/internal/services/payment"
	"github.com/santaspot/backend/internal/services/payment/processor"
	"github.com/santaspot/backend/internal/services/referral"
	"github.com/santaspot/backend/internal/services/settlement"
	"github.com/santaspot/backend/internal/services/tracking"
	"github.com/santaspot/backend/internal/services/withdrawal"
	"github.com/santaspot/backend/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the wired components shared by every command
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics

	db    *gorm.DB
	store *database.Store
	redis *redis.Client
	hub   *realtime.Hub
	queue *queue.RedisQueue

	processor *queue.JobProcessor
	scheduler *jobs.Scheduler
	limiter   *middleware.RateLimiter
	guard     *security.SignInGuard

	auth        *auth.Service
	referrals   *referral.Service
	payments    *payment.Service
	donations   *crypto.DonationService
	tracking    *tracking.Service
	withdrawals *withdrawal.Service
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		db:      db,
		store:   database.NewStore(db),
		redis:   rdb,
		hub:     realtime.NewHub(rdb, log),
		queue:   queue.NewRedisQueue(rdb, log),
	}

	tokens := utils.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	a.auth = auth.NewService(a.store, tokens, auth.NewGoogleProvider(cfg.Google), cfg.Security.TOTPIssuer, log)

	settle := settlement.NewService(a.store, a.hub, cfg.Rewards, log, a.metrics)
	a.referrals = referral.NewService(a.store, settle, cfg.FrontendURL, log)
	a.tracking = tracking.NewService(a.store, a.hub, cfg.Rewards, log, a.metrics)
	a.withdrawals = withdrawal.NewService(a.store, log)
	a.payments = payment.NewService(a.store, settle, processor.NewClient(cfg.Stripe), a.queue, cfg.Stripe, cfg.Poller, log, a.metrics)

	var chain crypto.ChainClient
	if cfg.Chain.ReceivingAddress != "" {
		client, err := crypto.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			log.Warn("crypto donations disabled", zap.Error(err))
		} else {
			chain = client
		}
	}
	a.donations = crypto.NewDonationService(a.store, chain, cfg.Chain, log)

	a.processor = queue.NewJobProcessor(a.queue, cfg.Poller.Workers, queue.NewBackoff(cfg.Poller.BaseDelay, cfg.Poller.MaxDelay), log, a.metrics)
	jobs.RegisterHandlers(a.processor, a.payments, a.donations, log)
	a.scheduler = jobs.NewScheduler(a.store, a.payments, a.queue, cfg.Poller, log)

	a.guard = security.NewSignInGuard(security.DefaultSignInGuardConfig())
	a.scheduler.AddMaintenance("sign-in guard cleanup", 5*time.Minute, a.guard.Cleanup)
	a.scheduler.AddMaintenance("queue depth", 30*time.Second, func() {
		jobs.ReportQueueDepth(ctx, a.queue, a.metrics, log)
	})

	return a, nil
}

func (a *app) router() (*gin.Engine, error) {
	a.limiter = middleware.NewRateLimiter(
		a.cfg.Security.IPRateLimit,
		a.cfg.Security.AuthRateLimit,
		a.cfg.Security.IPRateBurst,
		a.cfg.Security.AuthRateBurst,
	)

	h := routes.Handlers{
		Auth:       handlers.NewAuthHandler(a.auth, middleware.NewOAuthState(a.cfg.JWT.Secret, a.cfg.IsProduction()), a.log).WithSignInGuard(a.guard),
		Profile:    handlers.NewProfileHandler(a.referrals, a.cfg.Server.PublicURL, a.log),
		Payment:    handlers.NewPaymentHandler(a.payments, a.log),
		Donation:   handlers.NewDonationHandler(a.donations, a.log),
		Withdrawal: handlers.NewWithdrawalHandler(a.withdrawals, a.log),
		Tracking:   handlers.NewTrackingHandler(a.tracking, a.log),
		Realtime:   handlers.NewRealtimeHandler(a.hub, a.log),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"database": a.store,
			"redis": handlers.PingFunc(func(ctx context.Context) error {
				return a.redis.Ping(ctx).Err()
			}),
		}, a.log),
	}

	webhooks := a.cfg.Stripe.WebhookSecret != ""
	if !webhooks {
		a.log.Warn("STRIPE_WEBHOOK_SECRET is not set, webhook endpoint disabled; payments settle by redirect and polling only")
	}

	return routes.NewRouter(h, routes.Options{
		Tokens:         a.auth,
		RateLimiter:    a.limiter,
		SecureHeaders:  middleware.DefaultSecureHeadersConfig(a.cfg.IsProduction()),
		CORSOrigins:    a.cfg.Security.CORSAllowedOrigins,
		Metrics:        a.metrics,
		Log:            a.log,
		TrustedProxies: a.cfg.Security.TrustedProxies,
		StripeWebhooks: webhooks,
	})
}

// Close releases connections in reverse order of creation
func (a *app) Close() {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if err := a.redis.Close(); err != nil {
		a.log.Warn("failed to close redis", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
