package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/santaspot/backend/internal/config"
	"github.com/santaspot/backend/internal/models"
	"github.com/santaspot/backend/internal/queue"
	"go.uber.org/zap"
)

// reconcileBatch caps how many stale payments one reconciliation run picks up
const reconcileBatch = 200

// donationRecheckInterval is how often pending donations are re-checked
const donationRecheckInterval = 2 * time.Minute

// PaymentLister finds payments that have not resolved in time
type PaymentLister interface {
	ListStalePayments(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
}

// Enqueuer pushes a job onto a queue
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...queue.EnqueueOption) (string, error)
}

// Scheduler runs the recurring jobs on gocron
type Scheduler struct {
	store    PaymentLister
	payments PaymentPoller
	jobs     Enqueuer
	cfg      config.PollerConfig
	log      *zap.Logger
	now      func() time.Time

	cron        *gocron.Scheduler
	maintenance []maintenanceTask
}

type maintenanceTask struct {
	name  string
	every time.Duration
	fn    func()
}

// NewScheduler creates the recurring job scheduler. It does nothing until Start.
func NewScheduler(store PaymentLister, payments PaymentPoller, jobs Enqueuer, cfg config.PollerConfig, log *zap.Logger) *Scheduler {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	return &Scheduler{
		store:    store,
		payments: payments,
		jobs:     jobs,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		cron:     cron,
	}
}

// AddMaintenance registers an in-process housekeeping task. Call before Start.
func (s *Scheduler) AddMaintenance(name string, every time.Duration, fn func()) {
	s.maintenance = append(s.maintenance, maintenanceTask{name: name, every: every, fn: fn})
}

// Start registers the recurring jobs and starts them in the background
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.Every(s.cfg.ReconcileInterval).Do(func() {
		if _, err := s.ReconcilePayments(ctx); err != nil {
			s.log.Error("payment reconciliation failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule payment reconciliation: %w", err)
	}

	if _, err := s.cron.Every(donationRecheckInterval).Do(func() {
		if err := s.EnqueueDonationRecheck(ctx); err != nil {
			s.log.Error("failed to enqueue donation recheck", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule donation recheck: %w", err)
	}

	for _, task := range s.maintenance {
		if _, err := s.cron.Every(task.every).Do(task.fn); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", task.name, err)
		}
	}

	s.cron.StartAsync()
	s.log.Info("scheduler started",
		zap.Duration("reconcile_interval", s.cfg.ReconcileInterval),
		zap.Duration("donation_interval", donationRecheckInterval))
	return nil
}

// Stop stops the scheduler. Running jobs are not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// ReconcilePayments schedules a poll for every payment left unresolved longer than
// ReconcileAfter and returns how many were scheduled. It covers lost webhooks.
func (s *Scheduler) ReconcilePayments(ctx context.Context) (int, error) {
	stale, err := s.store.ListStalePayments(ctx, s.now().Add(-s.cfg.ReconcileAfter), reconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale payments: %w", err)
	}
	for _, p := range stale {
		s.payments.SchedulePoll(ctx, p.PaymentIntent, 0)
	}
	if len(stale) > 0 {
		s.log.Info("reconciling stale payments", zap.Int("count", len(stale)))
	}
	return len(stale), nil
}

// EnqueueDonationRecheck queues one donation confirmation batch. It is not retried,
// the next tick picks up whatever it missed.
func (s *Scheduler) EnqueueDonationRecheck(ctx context.Context) error {
	_, err := s.jobs.Enqueue(ctx, queue.QueueDonationConfirm, DonationConfirmJob{Limit: defaultDonationBatch}, queue.WithMaxRetries(0))
	return err
}
