package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/config"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/metrics"
	"github.com/santaspot/backend/internal/models"
	"github.com/santaspot/backend/internal/queue"
	"github.com/santaspot/backend/internal/services/payment/processor"
	"github.com/santaspot/backend/internal/services/settlement"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Failure reasons stored on payments the service gives up on
const (
	ReasonTimeout          = "timeout"
	ReasonAmountMismatch   = "amount_mismatch"
	ReasonCurrencyMismatch = "currency_mismatch"
)

// MaxAmount is the largest single payment accepted
var MaxAmount = decimal.RequireFromString("999999.99")

var (
	ErrInvalidAmount   = errors.New("amount must be between 0.01 and 999999.99")
	ErrInvalidStatus   = errors.New("invalid redirect status")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrNotOwner        = errors.New("payment belongs to another user")
	ErrInvalidWebhook  = errors.New("invalid webhook")
)

// redirect statuses accepted from the client
var redirectStatuses = map[string]bool{
	processor.StatusSucceeded:  true,
	processor.StatusProcessing: true,
	"failed":                   true,
	processor.StatusCanceled:   true,
}

// Store is the payment persistence
type Store interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByIntent(ctx context.Context, intent string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, intent string, from []models.PaymentStatus, to models.PaymentStatus, reason string) (bool, error)
	CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
	GetWebhookEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	MarkWebhookEventProcessed(ctx context.Context, eventID string) error
}

// Settler applies a confirmed payment to the pot
type Settler interface {
	SettlePayment(ctx context.Context, intent, source string) (*settlement.PaymentResult, error)
}

// ProcessorClient is the card processor API
type ProcessorClient interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*processor.Intent, error)
	GetIntent(ctx context.Context, id string) (*processor.Intent, error)
}

// Enqueuer schedules background jobs
type Enqueuer interface {
	EnqueueIn(ctx context.Context, queueName string, payload interface{}, delay time.Duration, opts ...queue.EnqueueOption) (string, error)
}

// PollJob is the payload of a payment status poll
type PollJob struct {
	PaymentIntent string `json:"payment_intent"`
	Attempt       int    `json:"attempt"`
}

// Service handles card payments toward the pot
type Service struct {
	store   Store
	settler Settler
	client  ProcessorClient
	jobs    Enqueuer
	stripe  config.StripeConfig
	poller  config.PollerConfig
	backoff queue.Backoff
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a payment service
func NewService(
	store Store,
	settler Settler,
	client ProcessorClient,
	jobs Enqueuer,
	stripe config.StripeConfig,
	poller config.PollerConfig,
	log *zap.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		store:   store,
		settler: settler,
		client:  client,
		jobs:    jobs,
		stripe:  stripe,
		poller:  poller,
		backoff: queue.NewBackoff(poller.BaseDelay, poller.MaxDelay),
		log:     log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// IntentResult is returned to the client to complete a card payment
type IntentResult struct {
	Payment      *models.Payment `json:"payment"`
	ClientSecret string          `json:"client_secret"`
}

// CreatePaymentIntent opens a processor intent for amount and records a pending payment
func (s *Service) CreatePaymentIntent(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*IntentResult, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() || amount.GreaterThan(MaxAmount) {
		return nil, ErrInvalidAmount
	}

	intent, err := s.client.CreateIntent(ctx, toCents(amount), s.stripe.Currency, map[string]string{
		"user_id": userID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	payment := &models.Payment{
		PaymentIntent: intent.ID,
		UserID:        userID,
		Amount:        amount,
		Currency:      intent.Currency,
		Status:        models.PaymentStatusPending,
	}
	if payment.Currency == "" {
		payment.Currency = s.stripe.Currency
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	s.metrics.RecordPaymentStatus(string(models.PaymentStatusPending), "api")
	s.log.Info("payment intent created",
		zap.String("payment_intent", intent.ID),
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.StringFixed(2)))

	return &IntentResult{Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

// GetPayment returns a payment owned by userID
func (s *Service) GetPayment(ctx context.Context, userID uuid.UUID, intent string) (*models.Payment, error) {
	payment, err := s.store.GetPaymentByIntent(ctx, intent)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrNotOwner
	}
	return payment, nil
}

// ConfirmRedirect resolves a payment after the client returns from the processor.
// The redirect status is only validated; the processor's own status decides the outcome.
func (s *Service) ConfirmRedirect(ctx context.Context, userID uuid.UUID, intent, redirectStatus string) (*models.Payment, error) {
	if !redirectStatuses[redirectStatus] {
		return nil, ErrInvalidStatus
	}

	payment, err := s.GetPayment(ctx, userID, intent)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsTerminal() {
		return payment, nil
	}

	pi, err := s.client.GetIntent(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment intent: %w", err)
	}

	status, err := s.apply(ctx, pi, "redirect")
	if err != nil {
		return nil, err
	}
	if !status.IsTerminal() {
		s.SchedulePoll(ctx, intent, 0)
	}

	return s.store.GetPaymentByIntent(ctx, intent)
}

// HandleWebhook verifies and applies a processor event. Redelivered events that were
// already processed are acknowledged without side effects.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := processor.ConstructEvent(payload, signature, s.stripe.WebhookSecret, s.stripe.WebhookTolerance)
	if err != nil {
		s.metrics.RecordWebhookEvent("unknown", "rejected")
		return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	err = s.store.CreateWebhookEvent(ctx, &models.WebhookEvent{
		Provider:  "stripe",
		EventID:   event.ID,
		EventType: event.Type,
		Payload:   datatypes.JSON(payload),
	})
	if errors.Is(err, database.ErrDuplicate) {
		stored, getErr := s.store.GetWebhookEvent(ctx, event.ID)
		if getErr != nil {
			return fmt.Errorf("failed to load webhook event: %w", getErr)
		}
		if stored.Processed {
			s.metrics.RecordWebhookEvent(event.Type, "duplicate")
			s.log.Info("duplicate webhook event", zap.String("event_id", event.ID))
			return nil
		}
	} else if err != nil {
		return fmt.Errorf("failed to store webhook event: %w", err)
	}

	if err := s.handleEvent(ctx, event); err != nil {
		s.metrics.RecordWebhookEvent(event.Type, "failed")
		return err
	}

	if err := s.store.MarkWebhookEventProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("failed to mark webhook event: %w", err)
	}
	s.metrics.RecordWebhookEvent(event.Type, "processed")
	return nil
}

func (s *Service) handleEvent(ctx context.Context, event *processor.Event) error {
	switch event.Type {
	case processor.EventIntentSucceeded, processor.EventIntentProcessing:
		pi, err := event.Intent()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		pi.Status = processor.StatusSucceeded
		if event.Type == processor.EventIntentProcessing {
			pi.Status = processor.StatusProcessing
		}
		status, err := s.apply(ctx, pi, "webhook")
		if errors.Is(err, ErrPaymentNotFound) {
			// acknowledged so the processor stops redelivering
			s.log.Warn("webhook for unknown payment intent",
				zap.String("event_id", event.ID),
				zap.String("payment_intent", pi.ID))
			return nil
		}
		if err != nil {
			return err
		}
		if !status.IsTerminal() {
			s.SchedulePoll(ctx, pi.ID, 0)
		}
		return nil

	case processor.EventIntentFailed, processor.EventIntentCanceled:
		pi, err := event.Intent()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		reason := pi.FailureMessage()
		if reason == "" {
			reason = pi.Status
		}
		return s.markFailed(ctx, pi.ID, reason, "webhook")

	default:
		s.log.Debug("ignoring webhook event", zap.String("type", event.Type))
		return nil
	}
}

// PollStatus runs one poll of a payment's processor status. Non-terminal payments are
// rescheduled with backoff until the attempt budget or the payment timeout runs out.
func (s *Service) PollStatus(ctx context.Context, job PollJob) error {
	payment, err := s.store.GetPaymentByIntent(ctx, job.PaymentIntent)
	if errors.Is(err, database.ErrNotFound) {
		s.log.Warn("polled payment not found", zap.String("payment_intent", job.PaymentIntent))
		return nil
	}
	if err != nil {
		return err
	}
	if payment.Status.IsTerminal() {
		return nil
	}

	if job.Attempt >= s.poller.MaxAttempts || s.now().Sub(payment.CreatedAt) >= s.poller.PaymentTimeout {
		s.log.Warn("payment polling exhausted",
			zap.String("payment_intent", job.PaymentIntent),
			zap.Int("attempt", job.Attempt))
		return s.markFailed(ctx, job.PaymentIntent, ReasonTimeout, "poller")
	}

	pi, err := s.client.GetIntent(ctx, job.PaymentIntent)
	if err != nil {
		s.metrics.RecordPollAttempt("error")
		s.log.Warn("payment poll failed",
			zap.String("payment_intent", job.PaymentIntent),
			zap.Int("attempt", job.Attempt),
			zap.Error(err))
		s.SchedulePoll(ctx, job.PaymentIntent, job.Attempt+1)
		return nil
	}
	s.metrics.RecordPollAttempt(pi.Status)

	status, err := s.apply(ctx, pi, "poller")
	if err != nil {
		return err
	}
	if !status.IsTerminal() {
		s.SchedulePoll(ctx, job.PaymentIntent, job.Attempt+1)
	}
	return nil
}

// SchedulePoll enqueues poll attempt n after its backoff delay
func (s *Service) SchedulePoll(ctx context.Context, intent string, attempt int) {
	if s.jobs == nil {
		return
	}
	delay := s.backoff.Delay(attempt)
	// at most one pending poll per intent and attempt
	id := queue.WithJobID(fmt.Sprintf("poll:%s:%d", intent, attempt))
	if _, err := s.jobs.EnqueueIn(ctx, queue.QueuePaymentStatus, PollJob{PaymentIntent: intent, Attempt: attempt}, delay, id); err != nil {
		s.log.Error("failed to schedule payment poll",
			zap.String("payment_intent", intent),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
}

// apply moves the local payment toward the processor's status and returns the resulting status
func (s *Service) apply(ctx context.Context, pi *processor.Intent, source string) (models.PaymentStatus, error) {
	switch pi.Status {
	case processor.StatusSucceeded:
		payment, err := s.store.GetPaymentByIntent(ctx, pi.ID)
		if errors.Is(err, database.ErrNotFound) {
			return "", ErrPaymentNotFound
		}
		if err != nil {
			return "", fmt.Errorf("failed to load payment %s: %w", pi.ID, err)
		}
		if reason := mismatch(payment, pi); reason != "" {
			s.log.Error("processor intent does not match payment",
				zap.String("payment_intent", pi.ID),
				zap.String("reason", reason),
				zap.Int64("processor_amount", pi.Amount),
				zap.String("processor_currency", pi.Currency),
				zap.String("amount", payment.Amount.StringFixed(2)),
				zap.String("currency", payment.Currency))
			return models.PaymentStatusFailed, s.markFailed(ctx, pi.ID, reason, source)
		}

		_, err = s.settler.SettlePayment(ctx, pi.ID, source)
		switch {
		case err == nil, errors.Is(err, settlement.ErrAlreadySettled):
			return models.PaymentStatusCompleted, nil
		case errors.Is(err, settlement.ErrPaymentFailed):
			return models.PaymentStatusFailed, nil
		default:
			return "", fmt.Errorf("failed to settle payment %s: %w", pi.ID, err)
		}

	case processor.StatusProcessing:
		moved, err := s.store.UpdatePaymentStatus(ctx, pi.ID,
			[]models.PaymentStatus{models.PaymentStatusPending}, models.PaymentStatusProcessing, "")
		if err != nil {
			return "", fmt.Errorf("failed to mark payment processing: %w", err)
		}
		if moved {
			s.metrics.RecordPaymentStatus(string(models.PaymentStatusProcessing), source)
		}
		return models.PaymentStatusProcessing, nil

	case processor.StatusCanceled:
		return models.PaymentStatusFailed, s.markFailed(ctx, pi.ID, processor.StatusCanceled, source)

	case processor.StatusRequiresPaymentMethod:
		if msg := pi.FailureMessage(); msg != "" {
			return models.PaymentStatusFailed, s.markFailed(ctx, pi.ID, msg, source)
		}
	}
	return models.PaymentStatusPending, nil
}

func (s *Service) markFailed(ctx context.Context, intent, reason, source string) error {
	moved, err := s.store.UpdatePaymentStatus(ctx, intent,
		models.SourcesFor(models.PaymentStatusFailed), models.PaymentStatusFailed, reason)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	if moved {
		s.metrics.RecordPaymentStatus(string(models.PaymentStatusFailed), source)
		s.log.Info("payment failed",
			zap.String("payment_intent", intent),
			zap.String("reason", reason),
			zap.String("source", source))
	}
	return nil
}

// mismatch reports why the processor's intent cannot settle payment, or "" when it can
func mismatch(payment *models.Payment, pi *processor.Intent) string {
	if pi.Amount != toCents(payment.Amount) {
		return ReasonAmountMismatch
	}
	if !strings.EqualFold(pi.Currency, payment.Currency) {
		return ReasonCurrencyMismatch
	}
	return ""
}

// toCents converts a two-decimal amount to minor units
func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
