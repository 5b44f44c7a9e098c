package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/config"
	"github.com/santaspot/backend/internal/database/dbtest"
	"github.com/santaspot/backend/internal/models"
	"github.com/santaspot/backend/internal/queue"
	"github.com/santaspot/backend/internal/realtime"
	"github.com/santaspot/backend/internal/services/payment/processor"
	"github.com/santaspot/backend/internal/services/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const webhookSecret = "whsec_test"

type fakeProcessor struct {
	mu      sync.Mutex
	intents map[string]*processor.Intent
	created []int64
	err     error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{intents: map[string]*processor.Intent{}}
}

func (f *fakeProcessor) CreateIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (*processor.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, amount)
	intent := &processor.Intent{
		ID:           fmt.Sprintf("pi_%d", len(f.created)),
		Amount:       amount,
		Currency:     currency,
		Status:       processor.StatusRequiresPaymentMethod,
		ClientSecret: "secret",
		Metadata:     metadata,
	}
	f.intents[intent.ID] = intent
	return intent, nil
}

func (f *fakeProcessor) GetIntent(_ context.Context, id string) (*processor.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	intent, ok := f.intents[id]
	if !ok {
		return nil, &processor.APIError{StatusCode: 404, Message: "no such intent"}
	}
	copied := *intent
	return &copied, nil
}

func (f *fakeProcessor) setStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[id]
	if !ok {
		intent = &processor.Intent{ID: id}
		f.intents[id] = intent
	}
	intent.Status = status
}

type scheduledJob struct {
	queue string
	id    string
	job   PollJob
	delay time.Duration
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []scheduledJob
}

func (q *fakeQueue) EnqueueIn(_ context.Context, queueName string, payload interface{}, delay time.Duration, opts ...queue.EnqueueOption) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job := &queue.Job{ID: uuid.NewString()}
	for _, opt := range opts {
		opt(job)
	}
	q.jobs = append(q.jobs, scheduledJob{queue: queueName, id: job.ID, job: payload.(PollJob), delay: delay})
	return job.ID, nil
}

func (q *fakeQueue) scheduled() []scheduledJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]scheduledJob(nil), q.jobs...)
}

type fixture struct {
	svc   *Service
	store *dbtest.MemStore
	proc  *fakeProcessor
	queue *fakeQueue
	pub   *realtime.Recorder
	user  *models.Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := dbtest.NewMemStore()
	pub := &realtime.Recorder{}
	settler := settlement.NewService(store, pub, config.RewardsConfig{}, zap.NewNop(), nil)
	proc := newFakeProcessor()
	q := &fakeQueue{}

	svc := NewService(store, settler, proc, q,
		config.StripeConfig{Currency: "usd", WebhookSecret: webhookSecret, WebhookTolerance: 5 * time.Minute},
		config.PollerConfig{BaseDelay: 5 * time.Second, MaxDelay: 5 * time.Minute, MaxAttempts: 10, PaymentTimeout: time.Hour},
		zap.NewNop(), nil)

	return &fixture{
		svc:   svc,
		store: store,
		proc:  proc,
		queue: q,
		pub:   pub,
		user:  store.SeedProfile("USER000001", decimal.Zero),
	}
}

func (f *fixture) createPayment(t *testing.T, amount string) string {
	t.Helper()
	result, err := f.svc.CreatePaymentIntent(context.Background(), f.user.ID, decimal.RequireFromString(amount))
	require.NoError(t, err)
	return result.Payment.PaymentIntent
}

func (f *fixture) status(t *testing.T, intent string) *models.Payment {
	t.Helper()
	p, err := f.store.GetPaymentByIntent(context.Background(), intent)
	require.NoError(t, err)
	return p
}

func webhook(id, eventType, intent string, extra string) ([]byte, string) {
	payload := []byte(fmt.Sprintf(`{"id":%q,"type":%q,"data":{"object":{"id":%q,"status":"x"%s}}}`, id, eventType, intent, extra))
	return payload, processor.SignPayload(payload, webhookSecret, time.Now())
}

// webhook signs an event carrying the amount and currency the processor holds for intent
func (f *fixture) webhook(id, eventType, intent string, extra string) ([]byte, string) {
	f.proc.mu.Lock()
	if pi, ok := f.proc.intents[intent]; ok {
		extra = fmt.Sprintf(`,"amount":%d,"currency":%q`, pi.Amount, pi.Currency) + extra
	}
	f.proc.mu.Unlock()
	return webhook(id, eventType, intent, extra)
}

func TestCreatePaymentIntent(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.CreatePaymentIntent(context.Background(), f.user.ID, decimal.RequireFromString("25.50"))
	require.NoError(t, err)
	assert.Equal(t, "secret", result.ClientSecret)
	assert.Equal(t, []int64{2550}, f.proc.created)

	p := f.status(t, result.Payment.PaymentIntent)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("25.50")))
	assert.Equal(t, f.user.ID, p.UserID)
}

func TestCreatePaymentIntentRejectsNonPositive(t *testing.T) {
	f := newFixture(t)

	for _, amount := range []string{"0", "-5", "0.001"} {
		_, err := f.svc.CreatePaymentIntent(context.Background(), f.user.ID, decimal.RequireFromString(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
	}
	assert.Empty(t, f.proc.created)
}

func TestConfirmRedirectInvalidStatus(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")
	f.proc.setStatus(intent, processor.StatusSucceeded)

	_, err := f.svc.ConfirmRedirect(context.Background(), f.user.ID, intent, "bogus")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, models.PaymentStatusPending, f.status(t, intent).Status)
}

func TestConfirmRedirectOtherUser(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")

	_, err := f.svc.ConfirmRedirect(context.Background(), uuid.New(), intent, processor.StatusSucceeded)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = f.svc.ConfirmRedirect(context.Background(), f.user.ID, "pi_missing", processor.StatusSucceeded)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestConfirmRedirectSucceeded(t *testing.T) {
	f := newFixture(t)
	f.store.SetPot(decimal.NewFromInt(500))
	intent := f.createPayment(t, "25")
	f.proc.setStatus(intent, processor.StatusSucceeded)

	p, err := f.svc.ConfirmRedirect(context.Background(), f.user.ID, intent, processor.StatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)

	pot, err := f.store.GetCurrentPot(context.Background())
	require.NoError(t, err)
	assert.True(t, pot.TotalAmount.Equal(decimal.NewFromInt(525)))
	assert.Len(t, f.store.Contributions(), 1)
	assert.Empty(t, f.queue.scheduled())
}

func TestConfirmRedirectUsesProcessorStatus(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")
	f.proc.setStatus(intent, processor.StatusProcessing)

	p, err := f.svc.ConfirmRedirect(context.Background(), f.user.ID, intent, processor.StatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusProcessing, p.Status)
	assert.Empty(t, f.store.Contributions())

	jobs := f.queue.scheduled()
	require.Len(t, jobs, 1)
	assert.Equal(t, queue.QueuePaymentStatus, jobs[0].queue)
	assert.Equal(t, PollJob{PaymentIntent: intent, Attempt: 0}, jobs[0].job)
	assert.Equal(t, "poll:"+intent+":0", jobs[0].id)
}

func TestConfirmRedirectCanceled(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")
	f.proc.setStatus(intent, processor.StatusCanceled)

	p, err := f.svc.ConfirmRedirect(context.Background(), f.user.ID, intent, processor.StatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Equal(t, processor.StatusCanceled, p.FailureReason)
}

func TestHandleWebhookSucceededOnce(t *testing.T) {
	f := newFixture(t)
	f.store.SetPot(decimal.NewFromInt(500))
	intent := f.createPayment(t, "25")
	ctx := context.Background()

	payload, sig := f.webhook("evt_1", processor.EventIntentSucceeded, intent, "")
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))

	assert.Equal(t, models.PaymentStatusCompleted, f.status(t, intent).Status)
	assert.Len(t, f.store.Contributions(), 1)
	assert.Equal(t, 1, f.store.WebhookEvents())
	assert.Len(t, f.pub.Pots(), 1)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")

	payload, sig := f.webhook("evt_1", processor.EventIntentSucceeded, intent, "")
	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-3] = ' '

	err := f.svc.HandleWebhook(context.Background(), tampered, sig)
	assert.ErrorIs(t, err, ErrInvalidWebhook)
	err = f.svc.HandleWebhook(context.Background(), payload, "")
	assert.ErrorIs(t, err, ErrInvalidWebhook)

	assert.Zero(t, f.store.WebhookEvents())
	assert.Equal(t, models.PaymentStatusPending, f.status(t, intent).Status)
}

func TestHandleWebhookFailed(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")

	payload, sig := f.webhook("evt_1", processor.EventIntentFailed, intent, `,"last_payment_error":{"message":"card declined"}`)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), payload, sig))

	p := f.status(t, intent)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Equal(t, "card declined", p.FailureReason)
}

func TestHandleWebhookRetriesUnprocessedEvent(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")
	ctx := context.Background()

	payload, sig := f.webhook("evt_1", processor.EventIntentSucceeded, intent, "")
	f.store.FailOn("IncrementPot", errors.New("connection reset"))
	require.Error(t, f.svc.HandleWebhook(ctx, payload, sig))
	assert.Equal(t, models.PaymentStatusPending, f.status(t, intent).Status)

	f.store.FailOn("IncrementPot", nil)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
	assert.Equal(t, models.PaymentStatusCompleted, f.status(t, intent).Status)
	assert.Len(t, f.store.Contributions(), 1)
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	payload, sig := f.webhook("evt_9", "charge.refunded", "ch_1", "")

	require.NoError(t, f.svc.HandleWebhook(context.Background(), payload, sig))
	assert.Equal(t, 1, f.store.WebhookEvents())
}

func TestWebhookAndPollerSettleOnce(t *testing.T) {
	f := newFixture(t)
	f.store.SetPot(decimal.NewFromInt(500))
	intent := f.createPayment(t, "25")
	f.proc.setStatus(intent, processor.StatusSucceeded)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		payload, sig := f.webhook("evt_1", processor.EventIntentSucceeded, intent, "")
		errs <- f.svc.HandleWebhook(ctx, payload, sig)
	}()
	go func() {
		defer wg.Done()
		errs <- f.svc.PollStatus(ctx, PollJob{PaymentIntent: intent, Attempt: 1})
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	pot, err := f.store.GetCurrentPot(ctx)
	require.NoError(t, err)
	assert.True(t, pot.TotalAmount.Equal(decimal.NewFromInt(525)))
	assert.Len(t, f.store.Contributions(), 1)
	assert.Equal(t, models.PaymentStatusCompleted, f.status(t, intent).Status)
}

func TestPollStatusReschedulesWithBackoff(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")
	f.proc.setStatus(intent, processor.StatusProcessing)

	require.NoError(t, f.svc.PollStatus(context.Background(), PollJob{PaymentIntent: intent, Attempt: 3}))

	assert.Equal(t, models.PaymentStatusProcessing, f.status(t, intent).Status)
	jobs := f.queue.scheduled()
	require.Len(t, jobs, 1)
	assert.Equal(t, 4, jobs[0].job.Attempt)
	assert.Equal(t, "poll:"+intent+":4", jobs[0].id)
	// 5s * 2^4 = 80s, +/-20%
	assert.GreaterOrEqual(t, jobs[0].delay, 64*time.Second)
	assert.LessOrEqual(t, jobs[0].delay, 96*time.Second)
}

func TestPollStatusProcessorErrorCountsAsAttempt(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")
	f.proc.err = errors.New("timeout")

	require.NoError(t, f.svc.PollStatus(context.Background(), PollJob{PaymentIntent: intent, Attempt: 0}))
	jobs := f.queue.scheduled()
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].job.Attempt)
}

func TestPollStatusGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")
	f.proc.setStatus(intent, processor.StatusProcessing)

	require.NoError(t, f.svc.PollStatus(context.Background(), PollJob{PaymentIntent: intent, Attempt: 10}))

	p := f.status(t, intent)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Equal(t, ReasonTimeout, p.FailureReason)
	assert.Empty(t, f.queue.scheduled())
}

func TestPollStatusGivesUpAfterTimeout(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")
	f.proc.setStatus(intent, processor.StatusProcessing)
	f.svc.now = func() time.Time { return time.Now().UTC().Add(61 * time.Minute) }

	require.NoError(t, f.svc.PollStatus(context.Background(), PollJob{PaymentIntent: intent, Attempt: 2}))

	p := f.status(t, intent)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Equal(t, ReasonTimeout, p.FailureReason)
}

func TestPollStatusIgnoresTerminalPayments(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")
	f.proc.setStatus(intent, processor.StatusSucceeded)
	ctx := context.Background()

	require.NoError(t, f.svc.PollStatus(ctx, PollJob{PaymentIntent: intent}))
	require.NoError(t, f.svc.PollStatus(ctx, PollJob{PaymentIntent: intent, Attempt: 10}))

	assert.Equal(t, models.PaymentStatusCompleted, f.status(t, intent).Status)
	assert.Len(t, f.store.Contributions(), 1)
	assert.Empty(t, f.queue.scheduled())
}

func TestCreatePaymentIntentRejectsAboveMaximum(t *testing.T) {
	f := newFixture(t)

	for _, amount := range []string{"1000000", "999999.999", "92233720368547758.07"} {
		_, err := f.svc.CreatePaymentIntent(context.Background(), f.user.ID, decimal.RequireFromString(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
	}
	assert.Empty(t, f.proc.created)

	_, err := f.svc.CreatePaymentIntent(context.Background(), f.user.ID, decimal.RequireFromString("999999.99"))
	require.NoError(t, err)
	assert.Equal(t, []int64{99999999}, f.proc.created)
}

func TestHandleWebhookRequiresSecret(t *testing.T) {
	f := newFixture(t)
	f.svc.stripe.WebhookSecret = ""
	intent := f.createPayment(t, "25")

	payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":%q,"data":{"object":{"id":%q,"amount":2500,"currency":"usd"}}}`,
		processor.EventIntentSucceeded, intent))
	err := f.svc.HandleWebhook(context.Background(), payload, processor.SignPayload(payload, "", time.Now()))
	assert.ErrorIs(t, err, ErrInvalidWebhook)

	assert.Zero(t, f.store.WebhookEvents())
	assert.Equal(t, models.PaymentStatusPending, f.status(t, intent).Status)
	assert.Empty(t, f.store.Contributions())
}

func TestHandleWebhookAmountMismatchDoesNotSettle(t *testing.T) {
	tests := []struct {
		name   string
		object string
		reason string
	}{
		{"amount", `,"amount":1,"currency":"usd"`, ReasonAmountMismatch},
		{"currency", `,"amount":2500,"currency":"eur"`, ReasonCurrencyMismatch},
		{"missing amount", ``, ReasonAmountMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			intent := f.createPayment(t, "25")

			payload, sig := webhook("evt_1", processor.EventIntentSucceeded, intent, tt.object)
			require.NoError(t, f.svc.HandleWebhook(context.Background(), payload, sig))

			p := f.status(t, intent)
			assert.Equal(t, models.PaymentStatusFailed, p.Status)
			assert.Equal(t, tt.reason, p.FailureReason)
			assert.Empty(t, f.store.Contributions())
			assert.Empty(t, f.pub.Pots())
		})
	}
}

func TestConfirmRedirectAmountMismatchDoesNotSettle(t *testing.T) {
	f := newFixture(t)
	intent := f.createPayment(t, "25")
	f.proc.setStatus(intent, processor.StatusSucceeded)
	f.proc.intents[intent].Amount = 250000

	p, err := f.svc.ConfirmRedirect(context.Background(), f.user.ID, intent, processor.StatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Equal(t, ReasonAmountMismatch, p.FailureReason)
	assert.Empty(t, f.store.Contributions())
}

func TestHandleWebhookUnknownIntentIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payload, sig := webhook("evt_7", processor.EventIntentSucceeded, "pi_unknown", `,"amount":2500,"currency":"usd"`)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))

	event, err := f.store.GetWebhookEvent(ctx, "evt_7")
	require.NoError(t, err)
	assert.True(t, event.Processed)
	assert.Empty(t, f.store.Contributions())
	assert.Empty(t, f.queue.scheduled())
}
