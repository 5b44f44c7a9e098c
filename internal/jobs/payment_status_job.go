package jobs

import (
	"context"

	"github.com/santaspot/backend/internal/queue"
	"github.com/santaspot/backend/internal/services/payment"
)

// PaymentPoller resolves a payment against the card processor
type PaymentPoller interface {
	PollStatus(ctx context.Context, job payment.PollJob) error
	SchedulePoll(ctx context.Context, intent string, attempt int)
}

// PaymentStatusHandler runs one poll attempt per job. Rescheduling is done by the poller itself.
func PaymentStatusHandler(poller PaymentPoller) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var payload payment.PollJob
		if err := job.Decode(&payload); err != nil {
			return err
		}
		return poller.PollStatus(ctx, payload)
	}
}
