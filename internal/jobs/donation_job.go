package jobs

import (
	"context"

	"github.com/santaspot/backend/internal/queue"
	"go.uber.org/zap"
)

// defaultDonationBatch is used when a job carries no limit
const defaultDonationBatch = 100

// DonationRechecker refreshes confirmations of pending donations
type DonationRechecker interface {
	RecheckPending(ctx context.Context, limit int) (int, error)
}

// DonationConfirmJob is the payload of a donation confirmation job
type DonationConfirmJob struct {
	Limit int `json:"limit"`
}

// DonationConfirmHandler re-checks a batch of pending donations
func DonationConfirmHandler(donations DonationRechecker, log *zap.Logger) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var payload DonationConfirmJob
		if err := job.Decode(&payload); err != nil {
			return err
		}
		if payload.Limit <= 0 {
			payload.Limit = defaultDonationBatch
		}

		confirmed, err := donations.RecheckPending(ctx, payload.Limit)
		if err != nil {
			return err
		}
		if confirmed > 0 {
			log.Info("donations confirmed", zap.Int("count", confirmed))
		}
		return nil
	}
}
