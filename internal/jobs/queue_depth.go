package jobs

import (
	"context"

	"github.com/santaspot/backend/internal/metrics"
	"github.com/santaspot/backend/internal/queue"
	"go.uber.org/zap"
)

// QueueStatser reports how many jobs sit in a queue
type QueueStatser interface {
	Stats(ctx context.Context, queueName string) (*queue.QueueStats, error)
}

// ReportQueueDepth publishes the waiting, delayed and failed counts of every job queue
func ReportQueueDepth(ctx context.Context, stats QueueStatser, m *metrics.Metrics, log *zap.Logger) {
	for _, name := range []string{queue.QueuePaymentStatus, queue.QueueDonationConfirm} {
		s, err := stats.Stats(ctx, name)
		if err != nil {
			log.Warn("failed to read queue stats", zap.String("queue", name), zap.Error(err))
			continue
		}
		m.SetQueueDepth(name, s.Waiting, s.Delayed, s.Failed)
	}
}
