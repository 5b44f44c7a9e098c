package jobs

import (
	"github.com/santaspot/backend/internal/queue"
	"go.uber.org/zap"
)

// RegisterHandlers wires every queue to its handler
func RegisterHandlers(p *queue.JobProcessor, payments PaymentPoller, donations DonationRechecker, log *zap.Logger) {
	p.RegisterHandler(queue.QueuePaymentStatus, PaymentStatusHandler(payments))
	p.RegisterHandler(queue.QueueDonationConfirm, DonationConfirmHandler(donations, log))
}
