package database

import (
	"context"
	"time"

	"github.com/santaspot/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreatePayment inserts a payment row
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return mapError(s.conn(ctx).Create(payment).Error)
}

// GetPaymentByIntent fetches a payment by the processor's intent ID
func (s *Store) GetPaymentByIntent(ctx context.Context, intent string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.conn(ctx).First(&payment, "payment_intent = ?", intent).Error; err != nil {
		return nil, mapError(err)
	}
	return &payment, nil
}

// UpdatePaymentStatus moves a payment to `to` only while it is in one of `from`.
// It reports whether this call performed the transition.
func (s *Store) UpdatePaymentStatus(ctx context.Context, intent string, from []models.PaymentStatus, to models.PaymentStatus, reason string) (bool, error) {
	values := map[string]interface{}{"status": to}
	if reason != "" {
		values["failure_reason"] = reason
	}
	if to == models.PaymentStatusCompleted {
		values["completed_at"] = time.Now().UTC()
	}

	result := s.conn(ctx).Model(&models.Payment{}).
		Where("payment_intent = ? AND status IN ?", intent, from).
		Updates(values)
	if result.Error != nil {
		return false, mapError(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ListStalePayments returns unresolved payments untouched since before
func (s *Store) ListStalePayments(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.conn(ctx).
		Where("status IN ? AND updated_at < ?",
			[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusProcessing}, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, mapError(err)
}

// GetCurrentPot returns the single current pot
func (s *Store) GetCurrentPot(ctx context.Context) (*models.Pot, error) {
	var pot models.Pot
	if err := s.conn(ctx).First(&pot, "is_current = ?", true).Error; err != nil {
		return nil, mapError(err)
	}
	return &pot, nil
}

// IncrementPot adds amount to the current pot and returns the new total
func (s *Store) IncrementPot(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	var pot models.Pot
	result := s.conn(ctx).Model(&pot).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "total_amount"}}}).
		Where("is_current = ?", true).
		Updates(map[string]interface{}{
			"total_amount": gorm.Expr("total_amount + ?", amount),
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return decimal.Zero, mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return decimal.Zero, ErrNotFound
	}
	return pot.TotalAmount, nil
}

// CreateContribution inserts a pot contribution. ErrDuplicate when the payment already contributed.
func (s *Store) CreateContribution(ctx context.Context, contribution *models.PotContribution) error {
	return mapError(s.conn(ctx).Create(contribution).Error)
}

// CreateWebhookEvent stores an event. ErrDuplicate on redelivery.
func (s *Store) CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	return mapError(s.conn(ctx).Create(event).Error)
}

// GetWebhookEvent returns a stored event by its provider id
func (s *Store) GetWebhookEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := s.conn(ctx).Where("event_id = ?", eventID).First(&event).Error; err != nil {
		return nil, mapError(err)
	}
	return &event, nil
}

// MarkWebhookEventProcessed flags a stored event as handled
func (s *Store) MarkWebhookEventProcessed(ctx context.Context, eventID string) error {
	return mapError(s.conn(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Update("processed", true).Error)
}
