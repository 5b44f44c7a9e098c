package dbtest

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/models"
)

func (m *MemStore) CreateDonation(ctx context.Context, donation *models.Donation) error {
	unlock, err := m.enter(ctx, "CreateDonation")
	if err != nil {
		return err
	}
	defer unlock()

	for _, d := range m.st.donations {
		if d.TxHash == donation.TxHash {
			return database.ErrDuplicate
		}
	}
	ensureID(&donation.ID)
	m.stamp(&donation.CreatedAt)
	donation.UpdatedAt = donation.CreatedAt
	m.st.donations[donation.ID] = *donation
	return nil
}

func (m *MemStore) ListPendingDonations(ctx context.Context, limit int) ([]models.Donation, error) {
	unlock, err := m.enter(ctx, "ListPendingDonations")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []models.Donation
	for _, d := range m.st.donations {
		if d.Status == models.DonationStatusPending {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) UpdateDonationStatus(ctx context.Context, id uuid.UUID, status models.DonationStatus, confirmations uint64) error {
	unlock, err := m.enter(ctx, "UpdateDonationStatus")
	if err != nil {
		return err
	}
	defer unlock()

	d, ok := m.st.donations[id]
	if !ok || d.Status != models.DonationStatusPending {
		return database.ErrConflict
	}
	d.Status = status
	d.Confirmations = confirmations
	d.UpdatedAt = m.Now()
	m.st.donations[id] = d
	return nil
}

func (m *MemStore) CreateWithdrawal(ctx context.Context, withdrawal *models.Withdrawal) error {
	unlock, err := m.enter(ctx, "CreateWithdrawal")
	if err != nil {
		return err
	}
	defer unlock()

	ensureID(&withdrawal.ID)
	m.stamp(&withdrawal.CreatedAt)
	withdrawal.UpdatedAt = withdrawal.CreatedAt
	m.st.withdrawals[withdrawal.ID] = *withdrawal
	return nil
}

func (m *MemStore) GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	unlock, err := m.enter(ctx, "GetWithdrawal")
	if err != nil {
		return nil, err
	}
	defer unlock()

	w, ok := m.st.withdrawals[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &w, nil
}

func (m *MemStore) ListWithdrawals(ctx context.Context, userID uuid.UUID) ([]models.Withdrawal, error) {
	return m.listWithdrawals(ctx, "ListWithdrawals", func(w models.Withdrawal) bool { return w.UserID == userID }, true)
}

func (m *MemStore) ListWithdrawalsByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.Withdrawal, error) {
	return m.listWithdrawals(ctx, "ListWithdrawalsByStatus", func(w models.Withdrawal) bool { return w.Status == status }, false)
}

func (m *MemStore) listWithdrawals(ctx context.Context, op string, keep func(models.Withdrawal) bool, newestFirst bool) ([]models.Withdrawal, error) {
	unlock, err := m.enter(ctx, op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []models.Withdrawal
	for _, w := range m.st.withdrawals {
		if keep(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemStore) UpdateWithdrawalStatus(ctx context.Context, id uuid.UUID, status models.WithdrawalStatus, reason string) error {
	unlock, err := m.enter(ctx, "UpdateWithdrawalStatus")
	if err != nil {
		return err
	}
	defer unlock()

	w, ok := m.st.withdrawals[id]
	if !ok {
		return database.ErrNotFound
	}
	if w.Status != models.WithdrawalStatusPending {
		return database.ErrConflict
	}
	now := m.Now()
	w.Status = status
	w.FailureReason = reason
	w.ProcessedAt = &now
	w.UpdatedAt = now
	m.st.withdrawals[id] = w
	return nil
}
