package withdrawal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/santaspot/backend/internal/database/dbtest"
	"github.com/santaspot/backend/internal/models"
	"github.com/santaspot/backend/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func earnings(t *testing.T, store *dbtest.MemStore, id uuid.UUID) decimal.Decimal {
	t.Helper()
	p, err := store.GetProfile(context.Background(), id)
	require.NoError(t, err)
	return p.Earnings
}

func TestRequestWithdrawal(t *testing.T) {
	store := dbtest.NewMemStore()
	svc := NewService(store, zap.NewNop())
	user := store.SeedProfile("ABC123", dec("150"))

	w, err := svc.RequestWithdrawal(context.Background(), user.ID, Request{
		Amount:         dec("100"),
		PaymentMethod:  "PayPal",
		PaymentDetails: map[string]interface{}{"email": "elf@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusPending, w.Status)
	assert.Equal(t, "paypal", w.PaymentMethod)
	assert.True(t, earnings(t, store, user.ID).Equal(dec("50")))

	_, err = svc.RequestWithdrawal(context.Background(), user.ID, Request{Amount: dec("50.01"), PaymentMethod: "bank"})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, earnings(t, store, user.ID).Equal(dec("50")))

	list, err := svc.ListWithdrawals(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRequestWithdrawalValidation(t *testing.T) {
	store := dbtest.NewMemStore()
	svc := NewService(store, zap.NewNop())
	user := store.SeedProfile("ABC123", dec("150"))

	_, err := svc.RequestWithdrawal(context.Background(), user.ID, Request{Amount: dec("0"), PaymentMethod: "bank"})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.RequestWithdrawal(context.Background(), user.ID, Request{Amount: dec("10"), PaymentMethod: "cheque"})
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
}

func TestRequestWithdrawalCannotOverdrawConcurrently(t *testing.T) {
	store := dbtest.NewMemStore()
	svc := NewService(store, zap.NewNop())
	user := store.SeedProfile("ABC123", dec("100"))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.RequestWithdrawal(context.Background(), user.ID, Request{Amount: dec("30"), PaymentMethod: "bank"})
		}()
	}
	wg.Wait()

	list, err := svc.ListWithdrawals(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.True(t, earnings(t, store, user.ID).Equal(dec("10")))
}

func TestRequestWithdrawalRequiresTOTP(t *testing.T) {
	store := dbtest.NewMemStore()
	svc := NewService(store, zap.NewNop())
	user := store.SeedProfile("ABC123", dec("100"))

	key, err := utils.GenerateTOTPKey("Santa's Pot", "ABC123@example.com")
	require.NoError(t, err)
	require.NoError(t, store.UpdateAccountTOTP(context.Background(), user.ID, key.Secret, true))

	_, err = svc.RequestWithdrawal(context.Background(), user.ID, Request{Amount: dec("10"), PaymentMethod: "bank", TOTPCode: "000000"})
	assert.ErrorIs(t, err, ErrTOTPRequired)

	code, err := totp.GenerateCode(key.Secret, time.Now())
	require.NoError(t, err)
	_, err = svc.RequestWithdrawal(context.Background(), user.ID, Request{Amount: dec("10"), PaymentMethod: "bank", TOTPCode: code})
	assert.NoError(t, err)
}

func TestReviewWithdrawals(t *testing.T) {
	store := dbtest.NewMemStore()
	svc := NewService(store, zap.NewNop())
	ctx := context.Background()
	user := store.SeedProfile("ABC123", dec("100"))

	first, err := svc.RequestWithdrawal(ctx, user.ID, Request{Amount: dec("40"), PaymentMethod: "bank"})
	require.NoError(t, err)
	second, err := svc.RequestWithdrawal(ctx, user.ID, Request{Amount: dec("25"), PaymentMethod: "crypto"})
	require.NoError(t, err)

	pending, err := svc.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	done, err := svc.Complete(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCompleted, done.Status)
	assert.NotNil(t, done.ProcessedAt)

	rejected, err := svc.Reject(ctx, second.ID, "invalid wallet")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusRejected, rejected.Status)
	assert.Equal(t, "invalid wallet", rejected.FailureReason)
	assert.True(t, earnings(t, store, user.ID).Equal(dec("60")))

	_, err = svc.Reject(ctx, first.ID, "late")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = svc.Reject(ctx, second.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.True(t, earnings(t, store, user.ID).Equal(dec("60")))

	_, err = svc.Complete(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
