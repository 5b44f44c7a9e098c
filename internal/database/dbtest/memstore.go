// Package dbtest provides an in-memory store with the same semantics as the Postgres
// store: unique constraints, conditional updates and all-or-nothing transactions.
package dbtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/models"
	"github.com/shopspring/decimal"
)

type txKey struct{}

type state struct {
	accounts       map[uuid.UUID]models.Account
	profiles       map[uuid.UUID]models.Profile
	referrals      []models.Referral
	settlements    map[string]models.Settlement
	payments       map[string]models.Payment
	pot            models.Pot
	contributions  []models.PotContribution
	clicks         []models.Click
	earnings       []models.Earning
	stats          map[uuid.UUID]models.UserStats
	offers         map[uuid.UUID]models.Offer
	offerClicks    []models.OfferClick
	shares         []models.Share
	shortURLs      map[string]models.ShortURL
	referralClicks []models.ReferralClick
	donations      map[uuid.UUID]models.Donation
	withdrawals    map[uuid.UUID]models.Withdrawal
	webhookEvents  map[string]models.WebhookEvent
}

func (s state) clone() state {
	c := s
	c.accounts = cloneMap(s.accounts)
	c.profiles = cloneMap(s.profiles)
	c.referrals = append([]models.Referral(nil), s.referrals...)
	c.settlements = cloneMap(s.settlements)
	c.payments = cloneMap(s.payments)
	c.contributions = append([]models.PotContribution(nil), s.contributions...)
	c.clicks = append([]models.Click(nil), s.clicks...)
	c.earnings = append([]models.Earning(nil), s.earnings...)
	c.stats = cloneMap(s.stats)
	c.offers = cloneMap(s.offers)
	c.offerClicks = append([]models.OfferClick(nil), s.offerClicks...)
	c.shares = append([]models.Share(nil), s.shares...)
	c.shortURLs = cloneMap(s.shortURLs)
	c.referralClicks = append([]models.ReferralClick(nil), s.referralClicks...)
	c.donations = cloneMap(s.donations)
	c.withdrawals = cloneMap(s.withdrawals)
	c.webhookEvents = cloneMap(s.webhookEvents)
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MemStore is a thread-safe in-memory store. Transactions are serialized.
type MemStore struct {
	mu       sync.Mutex
	st       state
	failures map[string]error

	// Now stamps created_at and updated_at; tests may replace it
	Now func() time.Time
}

// NewMemStore creates an empty store with a current pot of zero
func NewMemStore() *MemStore {
	return &MemStore{
		st: state{
			accounts:      map[uuid.UUID]models.Account{},
			profiles:      map[uuid.UUID]models.Profile{},
			settlements:   map[string]models.Settlement{},
			payments:      map[string]models.Payment{},
			pot:           models.Pot{ID: uuid.New(), IsCurrent: true},
			stats:         map[uuid.UUID]models.UserStats{},
			offers:        map[uuid.UUID]models.Offer{},
			shortURLs:     map[string]models.ShortURL{},
			donations:     map[uuid.UUID]models.Donation{},
			withdrawals:   map[uuid.UUID]models.Withdrawal{},
			webhookEvents: map[string]models.WebhookEvent{},
		},
		failures: map[string]error{},
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes the named operation return err until cleared with a nil error
func (m *MemStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// enter locks the store unless ctx already holds the transaction lock
func (m *MemStore) enter(ctx context.Context, op string) (func(), error) {
	unlock := func() {}
	if ctx.Value(txKey{}) == nil {
		m.mu.Lock()
		unlock = m.mu.Unlock
	}
	if err := m.failures[op]; err != nil {
		unlock()
		return nil, err
	}
	return unlock, nil
}

// memTx marks a context as holding the transaction lock and queues after-commit hooks
type memTx struct {
	hooks []func()
}

// WithinTx runs fn atomically. State is restored when fn returns an error.
func (m *MemStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	tx := &memTx{}
	if err := m.runTx(context.WithValue(ctx, txKey{}, tx), fn); err != nil {
		return err
	}
	for _, hook := range tx.hooks {
		hook()
	}
	return nil
}

func (m *MemStore) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(ctx); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// AfterCommit defers fn until the outermost transaction in ctx commits
func (m *MemStore) AfterCommit(ctx context.Context, fn func()) {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok {
		tx.hooks = append(tx.hooks, fn)
		return
	}
	fn()
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (m *MemStore) stamp(t *time.Time) {
	if t.IsZero() {
		*t = m.Now()
	}
}

// Accounts and profiles

func (m *MemStore) CreateAccount(ctx context.Context, account *models.Account, profile *models.Profile) error {
	unlock, err := m.enter(ctx, "CreateAccount")
	if err != nil {
		return err
	}
	defer unlock()

	for _, a := range m.st.accounts {
		if a.Email == account.Email {
			return database.ErrDuplicate
		}
		if account.GoogleID != nil && a.GoogleID != nil && *a.GoogleID == *account.GoogleID {
			return database.ErrDuplicate
		}
	}
	for _, p := range m.st.profiles {
		if p.ReferralCode == profile.ReferralCode {
			return database.ErrDuplicate
		}
		if profile.HasUsername() && p.HasUsername() && *p.Username == *profile.Username {
			return database.ErrDuplicate
		}
	}

	ensureID(&account.ID)
	m.stamp(&account.CreatedAt)
	account.UpdatedAt = account.CreatedAt
	profile.ID = account.ID
	m.stamp(&profile.CreatedAt)
	profile.UpdatedAt = profile.CreatedAt

	m.st.accounts[account.ID] = *account
	m.st.profiles[profile.ID] = *profile
	return nil
}

func (m *MemStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	unlock, err := m.enter(ctx, "GetAccount")
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, ok := m.st.accounts[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &a, nil
}

func (m *MemStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	unlock, err := m.enter(ctx, "GetAccountByEmail")
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, a := range m.st.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *MemStore) GetAccountByGoogleID(ctx context.Context, googleID string) (*models.Account, error) {
	unlock, err := m.enter(ctx, "GetAccountByGoogleID")
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, a := range m.st.accounts {
		if a.GoogleID != nil && *a.GoogleID == googleID {
			return &a, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *MemStore) LinkGoogleAccount(ctx context.Context, id uuid.UUID, googleID string) error {
	return m.updateAccount(ctx, "LinkGoogleAccount", id, func(a *models.Account) {
		a.GoogleID = &googleID
	})
}

func (m *MemStore) UpdateAccountTOTP(ctx context.Context, id uuid.UUID, secret string, enabled bool) error {
	return m.updateAccount(ctx, "UpdateAccountTOTP", id, func(a *models.Account) {
		a.TOTPSecret = secret
		a.TOTPEnabled = enabled
	})
}

func (m *MemStore) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.updateAccount(ctx, "UpdateLastLogin", id, func(a *models.Account) {
		a.LastLoginAt = &at
	})
}

func (m *MemStore) updateAccount(ctx context.Context, op string, id uuid.UUID, apply func(*models.Account)) error {
	unlock, err := m.enter(ctx, op)
	if err != nil {
		return err
	}
	defer unlock()

	a, ok := m.st.accounts[id]
	if !ok {
		return database.ErrNotFound
	}
	apply(&a)
	a.UpdatedAt = m.Now()
	m.st.accounts[id] = a
	return nil
}

func (m *MemStore) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	unlock, err := m.enter(ctx, "GetProfile")
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, ok := m.st.profiles[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &p, nil
}

func (m *MemStore) GetProfileByReferralCode(ctx context.Context, code string) (*models.Profile, error) {
	unlock, err := m.enter(ctx, "GetProfileByReferralCode")
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, p := range m.st.profiles {
		if p.ReferralCode == code {
			return &p, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *MemStore) SetUsername(ctx context.Context, id uuid.UUID, username string) error {
	unlock, err := m.enter(ctx, "SetUsername")
	if err != nil {
		return err
	}
	defer unlock()

	p, ok := m.st.profiles[id]
	if !ok {
		return database.ErrNotFound
	}
	if p.HasUsername() {
		return database.ErrConflict
	}
	for otherID, other := range m.st.profiles {
		if otherID != id && other.HasUsername() && *other.Username == username {
			return database.ErrDuplicate
		}
	}
	p.Username = &username
	p.UpdatedAt = m.Now()
	m.st.profiles[id] = p
	return nil
}

func (m *MemStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	unlock, err := m.enter(ctx, "UsernameTaken")
	if err != nil {
		return false, err
	}
	defer unlock()

	for _, p := range m.st.profiles {
		if p.HasUsername() && *p.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) IncrementEarnings(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	unlock, err := m.enter(ctx, "IncrementEarnings")
	if err != nil {
		return decimal.Zero, err
	}
	defer unlock()

	p, ok := m.st.profiles[id]
	if !ok {
		return decimal.Zero, database.ErrNotFound
	}
	p.Earnings = p.Earnings.Add(amount)
	m.st.profiles[id] = p
	return p.Earnings, nil
}

func (m *MemStore) DebitEarnings(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	unlock, err := m.enter(ctx, "DebitEarnings")
	if err != nil {
		return decimal.Zero, err
	}
	defer unlock()

	p, ok := m.st.profiles[id]
	if !ok {
		return decimal.Zero, database.ErrNotFound
	}
	if p.Earnings.LessThan(amount) {
		return decimal.Zero, database.ErrInsufficientFunds
	}
	p.Earnings = p.Earnings.Sub(amount)
	m.st.profiles[id] = p
	return p.Earnings, nil
}

func (m *MemStore) CountProfiles(ctx context.Context) (int64, error) {
	unlock, err := m.enter(ctx, "CountProfiles")
	if err != nil {
		return 0, err
	}
	defer unlock()
	return int64(len(m.st.profiles)), nil
}

func (m *MemStore) SumEarnings(ctx context.Context) (decimal.Decimal, error) {
	unlock, err := m.enter(ctx, "SumEarnings")
	if err != nil {
		return decimal.Zero, err
	}
	defer unlock()

	total := decimal.Zero
	for _, p := range m.st.profiles {
		total = total.Add(p.Earnings)
	}
	return total, nil
}

// Referrals and the settlement ledger

func (m *MemStore) CreateReferral(ctx context.Context, referral *models.Referral) error {
	unlock, err := m.enter(ctx, "CreateReferral")
	if err != nil {
		return err
	}
	defer unlock()

	for _, r := range m.st.referrals {
		if r.ReferredID == referral.ReferredID {
			return database.ErrDuplicate
		}
	}
	ensureID(&referral.ID)
	m.stamp(&referral.CreatedAt)
	m.st.referrals = append(m.st.referrals, *referral)
	return nil
}

func (m *MemStore) GetReferralByReferred(ctx context.Context, referredID uuid.UUID) (*models.Referral, error) {
	unlock, err := m.enter(ctx, "GetReferralByReferred")
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, r := range m.st.referrals {
		if r.ReferredID == referredID {
			return &r, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *MemStore) ListReferralsByReferrer(ctx context.Context, referrerID uuid.UUID) ([]models.Referral, error) {
	unlock, err := m.enter(ctx, "ListReferralsByReferrer")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []models.Referral
	for i := len(m.st.referrals) - 1; i >= 0; i-- {
		r := m.st.referrals[i]
		if r.ReferrerID != nil && *r.ReferrerID == referrerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemStore) CountCompletedReferrals(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	unlock, err := m.enter(ctx, "CountCompletedReferrals")
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for _, r := range m.st.referrals {
		if r.ReferrerID != nil && *r.ReferrerID == referrerID && r.Status == models.ReferralStatusCompleted {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	unlock, err := m.enter(ctx, "CreateSettlement")
	if err != nil {
		return err
	}
	defer unlock()

	key := settlement.Reference + "|" + string(settlement.Effect)
	if _, ok := m.st.settlements[key]; ok {
		return database.ErrDuplicate
	}
	ensureID(&settlement.ID)
	m.stamp(&settlement.CreatedAt)
	m.st.settlements[key] = *settlement
	return nil
}

// Payments and the pot

func (m *MemStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	unlock, err := m.enter(ctx, "CreatePayment")
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := m.st.payments[payment.PaymentIntent]; ok {
		return database.ErrDuplicate
	}
	ensureID(&payment.ID)
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	m.stamp(&payment.CreatedAt)
	payment.UpdatedAt = payment.CreatedAt
	m.st.payments[payment.PaymentIntent] = *payment
	return nil
}

func (m *MemStore) GetPaymentByIntent(ctx context.Context, intent string) (*models.Payment, error) {
	unlock, err := m.enter(ctx, "GetPaymentByIntent")
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, ok := m.st.payments[intent]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &p, nil
}

func (m *MemStore) UpdatePaymentStatus(ctx context.Context, intent string, from []models.PaymentStatus, to models.PaymentStatus, reason string) (bool, error) {
	unlock, err := m.enter(ctx, "UpdatePaymentStatus")
	if err != nil {
		return false, err
	}
	defer unlock()

	p, ok := m.st.payments[intent]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if p.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}

	p.Status = to
	if reason != "" {
		p.FailureReason = reason
	}
	p.UpdatedAt = m.Now()
	if to == models.PaymentStatusCompleted {
		at := p.UpdatedAt
		p.CompletedAt = &at
	}
	m.st.payments[intent] = p
	return true, nil
}

func (m *MemStore) ListStalePayments(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	unlock, err := m.enter(ctx, "ListStalePayments")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []models.Payment
	for _, p := range m.st.payments {
		if !p.Status.IsTerminal() && p.UpdatedAt.Before(before) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) GetCurrentPot(ctx context.Context) (*models.Pot, error) {
	unlock, err := m.enter(ctx, "GetCurrentPot")
	if err != nil {
		return nil, err
	}
	defer unlock()

	pot := m.st.pot
	return &pot, nil
}

func (m *MemStore) IncrementPot(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	unlock, err := m.enter(ctx, "IncrementPot")
	if err != nil {
		return decimal.Zero, err
	}
	defer unlock()

	m.st.pot.TotalAmount = m.st.pot.TotalAmount.Add(amount)
	m.st.pot.UpdatedAt = m.Now()
	return m.st.pot.TotalAmount, nil
}

func (m *MemStore) CreateContribution(ctx context.Context, contribution *models.PotContribution) error {
	unlock, err := m.enter(ctx, "CreateContribution")
	if err != nil {
		return err
	}
	defer unlock()

	for _, c := range m.st.contributions {
		if c.PaymentID == contribution.PaymentID {
			return database.ErrDuplicate
		}
	}
	ensureID(&contribution.ID)
	m.stamp(&contribution.CreatedAt)
	m.st.contributions = append(m.st.contributions, *contribution)
	return nil
}

func (m *MemStore) CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	unlock, err := m.enter(ctx, "CreateWebhookEvent")
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := m.st.webhookEvents[event.EventID]; ok {
		return database.ErrDuplicate
	}
	ensureID(&event.ID)
	m.stamp(&event.CreatedAt)
	m.st.webhookEvents[event.EventID] = *event
	return nil
}

func (m *MemStore) GetWebhookEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	unlock, err := m.enter(ctx, "GetWebhookEvent")
	if err != nil {
		return nil, err
	}
	defer unlock()

	e, ok := m.st.webhookEvents[eventID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &e, nil
}

func (m *MemStore) MarkWebhookEventProcessed(ctx context.Context, eventID string) error {
	unlock, err := m.enter(ctx, "MarkWebhookEventProcessed")
	if err != nil {
		return err
	}
	defer unlock()

	if e, ok := m.st.webhookEvents[eventID]; ok {
		e.Processed = true
		m.st.webhookEvents[eventID] = e
	}
	return nil
}
