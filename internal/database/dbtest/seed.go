package dbtest

import (
	"context"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/models"
	"github.com/shopspring/decimal"
)

// SeedProfile creates an account and profile with the given code and balance
func (m *MemStore) SeedProfile(code string, earnings decimal.Decimal) *models.Profile {
	account := &models.Account{ID: uuid.New(), Email: code + "@example.com"}
	profile := &models.Profile{ReferralCode: code, Earnings: earnings}
	if err := m.CreateAccount(context.Background(), account, profile); err != nil {
		panic(err)
	}
	return profile
}

// SetPot overwrites the current pot total
func (m *MemStore) SetPot(total decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.pot.TotalAmount = total
}

// SeedOffer stores an active offer
func (m *MemStore) SeedOffer(title string, reward decimal.Decimal) *models.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()

	offer := models.Offer{
		ID:        uuid.New(),
		Title:     title,
		Category:  "survey",
		Reward:    reward,
		URL:       "https://offers.example.com/" + title,
		IsActive:  true,
		CreatedAt: m.Now(),
	}
	m.st.offers[offer.ID] = offer
	return &offer
}

// SeedPayment stores a payment as-is
func (m *MemStore) SeedPayment(payment models.Payment) {
	if err := m.CreatePayment(context.Background(), &payment); err != nil {
		panic(err)
	}
}

// Referrals returns every referral row
func (m *MemStore) Referrals() []models.Referral {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Referral(nil), m.st.referrals...)
}

// Contributions returns every pot contribution
func (m *MemStore) Contributions() []models.PotContribution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PotContribution(nil), m.st.contributions...)
}

// Settlements returns the number of ledger rows
func (m *MemStore) Settlements() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.st.settlements)
}

// Clicks returns every click
func (m *MemStore) Clicks() []models.Click {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Click(nil), m.st.clicks...)
}

// Earnings returns every earning row
func (m *MemStore) Earnings() []models.Earning {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Earning(nil), m.st.earnings...)
}

// OfferClicks returns every offer click
func (m *MemStore) OfferClicks() []models.OfferClick {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OfferClick(nil), m.st.offerClicks...)
}

// ReferralClicks returns every resolved short link log
func (m *MemStore) ReferralClicks() []models.ReferralClick {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ReferralClick(nil), m.st.referralClicks...)
}

// Shares returns every share
func (m *MemStore) Shares() []models.Share {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Share(nil), m.st.shares...)
}

// WebhookEvents returns the stored event count
func (m *MemStore) WebhookEvents() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.st.webhookEvents)
}
