package dbtest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/models"
)

// LockClickKey is a no-op; transactions are already serialized
func (m *MemStore) LockClickKey(ctx context.Context, ip, code string) error {
	unlock, err := m.enter(ctx, "LockClickKey")
	if err != nil {
		return err
	}
	unlock()
	return nil
}

func (m *MemStore) CountRecentClicks(ctx context.Context, ip, code string, since time.Time) (int64, error) {
	unlock, err := m.enter(ctx, "CountRecentClicks")
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for _, c := range m.st.clicks {
		if c.IPAddress == ip && c.ReferralCode == code && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) CreateClick(ctx context.Context, click *models.Click) error {
	unlock, err := m.enter(ctx, "CreateClick")
	if err != nil {
		return err
	}
	defer unlock()

	ensureID(&click.ID)
	m.stamp(&click.CreatedAt)
	m.st.clicks = append(m.st.clicks, *click)
	return nil
}

func (m *MemStore) CountClicksByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	unlock, err := m.enter(ctx, "CountClicksByUser")
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for _, c := range m.st.clicks {
		if c.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) TotalClicks(ctx context.Context) (int64, error) {
	unlock, err := m.enter(ctx, "TotalClicks")
	if err != nil {
		return 0, err
	}
	defer unlock()
	return int64(len(m.st.clicks)), nil
}

func (m *MemStore) CreateEarning(ctx context.Context, earning *models.Earning) error {
	unlock, err := m.enter(ctx, "CreateEarning")
	if err != nil {
		return err
	}
	defer unlock()

	ensureID(&earning.ID)
	m.stamp(&earning.CreatedAt)
	m.st.earnings = append(m.st.earnings, *earning)
	return nil
}

func (m *MemStore) ListEarnings(ctx context.Context, userID uuid.UUID, limit int) ([]models.Earning, error) {
	unlock, err := m.enter(ctx, "ListEarnings")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []models.Earning
	for i := len(m.st.earnings) - 1; i >= 0; i-- {
		if m.st.earnings[i].UserID == userID {
			out = append(out, m.st.earnings[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) GetUserStats(ctx context.Context, userID uuid.UUID) (*models.UserStats, error) {
	unlock, err := m.enter(ctx, "GetUserStats")
	if err != nil {
		return nil, err
	}
	defer unlock()

	stats, ok := m.st.stats[userID]
	if !ok {
		stats = models.UserStats{UserID: userID}
	}
	return &stats, nil
}

func (m *MemStore) IncrementUserStats(ctx context.Context, userID uuid.UUID, delta models.StatsDelta) (*models.UserStats, error) {
	unlock, err := m.enter(ctx, "IncrementUserStats")
	if err != nil {
		return nil, err
	}
	defer unlock()

	stats, ok := m.st.stats[userID]
	if !ok {
		stats = models.UserStats{UserID: userID}
	}
	stats.TotalEarned = stats.TotalEarned.Add(delta.TotalEarned)
	stats.CompletedOffers += delta.CompletedOffers
	stats.Clicks += delta.Clicks
	stats.UpdatedAt = m.Now()
	m.st.stats[userID] = stats
	return &stats, nil
}

func (m *MemStore) ListActiveOffers(ctx context.Context, category string) ([]models.Offer, error) {
	unlock, err := m.enter(ctx, "ListActiveOffers")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []models.Offer
	for _, o := range m.st.offers {
		if o.IsActive && (category == "" || o.Category == category) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) GetOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	unlock, err := m.enter(ctx, "GetOffer")
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, ok := m.st.offers[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &o, nil
}

func (m *MemStore) CreateOfferClick(ctx context.Context, click *models.OfferClick) error {
	unlock, err := m.enter(ctx, "CreateOfferClick")
	if err != nil {
		return err
	}
	defer unlock()

	ensureID(&click.ID)
	m.stamp(&click.CreatedAt)
	m.st.offerClicks = append(m.st.offerClicks, *click)
	return nil
}

func (m *MemStore) CreateShare(ctx context.Context, share *models.Share) error {
	unlock, err := m.enter(ctx, "CreateShare")
	if err != nil {
		return err
	}
	defer unlock()

	ensureID(&share.ID)
	m.stamp(&share.CreatedAt)
	m.st.shares = append(m.st.shares, *share)
	return nil
}

func (m *MemStore) CreateShortURL(ctx context.Context, short *models.ShortURL) error {
	unlock, err := m.enter(ctx, "CreateShortURL")
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := m.st.shortURLs[short.ShortCode]; ok {
		return database.ErrDuplicate
	}
	ensureID(&short.ID)
	m.stamp(&short.CreatedAt)
	m.st.shortURLs[short.ShortCode] = *short
	return nil
}

func (m *MemStore) GetShortURL(ctx context.Context, code string) (*models.ShortURL, error) {
	unlock, err := m.enter(ctx, "GetShortURL")
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, ok := m.st.shortURLs[code]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &s, nil
}

func (m *MemStore) IncrementShortURLClicks(ctx context.Context, code string) error {
	unlock, err := m.enter(ctx, "IncrementShortURLClicks")
	if err != nil {
		return err
	}
	defer unlock()

	s, ok := m.st.shortURLs[code]
	if !ok {
		return database.ErrNotFound
	}
	s.Clicks++
	m.st.shortURLs[code] = s
	return nil
}

func (m *MemStore) CreateReferralClick(ctx context.Context, click *models.ReferralClick) error {
	unlock, err := m.enter(ctx, "CreateReferralClick")
	if err != nil {
		return err
	}
	defer unlock()

	ensureID(&click.ID)
	m.stamp(&click.CreatedAt)
	m.st.referralClicks = append(m.st.referralClicks, *click)
	return nil
}
