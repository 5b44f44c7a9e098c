// Package realtime fans aggregate changes out over Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Channel names
const (
	ChannelPot             = "pot_changes"
	userStatsChannelPrefix = "user_stats_changes:"
)

// UserStatsChannel is the per-user stats channel
func UserStatsChannel(userID uuid.UUID) string {
	return userStatsChannelPrefix + userID.String()
}

// PotChange is published after the pot total moves
type PotChange struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	Delta       decimal.Decimal `json:"delta"`
	At          time.Time       `json:"at"`
}

// StatsChange is published after a user's stats move
type StatsChange struct {
	UserID          uuid.UUID       `json:"user_id"`
	TotalEarned     decimal.Decimal `json:"total_earned"`
	CompletedOffers int64           `json:"completed_offers"`
	Clicks          int64           `json:"clicks"`
	Earnings        decimal.Decimal `json:"earnings"`
	At              time.Time       `json:"at"`
}

// Hub publishes and subscribes on Redis
type Hub struct {
	client *redis.Client
	log    *zap.Logger
}

// NewHub creates a hub on the given client
func NewHub(client *redis.Client, log *zap.Logger) *Hub {
	return &Hub{client: client, log: log}
}

// PublishPot announces a new pot total
func (h *Hub) PublishPot(ctx context.Context, change PotChange) error {
	return h.publish(ctx, ChannelPot, change)
}

// PublishUserStats announces new stats for a user
func (h *Hub) PublishUserStats(ctx context.Context, change StatsChange) error {
	return h.publish(ctx, UserStatsChannel(change.UserID), change)
}

func (h *Hub) publish(ctx context.Context, channel string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", channel, err)
	}
	if err := h.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe streams raw messages from channel until ctx is done
func (h *Hub) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := h.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					h.log.Debug("dropping realtime message for slow subscriber", zap.String("channel", channel))
				}
			}
		}
	}()
	return out, nil
}
