// Package gateway implements durable storage for the materialized views on
// Redis. Persisted copies are derived, not authoritative; the engine's
// in-memory snapshot is the source of truth between saves.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"orderviews/internal/models"
)

const (
	customerKeyPrefix = "views:customer:"
	productKeyPrefix  = "views:product:"
	timelineKey       = "views:timeline"
	processingKey     = "views:processing"
)

// RedisGateway stores each view row as a JSON value under a typed key:
// views:customer:{id}, views:product:{id}, views:timeline, views:processing.
type RedisGateway struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a gateway and verifies the connection.
func New(redisURL string, redisPassword string, logger *slog.Logger) (*RedisGateway, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if redisPassword != "" {
		opt.Password = redisPassword
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisGateway{
		client: client,
		logger: logger.With("component", "gateway"),
	}, nil
}

// Save writes the full snapshot in one pipeline. Customer and product rows
// are upserts keyed by id, so rows for entities absent from this snapshot
// (only possible after a reset) are left behind rather than deleted; the
// timeline and processing rows are replaced whole.
func (g *RedisGateway) Save(ctx context.Context, state *models.ViewState) error {
	start := time.Now()

	pipe := g.client.TxPipeline()

	for id, cs := range state.CustomerStats {
		payload, err := json.Marshal(cs)
		if err != nil {
			return fmt.Errorf("marshal customer %d: %w", id, err)
		}
		pipe.Set(ctx, fmt.Sprintf("%s%d", customerKeyPrefix, id), payload, 0)
	}

	for id, ps := range state.ProductStats {
		payload, err := json.Marshal(ps)
		if err != nil {
			return fmt.Errorf("marshal product %s: %w", id, err)
		}
		pipe.Set(ctx, productKeyPrefix+id, payload, 0)
	}

	timeline, err := json.Marshal(state.Timeline)
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}
	pipe.Set(ctx, timelineKey, timeline, 0)

	processing, err := json.Marshal(state.Processing)
	if err != nil {
		return fmt.Errorf("marshal processing stats: %w", err)
	}
	pipe.Set(ctx, processingKey, processing, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline exec failed: %w", err)
	}

	g.logger.Debug("views_saved",
		"customers", len(state.CustomerStats),
		"products", len(state.ProductStats),
		"timeline_size", len(state.Timeline),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// GetCustomer fetches one customer row. A customer that was never persisted
// returns (nil, nil).
func (g *RedisGateway) GetCustomer(ctx context.Context, customerID int64) (*models.CustomerStats, error) {
	payload, err := g.client.Get(ctx, fmt.Sprintf("%s%d", customerKeyPrefix, customerID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var stats models.CustomerStats
	if err := json.Unmarshal(payload, &stats); err != nil {
		return nil, fmt.Errorf("unmarshal customer stats: %w", err)
	}
	return &stats, nil
}

// GetProduct fetches one product row, (nil, nil) when missing.
func (g *RedisGateway) GetProduct(ctx context.Context, productID string) (*models.ProductStats, error) {
	payload, err := g.client.Get(ctx, productKeyPrefix+productID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var stats models.ProductStats
	if err := json.Unmarshal(payload, &stats); err != nil {
		return nil, fmt.Errorf("unmarshal product stats: %w", err)
	}
	return &stats, nil
}

// GetTimeline fetches the persisted timeline, truncated to limit. The stored
// row is already newest-first.
func (g *RedisGateway) GetTimeline(ctx context.Context, limit int) ([]models.TimelineEntry, error) {
	payload, err := g.client.Get(ctx, timelineKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []models.TimelineEntry{}, nil
		}
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var entries []models.TimelineEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal timeline: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Ping probes storage liveness.
func (g *RedisGateway) Ping(ctx context.Context) error {
	if err := g.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (g *RedisGateway) Close() error {
	return g.client.Close()
}
