package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"sentigo/internal/model"
)

// StatsCache is a cache-aside layer for session statistics. Stats are
// expensive aggregates over text_analyses; entries expire by TTL and are
// invalidated whenever a run, a label patch, or a delete touches the session.
type StatsCache struct {
	client   *redisv9.Client
	statsTTL time.Duration
}

func NewStatsCache(client *redisv9.Client, statsTTL time.Duration) *StatsCache {
	if statsTTL <= 0 {
		statsTTL = 60 * time.Second
	}
	return &StatsCache{
		client:   client,
		statsTTL: statsTTL,
	}
}

func (c *StatsCache) GetStats(ctx context.Context, sessionID uint) (*model.SessionStats, bool, error) {
	key := c.statsKey(sessionID)
	raw, err := c.client.Get(ctx, key).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get stats failed: %w", err)
	}

	var stats model.SessionStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached stats failed: %w", err)
	}
	return &stats, true, nil
}

func (c *StatsCache) SetStats(ctx context.Context, sessionID uint, stats *model.SessionStats) error {
	key := c.statsKey(sessionID)
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats cache failed: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.statsTTL).Err(); err != nil {
		return fmt.Errorf("redis set stats failed: %w", err)
	}
	return nil
}

func (c *StatsCache) Invalidate(ctx context.Context, sessionID uint) error {
	key := c.statsKey(sessionID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete stats failed: %w", err)
	}
	return nil
}

func (c *StatsCache) statsKey(sessionID uint) string {
	return fmt.Sprintf("analysis:stats:%d", sessionID)
}
