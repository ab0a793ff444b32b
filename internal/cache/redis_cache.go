package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"stokraja/backend/internal/domain"
)

// summaryTTL keeps stale projections from outliving a wedged projector.
const summaryTTL = 5 * time.Minute

type RedisSummaryCache struct {
	client *redis.Client
}

func NewRedisSummaryCache(addr string, password string, db int) *RedisSummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}

func summaryKey(storeID string, productID string) string {
	return "summary:" + storeID + ":" + productID
}

func (c *RedisSummaryCache) GetSummary(ctx context.Context, storeID string, productID string) (domain.ProductSummary, bool, error) {
	val, err := c.client.Get(ctx, summaryKey(storeID, productID)).Result()
	if err == redis.Nil {
		return domain.ProductSummary{}, false, nil
	}
	if err != nil {
		return domain.ProductSummary{}, false, err
	}

	var summary domain.ProductSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return domain.ProductSummary{}, false, err
	}
	return summary, true, nil
}

func (c *RedisSummaryCache) SetSummary(ctx context.Context, summary domain.ProductSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(summary.StoreID, summary.ProductID), payload, summaryTTL).Err()
}
