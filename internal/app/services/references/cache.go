package references

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/wayfarernet/community_layer/internal/app/domain/reference"
)

const scoreTTL = 24 * time.Hour

// RedisScoreCache stores trust scores in Redis.
type RedisScoreCache struct {
	client *redis.Client
}

var _ ScoreCache = (*RedisScoreCache)(nil)

// NewRedisScoreCache creates a cache on an existing Redis client.
func NewRedisScoreCache(client *redis.Client) *RedisScoreCache {
	return &RedisScoreCache{client: client}
}

func scoreKey(profileID string) string {
	return "trust:" + profileID
}

// GetScore fetches a cached score. A miss is not an error.
func (c *RedisScoreCache) GetScore(ctx context.Context, profileID string) (reference.TrustScore, bool, error) {
	data, err := c.client.Get(ctx, scoreKey(profileID)).Bytes()
	if err == redis.Nil {
		return reference.TrustScore{}, false, nil
	}
	if err != nil {
		return reference.TrustScore{}, false, err
	}

	var score reference.TrustScore
	if err := json.Unmarshal(data, &score); err != nil {
		return reference.TrustScore{}, false, err
	}
	return score, true, nil
}

// SetScore stores a score with a day of freshness.
func (c *RedisScoreCache) SetScore(ctx context.Context, score reference.TrustScore) error {
	data, err := json.Marshal(score)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, scoreKey(score.ProfileID), data, scoreTTL).Err()
}
