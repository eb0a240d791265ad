package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"clauth/internal/config"
	"clauth/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const leaderboardTTL = 30 * time.Second

// LeaderboardCache fronts the general leaderboard read with redis. A nil
// *LeaderboardCache is valid and means caching is disabled.
type LeaderboardCache struct {
	rdb *redis.Client
}

// NewLeaderboardCache connects to redis, or returns nil (caching off) when
// no address is configured or the server is unreachable.
func NewLeaderboardCache(cfg config.RedisConfig) *LeaderboardCache {
	if cfg.Addr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("[Cache] Redis unreachable, leaderboard caching disabled: %v", err)
		return nil
	}

	log.Println("[Cache] Redis connection established")
	return &LeaderboardCache{rdb: rdb}
}

func leaderboardKey(challengeID uuid.UUID, limit int) string {
	return fmt.Sprintf("leaderboard:%s:%d", challengeID, limit)
}

// GetTopSubmissions returns the cached leaderboard, with ok=false on miss
// or when caching is disabled.
func (c *LeaderboardCache) GetTopSubmissions(ctx context.Context, challengeID uuid.UUID, limit int) ([]models.RankedSubmission, bool) {
	if c == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, leaderboardKey(challengeID, limit)).Bytes()
	if err != nil {
		return nil, false
	}

	var ranked []models.RankedSubmission
	if err := json.Unmarshal(raw, &ranked); err != nil {
		return nil, false
	}
	return ranked, true
}

// SetTopSubmissions stores a leaderboard page with a short TTL.
func (c *LeaderboardCache) SetTopSubmissions(ctx context.Context, challengeID uuid.UUID, limit int, ranked []models.RankedSubmission) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(ranked)
	if err != nil {
		return
	}

	if err := c.rdb.Set(ctx, leaderboardKey(challengeID, limit), raw, leaderboardTTL).Err(); err != nil {
		log.Printf("[Cache] Failed to store leaderboard for challenge %s: %v", challengeID, err)
	}
}
