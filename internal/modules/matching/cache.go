// README: Candidate cache backed by Redis sorted sets (score = distance in meters).
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/types"
)

const candidateKeyPrefix = "matching:trip:%s:candidates"

// CachedCandidate is what survives in the cache: the offer and its distance.
type CachedCandidate struct {
	DriverID       types.ID `json:"id"`
	DistanceMeters float64  `json:"distance_m"`
}

type CandidateCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewCandidateCache(redis *redis.Client, ttl time.Duration) *CandidateCache {
	return &CandidateCache{redis: redis, ttl: ttl}
}

// Record replaces the candidate list offered for tripID.
func (c *CandidateCache) Record(ctx context.Context, tripID types.ID, candidates []Candidate) error {
	key := candidateKey(tripID)
	pipe := c.redis.TxPipeline()
	pipe.Del(ctx, key)
	if len(candidates) > 0 {
		members := make([]redis.Z, len(candidates))
		for i, cand := range candidates {
			members[i] = redis.Z{Score: cand.DistanceMeters, Member: string(cand.DriverID)}
		}
		pipe.ZAdd(ctx, key, members...)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the offer for tripID nearest first; unknown trips yield an empty list.
func (c *CandidateCache) List(ctx context.Context, tripID types.ID) ([]CachedCandidate, error) {
	zs, err := c.redis.ZRangeWithScores(ctx, candidateKey(tripID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]CachedCandidate, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, CachedCandidate{DriverID: types.ID(member), DistanceMeters: z.Score})
	}
	return out, nil
}

func candidateKey(tripID types.ID) string {
	return fmt.Sprintf(candidateKeyPrefix, string(tripID))
}
