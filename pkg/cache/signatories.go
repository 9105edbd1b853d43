package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/openletter/api/pkg/database"
)

const SIGNATORIES_CACHE_KEY = "signatories"
const SIGNATORIES_GENERATION_KEY = "signatories_generation"
const DEFAULT_SIGNATORIES_CACHE_TTL = time.Second * 30

// SignatoriesCache holds the public listing of verified signatories in redis.
//
// Listings are stored per generation. Invalidate bumps the generation, so a
// listing read from the store before an invalidation is written under a key
// that is no longer read.
type SignatoriesCache struct {
	RedisClient *redis.Client
	TTL         time.Duration
}

func NewSignatoriesCache(r *redis.Client, ttl time.Duration) *SignatoriesCache {
	if ttl <= 0 {
		ttl = DEFAULT_SIGNATORIES_CACHE_TTL
	}

	return &SignatoriesCache{
		RedisClient: r,
		TTL:         ttl,
	}
}

func listingKey(generation int64) string {
	return fmt.Sprintf("%s:%d", SIGNATORIES_CACHE_KEY, generation)
}

// Get returns the current generation and the listing cached for it. The
// listing is nil on a cache miss. Callers pass the generation back to Set.
func (sc *SignatoriesCache) Get(ctx context.Context) ([]database.Signatory, int64, error) {
	generation, err := sc.generation(ctx)
	if err != nil {
		return nil, 0, err
	}

	res := sc.RedisClient.Get(ctx, listingKey(generation))
	if err := res.Err(); err != nil {
		if err == redis.Nil {
			return nil, generation, nil
		}

		return nil, 0, fmt.Errorf("get signatories from redis: %w", err)
	}

	b, err := res.Bytes()
	if err != nil {
		return nil, 0, err
	}

	signatories := []database.Signatory{}
	if err := json.Unmarshal(b, &signatories); err != nil {
		return nil, 0, fmt.Errorf("decode cached signatories: %w", err)
	}

	return signatories, generation, nil
}

// Set stores a listing read after Get returned generation.
func (sc *SignatoriesCache) Set(ctx context.Context, generation int64, signatories []database.Signatory) error {
	if signatories == nil {
		signatories = []database.Signatory{}
	}

	b, err := json.Marshal(signatories)
	if err != nil {
		return fmt.Errorf("encode signatories: %w", err)
	}

	return sc.RedisClient.SetEX(ctx, listingKey(generation), b, sc.TTL).Err()
}

// Invalidate moves readers to a new generation so the next read goes to the
// store. Listings of older generations expire with their TTL.
func (sc *SignatoriesCache) Invalidate(ctx context.Context) error {
	return sc.RedisClient.Incr(ctx, SIGNATORIES_GENERATION_KEY).Err()
}

func (sc *SignatoriesCache) generation(ctx context.Context) (int64, error) {
	generation, err := sc.RedisClient.Get(ctx, SIGNATORIES_GENERATION_KEY).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}

		return 0, fmt.Errorf("get signatories generation from redis: %w", err)
	}

	return generation, nil
}
