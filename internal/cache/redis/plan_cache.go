// Package redis provides the Redis-backed plan cache. Plan-mode results
// are keyed by a digest of the provider name and the exact request, so an
// identical task composed twice reuses the stored artifact.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/forgeflow/internal/domain"
	"github.com/davidbz/forgeflow/internal/observability"
)

const keyPrefix = "forgeflow:plan:"

// PlanCache implements the domain.PlanCache interface using Redis.
type PlanCache struct {
	client *redis.Client
}

// NewPlanCache creates a new Redis plan cache adapter.
func NewPlanCache(client *redis.Client) *PlanCache {
	return &PlanCache{
		client: client,
	}
}

// Get retrieves a cached result for an identical request.
func (c *PlanCache) Get(ctx context.Context, provider string, req *domain.ComposeRequest) (*domain.ComposeResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	key := cacheKey(provider, req)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var result domain.ComposeResult
	if err := json.Unmarshal(data, &result); err != nil {
		// A corrupt entry is treated as a miss; the fresh result will
		// overwrite it.
		observability.FromContext(ctx).Warn("dropping corrupt plan cache entry",
			observability.String("key", key),
			observability.Error(err))
		return nil, domain.ErrCacheMiss
	}

	return &result, nil
}

// Set stores a result with a TTL.
func (c *PlanCache) Set(ctx context.Context, provider string, req *domain.ComposeRequest, res *domain.ComposeResult, ttl time.Duration) error {
	if req == nil || res == nil {
		return errors.New("request and result cannot be nil")
	}

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(provider, req), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// cacheKey digests provider, task and context into a stable key. Context
// keys are sorted so logically equal requests always hash the same.
func cacheKey(provider string, req *domain.ComposeRequest) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(req.Task))
	h.Write([]byte{0})

	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, req.Context[k])
	}

	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
