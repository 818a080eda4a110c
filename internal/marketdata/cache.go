package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedProvider wraps a SnapshotProvider with a Redis read-through cache.
// Snapshots age out quickly (TTL on the order of the scan interval), so a
// cache hit only ever short-circuits duplicate fetches within one scan
// window. Redis failures degrade to the underlying provider.
type CachedProvider struct {
	inner SnapshotProvider
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedProvider wraps inner with a Redis cache.
func NewCachedProvider(inner SnapshotProvider, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedProvider{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "snapshot-cache").Logger(),
	}
}

func cacheKey(symbol string) string {
	return fmt.Sprintf("snapshot:%s", symbol)
}

// GetSnapshot serves from Redis when fresh, falling through to the inner
// provider and writing back on miss.
func (c *CachedProvider) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	if data, err := c.rdb.Get(ctx, cacheKey(symbol)).Bytes(); err == nil {
		var snap Snapshot
		if jsonErr := json.Unmarshal(data, &snap); jsonErr == nil {
			return &snap, nil
		}
	} else if err != redis.Nil {
		c.log.Debug().Err(err).Str("symbol", symbol).Msg("cache read failed")
	}

	snap, err := c.inner.GetSnapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(snap); jsonErr == nil {
		if setErr := c.rdb.Set(ctx, cacheKey(symbol), data, c.ttl).Err(); setErr != nil {
			c.log.Debug().Err(setErr).Str("symbol", symbol).Msg("cache write failed")
		}
	}
	return snap, nil
}
