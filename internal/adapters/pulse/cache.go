package pulse

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/internal/domain/services/scan"
	"github.com/tradepilot/pilot_service/internal/infrastructure/cache"
	"go.uber.org/zap"
)

const defaultCacheTTL = 60 * time.Second

var _ scan.Pulse = (*Cached)(nil)

// Store is the part of the Redis client the cache needs
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// Cached serves repeated pulse requests from Redis. Cache failures fall
// through to the wrapped generator.
type Cached struct {
	next   scan.Pulse
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewCached wraps next with a Redis-backed cache
func NewCached(next scan.Pulse, store Store, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cached{next: next, store: store, ttl: ttl, logger: logger}
}

// Generate returns a cached snapshot when one is fresh
func (c *Cached) Generate(ctx context.Context, req entities.PulseRequest) (*entities.PulseMetrics, error) {
	key := cacheKey(req)

	var cached entities.PulseMetrics
	err := c.store.Get(ctx, key, &cached)
	switch {
	case err == nil:
		c.logger.Debug("Pulse cache hit", zap.String("key", key))
		return &cached, nil
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		c.logger.Warn("Pulse cache read failed", zap.String("key", key), zap.Error(err))
	}

	metrics, err := c.next.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, metrics, c.ttl); err != nil {
		c.logger.Warn("Pulse cache write failed", zap.String("key", key), zap.Error(err))
	}
	return metrics, nil
}

func cacheKey(req entities.PulseRequest) string {
	quote := strings.ToUpper(req.Quote)
	if quote == "" {
		quote = defaultQuote
	}
	return "pulse:" + req.UserID.String() + ":" + quote + ":" + strings.Join(normalizeAssets(req.Assets), ",")
}

// normalizeAssets uppercases, dedupes and sorts so equivalent requests share a key
func normalizeAssets(assets []string) []string {
	seen := make(map[string]struct{}, len(assets))
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
