package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// TieredConfig defines tiered rate limiting configuration. A zero limit disables the tier.
type TieredConfig struct {
	IPLimit        int64
	IPWindow       time.Duration
	UserLimit      int64
	UserWindow     time.Duration
	EndpointLimits map[string]EndpointLimit
}

// EndpointLimit defines rate limit for a specific route pattern
type EndpointLimit struct {
	Limit  int64
	Window time.Duration
}

// TieredLimiter is a sliding window limiter shared by every replica through Redis
type TieredLimiter struct {
	redis  *redis.Client
	config TieredConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewTieredLimiter creates a new tiered rate limiter
func NewTieredLimiter(redis *redis.Client, config TieredConfig, logger *zap.Logger) *TieredLimiter {
	return &TieredLimiter{
		redis:  redis,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// CheckResult contains the result of a rate limit check
type CheckResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	LimitedBy  string
}

type tier struct {
	name   string
	key    string
	limit  int64
	window time.Duration
}

// Check counts one request against the IP, user and endpoint tiers, stopping at the first exhausted one
func (l *TieredLimiter) Check(ctx context.Context, ip, userID, endpoint string) (*CheckResult, error) {
	for _, t := range l.tiers(ip, userID, endpoint) {
		allowed, remaining, err := l.checkLimit(ctx, t)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return &CheckResult{Allowed: false, Remaining: remaining, RetryAfter: t.window, LimitedBy: t.name}, nil
		}
	}
	return &CheckResult{Allowed: true, Remaining: -1}, nil
}

func (l *TieredLimiter) tiers(ip, userID, endpoint string) []tier {
	var tiers []tier
	if l.config.IPLimit > 0 && ip != "" {
		tiers = append(tiers, tier{"ip", ip, l.config.IPLimit, l.config.IPWindow})
	}
	if l.config.UserLimit > 0 && userID != "" {
		tiers = append(tiers, tier{"user", userID, l.config.UserLimit, l.config.UserWindow})
	}
	if limit, ok := l.config.EndpointLimits[endpoint]; ok && limit.Limit > 0 {
		subject := ip
		if userID != "" {
			subject = userID
		}
		tiers = append(tiers, tier{"endpoint", endpoint + ":" + subject, limit.Limit, limit.Window})
	}
	return tiers
}

func (l *TieredLimiter) checkLimit(ctx context.Context, t tier) (bool, int64, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", t.name, t.key)
	now := l.now()
	windowStart := now.Add(-t.window)

	pipe := l.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCount(ctx, redisKey, fmt.Sprintf("%d", windowStart.UnixNano()), "+inf")
	pipe.ZAdd(ctx, redisKey, &redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, redisKey, t.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := countCmd.Val()
	remaining := t.limit - count - 1
	if remaining < 0 {
		remaining = 0
	}
	if count >= t.limit {
		l.logger.Debug("Rate limit exceeded", zap.String("tier", t.name), zap.String("key", t.key))
	}
	return count < t.limit, remaining, nil
}
