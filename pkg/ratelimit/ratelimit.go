package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

const keyPrefix = "assistant:ratelimit:tenant:"

// Budget is a tenant's token allowance in the current one-minute window.
type Budget struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int64         `json:"remaining"`
	Limit      int           `json:"limit"`
	ResetAfter time.Duration `json:"reset_after_ns"`
}

// RetryAfterSeconds is the Retry-After value for a rejected request. It is
// never below one second, and fallback is used when the window is unknown.
func (b Budget) RetryAfterSeconds(fallback int) int {
	if b.ResetAfter <= 0 {
		return fallback
	}
	secs := int((b.ResetAfter + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// Limiter caps estimated tokens per tenant per minute. A nil *Limiter allows
// everything, which is how the service runs without Redis.
type Limiter struct {
	store extratelimit.Limiter
}

// NewLimiter counts tenant tokens in Redis with a sliding one-minute window.
func NewLimiter(rdb *redis.Client, tokensPerMinute int64) *Limiter {
	return NewWithStore(extratelimit.NewRedisStore(rdb,
		extratelimit.WithLimit(int(tokensPerMinute)),
		extratelimit.WithWindow(time.Minute),
	))
}

// NewWithStore builds a Limiter over any ratelimiter backend. Handlers are
// tested with in-memory stores through it.
func NewWithStore(store extratelimit.Limiter) *Limiter {
	return &Limiter{store: store}
}

func tenantKey(tenantID string) string {
	return keyPrefix + tenantID
}

func toBudget(res *extratelimit.Result) Budget {
	if res == nil {
		return Budget{}
	}
	return Budget{
		Allowed:    res.Allowed,
		Remaining:  res.Remaining,
		Limit:      res.Limit,
		ResetAfter: res.ResetAfter,
	}
}

// Allow spends tokens from the tenant's budget. At least one token is always
// charged so empty estimates still count as a request.
func (l *Limiter) Allow(ctx context.Context, tenantID string, tokens int) (Budget, error) {
	if l == nil || l.store == nil {
		return Budget{Allowed: true}, nil
	}
	res, err := l.store.AllowN(ctx, tenantKey(tenantID), max(tokens, 1))
	if err != nil {
		return Budget{}, fmt.Errorf("rate limit check: %w", err)
	}
	return toBudget(res), nil
}

// Status reads the tenant's budget without spending from it.
func (l *Limiter) Status(ctx context.Context, tenantID string) (Budget, error) {
	if l == nil || l.store == nil {
		return Budget{Allowed: true}, nil
	}
	res, err := l.store.Status(ctx, tenantKey(tenantID))
	if err != nil {
		return Budget{}, fmt.Errorf("rate limit status: %w", err)
	}
	return toBudget(res), nil
}

// Enabled reports whether requests are actually limited.
func (l *Limiter) Enabled() bool {
	return l != nil && l.store != nil
}
