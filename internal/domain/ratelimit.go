package domain

import (
	"context"
	"time"
)

// RateLimitDecision reports the outcome of one fixed-window check. ResetAt
// is when the caller's window rolls over and Remaining refills.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter gates the verify endpoints per caller key. limit <= 0 means
// the key is not limited.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
