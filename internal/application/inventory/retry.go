package inventory

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/erp/stockcore/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RetryConfig bounds the optimistic-concurrency retry loop
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BaseBackoff: 20 * time.Millisecond,
		MaxBackoff:  250 * time.Millisecond,
	}
}

// backoff returns a jittered delay for the given retry number (1-based)
func (c RetryConfig) backoff(retry int) time.Duration {
	if c.BaseBackoff <= 0 {
		return 0
	}
	d := c.BaseBackoff << (retry - 1)
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

// conflictRetrier reruns a whole atomic unit when it lost an optimistic
// concurrency race
type conflictRetrier struct {
	cfg     RetryConfig
	logger  *zap.Logger
	metrics *telemetry.LedgerMetrics
}

// Do runs fn until it succeeds, fails with something other than a version
// conflict, or the retry budget is spent. An exhausted budget surfaces as
// CONCURRENT_UPDATE_CONFLICT.
func (r *conflictRetrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			r.metrics.RecordConflictRetry(ctx, operation)
			r.logger.Debug("Retrying after concurrent update",
				zap.String("operation", operation),
				zap.Int("attempt", attempt+1),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.backoff(attempt)):
			}
		}

		telemetry.ProfileOperation(ctx, operation, func(ctx context.Context) {
			err = fn(ctx)
		})
		if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
	}

	r.metrics.RecordConflictExhausted(ctx, operation)
	r.logger.Warn("Concurrent update retry limit reached",
		zap.String("operation", operation),
		zap.Int("attempts", r.cfg.MaxRetries+1),
		zap.Error(err),
	)
	return inventory.ErrConcurrentUpdateConflict.
		WithDetail("operation", operation).
		WithDetail("attempts", r.cfg.MaxRetries+1)
}
