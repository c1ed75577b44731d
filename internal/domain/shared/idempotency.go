package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed message IDs so redelivered messages
// are handled once
type IdempotencyStore interface {
	// MarkProcessed returns true if the ID was newly marked, false if it was
	// already processed
	MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, id string) (bool, error)
	// Unmark forgets an ID so a failed handler can be retried
	Unmark(ctx context.Context, id string) error
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL after which the same ID can be processed again
	TTL     time.Duration
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
