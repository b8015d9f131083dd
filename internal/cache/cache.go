package cache

import (
	"context"
	"time"
)

// SummaryCache holds rendered report results. Values are JSON round-tripped,
// so dest must be a pointer to the same shape that was stored.
type SummaryCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}
