package services

import (
	"context"
	"fmt"

	"github.com/sophialabs/tripmatch/internal/domain/catalog"
	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/infrastructure/ports"
)

// ThrottledLoader bounds file opens per stream type with a RateLimiter, so a
// batch over a shared or network mount does not saturate it.
type ThrottledLoader struct {
	next    catalog.Loader
	limiter ports.RateLimiter
	rate    float64
	burst   int
}

// NewThrottledLoader wraps next. rate <= 0 disables throttling.
func NewThrottledLoader(next catalog.Loader, limiter ports.RateLimiter, rate float64, burst int) *ThrottledLoader {
	if burst < 1 {
		burst = 1
	}
	return &ThrottledLoader{next: next, limiter: limiter, rate: rate, burst: burst}
}

// Load implements catalog.Loader.
func (l *ThrottledLoader) Load(ctx context.Context, f telemetry.SourceFile) (telemetry.FileRecord, error) {
	if l.limiter != nil && l.rate > 0 {
		if err := l.limiter.Wait(ctx, string(f.StreamType), l.rate, l.burst); err != nil {
			return telemetry.FileRecord{}, fmt.Errorf("failed to acquire read slot: %w", err)
		}
	}
	return l.next.Load(ctx, f)
}
