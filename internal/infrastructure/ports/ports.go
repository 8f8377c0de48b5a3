package ports

import (
	"context"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

// Clock provides the current time (for testing).
type Clock interface {
	Now() time.Time
}

// Logger provides structured logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// RateLimiter throttles file reads.
type RateLimiter interface {
	// Wait blocks until a read identified by key is within the limit or ctx is done.
	// rate is reads per second, burst is the max burst size. rate <= 0 means unlimited.
	Wait(ctx context.Context, key string, rate float64, burst int) error
}

// SessionStore persists committed sessions for downstream reporting.
type SessionStore interface {
	// SaveSessions replaces the stored sessions of vehicles with the given
	// sessions, upserted by Session.Key. Rows of those vehicles written by
	// any other run are removed in the same transaction.
	SaveSessions(ctx context.Context, runID string, vehicles []string, sessions []telemetry.Session) error
	// SessionsByVehicle returns stored sessions of one vehicle ordered by start time.
	SessionsByVehicle(ctx context.Context, vehicleID string) ([]telemetry.Session, error)
	Close() error
}

// ReportWriter publishes an encoded report.
type ReportWriter interface {
	WriteReport(ctx context.Context, data []byte) error
}
