package testutil

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/infrastructure/ports"
)

var _ ports.Logger = (*NoopLogger)(nil)

// NoopLogger discards all log output.
type NoopLogger struct{}

func (l *NoopLogger) Info(string, ...any)  {}
func (l *NoopLogger) Warn(string, ...any)  {}
func (l *NoopLogger) Error(string, ...any) {}
func (l *NoopLogger) Debug(string, ...any) {}

var _ ports.Logger = (*RecordingLogger)(nil)

// LogEntry is one message captured by RecordingLogger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// RecordingLogger keeps every message with its level.
type RecordingLogger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

func (l *RecordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *RecordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }

// Levels returns the levels logged for msg, in order.
func (l *RecordingLogger) Levels(msg string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.Entries {
		if e.Msg == msg {
			out = append(out, e.Level)
		}
	}
	return out
}

var _ ports.Clock = (*FixedClock)(nil)

// FixedClock returns a fixed time.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

var _ ports.RateLimiter = (*StubRateLimiter)(nil)

// StubRateLimiter counts waits and returns a configurable error.
type StubRateLimiter struct {
	mu    sync.Mutex
	Waits int
	Err   error
}

func (r *StubRateLimiter) Wait(context.Context, string, float64, int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Waits++
	return r.Err
}

var _ telemetry.Source = (*MemorySource)(nil)

// MemorySource serves files from memory. Content maps identifiers to file bodies.
type MemorySource struct {
	mu      sync.Mutex
	files   map[string][]telemetry.SourceFile
	content map[string]string
	// OpenErr, when set, fails Open for the listed identifiers.
	OpenErr map[string]error
	// ListErr fails Vehicles.
	ListErr error
	opens   int
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		files:   make(map[string][]telemetry.SourceFile),
		content: make(map[string]string),
		OpenErr: make(map[string]error),
	}
}

// Add registers a file. The identifier is vehicle/TYPE/name.
func (s *MemorySource) Add(vehicleID string, st telemetry.StreamType, name, content string) telemetry.SourceFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := telemetry.SourceFile{
		VehicleID:  vehicleID,
		StreamType: st,
		Identifier: vehicleID + "/" + string(st) + "/" + name,
		Size:       int64(len(content)),
		ModTime:    time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	s.files[vehicleID] = append(s.files[vehicleID], f)
	s.content[f.Identifier] = content
	return f
}

// Opens returns how many times Open succeeded.
func (s *MemorySource) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func (s *MemorySource) Vehicles(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemorySource) Files(_ context.Context, vehicleID string) ([]telemetry.SourceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.files[vehicleID]
	if !ok {
		return nil, fmt.Errorf("vehicle %q: %w", vehicleID, telemetry.ErrVehicleNotFound)
	}
	return append([]telemetry.SourceFile(nil), files...), nil
}

func (s *MemorySource) Open(_ context.Context, f telemetry.SourceFile) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.OpenErr[f.Identifier]; err != nil {
		return nil, err
	}
	body, ok := s.content[f.Identifier]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", f.Identifier)
	}
	s.opens++
	return io.NopCloser(strings.NewReader(body)), nil
}

var _ ports.SessionStore = (*MemorySessionStore)(nil)

// MemorySessionStore keeps sessions keyed by Session.Key.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]telemetry.Session
	SaveErr  error
	Closed   bool
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]telemetry.Session)}
}

func (m *MemorySessionStore) SaveSessions(_ context.Context, runID string, vehicles []string, sessions []telemetry.Session) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	replaced := make(map[string]bool, len(vehicles))
	for _, v := range vehicles {
		replaced[v] = true
	}
	for key, s := range m.sessions {
		if replaced[s.VehicleID] && s.RunID != runID {
			delete(m.sessions, key)
		}
	}
	for _, s := range sessions {
		s.RunID = runID
		m.sessions[s.Key()] = s
	}
	return nil
}

func (m *MemorySessionStore) SessionsByVehicle(_ context.Context, vehicleID string) ([]telemetry.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []telemetry.Session
	for _, s := range m.sessions {
		if s.VehicleID == vehicleID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemorySessionStore) Close() error {
	m.Closed = true
	return nil
}

var _ ports.ReportWriter = (*MemoryReportWriter)(nil)

// MemoryReportWriter records the last written report.
type MemoryReportWriter struct {
	mu     sync.Mutex
	Data   []byte
	Writes int
	Err    error
}

func (w *MemoryReportWriter) WriteReport(_ context.Context, data []byte) error {
	if w.Err != nil {
		return w.Err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Data = append([]byte(nil), data...)
	w.Writes++
	return nil
}
