package filesystem_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/filesystem"
)

type testLogger struct{}

func (l *testLogger) Info(string, ...any)  {}
func (l *testLogger) Warn(string, ...any)  {}
func (l *testLogger) Error(string, ...any) {}
func (l *testLogger) Debug(string, ...any) {}

func startWatcher(t *testing.T, dir string, debounce time.Duration, ignore ...string) *atomic.Int32 {
	t.Helper()
	var count atomic.Int32
	w, err := filesystem.NewWatcher(dir, debounce, &testLogger{}, func() {
		count.Add(1)
	}, ignore...)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	t.Cleanup(w.Stop)
	w.Start()
	return &count
}

func TestWatcher_DetectsNewFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "V1", "CAN"), 0o755); err != nil {
		t.Fatal(err)
	}
	count := startWatcher(t, tmpDir, 100*time.Millisecond)

	if err := os.WriteFile(filepath.Join(tmpDir, "V1", "CAN", "can_0800.csv"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)

	if count.Load() < 1 {
		t.Error("expected at least one change notification")
	}
}

func TestWatcher_DetectsNewVehicleDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	count := startWatcher(t, tmpDir, 100*time.Millisecond)

	if err := os.MkdirAll(filepath.Join(tmpDir, "V2"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)

	if count.Load() < 1 {
		t.Error("expected a change notification for a new vehicle directory")
	}
}

func TestWatcher_IgnoresHiddenAndOutput(t *testing.T) {
	tmpDir := t.TempDir()
	output := filepath.Join(tmpDir, "report.yaml")
	count := startWatcher(t, tmpDir, 100*time.Millisecond, output)

	os.WriteFile(filepath.Join(tmpDir, ".lock"), []byte("x"), 0o644)
	os.WriteFile(output, []byte("run_id: x"), 0o644)
	time.Sleep(500 * time.Millisecond)

	if count.Load() != 0 {
		t.Errorf("expected no change notification, got %d", count.Load())
	}
}

func TestWatcher_Debounce(t *testing.T) {
	tmpDir := t.TempDir()
	count := startWatcher(t, tmpDir, 200*time.Millisecond)

	for i := range 5 {
		os.WriteFile(filepath.Join(tmpDir, "gps.txt"), []byte{byte('a' + i)}, 0o644)
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got < 1 || got > 2 {
		t.Errorf("expected 1-2 notifications (debounced), got %d", got)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := filesystem.NewWatcher(t.TempDir(), 50*time.Millisecond, &testLogger{}, func() {})
	if err != nil {
		t.Fatal(err)
	}
	w.Start()
	w.Stop()
	w.Stop()
}
