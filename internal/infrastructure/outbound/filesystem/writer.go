package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sophialabs/tripmatch/internal/infrastructure/ports"
)

var _ ports.ReportWriter = (*ReportFile)(nil)

// ReportFile writes reports to a fixed path. Readers never observe a
// partially written report.
type ReportFile struct {
	path string
}

// NewReportFile creates a writer targeting path.
func NewReportFile(path string) *ReportFile {
	return &ReportFile{path: path}
}

// Path returns the target path.
func (w *ReportFile) Path() string {
	return w.path
}

// WriteReport implements ports.ReportWriter.
func (w *ReportFile) WriteReport(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	return atomicWriteFile(w.path, data)
}

func atomicWriteFile(target string, content []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".tripmatch-*"+filepath.Ext(target))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set report permissions: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
