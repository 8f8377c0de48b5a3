package filesystem_test

import (
	"path/filepath"
	"testing"

	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/filesystem"
)

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "rules", "exclude.expr"), `ext == ".tmp"`)
	path := filepath.Join(dir, "tripmatch.yaml")
	writeFile(t, path, `
data_dir: /data/fleet
format: json
matching:
  tolerance_minutes: 45
  mode: optimal
extract:
  gps_offset_mode: auto
  date_only_types: [BEACON]
sources:
  exclude_rule: !include rules/exclude.expr
  stream_dirs:
    STABILITY: [estabilidad, imu]
runtime:
  workers: 3
admin:
  serve: true
  watcher_debounce: 2s
`)

	cfg, err := filesystem.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.DataDir == nil || *cfg.DataDir != "/data/fleet" {
		t.Errorf("DataDir = %v", cfg.DataDir)
	}
	if cfg.OutputFormat == nil || *cfg.OutputFormat != "json" {
		t.Errorf("OutputFormat = %v", cfg.OutputFormat)
	}
	if cfg.OutputPath != nil {
		t.Errorf("OutputPath should be unset, got %q", *cfg.OutputPath)
	}
	if cfg.Matching == nil || *cfg.Matching.ToleranceMinutes != 45 || *cfg.Matching.Mode != "optimal" {
		t.Errorf("Matching = %+v", cfg.Matching)
	}
	if cfg.Matching.NormalizationK != nil {
		t.Errorf("NormalizationK should be unset")
	}
	if *cfg.Extract.GPSOffsetMode != "auto" || len(cfg.Extract.DateOnlyTypes) != 1 {
		t.Errorf("Extract = %+v", cfg.Extract)
	}
	if *cfg.Sources.ExcludeRule != `ext == ".tmp"` {
		t.Errorf("ExcludeRule = %q", *cfg.Sources.ExcludeRule)
	}
	if got := cfg.Sources.StreamDirs["STABILITY"]; len(got) != 2 || got[1] != "imu" {
		t.Errorf("StreamDirs = %v", cfg.Sources.StreamDirs)
	}
	if *cfg.Runtime.Workers != 3 || !*cfg.Admin.Serve || *cfg.Admin.WatcherDebounce != "2s" {
		t.Errorf("Runtime/Admin = %+v %+v", cfg.Runtime, cfg.Admin)
	}
}

func TestLoadConfigFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	writeFile(t, path, "")

	cfg, err := filesystem.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.DataDir != nil || cfg.Matching != nil {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "data_dirr: /x\n"},
		{"wrong type", "matching:\n  tolerance_minutes: lots\n"},
		{"bad include", "sources:\n  exclude_rule: !include missing.expr\n"},
		{"malformed", "matching: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			writeFile(t, path, tt.content)
			if _, err := filesystem.LoadConfigFile(path); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := filesystem.LoadConfigFile(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
