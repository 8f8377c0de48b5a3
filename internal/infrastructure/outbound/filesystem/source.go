package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/infrastructure/ports"
)

var _ telemetry.Source = (*DirectorySource)(nil)

// Excluder flags derivative files that must never reach the catalog.
type Excluder interface {
	Excluded(f telemetry.SourceFile, ageDays float64) (bool, error)
}

// SourceOptions configures a DirectorySource.
type SourceOptions struct {
	// StreamDirs maps each stream type to the directory names holding it,
	// compared case-insensitively. The type name itself always matches.
	StreamDirs map[telemetry.StreamType][]string
	Exclude    Excluder
	Clock      ports.Clock
	Logger     ports.Logger
}

// DirectorySource discovers telemetry files laid out as
// <root>/<vehicle>/<stream dir>/**/<file>.
type DirectorySource struct {
	rootDir string
	dirs    map[string]telemetry.StreamType
	exclude Excluder
	clock   ports.Clock
	logger  ports.Logger
}

// NewDirectorySource creates a source rooted at rootDir.
func NewDirectorySource(rootDir string, opts SourceOptions) (*DirectorySource, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	dirs := make(map[string]telemetry.StreamType)
	for _, st := range telemetry.StreamTypes() {
		dirs[strings.ToLower(string(st))] = st
	}
	for st, names := range opts.StreamDirs {
		if !st.Valid() {
			return nil, fmt.Errorf("stream dirs: %w: %q", telemetry.ErrUnknownStreamType, st)
		}
		for _, name := range names {
			key := strings.ToLower(strings.TrimSpace(name))
			if prev, ok := dirs[key]; ok && prev != st {
				return nil, fmt.Errorf("directory name %q is mapped to both %s and %s", name, prev, st)
			}
			dirs[key] = st
		}
	}

	return &DirectorySource{
		rootDir: absRoot,
		dirs:    dirs,
		exclude: opts.Exclude,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}, nil
}

// Vehicles lists the vehicle directories in ascending order.
func (s *DirectorySource) Vehicles(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list data directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Files lists a vehicle's files in stream type order, then by identifier.
func (s *DirectorySource) Files(ctx context.Context, vehicleID string) ([]telemetry.SourceFile, error) {
	vehicleDir, err := s.vehicleDir(vehicleID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(vehicleDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("vehicle %q: %w", vehicleID, telemetry.ErrVehicleNotFound)
		}
		return nil, fmt.Errorf("failed to list vehicle directory: %w", err)
	}

	var files []telemetry.SourceFile
	for _, e := range entries {
		if !e.IsDir() || hidden(e.Name()) {
			continue
		}
		st, ok := s.dirs[strings.ToLower(e.Name())]
		if !ok {
			s.debug("ignoring unknown stream directory", "vehicle", vehicleID, "dir", e.Name())
			continue
		}
		found, err := s.walkStream(ctx, vehicleID, st, filepath.Join(vehicleDir, e.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	order := make(map[telemetry.StreamType]int, 4)
	for i, st := range telemetry.StreamTypes() {
		order[st] = i
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].StreamType != files[j].StreamType {
			return order[files[i].StreamType] < order[files[j].StreamType]
		}
		return files[i].Identifier < files[j].Identifier
	})
	return files, nil
}

func (s *DirectorySource) walkStream(ctx context.Context, vehicleID string, st telemetry.StreamType, dir string) ([]telemetry.SourceFile, error) {
	var files []telemetry.SourceFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if hidden(d.Name()) && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			return err
		}
		f := telemetry.SourceFile{
			VehicleID:  vehicleID,
			StreamType: st,
			Identifier: filepath.ToSlash(rel),
			Size:       info.Size(),
			ModTime:    info.ModTime().UTC(),
		}
		if s.excluded(f) {
			return nil
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s directory of vehicle %q: %w", st, vehicleID, err)
	}
	return files, nil
}

func (s *DirectorySource) excluded(f telemetry.SourceFile) bool {
	if s.exclude == nil {
		return false
	}
	var ageDays float64
	if s.clock != nil {
		ageDays = s.clock.Now().Sub(f.ModTime).Hours() / 24
	}
	excluded, err := s.exclude.Excluded(f, ageDays)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("exclusion rule failed, keeping file", "file", f.Identifier, "error", err)
		}
		return false
	}
	if excluded {
		s.debug("excluding derivative file", "file", f.Identifier)
	}
	return excluded
}

// Open opens a file previously returned by Files.
func (s *DirectorySource) Open(ctx context.Context, f telemetry.SourceFile) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.rootDir, filepath.FromSlash(f.Identifier))
	if err := s.validatePathWithinRoot(path); err != nil {
		return nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Identifier, err)
	}
	return fh, nil
}

func (s *DirectorySource) vehicleDir(vehicleID string) (string, error) {
	if vehicleID == "" || vehicleID == "." || vehicleID == ".." || strings.ContainsAny(vehicleID, `/\`) {
		return "", fmt.Errorf("vehicle %q: %w", vehicleID, telemetry.ErrVehicleNotFound)
	}
	return filepath.Join(s.rootDir, vehicleID), nil
}

func (s *DirectorySource) validatePathWithinRoot(path string) error {
	rel, err := filepath.Rel(s.rootDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes data directory", path)
	}
	return nil
}

func (s *DirectorySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// hidden reports dot files and editor/office lock files.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
}
