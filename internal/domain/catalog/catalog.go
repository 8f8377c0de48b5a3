package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/extract"
	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

// OffsetMode selects how the GPS clock correction is obtained.
type OffsetMode string

const (
	// OffsetFixed applies the configured offset during extraction.
	OffsetFixed OffsetMode = "fixed"
	// OffsetAuto infers the offset per vehicle from its CAN anchors and
	// falls back to the configured offset when no majority emerges.
	OffsetAuto OffsetMode = "auto"
)

// Loader turns one source file into an extracted record.
type Loader interface {
	Load(ctx context.Context, f telemetry.SourceFile) (telemetry.FileRecord, error)
}

// Options configures a Builder.
type Options struct {
	OffsetMode OffsetMode
	// FallbackOffset is used in auto mode when detection is inconclusive.
	FallbackOffset time.Duration
	Detector       extract.OffsetDetector
}

// Builder produces per-vehicle catalogs.
type Builder struct {
	loader Loader
	opts   Options
}

// NewBuilder creates a Builder reading files through loader.
func NewBuilder(loader Loader, opts Options) *Builder {
	if opts.OffsetMode == "" {
		opts.OffsetMode = OffsetFixed
	}
	if opts.Detector.MinShare == 0 {
		opts.Detector = extract.DefaultOffsetDetector()
	}
	return &Builder{loader: loader, opts: opts}
}

// Catalog holds one vehicle's typed, timestamped records.
type Catalog struct {
	VehicleID string
	// Records holds extractable records per type, sorted by anchor time then identifier.
	Records map[telemetry.StreamType][]telemetry.FileRecord
	// Unextractable holds NONE-confidence records, sorted by identifier.
	Unextractable []telemetry.FileRecord
	// Failures holds files that could not be read at all.
	Failures []telemetry.Diagnostic
	// GPSOffset is the correction applied in auto mode.
	GPSOffset         time.Duration
	GPSOffsetDetected bool
}

// Build extracts every file and assembles the vehicle's catalog. Per-file
// failures are recorded, never returned; only context cancellation aborts.
func (b *Builder) Build(ctx context.Context, vehicleID string, files []telemetry.SourceFile) (*Catalog, error) {
	cat := &Catalog{
		VehicleID: vehicleID,
		Records:   make(map[telemetry.StreamType][]telemetry.FileRecord, 4),
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := b.loader.Load(ctx, f)
		if err != nil {
			cat.Failures = append(cat.Failures, telemetry.Diagnostic{
				VehicleID:  vehicleID,
				Reason:     telemetry.ReasonUnextractableFile,
				StreamType: f.StreamType,
				Identifier: f.Identifier,
				Detail:     fmt.Sprintf("read failed: %v", err),
			})
			continue
		}
		if !rec.Extracted() {
			cat.Unextractable = append(cat.Unextractable, rec)
			continue
		}
		cat.Records[rec.StreamType] = append(cat.Records[rec.StreamType], rec)
	}

	if b.opts.OffsetMode == OffsetAuto {
		b.correctGPS(cat)
	}

	for st := range cat.Records {
		SortRecords(cat.Records[st])
	}
	sort.Slice(cat.Unextractable, func(i, j int) bool {
		return cat.Unextractable[i].Identifier < cat.Unextractable[j].Identifier
	})
	sort.Slice(cat.Failures, func(i, j int) bool {
		return cat.Failures[i].Identifier < cat.Failures[j].Identifier
	})

	return cat, nil
}

func (b *Builder) correctGPS(cat *Catalog) {
	gps := cat.Records[telemetry.StreamGPS]
	var raw []time.Time
	for _, r := range gps {
		if !r.DateOnly {
			raw = append(raw, r.RawTime)
		}
	}
	var reference []time.Time
	for _, r := range cat.Records[telemetry.StreamCAN] {
		if !r.DateOnly {
			reference = append(reference, r.AnchorTime)
		}
	}
	sort.Slice(reference, func(i, j int) bool { return reference[i].Before(reference[j]) })

	offset, ok := b.opts.Detector.Detect(raw, reference)
	if !ok {
		offset = b.opts.FallbackOffset
	}
	cat.GPSOffset = offset
	cat.GPSOffsetDetected = ok
	for i := range gps {
		gps[i] = extract.CorrectGPS(gps[i], offset)
	}
}

// Missing returns the required stream types without any extractable record.
func (c *Catalog) Missing() []telemetry.StreamType {
	var missing []telemetry.StreamType
	for _, st := range telemetry.StreamTypes() {
		if len(c.Records[st]) == 0 {
			missing = append(missing, st)
		}
	}
	return missing
}

// Complete reports whether every required stream type is present.
func (c *Catalog) Complete() bool {
	return len(c.Missing()) == 0
}

// Diagnostics reports unreadable and unextractable files, then an incomplete
// vehicle diagnostic when a stream type is absent.
func (c *Catalog) Diagnostics() []telemetry.Diagnostic {
	diags := make([]telemetry.Diagnostic, 0, len(c.Failures)+len(c.Unextractable)+1)
	diags = append(diags, c.Failures...)
	for _, r := range c.Unextractable {
		diags = append(diags, telemetry.Diagnostic{
			VehicleID:  c.VehicleID,
			Reason:     telemetry.ReasonUnextractableFile,
			StreamType: r.StreamType,
			Identifier: r.Identifier,
			Detail:     "no timestamp grammar matched header, content or identifier",
		})
	}
	if missing := c.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, st := range missing {
			names[i] = st.String()
		}
		diags = append(diags, telemetry.Diagnostic{
			VehicleID: c.VehicleID,
			Reason:    telemetry.ReasonIncompleteTypes,
			Detail:    "missing stream types: " + strings.Join(names, ", "),
		})
	}
	return diags
}

// Counts returns the number of extractable records per stream type.
func (c *Catalog) Counts() map[telemetry.StreamType]int {
	counts := make(map[telemetry.StreamType]int, 4)
	for _, st := range telemetry.StreamTypes() {
		counts[st] = len(c.Records[st])
	}
	return counts
}

// SortRecords orders records by anchor time, then identifier.
func SortRecords(recs []telemetry.FileRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].AnchorTime.Equal(recs[j].AnchorTime) {
			return recs[i].AnchorTime.Before(recs[j].AnchorTime)
		}
		return recs[i].Identifier < recs[j].Identifier
	})
}

// ExtractingLoader opens files from a Source and runs the extractor over them.
type ExtractingLoader struct {
	Source    telemetry.Source
	Extractor *extract.Extractor
}

// Load implements Loader.
func (l *ExtractingLoader) Load(ctx context.Context, f telemetry.SourceFile) (telemetry.FileRecord, error) {
	rc, err := l.Source.Open(ctx, f)
	if err != nil {
		return telemetry.FileRecord{}, err
	}
	defer rc.Close()
	return l.Extractor.Record(f, rc), nil
}
