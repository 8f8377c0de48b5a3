package extract

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

const (
	DefaultMaxScanLines = 100
	maxLineBytes        = 1 << 20
)

// Probe recovers a timestamp from structured content (GPX, JSON lines)
// that line grammars would misread. Head holds the bounded scan window.
type Probe interface {
	Name() string
	Probe(st telemetry.StreamType, head []byte) (time.Time, bool)
}

// Options configures an Extractor.
type Options struct {
	// MaxScanLines caps how many leading lines are inspected.
	MaxScanLines int
	// GPSOffset is added to parsed GPS times when ApplyGPSOffset is set.
	GPSOffset      time.Duration
	ApplyGPSOffset bool
	// DateOnlyTypes lists stream types whose native format carries no time of day.
	DateOnlyTypes map[telemetry.StreamType]bool
	// HeaderAliases adds header prefixes besides the stream type name itself.
	HeaderAliases map[telemetry.StreamType][]string
	Probes        []Probe
}

// DefaultOptions returns the baseline policy: +2h GPS correction, beacon date-only.
func DefaultOptions() Options {
	return Options{
		MaxScanLines:   DefaultMaxScanLines,
		GPSOffset:      2 * time.Hour,
		ApplyGPSOffset: true,
		DateOnlyTypes:  map[telemetry.StreamType]bool{telemetry.StreamBeacon: true},
		HeaderAliases: map[telemetry.StreamType][]string{
			telemetry.StreamStability: {"ESTABILIDAD"},
			telemetry.StreamBeacon:    {"ROTATIVO"},
		},
	}
}

// Result is the outcome of extracting one file.
type Result struct {
	AnchorTime time.Time
	RawTime    time.Time
	DateOnly   bool
	Confidence telemetry.Confidence
	Grammar    string
}

// Extractor maps file content and stream type to an anchor timestamp.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	opts Options
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	if opts.MaxScanLines <= 0 {
		opts.MaxScanLines = DefaultMaxScanLines
	}
	return &Extractor{opts: opts}
}

// Record extracts f's content and returns the resulting FileRecord.
func (e *Extractor) Record(f telemetry.SourceFile, r io.Reader) telemetry.FileRecord {
	res := e.Extract(f.Identifier, f.StreamType, r)
	return telemetry.FileRecord{
		VehicleID:  f.VehicleID,
		StreamType: f.StreamType,
		Identifier: f.Identifier,
		AnchorTime: res.AnchorTime,
		RawTime:    res.RawTime,
		DateOnly:   res.DateOnly,
		Confidence: res.Confidence,
		Grammar:    res.Grammar,
		Size:       f.Size,
		ModTime:    f.ModTime,
	}
}

// Extract tries the header line, structured probes, the line grammars and
// finally the identifier's embedded date. A nil reader skips straight to the
// identifier fallback.
func (e *Extractor) Extract(identifier string, st telemetry.StreamType, r io.Reader) Result {
	var lines []string
	var head []byte
	if r != nil {
		lines, head = e.scan(r)
	}
	dateOnlyType := e.opts.DateOnlyTypes[st]

	if t, g, ok := e.header(st, lines, dateOnlyType); ok {
		return e.finish(st, t, g, telemetry.ConfidenceHeader, dateOnlyType)
	}

	for _, p := range e.opts.Probes {
		if t, ok := p.Probe(st, head); ok {
			return e.finish(st, wallClock(t), p.Name(), telemetry.ConfidenceContent, dateOnlyType)
		}
	}

	for _, line := range lines {
		if t, g, ok := ParseTimestamp(line, dateOnlyType); ok {
			return e.finish(st, t, g.Name, telemetry.ConfidenceContent, dateOnlyType)
		}
	}

	if t, ok := ParseFilenameDate(identifier); ok {
		return e.finish(st, t, "filename", telemetry.ConfidenceFilename, true)
	}

	return Result{Confidence: telemetry.ConfidenceNone}
}

func (e *Extractor) scan(r io.Reader) ([]string, []byte) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines []string
	var head bytes.Buffer
	for len(lines) < e.opts.MaxScanLines && sc.Scan() {
		line := sc.Text()
		if len(lines) == 0 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		lines = append(lines, line)
		head.WriteString(line)
		head.WriteByte('\n')
	}
	// A read error or an oversized line ends the window; what was read still counts.
	return lines, head.Bytes()
}

func (e *Extractor) header(st telemetry.StreamType, lines []string, dateOnlyType bool) (time.Time, string, bool) {
	prefixes := append([]string{string(st)}, e.opts.HeaderAliases[st]...)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range prefixes {
			if len(trimmed) <= len(prefix) || !strings.EqualFold(trimmed[:len(prefix)], prefix) {
				continue
			}
			if !strings.ContainsRune(":;,= \t", rune(trimmed[len(prefix)])) {
				continue
			}
			if t, g, ok := ParseTimestamp(trimmed[len(prefix)+1:], dateOnlyType); ok {
				return t, g.Name, true
			}
		}
	}
	return time.Time{}, "", false
}

func (e *Extractor) finish(st telemetry.StreamType, t time.Time, grammar string, conf telemetry.Confidence, dateOnly bool) Result {
	res := Result{
		RawTime:    t,
		AnchorTime: t,
		DateOnly:   dateOnly,
		Confidence: conf,
		Grammar:    grammar,
	}
	if dateOnly {
		res.AnchorTime = telemetry.Midnight(t)
		return res
	}
	if st == telemetry.StreamGPS && e.opts.ApplyGPSOffset {
		res.AnchorTime = t.Add(e.opts.GPSOffset)
	}
	return res
}

// CorrectGPS applies a clock offset to a timed GPS record. Date-only and
// non-GPS records are returned unchanged.
func CorrectGPS(rec telemetry.FileRecord, offset time.Duration) telemetry.FileRecord {
	if rec.StreamType != telemetry.StreamGPS || rec.DateOnly || !rec.Extracted() {
		return rec
	}
	rec.AnchorTime = rec.RawTime.Add(offset)
	return rec
}

// wallClock drops any zone information, keeping the wall-clock reading, so
// probe results compare like the zone-less line grammars.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
