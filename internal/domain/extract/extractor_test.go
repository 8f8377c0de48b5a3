package extract_test

import (
	"strings"
	"testing"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/extract"
	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

type stubProbe struct {
	t  time.Time
	ok bool
}

func (p stubProbe) Name() string { return "stub" }

func (p stubProbe) Probe(st telemetry.StreamType, head []byte) (time.Time, bool) {
	return p.t, p.ok && st == telemetry.StreamGPS
}

func TestExtractor_Extract(t *testing.T) {
	e := extract.New(extract.DefaultOptions())

	tests := []struct {
		name           string
		identifier     string
		streamType     telemetry.StreamType
		content        string
		wantConfidence telemetry.Confidence
		wantGrammar    string
		wantAnchor     time.Time
		wantDateOnly   bool
	}{
		{
			name:           "CAN header",
			identifier:     "V1/CAN/can.csv",
			streamType:     telemetry.StreamCAN,
			content:        "CAN: 2025-07-08 09:00:00\nrpm,speed\n1200,40\n",
			wantConfidence: telemetry.ConfidenceHeader,
			wantGrammar:    "iso",
			wantAnchor:     time.Date(2025, 7, 8, 9, 0, 0, 0, time.UTC),
		},
		{
			name:           "stability header alias",
			identifier:     "V1/ESTABILIDAD/est.csv",
			streamType:     telemetry.StreamStability,
			content:        "ESTABILIDAD;08/07/2025 09:01:00\n",
			wantConfidence: telemetry.ConfidenceHeader,
			wantGrammar:    "dmy-slash",
			wantAnchor:     time.Date(2025, 7, 8, 9, 1, 0, 0, time.UTC),
		},
		{
			name:           "header after byte order mark",
			identifier:     "V1/CAN/bom.csv",
			streamType:     telemetry.StreamCAN,
			content:        "\ufeffCAN,2025-07-08 10:00:00\n",
			wantConfidence: telemetry.ConfidenceHeader,
			wantGrammar:    "iso",
			wantAnchor:     time.Date(2025, 7, 8, 10, 0, 0, 0, time.UTC),
		},
		{
			name:           "prefix without separator is content",
			identifier:     "V1/CAN/bus.csv",
			streamType:     telemetry.StreamCAN,
			content:        "CANBUS 2025-07-08 11:00:00\n",
			wantConfidence: telemetry.ConfidenceContent,
			wantGrammar:    "iso",
			wantAnchor:     time.Date(2025, 7, 8, 11, 0, 0, 0, time.UTC),
		},
		{
			name:           "GPS content gets offset",
			identifier:     "V1/GPS/gps.csv",
			streamType:     telemetry.StreamGPS,
			content:        "lat,lon,time\n40.1,-3.7,2025-07-08 07:00:00\n",
			wantConfidence: telemetry.ConfidenceContent,
			wantGrammar:    "iso",
			wantAnchor:     time.Date(2025, 7, 8, 9, 0, 0, 0, time.UTC),
		},
		{
			name:           "beacon is date-only",
			identifier:     "V1/ROTATIVO/rot.csv",
			streamType:     telemetry.StreamBeacon,
			content:        "ROTATIVO;08/07/2025\n",
			wantConfidence: telemetry.ConfidenceHeader,
			wantGrammar:    "dmy-date",
			wantAnchor:     time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC),
			wantDateOnly:   true,
		},
		{
			name:           "beacon time of day dropped",
			identifier:     "V1/BEACON/rot.csv",
			streamType:     telemetry.StreamBeacon,
			content:        "BEACON: 2025-07-09 10:30:00\n",
			wantConfidence: telemetry.ConfidenceHeader,
			wantGrammar:    "iso",
			wantAnchor:     time.Date(2025, 7, 9, 0, 0, 0, 0, time.UTC),
			wantDateOnly:   true,
		},
		{
			name:           "filename fallback",
			identifier:     "V1/CAN/CAN_20250708_0900.csv",
			streamType:     telemetry.StreamCAN,
			content:        "rpm,speed\n1200,40\n",
			wantConfidence: telemetry.ConfidenceFilename,
			wantGrammar:    "filename",
			wantAnchor:     time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC),
			wantDateOnly:   true,
		},
		{
			name:           "nothing recoverable",
			identifier:     "V3/GPS/notes.txt",
			streamType:     telemetry.StreamGPS,
			content:        "remember to recalibrate\n",
			wantConfidence: telemetry.ConfidenceNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Extract(tt.identifier, tt.streamType, strings.NewReader(tt.content))
			if res.Confidence != tt.wantConfidence {
				t.Fatalf("expected confidence %s, got %s", tt.wantConfidence, res.Confidence)
			}
			if res.Grammar != tt.wantGrammar {
				t.Errorf("expected grammar %q, got %q", tt.wantGrammar, res.Grammar)
			}
			if !res.AnchorTime.Equal(tt.wantAnchor) {
				t.Errorf("expected anchor %v, got %v", tt.wantAnchor, res.AnchorTime)
			}
			if res.DateOnly != tt.wantDateOnly {
				t.Errorf("expected date-only %v, got %v", tt.wantDateOnly, res.DateOnly)
			}
		})
	}
}

func TestExtractor_GPSRawTimeKept(t *testing.T) {
	e := extract.New(extract.DefaultOptions())
	res := e.Extract("gps.csv", telemetry.StreamGPS, strings.NewReader("2025-07-08 07:00:00\n"))

	if !res.RawTime.Equal(time.Date(2025, 7, 8, 7, 0, 0, 0, time.UTC)) {
		t.Errorf("expected raw time 07:00, got %v", res.RawTime)
	}
	if !res.AnchorTime.Equal(time.Date(2025, 7, 8, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("expected anchor 09:00, got %v", res.AnchorTime)
	}
}

func TestExtractor_OffsetDisabled(t *testing.T) {
	opts := extract.DefaultOptions()
	opts.ApplyGPSOffset = false
	e := extract.New(opts)

	res := e.Extract("gps.csv", telemetry.StreamGPS, strings.NewReader("2025-07-08 07:00:00\n"))
	if !res.AnchorTime.Equal(res.RawTime) {
		t.Errorf("expected uncorrected anchor, got %v (raw %v)", res.AnchorTime, res.RawTime)
	}
}

func TestExtractor_ScanWindow(t *testing.T) {
	opts := extract.DefaultOptions()
	opts.MaxScanLines = 2
	e := extract.New(opts)

	content := "rpm,speed\n1200,40\n2025-07-08 09:00:00\n"
	res := e.Extract("V1/CAN/can.csv", telemetry.StreamCAN, strings.NewReader(content))
	if res.Confidence != telemetry.ConfidenceNone {
		t.Errorf("expected timestamp beyond the window to be ignored, got %s", res.Confidence)
	}
}

func TestExtractor_NilReader(t *testing.T) {
	e := extract.New(extract.DefaultOptions())

	res := e.Extract("V1/CAN/CAN_20250708_0900.csv", telemetry.StreamCAN, nil)
	if res.Confidence != telemetry.ConfidenceFilename {
		t.Errorf("expected filename confidence, got %s", res.Confidence)
	}
}

func TestExtractor_Probe(t *testing.T) {
	opts := extract.DefaultOptions()
	zoned := time.Date(2025, 7, 8, 7, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	opts.Probes = []extract.Probe{stubProbe{t: zoned, ok: true}}
	e := extract.New(opts)

	res := e.Extract("gps.gpx", telemetry.StreamGPS, strings.NewReader("<gpx/>\n"))
	if res.Confidence != telemetry.ConfidenceContent || res.Grammar != "stub" {
		t.Fatalf("expected probe result, got %s/%s", res.Confidence, res.Grammar)
	}
	// The wall-clock reading is kept; the zone is discarded.
	if !res.RawTime.Equal(time.Date(2025, 7, 8, 7, 0, 0, 0, time.UTC)) {
		t.Errorf("expected raw 07:00 UTC, got %v", res.RawTime)
	}
	if !res.AnchorTime.Equal(time.Date(2025, 7, 8, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("expected anchor 09:00, got %v", res.AnchorTime)
	}

	// Header lines still take precedence over probes.
	res = e.Extract("gps.gpx", telemetry.StreamGPS, strings.NewReader("GPS: 2025-07-08 05:00:00\n"))
	if res.Confidence != telemetry.ConfidenceHeader {
		t.Errorf("expected header to win, got %s", res.Confidence)
	}
}

func TestExtractor_Record(t *testing.T) {
	e := extract.New(extract.DefaultOptions())
	mod := time.Date(2025, 7, 8, 12, 0, 0, 0, time.UTC)
	f := telemetry.SourceFile{
		VehicleID:  "V1",
		StreamType: telemetry.StreamCAN,
		Identifier: "V1/CAN/can.csv",
		Size:       42,
		ModTime:    mod,
	}

	rec := e.Record(f, strings.NewReader("CAN: 2025-07-08 09:00:00\n"))
	if rec.VehicleID != "V1" || rec.Identifier != f.Identifier || rec.StreamType != telemetry.StreamCAN {
		t.Errorf("identity not carried over: %+v", rec)
	}
	if rec.Size != 42 || !rec.ModTime.Equal(mod) {
		t.Errorf("metadata not carried over: %+v", rec)
	}
	if !rec.Extracted() {
		t.Error("expected record to be extracted")
	}
}

func TestCorrectGPS(t *testing.T) {
	raw := time.Date(2025, 7, 8, 7, 0, 0, 0, time.UTC)
	gps := telemetry.FileRecord{
		StreamType: telemetry.StreamGPS,
		AnchorTime: raw,
		RawTime:    raw,
		Confidence: telemetry.ConfidenceContent,
	}

	got := extract.CorrectGPS(gps, 3*time.Hour)
	if !got.AnchorTime.Equal(raw.Add(3 * time.Hour)) {
		t.Errorf("expected 10:00, got %v", got.AnchorTime)
	}

	can := gps
	can.StreamType = telemetry.StreamCAN
	if got := extract.CorrectGPS(can, 3*time.Hour); !got.AnchorTime.Equal(raw) {
		t.Errorf("CAN record should be unchanged, got %v", got.AnchorTime)
	}

	dateOnly := gps
	dateOnly.DateOnly = true
	if got := extract.CorrectGPS(dateOnly, 3*time.Hour); !got.AnchorTime.Equal(raw) {
		t.Errorf("date-only record should be unchanged, got %v", got.AnchorTime)
	}
}
