package telemetry

import "time"

// SourceFile is one discoverable file as handed over by the external scanner.
// Identifier is an opaque key; the matcher never interprets it beyond ordering.
type SourceFile struct {
	VehicleID  string
	StreamType StreamType
	Identifier string
	Size       int64
	ModTime    time.Time
}

// FileRecord is a SourceFile after timestamp extraction.
// AnchorTime is the zero time when Confidence is NONE.
type FileRecord struct {
	VehicleID  string
	StreamType StreamType
	Identifier string
	AnchorTime time.Time
	// RawTime is the parsed time before any GPS clock correction.
	RawTime    time.Time
	DateOnly   bool
	Confidence Confidence
	Grammar    string
	Size       int64
	ModTime    time.Time
}

// Extracted reports whether the record carries a usable anchor time.
func (r FileRecord) Extracted() bool {
	return r.Confidence != ConfidenceNone && !r.AnchorTime.IsZero()
}

// Date returns the calendar date of the anchor time at midnight UTC.
func (r FileRecord) Date() time.Time {
	return Midnight(r.AnchorTime)
}

// Midnight truncates t to the start of its calendar day in UTC.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether a and b fall on the same UTC calendar day.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Session is a committed grouping of exactly one file per stream type.
type Session struct {
	RunID     string
	VehicleID string
	Date      time.Time
	Files     map[StreamType]FileRecord
	StartTime time.Time
	EndTime   time.Time
	Score     float64
	// TimeDeltas holds the absolute offset of each non-anchor member from the anchor.
	TimeDeltas map[StreamType]time.Duration
}

// Anchor returns the CAN member of the session.
func (s Session) Anchor() FileRecord {
	return s.Files[StreamCAN]
}

// Key identifies a session across runs: the anchor uniquely determines it.
func (s Session) Key() string {
	return s.VehicleID + "/" + s.Date.Format("2006-01-02") + "/" + s.Anchor().Identifier
}

// Reason classifies a diagnostic.
type Reason string

const (
	ReasonIncompleteTypes   Reason = "INCOMPLETE_TYPES"
	ReasonUnmatchedAnchor   Reason = "UNMATCHED_ANCHOR"
	ReasonUnextractableFile Reason = "UNEXTRACTABLE_FILE"
)

// Diagnostic reports a condition absorbed by the batch instead of failing it.
type Diagnostic struct {
	VehicleID  string
	Reason     Reason
	StreamType StreamType
	Identifier string
	Detail     string
}

// VehicleResult is the outcome of one vehicle's catalog and matching run.
type VehicleResult struct {
	VehicleID   string
	Sessions    []Session
	Diagnostics []Diagnostic
	// Records counts extractable records per stream type.
	Records map[StreamType]int
	// GPSOffset is the clock correction applied to the vehicle's GPS records.
	GPSOffset         time.Duration
	GPSOffsetDetected bool
}
