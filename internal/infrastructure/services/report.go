package services

import (
	"errors"
	"sort"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

// ErrNoReport is returned when no batch has completed yet.
var ErrNoReport = errors.New("no report available")

// ErrRunInProgress is returned when a batch is requested while another one runs.
var ErrRunInProgress = errors.New("a batch is already running")

// Report is the language-neutral outcome of one batch run.
type Report struct {
	RunID       string          `json:"run_id" yaml:"run_id"`
	GeneratedAt string          `json:"generated_at" yaml:"generated_at"`
	Settings    Settings        `json:"settings" yaml:"settings"`
	Totals      Totals          `json:"totals" yaml:"totals"`
	Vehicles    []VehicleReport `json:"vehicles" yaml:"vehicles"`
}

// Settings records the matching parameters the run used.
type Settings struct {
	ToleranceMinutes float64 `json:"tolerance_minutes" yaml:"tolerance_minutes"`
	NormalizationK   float64 `json:"normalization_k" yaml:"normalization_k"`
	GPSOffsetMode    string  `json:"gps_offset_mode" yaml:"gps_offset_mode"`
	GPSOffsetHours   float64 `json:"gps_offset_hours" yaml:"gps_offset_hours"`
	MatchMode        string  `json:"match_mode" yaml:"match_mode"`
}

// Totals aggregates counts across vehicles.
type Totals struct {
	Vehicles         int            `json:"vehicles" yaml:"vehicles"`
	CompleteVehicles int            `json:"complete_vehicles" yaml:"complete_vehicles"`
	Sessions         int            `json:"sessions" yaml:"sessions"`
	Diagnostics      int            `json:"diagnostics" yaml:"diagnostics"`
	ByReason         map[string]int `json:"by_reason,omitempty" yaml:"by_reason,omitempty"`
	MeanScore        float64        `json:"mean_score" yaml:"mean_score"`
}

// VehicleReport is one vehicle's sessions and diagnostics.
type VehicleReport struct {
	VehicleID      string             `json:"vehicle_id" yaml:"vehicle_id"`
	Records        map[string]int     `json:"records" yaml:"records"`
	GPSOffsetHours float64            `json:"gps_offset_hours" yaml:"gps_offset_hours"`
	OffsetDetected bool               `json:"gps_offset_detected" yaml:"gps_offset_detected"`
	Sessions       []SessionRecord    `json:"sessions" yaml:"sessions"`
	Diagnostics    []DiagnosticRecord `json:"diagnostics" yaml:"diagnostics"`
}

// SessionRecord is a committed session with identifiers keyed by stream type name.
type SessionRecord struct {
	Key           string             `json:"key" yaml:"key"`
	Date          string             `json:"date" yaml:"date"`
	Files         map[string]string  `json:"files" yaml:"files"`
	Start         string             `json:"start" yaml:"start"`
	End           string             `json:"end" yaml:"end"`
	Score         float64            `json:"score" yaml:"score"`
	DeltasMinutes map[string]float64 `json:"deltas_minutes" yaml:"deltas_minutes"`
}

// DiagnosticRecord is a non-fatal condition reported for a vehicle.
type DiagnosticRecord struct {
	VehicleID  string `json:"vehicle_id" yaml:"vehicle_id"`
	Reason     string `json:"reason" yaml:"reason"`
	StreamType string `json:"stream_type,omitempty" yaml:"stream_type,omitempty"`
	Identifier string `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Detail     string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// BuildReport converts vehicle results into a report. Vehicles are sorted by
// id and sessions by start time, so equal inputs give equal reports.
func BuildReport(runID string, generatedAt time.Time, results []telemetry.VehicleResult) *Report {
	r := &Report{
		RunID:       runID,
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		Vehicles:    make([]VehicleReport, 0, len(results)),
	}

	sorted := append([]telemetry.VehicleResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].VehicleID < sorted[j].VehicleID })

	var scoreSum float64
	for _, res := range sorted {
		vr := VehicleReport{
			VehicleID:      res.VehicleID,
			Records:        make(map[string]int, len(res.Records)),
			GPSOffsetHours: res.GPSOffset.Hours(),
			OffsetDetected: res.GPSOffsetDetected,
			Sessions:       make([]SessionRecord, 0, len(res.Sessions)),
			Diagnostics:    make([]DiagnosticRecord, 0, len(res.Diagnostics)),
		}
		for st, n := range res.Records {
			vr.Records[st.String()] = n
		}

		sessions := append([]telemetry.Session(nil), res.Sessions...)
		sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].StartTime.Before(sessions[j].StartTime) })
		for _, s := range sessions {
			vr.Sessions = append(vr.Sessions, NewSessionRecord(s))
			scoreSum += s.Score
		}
		for _, d := range res.Diagnostics {
			vr.Diagnostics = append(vr.Diagnostics, NewDiagnosticRecord(d))
		}

		r.Totals.Vehicles++
		if !hasReason(res.Diagnostics, telemetry.ReasonIncompleteTypes) {
			r.Totals.CompleteVehicles++
		}
		r.Totals.Sessions += len(vr.Sessions)
		r.Totals.Diagnostics += len(vr.Diagnostics)
		for _, d := range res.Diagnostics {
			if r.Totals.ByReason == nil {
				r.Totals.ByReason = make(map[string]int)
			}
			r.Totals.ByReason[string(d.Reason)]++
		}
		r.Vehicles = append(r.Vehicles, vr)
	}
	if r.Totals.Sessions > 0 {
		r.Totals.MeanScore = scoreSum / float64(r.Totals.Sessions)
	}
	return r
}

// NewSessionRecord flattens a session for reporting.
func NewSessionRecord(s telemetry.Session) SessionRecord {
	rec := SessionRecord{
		Key:           s.Key(),
		Date:          s.Date.Format("2006-01-02"),
		Files:         make(map[string]string, len(s.Files)),
		Start:         s.StartTime.Format(time.RFC3339),
		End:           s.EndTime.Format(time.RFC3339),
		Score:         s.Score,
		DeltasMinutes: make(map[string]float64, len(s.TimeDeltas)),
	}
	for st, f := range s.Files {
		rec.Files[st.String()] = f.Identifier
	}
	for st, d := range s.TimeDeltas {
		rec.DeltasMinutes[st.String()] = d.Minutes()
	}
	return rec
}

// NewDiagnosticRecord flattens a diagnostic for reporting.
func NewDiagnosticRecord(d telemetry.Diagnostic) DiagnosticRecord {
	return DiagnosticRecord{
		VehicleID:  d.VehicleID,
		Reason:     string(d.Reason),
		StreamType: string(d.StreamType),
		Identifier: d.Identifier,
		Detail:     d.Detail,
	}
}

func hasReason(diags []telemetry.Diagnostic, reason telemetry.Reason) bool {
	for _, d := range diags {
		if d.Reason == reason {
			return true
		}
	}
	return false
}
