package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

// ReportIndex answers admin lookups over one immutable report.
type ReportIndex struct {
	report    *Report
	byVehicle map[string]*VehicleReport
	ids       []string
}

// NewReportIndex indexes r by vehicle id.
func NewReportIndex(r *Report) *ReportIndex {
	idx := &ReportIndex{
		report:    r,
		byVehicle: make(map[string]*VehicleReport, len(r.Vehicles)),
	}
	for i := range r.Vehicles {
		v := &r.Vehicles[i]
		idx.byVehicle[v.VehicleID] = v
		idx.ids = append(idx.ids, v.VehicleID)
	}
	sort.Strings(idx.ids)
	return idx
}

// Report returns the indexed report.
func (idx *ReportIndex) Report() *Report {
	return idx.report
}

// VehicleIDs returns every vehicle id in ascending order.
func (idx *ReportIndex) VehicleIDs() []string {
	return idx.ids
}

// Vehicle returns one vehicle's section of the report.
func (idx *ReportIndex) Vehicle(id string) (*VehicleReport, error) {
	v, ok := idx.byVehicle[id]
	if !ok {
		return nil, fmt.Errorf("vehicle %q: %w", id, telemetry.ErrVehicleNotFound)
	}
	return v, nil
}

// Diagnostics returns diagnostics across vehicles, optionally filtered by
// reason (case-insensitive). An empty reason returns all of them.
func (idx *ReportIndex) Diagnostics(reason string) []DiagnosticRecord {
	var out []DiagnosticRecord
	for _, id := range idx.ids {
		for _, d := range idx.byVehicle[id].Diagnostics {
			if reason == "" || strings.EqualFold(d.Reason, reason) {
				out = append(out, d)
			}
		}
	}
	return out
}

// Summaries returns one line per vehicle for listing endpoints.
func (idx *ReportIndex) Summaries() []VehicleSummary {
	out := make([]VehicleSummary, 0, len(idx.ids))
	for _, id := range idx.ids {
		v := idx.byVehicle[id]
		out = append(out, VehicleSummary{
			VehicleID:   v.VehicleID,
			Sessions:    len(v.Sessions),
			Diagnostics: len(v.Diagnostics),
		})
	}
	return out
}

// VehicleSummary is a compact view of one vehicle.
type VehicleSummary struct {
	VehicleID   string `json:"vehicle_id"`
	Sessions    int    `json:"sessions"`
	Diagnostics int    `json:"diagnostics"`
}
