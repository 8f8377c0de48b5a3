package usecases

import (
	"context"
	"fmt"

	"github.com/sophialabs/tripmatch/internal/domain/catalog"
	"github.com/sophialabs/tripmatch/internal/domain/matcher"
	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/domain/trace"
	"github.com/sophialabs/tripmatch/internal/infrastructure/ports"
)

// MatchVehicleUseCase catalogs one vehicle's files and assigns them to sessions.
type MatchVehicleUseCase struct {
	source   telemetry.Source
	builder  *catalog.Builder
	matcher  *matcher.Matcher
	clock    ports.Clock
	logger   ports.Logger
	traceBuf *trace.RingBuffer
}

// NewMatchVehicleUseCase creates a new use case. traceBuf may be nil.
func NewMatchVehicleUseCase(
	source telemetry.Source,
	builder *catalog.Builder,
	m *matcher.Matcher,
	clock ports.Clock,
	logger ports.Logger,
	traceBuf *trace.RingBuffer,
) *MatchVehicleUseCase {
	return &MatchVehicleUseCase{
		source:   source,
		builder:  builder,
		matcher:  m,
		clock:    clock,
		logger:   logger,
		traceBuf: traceBuf,
	}
}

// Execute runs the catalog and the matcher for vehicleID. Per-file problems
// end up as diagnostics on the result; only listing failures and
// cancellation are returned as errors.
func (uc *MatchVehicleUseCase) Execute(ctx context.Context, vehicleID string) (telemetry.VehicleResult, error) {
	files, err := uc.source.Files(ctx, vehicleID)
	if err != nil {
		return telemetry.VehicleResult{}, fmt.Errorf("failed to list files of vehicle %q: %w", vehicleID, err)
	}

	cat, err := uc.builder.Build(ctx, vehicleID, files)
	if err != nil {
		return telemetry.VehicleResult{}, fmt.Errorf("failed to catalog vehicle %q: %w", vehicleID, err)
	}

	result := telemetry.VehicleResult{
		VehicleID:         vehicleID,
		Records:           cat.Counts(),
		Diagnostics:       cat.Diagnostics(),
		GPSOffset:         cat.GPSOffset,
		GPSOffsetDetected: cat.GPSOffsetDetected,
	}

	if !cat.Complete() {
		uc.logger.Info("vehicle incomplete, skipping matching", "vehicle", vehicleID, "missing", len(cat.Missing()))
		uc.logDiagnostics(vehicleID, result.Diagnostics)
		return result, nil
	}

	res := uc.matcher.Match(vehicleID, cat.Records)
	if res.BudgetExhausted {
		uc.logger.Info("optimal search budget exhausted, using best assignment found", "vehicle", vehicleID)
	}

	result.Sessions = res.Sessions
	result.Diagnostics = append(result.Diagnostics, res.Diagnostics...)

	if uc.traceBuf != nil && len(res.Trace) > 0 {
		now := uc.clock.Now()
		for i := range res.Trace {
			res.Trace[i].Timestamp = now
		}
		uc.traceBuf.AddAll(res.Trace)
	}

	uc.logDiagnostics(vehicleID, result.Diagnostics)
	uc.logger.Debug("vehicle matched",
		"vehicle", vehicleID,
		"sessions", len(result.Sessions),
		"diagnostics", len(result.Diagnostics),
	)

	return result, nil
}

// logDiagnostics reports unreadable files as warnings; the other reasons are
// expected outcomes of matching and go out at info.
func (uc *MatchVehicleUseCase) logDiagnostics(vehicleID string, diags []telemetry.Diagnostic) {
	for _, d := range diags {
		args := []any{"vehicle", vehicleID, "reason", d.Reason, "file", d.Identifier, "detail", d.Detail}
		if d.Reason == telemetry.ReasonUnextractableFile {
			uc.logger.Warn("diagnostic", args...)
			continue
		}
		uc.logger.Info("diagnostic", args...)
	}
}
