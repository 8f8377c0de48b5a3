package usecases

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/infrastructure/ports"
	"github.com/sophialabs/tripmatch/internal/infrastructure/services"
)

// PublishReportUseCase turns batch results into the correlation report,
// writes it and optionally persists the committed sessions.
type PublishReportUseCase struct {
	writer   ports.ReportWriter
	store    ports.SessionStore
	format   services.Format
	renderer services.ReportRenderer
	settings services.Settings
	clock    ports.Clock
	logger   ports.Logger
	newRunID func() string
}

// NewPublishReportUseCase creates a new use case. writer and store may be
// nil, in which case the report is only built and returned.
func NewPublishReportUseCase(
	writer ports.ReportWriter,
	store ports.SessionStore,
	format services.Format,
	renderer services.ReportRenderer,
	settings services.Settings,
	clock ports.Clock,
	logger ports.Logger,
) *PublishReportUseCase {
	return &PublishReportUseCase{
		writer:   writer,
		store:    store,
		format:   format,
		renderer: renderer,
		settings: settings,
		clock:    clock,
		logger:   logger,
		newRunID: uuid.NewString,
	}
}

// SetRunIDGenerator replaces the uuid run id generator (for tests).
func (uc *PublishReportUseCase) SetRunIDGenerator(fn func() string) {
	uc.newRunID = fn
}

// Execute builds, encodes, writes and persists the report of one batch.
func (uc *PublishReportUseCase) Execute(ctx context.Context, results []telemetry.VehicleResult) (*services.Report, error) {
	runID := uc.newRunID()
	report := services.BuildReport(runID, uc.clock.Now(), results)
	report.Settings = uc.settings

	if uc.writer != nil {
		var buf bytes.Buffer
		if err := services.EncodeReport(&buf, uc.format, report, uc.renderer); err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		if err := uc.writer.WriteReport(ctx, buf.Bytes()); err != nil {
			return nil, fmt.Errorf("failed to write report: %w", err)
		}
		uc.logger.Info("report written", "run", runID, "format", string(uc.format), "bytes", buf.Len())
	}

	if uc.store != nil {
		vehicles := make([]string, 0, len(results))
		var sessions []telemetry.Session
		for _, r := range results {
			vehicles = append(vehicles, r.VehicleID)
			sessions = append(sessions, r.Sessions...)
		}
		if err := uc.store.SaveSessions(ctx, runID, vehicles, sessions); err != nil {
			return nil, fmt.Errorf("failed to persist sessions: %w", err)
		}
		uc.logger.Info("sessions persisted", "run", runID, "count", len(sessions))
	}

	return report, nil
}
