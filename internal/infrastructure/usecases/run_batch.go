package usecases

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/infrastructure/ports"
)

// VehicleMatcher matches a single vehicle.
type VehicleMatcher interface {
	Execute(ctx context.Context, vehicleID string) (telemetry.VehicleResult, error)
}

// RunBatchUseCase matches every vehicle of a source with a bounded worker pool.
type RunBatchUseCase struct {
	source  telemetry.Source
	vehicle VehicleMatcher
	workers int
	clock   ports.Clock
	logger  ports.Logger
}

// NewRunBatchUseCase creates a new use case. workers below 1 means one worker.
func NewRunBatchUseCase(source telemetry.Source, vehicle VehicleMatcher, workers int, clock ports.Clock, logger ports.Logger) *RunBatchUseCase {
	if workers < 1 {
		workers = 1
	}
	return &RunBatchUseCase{
		source:  source,
		vehicle: vehicle,
		workers: workers,
		clock:   clock,
		logger:  logger,
	}
}

// Execute matches all vehicles. Vehicles are independent: one vehicle's
// failure is logged and turned into an empty result carrying a diagnostic,
// it never stops the others. Cancellation is observed only before a vehicle
// starts; a started vehicle runs to completion detached from ctx. Results
// are sorted by vehicle id and are returned together with ctx.Err() when
// the batch was cut short.
func (uc *RunBatchUseCase) Execute(ctx context.Context) ([]telemetry.VehicleResult, error) {
	start := uc.clock.Now()

	vehicles, err := uc.source.Vehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	uc.logger.Info("batch started", "vehicles", len(vehicles), "workers", uc.workers)

	var (
		mu      sync.Mutex
		results = make([]telemetry.VehicleResult, 0, len(vehicles))
	)

	// The group context is not used: a worker never fails the group.
	var g errgroup.Group
	g.SetLimit(uc.workers)

	for _, id := range vehicles {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := uc.vehicle.Execute(context.WithoutCancel(ctx), id)
			if err != nil {
				uc.logger.Error("vehicle failed", "vehicle", id, "error", err)
				res = failedResult(id, err)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].VehicleID < results[j].VehicleID })

	sessions, diags := 0, 0
	for _, r := range results {
		sessions += len(r.Sessions)
		diags += len(r.Diagnostics)
	}
	uc.logger.Info("batch finished",
		"vehicles", len(results),
		"sessions", sessions,
		"diagnostics", diags,
		"elapsed", uc.clock.Now().Sub(start).String(),
	)

	return results, ctx.Err()
}

// failedResult is the result of a vehicle whose files could not be listed
// or read. The vehicle still appears in the report, with the cause attached.
func failedResult(vehicleID string, err error) telemetry.VehicleResult {
	return telemetry.VehicleResult{
		VehicleID: vehicleID,
		Diagnostics: []telemetry.Diagnostic{{
			VehicleID: vehicleID,
			Reason:    telemetry.ReasonIncompleteTypes,
			Detail:    "vehicle files unavailable: " + err.Error(),
		}},
	}
}
