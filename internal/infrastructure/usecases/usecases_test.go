package usecases_test

import (
	"context"
	"sync"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/catalog"
	"github.com/sophialabs/tripmatch/internal/domain/extract"
	"github.com/sophialabs/tripmatch/internal/domain/matcher"
	"github.com/sophialabs/tripmatch/internal/domain/scoring"
	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/domain/trace"
	"github.com/sophialabs/tripmatch/internal/infrastructure/ports"
	"github.com/sophialabs/tripmatch/internal/infrastructure/usecases"
	"github.com/sophialabs/tripmatch/internal/testutil"
)

var testNow = time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)

// addCompleteVehicle registers a vehicle with one file per stream type
// around 08:00 on 2025-03-10. GPS carries the raw, uncorrected clock.
func addCompleteVehicle(src *testutil.MemorySource, id string) {
	src.Add(id, telemetry.StreamCAN, "can.csv", "CAN: 2025-03-10 08:00:00\nrpm,speed\n")
	src.Add(id, telemetry.StreamGPS, "gps.csv", "lat,lon,time\n40.1,-3.7,2025-03-10 06:05:00\n")
	src.Add(id, telemetry.StreamStability, "stab.csv", "ESTABILIDAD;2025-03-10 08:03:00\nax,ay\n")
	src.Add(id, telemetry.StreamBeacon, "beacon.csv", "ROTATIVO: 10/03/2025\nstate\n")
}

func newMatchVehicle(src *testutil.MemorySource, buf *trace.RingBuffer) *usecases.MatchVehicleUseCase {
	return newMatchVehicleWith(src, extractingLoader(src), &testutil.NoopLogger{}, buf)
}

func extractingLoader(src telemetry.Source) *catalog.ExtractingLoader {
	return &catalog.ExtractingLoader{Source: src, Extractor: extract.New(extract.DefaultOptions())}
}

func newMatchVehicleWith(src telemetry.Source, loader catalog.Loader, logger ports.Logger, buf *trace.RingBuffer) *usecases.MatchVehicleUseCase {
	return usecases.NewMatchVehicleUseCase(
		src,
		catalog.NewBuilder(loader, catalog.Options{}),
		matcher.New(scoring.DefaultPolicy()),
		&testutil.FixedClock{T: testNow},
		logger,
		buf,
	)
}

// cancelOnFirstLoad cancels a context the first time any file is loaded.
type cancelOnFirstLoad struct {
	catalog.Loader
	cancel context.CancelFunc
	once   sync.Once
}

func (l *cancelOnFirstLoad) Load(ctx context.Context, f telemetry.SourceFile) (telemetry.FileRecord, error) {
	l.once.Do(l.cancel)
	return l.Loader.Load(ctx, f)
}

// stubVehicleMatcher returns canned results and can run a hook per call.
type stubVehicleMatcher struct {
	errs   map[string]error
	onCall func(vehicleID string)
}

func (s *stubVehicleMatcher) Execute(_ context.Context, vehicleID string) (telemetry.VehicleResult, error) {
	if s.onCall != nil {
		s.onCall(vehicleID)
	}
	if err := s.errs[vehicleID]; err != nil {
		return telemetry.VehicleResult{}, err
	}
	return telemetry.VehicleResult{
		VehicleID: vehicleID,
		Sessions:  []telemetry.Session{{VehicleID: vehicleID}},
	}, nil
}
