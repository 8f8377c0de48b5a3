package telemetry

import (
	"context"
	"errors"
	"io"
)

// ErrVehicleNotFound indicates a vehicle id unknown to the source.
var ErrVehicleNotFound = errors.New("vehicle not found")

// Source is the port for enumerating and reading vehicle telemetry files.
// Implementations already drop derivative/translated artifacts.
type Source interface {
	// Vehicles returns all vehicle ids, sorted.
	Vehicles(ctx context.Context) ([]string, error)

	// Files returns the files of one vehicle across every stream type.
	// Returns ErrVehicleNotFound if the vehicle does not exist.
	Files(ctx context.Context, vehicleID string) ([]SourceFile, error)

	// Open returns a reader over the file content.
	Open(ctx context.Context, f SourceFile) (io.ReadCloser, error)
}
