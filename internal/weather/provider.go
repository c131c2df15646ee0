package weather

import (
	"context"
)

// Source abstracts the proxy endpoints the core consumes. Implementations must be
// safe for concurrent use and must not hold provider credentials.
type Source interface {
	Geocode(ctx context.Context, query string, limit int) ([]GeocodeCandidate, error)
	Current(ctx context.Context, coord Coordinate) (CurrentConditions, error)
	Hourly(ctx context.Context, coord Coordinate) ([]HourlyEntry, error)
	Daily(ctx context.Context, coord Coordinate, count int) ([]DailyEntry, error)
}

// Recorder receives fetch outcomes for metrics. A nil Recorder is ignored.
type Recorder interface {
	ObserveFetch(part string, err error)
}
