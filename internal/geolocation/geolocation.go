// Package geolocation provides device position sources for weather sessions.
package geolocation

import (
	"context"
	"fmt"

	"github.com/i474232898/city-weather/internal/weather"
)

// Reported is a position the device sent with the request. Denied means the
// user refused to share it.
type Reported struct {
	Lat    *float64
	Lon    *float64
	Denied bool
}

var _ weather.Locator = Reported{}

func (r Reported) CurrentPosition(ctx context.Context, _ weather.PositionOptions) (weather.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return weather.Coordinate{}, fmt.Errorf("%w: %v", weather.ErrGeolocationUnavailable, err)
	}
	if r.Denied {
		return weather.Coordinate{}, fmt.Errorf("%w: permission denied", weather.ErrGeolocationUnavailable)
	}
	if r.Lat == nil || r.Lon == nil {
		return weather.Coordinate{}, fmt.Errorf("%w: position not reported", weather.ErrGeolocationUnavailable)
	}
	return weather.Coordinate{Lat: *r.Lat, Lon: *r.Lon}, nil
}

// Func adapts a function to weather.Locator.
type Func func(ctx context.Context, opts weather.PositionOptions) (weather.Coordinate, error)

func (f Func) CurrentPosition(ctx context.Context, opts weather.PositionOptions) (weather.Coordinate, error) {
	return f(ctx, opts)
}

// Fixed always reports the same coordinate. The resolve command uses it for session.home.
func Fixed(c weather.Coordinate) weather.Locator {
	return Func(func(ctx context.Context, _ weather.PositionOptions) (weather.Coordinate, error) {
		if err := ctx.Err(); err != nil {
			return weather.Coordinate{}, fmt.Errorf("%w: %v", weather.ErrGeolocationUnavailable, err)
		}
		return c, nil
	})
}
