package weather

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultFutureCount is the number of daily entries requested when the caller passes none.
const DefaultFutureCount = 9

// LongDateLayout renders dates in the en-US long form, e.g. "January 5, 2024".
const LongDateLayout = "January 2, 2006"

// Aggregator retrieves current, hourly and daily weather for a coordinate.
// It never mutates session state; callers decide what to commit.
type Aggregator struct {
	source   Source
	logger   *zap.Logger
	location *time.Location
	recorder Recorder
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithLocation sets the time zone used to format the current-weather date.
func WithLocation(loc *time.Location) AggregatorOption {
	return func(a *Aggregator) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithRecorder reports every fetch outcome to r.
func WithRecorder(r Recorder) AggregatorOption {
	return func(a *Aggregator) {
		a.recorder = r
	}
}

// NewAggregator creates an Aggregator. Dates are formatted in UTC unless WithLocation is given.
func NewAggregator(source Source, logger *zap.Logger, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		source:   source,
		logger:   logger,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchCurrent fetches current conditions and builds the CityDetail update, including the anchor.
func (a *Aggregator) FetchCurrent(ctx context.Context, coord Coordinate) (CityDetailUpdate, error) {
	if err := coord.Validate(); err != nil {
		return CityDetailUpdate{}, err
	}

	cur, err := a.source.Current(ctx, coord)
	a.observe("current", coord, err)
	if err != nil {
		return CityDetailUpdate{}, upstreamErr("current weather", err)
	}

	var icon string
	if len(cur.Weather) > 0 {
		icon = cur.Weather[0].Icon
	}
	position := cur.Coord
	if position == (Coordinate{}) {
		position = coord
	}

	return CityDetailUpdate{
		Coordinate:  position,
		CountryCode: cur.Sys.Country,
		StateCode:   cur.State,
		CityName:    cur.Name,
		Date:        FormatLongDate(cur.Dt, a.location),
		Temperature: cur.Main.Temp,
		WeatherIcon: icon,
		Timezone:    cur.Timezone,
		Anchor:      cur.Dt,
	}, nil
}

// FetchHourly returns the full, unfiltered hourly list.
func (a *Aggregator) FetchHourly(ctx context.Context, coord Coordinate) ([]HourlyEntry, error) {
	if err := coord.Validate(); err != nil {
		return nil, err
	}

	entries, err := a.source.Hourly(ctx, coord)
	a.observe("hourly", coord, err)
	if err != nil {
		return nil, upstreamErr("hourly weather", err)
	}
	return entries, nil
}

// FetchFuture returns count daily entries verbatim. count <= 0 means DefaultFutureCount.
func (a *Aggregator) FetchFuture(ctx context.Context, coord Coordinate, count int) ([]DailyEntry, error) {
	if err := coord.Validate(); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = DefaultFutureCount
	}

	entries, err := a.source.Daily(ctx, coord, count)
	a.observe("future", coord, err)
	if err != nil {
		return nil, upstreamErr("future weather", err)
	}
	return entries, nil
}

func (a *Aggregator) observe(part string, coord Coordinate, err error) {
	if a.recorder != nil {
		a.recorder.ObserveFetch(part, err)
	}
	if err != nil {
		a.logger.Debug("weather fetch failed",
			zap.String("part", part),
			zap.Float64("lat", coord.Lat),
			zap.Float64("lon", coord.Lon),
			zap.Error(err))
		return
	}
	a.logger.Debug("weather fetched",
		zap.String("part", part),
		zap.Float64("lat", coord.Lat),
		zap.Float64("lon", coord.Lon))
}

// FormatLongDate converts a unix timestamp (seconds) to the long date form in loc.
func FormatLongDate(dt int64, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(dt, 0).In(loc).Format(LongDateLayout)
}
