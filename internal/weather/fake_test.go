package weather

import (
	"context"
	"errors"
	"sync"
)

var errNetwork = errors.New("connection refused")

// fakeSource is a Source whose answers are set per test.
type fakeSource struct {
	mu sync.Mutex

	geocode func(ctx context.Context, query string, limit int) ([]GeocodeCandidate, error)
	current func(ctx context.Context, coord Coordinate) (CurrentConditions, error)
	hourly  func(ctx context.Context, coord Coordinate) ([]HourlyEntry, error)
	daily   func(ctx context.Context, coord Coordinate, count int) ([]DailyEntry, error)

	calls map[string]int
	// last daily count requested
	lastCount int
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: make(map[string]int)}
}

func (f *fakeSource) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSource) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeSource) Geocode(ctx context.Context, query string, limit int) ([]GeocodeCandidate, error) {
	f.record("geocode")
	if f.geocode == nil {
		return nil, nil
	}
	return f.geocode(ctx, query, limit)
}

func (f *fakeSource) Current(ctx context.Context, coord Coordinate) (CurrentConditions, error) {
	f.record("current")
	if f.current == nil {
		return CurrentConditions{}, errNetwork
	}
	return f.current(ctx, coord)
}

func (f *fakeSource) Hourly(ctx context.Context, coord Coordinate) ([]HourlyEntry, error) {
	f.record("hourly")
	if f.hourly == nil {
		return nil, nil
	}
	return f.hourly(ctx, coord)
}

func (f *fakeSource) Daily(ctx context.Context, coord Coordinate, count int) ([]DailyEntry, error) {
	f.record("daily")
	f.mu.Lock()
	f.lastCount = count
	f.mu.Unlock()
	if f.daily == nil {
		return nil, nil
	}
	return f.daily(ctx, coord, count)
}

func conditions(name, country string, coord Coordinate, dt int64, tempK float64) CurrentConditions {
	var c CurrentConditions
	c.Name = name
	c.Sys.Country = country
	c.Coord = coord
	c.Dt = dt
	c.Main.Temp = tempK
	c.Weather = []Condition{{ID: 800, Main: "Clear", Description: "clear sky", Icon: "01d"}}
	return c
}

func hourlyAt(dts ...int64) []HourlyEntry {
	out := make([]HourlyEntry, 0, len(dts))
	for _, dt := range dts {
		var e HourlyEntry
		e.Dt = dt
		e.Main.Temp = 290
		out = append(out, e)
	}
	return out
}

func dailyList(n int) []DailyEntry {
	out := make([]DailyEntry, 0, n)
	for i := 0; i < n; i++ {
		var d DailyEntry
		d.Dt = int64(1700000000 + i*86400)
		d.Temp.Min = 283.15
		d.Temp.Max = 293.15
		out = append(out, d)
	}
	return out
}

func dts(entries []HourlyEntry) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Dt)
	}
	return out
}
