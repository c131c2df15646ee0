package weather

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type locatorFunc func(ctx context.Context, opts PositionOptions) (Coordinate, error)

func (f locatorFunc) CurrentPosition(ctx context.Context, opts PositionOptions) (Coordinate, error) {
	return f(ctx, opts)
}

var paris = Coordinate{Lat: 48.8566, Lon: 2.3522}

func newTestSession(src Source, opts SessionOptions) *Session {
	logger := zap.NewNop()
	return NewSession("test", NewAggregator(src, logger), NewResolver(src, logger), logger, opts)
}

// workingSource answers every call for any coordinate.
func workingSource(anchor int64) *fakeSource {
	src := newFakeSource()
	src.geocode = func(context.Context, string, int) ([]GeocodeCandidate, error) {
		return springfields(3), nil
	}
	src.current = func(_ context.Context, coord Coordinate) (CurrentConditions, error) {
		return conditions("Springfield", "US", coord, anchor, 293.15), nil
	}
	src.hourly = func(context.Context, Coordinate) ([]HourlyEntry, error) {
		return hourlyAt(anchor-1000, anchor, anchor+3600), nil
	}
	src.daily = func(_ context.Context, _ Coordinate, count int) ([]DailyEntry, error) {
		return dailyList(count), nil
	}
	return src
}

func TestSession_ResolveCityThreadsAnchor(t *testing.T) {
	src := workingSource(1700000000)
	s := newTestSession(src, SessionOptions{})

	out := s.ResolveCity(context.Background(), london)
	require.NoError(t, out.Err())
	assert.False(t, out.Stale())

	v := s.View()
	require.NotNil(t, v.City)
	assert.Equal(t, "Springfield", v.City.CityName)
	assert.Equal(t, "November 14, 2023", v.City.Date)
	assert.Equal(t, "20 °C", v.Display)
	assert.Equal(t, int64(1700000000), v.Anchor)

	got := make([]int64, 0, len(v.Hourly))
	for _, h := range v.Hourly {
		got = append(got, h.Dt)
	}
	assert.Equal(t, []int64{1700000000, 1700003600}, got)
	assert.Len(t, s.RawHourly(), 3)

	require.Len(t, v.Future, DefaultFutureCount)
	assert.Equal(t, "10 / 20 °C", v.Future[0].Range)
	assert.Empty(t, v.Staleness["current"].Error)
}

func TestSession_SearchAndSelectPreservesDisambiguation(t *testing.T) {
	src := workingSource(1700000000)
	s := newTestSession(src, SessionOptions{})
	ctx := context.Background()

	candidates, err := s.Search(ctx, "Springfield", 0)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, "Springfield", s.View().Input.CityName)

	out, err := s.SelectCandidate(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, out.Err())

	v := s.View()
	require.NotNil(t, v.City)
	assert.Equal(t, "MO", v.City.StateCode)
	assert.Equal(t, "US", v.City.CountryCode)
	assert.Equal(t, candidates[1].Lat, v.City.Lat)
	assert.Empty(t, v.Candidates)
	assert.Equal(t, InputField{}, v.Input)
}

func TestSession_SelectCandidateOutOfRange(t *testing.T) {
	src := workingSource(1700000000)
	s := newTestSession(src, SessionOptions{})

	_, err := s.SelectCandidate(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, src.count("current"))
}

func TestSession_CurrentFailureKeepsDetailAndClearsCandidates(t *testing.T) {
	src := workingSource(1700000000)
	s := newTestSession(src, SessionOptions{})
	ctx := context.Background()

	_, err := s.Search(ctx, "Springfield", 0)
	require.NoError(t, err)
	out, err := s.SelectCandidate(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, out.Err())
	before := s.View()

	_, err = s.Search(ctx, "Springfield", 0)
	require.NoError(t, err)
	require.Len(t, s.View().Candidates, 3)

	src.current = func(context.Context, Coordinate) (CurrentConditions, error) {
		return CurrentConditions{}, errNetwork
	}
	hourlyCalls := src.count("hourly")

	out, err = s.SelectCandidate(ctx, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, out.Current, ErrUpstreamFetchFailed)
	assert.ErrorIs(t, out.Hourly, ErrUpstreamFetchFailed)
	assert.ErrorIs(t, out.Future, ErrUpstreamFetchFailed)
	assert.Contains(t, out.Errors(), "current")

	after := s.View()
	assert.Equal(t, before.City, after.City)
	assert.Equal(t, before.Hourly, after.Hourly)
	assert.Equal(t, before.Future, after.Future)
	assert.Empty(t, after.Candidates)
	assert.Equal(t, InputField{}, after.Input)
	assert.NotEmpty(t, after.Staleness["current"].Error)
	assert.Equal(t, hourlyCalls, src.count("hourly"))
}

func TestSession_PartialFailureKeepsLastGoodView(t *testing.T) {
	src := workingSource(1700000000)
	s := newTestSession(src, SessionOptions{})
	ctx := context.Background()

	require.NoError(t, s.ResolveCity(ctx, london).Err())
	before := s.View()

	src.hourly = func(context.Context, Coordinate) ([]HourlyEntry, error) { return nil, errNetwork }
	out := s.ResolveCity(ctx, paris)

	assert.NoError(t, out.Current)
	assert.ErrorIs(t, out.Hourly, ErrUpstreamFetchFailed)
	assert.NoError(t, out.Future)
	assert.True(t, out.Stale())

	after := s.View()
	assert.Equal(t, paris, after.City.Coordinate)
	assert.Equal(t, before.Hourly, after.Hourly)
	assert.NotEmpty(t, after.Staleness["hourly"].Error)
}

func TestSession_RefreshFutureIsIdempotent(t *testing.T) {
	src := workingSource(1700000000)
	s := newTestSession(src, SessionOptions{FutureCount: 4})
	ctx := context.Background()

	assert.ErrorIs(t, s.RefreshFuture(ctx), ErrNoCity)

	require.NoError(t, s.ResolveCity(ctx, london).Err())
	require.NoError(t, s.RefreshFuture(ctx))
	first := s.View().Future
	require.NoError(t, s.RefreshFuture(ctx))
	second := s.View().Future

	assert.Len(t, first, 4)
	assert.Equal(t, first, second)
	assert.Equal(t, 4, src.lastCount)
}

func TestSession_ToggleUnitRefetchesHourlyWithSameAnchor(t *testing.T) {
	src := workingSource(1700000000)
	s := newTestSession(src, SessionOptions{})
	ctx := context.Background()

	// Without a city only the unit changes.
	unit, err := s.ToggleUnit(ctx)
	require.NoError(t, err)
	assert.Equal(t, Fahrenheit, unit)
	assert.Equal(t, 0, src.count("hourly"))

	unit, err = s.ToggleUnit(ctx)
	require.NoError(t, err)
	assert.Equal(t, Celsius, unit)

	require.NoError(t, s.ResolveCity(ctx, london).Err())
	require.Equal(t, 1, src.count("hourly"))

	unit, err = s.ToggleUnit(ctx)
	require.NoError(t, err)
	assert.Equal(t, Fahrenheit, unit)
	assert.Equal(t, 2, src.count("hourly"))

	v := s.View()
	assert.Equal(t, Fahrenheit, v.Unit)
	assert.Equal(t, Fahrenheit, v.City.Unit)
	assert.Equal(t, "293.15 °F", v.Display)
	require.Len(t, v.Hourly, 2)
	assert.Equal(t, int64(1700000000), v.Hourly[0].Dt)
	assert.Equal(t, "290 °F", v.Hourly[0].Display)
	assert.Equal(t, "283.15 / 293.15 °F", v.Future[0].Range)

	// A later selection keeps the chosen unit.
	require.NoError(t, s.ResolveCity(ctx, paris).Err())
	assert.Equal(t, Fahrenheit, s.View().Unit)
}

func TestSession_ToggleUnitChangesUnitEvenWhenRefreshFails(t *testing.T) {
	src := workingSource(1700000000)
	s := newTestSession(src, SessionOptions{})
	ctx := context.Background()
	require.NoError(t, s.ResolveCity(ctx, london).Err())

	src.hourly = func(context.Context, Coordinate) ([]HourlyEntry, error) { return nil, errNetwork }
	unit, err := s.ToggleUnit(ctx)
	assert.ErrorIs(t, err, ErrUpstreamFetchFailed)
	assert.Equal(t, Fahrenheit, unit)
	assert.Len(t, s.View().Hourly, 2)
}

func TestSession_SupersededSelectionIsDropped(t *testing.T) {
	src := workingSource(1700000000)
	started := make(chan struct{})
	var once sync.Once
	src.current = func(ctx context.Context, coord Coordinate) (CurrentConditions, error) {
		if coord == london {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return CurrentConditions{}, ctx.Err()
		}
		return conditions("Paris", "FR", coord, 1700000000, 290), nil
	}
	s := newTestSession(src, SessionOptions{})
	ctx := context.Background()

	done := make(chan Outcome, 1)
	go func() { done <- s.ResolveCity(ctx, london) }()
	<-started

	require.NoError(t, s.ResolveCity(ctx, paris).Err())

	select {
	case out := <-done:
		assert.ErrorIs(t, out.Current, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded selection did not return")
	}

	v := s.View()
	require.NotNil(t, v.City)
	assert.Equal(t, "Paris", v.City.CityName)
	assert.Empty(t, v.Staleness["current"].Error)
}

func TestSession_LateResultOfOlderSelectionNeverOverwrites(t *testing.T) {
	src := workingSource(1700000000)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	src.current = func(_ context.Context, coord Coordinate) (CurrentConditions, error) {
		if coord == london {
			once.Do(func() { close(started) })
			<-release
			return conditions("London", "GB", coord, 1600000000, 280), nil
		}
		return conditions("Paris", "FR", coord, 1700000000, 290), nil
	}
	s := newTestSession(src, SessionOptions{})
	ctx := context.Background()

	done := make(chan Outcome, 1)
	go func() { done <- s.ResolveCity(ctx, london) }()
	<-started

	require.NoError(t, s.ResolveCity(ctx, paris).Err())
	close(release)

	out := <-done
	assert.True(t, errors.Is(out.Current, ErrSuperseded))

	v := s.View()
	assert.Equal(t, "Paris", v.City.CityName)
	assert.Equal(t, int64(1700000000), v.Anchor)
}

func TestSession_RefreshDuringNewSelectionKeepsNewCity(t *testing.T) {
	const londonDt, parisDt = int64(1600000000), int64(1700000000)

	parisStarted := make(chan struct{})
	releaseParis := make(chan struct{})
	refreshStarted := make(chan struct{}, 2)
	releaseLondon := make(chan struct{})
	var londonHourly, londonDaily atomic.Int32

	src := newFakeSource()
	src.current = func(_ context.Context, coord Coordinate) (CurrentConditions, error) {
		if coord == paris {
			close(parisStarted)
			<-releaseParis
			return conditions("Paris", "FR", coord, parisDt, 290), nil
		}
		return conditions("London", "GB", coord, londonDt, 280), nil
	}
	src.hourly = func(_ context.Context, coord Coordinate) ([]HourlyEntry, error) {
		if coord == paris {
			return hourlyAt(parisDt, parisDt+3600), nil
		}
		if londonHourly.Add(1) > 1 {
			refreshStarted <- struct{}{}
			<-releaseLondon
		}
		return hourlyAt(londonDt, londonDt+3600), nil
	}
	src.daily = func(_ context.Context, coord Coordinate, count int) ([]DailyEntry, error) {
		list := dailyList(count)
		if coord == paris {
			return list, nil
		}
		if londonDaily.Add(1) > 1 {
			refreshStarted <- struct{}{}
			<-releaseLondon
		}
		for i := range list {
			list[i].Dt = londonDt
		}
		return list, nil
	}

	s := newTestSession(src, SessionOptions{})
	ctx := context.Background()
	require.NoError(t, s.ResolveCity(ctx, london).Err())

	selected := make(chan Outcome, 1)
	go func() { selected <- s.ResolveCity(ctx, paris) }()
	<-parisStarted

	refreshed := make(chan error, 2)
	go func() {
		_, err := s.ToggleUnit(ctx)
		refreshed <- err
	}()
	go func() { refreshed <- s.RefreshFuture(ctx) }()
	<-refreshStarted
	<-refreshStarted

	close(releaseParis)
	require.NoError(t, (<-selected).Err())

	close(releaseLondon)
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-refreshed, ErrSuperseded)
	}

	v := s.View()
	require.NotNil(t, v.City)
	assert.Equal(t, "Paris", v.City.CityName)
	assert.Equal(t, parisDt, v.Anchor)
	got := make([]int64, 0, len(v.Hourly))
	for _, h := range v.Hourly {
		got = append(got, h.Dt)
	}
	assert.Equal(t, []int64{parisDt, parisDt + 3600}, got)
	require.NotEmpty(t, v.Future)
	assert.NotEqual(t, londonDt, v.Future[0].Dt)
	assert.Empty(t, v.Staleness["hourly"].Error)
	assert.Empty(t, v.Staleness["future"].Error)
}

func TestSession_Locate(t *testing.T) {
	src := workingSource(1700000000)
	s := newTestSession(src, SessionOptions{})
	ctx := context.Background()

	var gotOpts PositionOptions
	out, err := s.Locate(ctx, locatorFunc(func(_ context.Context, opts PositionOptions) (Coordinate, error) {
		gotOpts = opts
		return paris, nil
	}))
	require.NoError(t, err)
	require.NoError(t, out.Err())

	assert.Equal(t, DefaultPositionOptions, gotOpts)
	v := s.View()
	require.NotNil(t, v.DefaultCity)
	assert.Equal(t, paris, *v.DefaultCity)
	assert.Equal(t, paris, v.City.Coordinate)
}

func TestSession_LocateUnavailableLeavesStateUntouched(t *testing.T) {
	src := workingSource(1700000000)
	s := newTestSession(src, SessionOptions{Position: PositionOptions{Timeout: 20 * time.Millisecond}})
	ctx := context.Background()
	require.NoError(t, s.ResolveCity(ctx, london).Err())
	before := s.View()
	currentCalls := src.count("current")

	locators := map[string]Locator{
		"absent": nil,
		"denied": locatorFunc(func(context.Context, PositionOptions) (Coordinate, error) {
			return Coordinate{}, errors.New("user denied geolocation")
		}),
		"timeout": locatorFunc(func(ctx context.Context, _ PositionOptions) (Coordinate, error) {
			<-ctx.Done()
			return Coordinate{}, ctx.Err()
		}),
		"bad fix": locatorFunc(func(context.Context, PositionOptions) (Coordinate, error) {
			return Coordinate{Lat: 123, Lon: 0}, nil
		}),
	}
	for name, loc := range locators {
		t.Run(name, func(t *testing.T) {
			_, err := s.Locate(ctx, loc)
			assert.ErrorIs(t, err, ErrGeolocationUnavailable)
		})
	}

	assert.Equal(t, before, s.View())
	assert.Equal(t, currentCalls, src.count("current"))
}

func TestSession_SearchFailureKeepsCandidates(t *testing.T) {
	src := workingSource(1700000000)
	s := newTestSession(src, SessionOptions{})
	ctx := context.Background()

	_, err := s.Search(ctx, "Springfield", 0)
	require.NoError(t, err)

	src.geocode = func(context.Context, string, int) ([]GeocodeCandidate, error) { return nil, errNetwork }
	_, err = s.Search(ctx, "Springfield", 0)
	assert.ErrorIs(t, err, ErrUpstreamFetchFailed)
	assert.Len(t, s.View().Candidates, 3)

	_, err = s.Search(ctx, "", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSession_InvalidCoordinateIsRejected(t *testing.T) {
	src := workingSource(1700000000)
	s := newTestSession(src, SessionOptions{})

	out := s.ResolveCity(context.Background(), Coordinate{Lat: -91, Lon: 0})
	assert.ErrorIs(t, out.Current, ErrInvalidInput)
	assert.Nil(t, s.View().City)
	assert.Equal(t, 0, src.count("current"))
}

func TestSession_RefreshHourlyWithoutCity(t *testing.T) {
	s := newTestSession(workingSource(1700000000), SessionOptions{})
	assert.ErrorIs(t, s.RefreshHourly(context.Background()), ErrNoCity)
}
