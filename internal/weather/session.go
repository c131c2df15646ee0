package weather

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PositionOptions mirrors the device geolocation request options.
type PositionOptions struct {
	HighAccuracy bool          `json:"highAccuracy"`
	MaximumAge   time.Duration `json:"maximumAge"`
	Timeout      time.Duration `json:"timeout"`
}

// DefaultPositionOptions requests a fresh, high-accuracy fix within five seconds.
var DefaultPositionOptions = PositionOptions{
	HighAccuracy: true,
	MaximumAge:   0,
	Timeout:      5 * time.Second,
}

// Locator acquires the device position.
type Locator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Coordinate, error)
}

// SessionOptions tunes a Session.
type SessionOptions struct {
	FutureCount  int
	GeocodeLimit int
	Position     PositionOptions
}

// Staleness records when a view was last updated and why its latest refresh failed, if it did.
type Staleness struct {
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Session is the state of one user: the selected city and its derived views.
// All methods are safe for concurrent use; remote calls never run with the lock held.
type Session struct {
	id       string
	agg      *Aggregator
	resolver *Resolver
	logger   *zap.Logger
	opts     SessionOptions

	mu          sync.RWMutex
	detail      CityDetail
	selected    bool
	anchor      int64
	// target is the coordinate the committed view was fetched for.
	target      Coordinate
	defaultCity *Coordinate
	input       InputField
	candidates  []GeocodeCandidate
	rawHourly   []HourlyEntry
	hourly      []HourlyEntry
	future      []DailyEntry
	staleness   map[string]Staleness
	generation  uint64
	cancel      context.CancelFunc
	createdAt   time.Time
	lastSeen    time.Time
}

// NewSession creates an empty session. Zero option fields take their defaults.
func NewSession(id string, agg *Aggregator, resolver *Resolver, logger *zap.Logger, opts SessionOptions) *Session {
	if opts.FutureCount <= 0 {
		opts.FutureCount = DefaultFutureCount
	}
	if opts.GeocodeLimit <= 0 {
		opts.GeocodeLimit = DefaultGeocodeLimit
	}
	if opts.Position.Timeout <= 0 {
		opts.Position = DefaultPositionOptions
	}
	now := time.Now()
	return &Session{
		id:        id,
		agg:       agg,
		resolver:  resolver,
		logger:    logger.With(zap.String("session", id)),
		opts:      opts,
		detail:    NewCityDetail(),
		staleness: make(map[string]Staleness),
		createdAt: now,
		lastSeen:  now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Touch marks the session as used at t.
func (s *Session) Touch(t time.Time) {
	s.mu.Lock()
	s.lastSeen = t
	s.mu.Unlock()
}

// LastSeen returns the last time the session was used.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Anchor returns the anchor timestamp of the selected city, or 0 before the first selection.
func (s *Session) Anchor() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anchor
}

// Search resolves query and replaces the candidate list on success.
// On failure the previous candidates are kept and the error is returned.
func (s *Session) Search(ctx context.Context, query string, limit int) ([]GeocodeCandidate, error) {
	if limit <= 0 {
		limit = s.opts.GeocodeLimit
	}

	s.mu.Lock()
	s.input = InputField{CityName: query}
	s.mu.Unlock()

	candidates, err := s.resolver.Resolve(ctx, query, limit)
	if err != nil {
		s.logger.Warn("city search failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	s.candidates = candidates
	s.mu.Unlock()

	return append([]GeocodeCandidate(nil), candidates...), nil
}

// SelectCandidate resolves the candidate at index of the current list.
func (s *Session) SelectCandidate(ctx context.Context, index int) (Outcome, error) {
	s.mu.Lock()
	if index < 0 || index >= len(s.candidates) {
		n := len(s.candidates)
		s.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: candidate index %d out of range [0,%d)", ErrInvalidInput, index, n)
	}
	c := s.candidates[index]
	s.input = InputField{CityName: c.Name, StateCode: c.StateCode, CountryCode: c.CountryCode}
	s.mu.Unlock()

	return s.resolve(ctx, c.Coordinate(), &c), nil
}

// ResolveCity fetches current weather first, then hourly and future weather for coord.
// Hourly data is filtered with the anchor of this same fetch. Failed parts keep their
// last-good value; input and candidates are cleared whatever the result.
func (s *Session) ResolveCity(ctx context.Context, coord Coordinate) Outcome {
	return s.resolve(ctx, coord, nil)
}

// Locate acquires the device position and resolves the city there.
// A geolocation failure leaves the state untouched and is returned as an error.
func (s *Session) Locate(ctx context.Context, locator Locator) (Outcome, error) {
	if locator == nil {
		return Outcome{}, fmt.Errorf("%w: no locator", ErrGeolocationUnavailable)
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.Position.Timeout)
	pos, err := locator.CurrentPosition(pctx, s.opts.Position)
	cancel()
	if err == nil {
		err = pos.Validate()
	}
	if err != nil {
		if !errors.Is(err, ErrGeolocationUnavailable) {
			err = fmt.Errorf("%w: %v", ErrGeolocationUnavailable, err)
		}
		s.logger.Warn("geolocation failed", zap.Error(err))
		return Outcome{}, err
	}

	s.mu.Lock()
	s.defaultCity = &pos
	s.mu.Unlock()

	return s.resolve(ctx, pos, nil), nil
}

// ToggleUnit flips the display unit and re-fetches the hourly view for the selected city.
// The unit changes even when the refresh fails.
func (s *Session) ToggleUnit(ctx context.Context) (Unit, error) {
	s.mu.Lock()
	s.detail.Unit = ToggleUnit(s.detail.Unit)
	unit := s.detail.Unit
	s.mu.Unlock()

	err := s.RefreshHourly(ctx)
	if errors.Is(err, ErrNoCity) {
		return unit, nil
	}
	return unit, err
}

// RefreshHourly re-fetches and re-filters the hourly view with the current anchor.
func (s *Session) RefreshHourly(ctx context.Context) error {
	s.mu.RLock()
	gen, coord, anchor, ok := s.generation, s.target, s.anchor, s.selected
	s.mu.RUnlock()
	if !ok {
		return ErrNoCity
	}
	return s.loadHourly(ctx, gen, coord, anchor)
}

// RefreshFuture re-fetches the daily list for the selected city.
func (s *Session) RefreshFuture(ctx context.Context) error {
	s.mu.RLock()
	gen, coord, ok := s.generation, s.target, s.selected
	s.mu.RUnlock()
	if !ok {
		return ErrNoCity
	}
	return s.loadFuture(ctx, gen, coord)
}

// Close cancels any in-flight selection.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
}

func (s *Session) resolve(ctx context.Context, coord Coordinate, hint *GeocodeCandidate) Outcome {
	if err := coord.Validate(); err != nil {
		s.clearInput()
		return Outcome{Current: err, Hourly: err, Future: err}
	}

	ctx, gen := s.begin(ctx)
	defer s.finish(gen)

	upd, err := s.agg.FetchCurrent(ctx, coord)
	s.clearInput()
	if err != nil {
		err = s.fail(gen, nil, "current", err)
		skipped := fmt.Errorf("not fetched: %w", err)
		return Outcome{Current: err, Hourly: skipped, Future: skipped}
	}

	if hint != nil {
		if upd.StateCode == "" {
			upd.StateCode = hint.StateCode
		}
		if upd.CountryCode == "" {
			upd.CountryCode = hint.CountryCode
		}
	}

	if !s.commitCurrent(gen, coord, upd) {
		return Outcome{Current: ErrSuperseded, Hourly: ErrSuperseded, Future: ErrSuperseded}
	}

	var (
		wg  sync.WaitGroup
		out Outcome
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.Hourly = s.loadHourly(ctx, gen, coord, upd.Anchor)
	}()
	go func() {
		defer wg.Done()
		out.Future = s.loadFuture(ctx, gen, coord)
	}()
	wg.Wait()

	s.logger.Info("city resolved",
		zap.String("city", upd.CityName),
		zap.String("country", upd.CountryCode),
		zap.Int64("anchor", upd.Anchor),
		zap.Bool("stale", out.Stale()))

	return out
}

// begin starts a new selection: the previous one is cancelled and its late results dropped.
func (s *Session) begin(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	s.cancel = cancel
	return ctx, s.generation
}

func (s *Session) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) clearInput() {
	s.mu.Lock()
	s.candidates = nil
	s.input = InputField{}
	s.mu.Unlock()
}

func (s *Session) commitCurrent(gen uint64, coord Coordinate, upd CityDetailUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.detail = upd.Apply(s.detail)
	s.anchor = upd.Anchor
	s.target = coord
	s.selected = true
	s.staleness["current"] = Staleness{UpdatedAt: time.Now()}
	return true
}

func (s *Session) loadHourly(ctx context.Context, gen uint64, coord Coordinate, anchor int64) error {
	raw, err := s.agg.FetchHourly(ctx, coord)
	if err != nil {
		return s.fail(gen, &coord, "hourly", err)
	}
	view := FilterHourly(raw, anchor)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outdated(gen, coord) || s.anchor != anchor {
		return ErrSuperseded
	}
	s.rawHourly = raw
	s.hourly = view
	s.staleness["hourly"] = Staleness{UpdatedAt: time.Now()}
	return nil
}

func (s *Session) loadFuture(ctx context.Context, gen uint64, coord Coordinate) error {
	list, err := s.agg.FetchFuture(ctx, coord, s.opts.FutureCount)
	if err != nil {
		return s.fail(gen, &coord, "future", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outdated(gen, coord) {
		return ErrSuperseded
	}
	s.future = list
	s.staleness["future"] = Staleness{UpdatedAt: time.Now()}
	return nil
}

// outdated reports whether a result fetched for coord under gen no longer belongs to the view.
// A refresh started while a newer selection is in flight carries that selection's generation,
// so the committed target is checked too. Callers hold s.mu.
func (s *Session) outdated(gen uint64, coord Coordinate) bool {
	return s.generation != gen || s.target != coord
}

// fail records err against part unless the selection was superseded meanwhile.
// coord is nil for the current fetch, which runs before the view has a target.
func (s *Session) fail(gen uint64, coord *Coordinate, part string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || (coord != nil && s.target != *coord) {
		s.logger.Debug("dropping result of superseded selection", zap.String("part", part), zap.Error(err))
		return ErrSuperseded
	}
	st := s.staleness[part]
	st.Error = err.Error()
	s.staleness[part] = st
	s.logger.Warn("weather fetch failed, keeping last good value", zap.String("part", part), zap.Error(err))
	return err
}
