package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned before any network call for empty queries or bad coordinates.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamFetchFailed wraps network failures and non-2xx proxy responses.
	ErrUpstreamFetchFailed = errors.New("upstream fetch failed")
	// ErrGeolocationUnavailable is returned when no position could be acquired.
	ErrGeolocationUnavailable = errors.New("geolocation unavailable")
	// ErrNoCity is returned by refresh operations when no city has been selected yet.
	ErrNoCity = errors.New("no city selected")
	// ErrSuperseded marks results dropped because a newer selection started.
	ErrSuperseded = errors.New("selection superseded")
)

func upstreamErr(op string, err error) error {
	if errors.Is(err, ErrUpstreamFetchFailed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUpstreamFetchFailed, err)
}

// Outcome reports the result of each part of a city resolution.
// A nil field means the part was committed; a non-nil one means the view kept its last-good value.
type Outcome struct {
	Current error
	Hourly  error
	Future  error
}

// Stale reports whether any part failed to update.
func (o Outcome) Stale() bool {
	return o.Current != nil || o.Hourly != nil || o.Future != nil
}

// Err joins the errors of all failed parts.
func (o Outcome) Err() error {
	return errors.Join(o.Current, o.Hourly, o.Future)
}

// Errors returns the failed parts keyed by view name.
func (o Outcome) Errors() map[string]string {
	out := make(map[string]string)
	if o.Current != nil {
		out["current"] = o.Current.Error()
	}
	if o.Hourly != nil {
		out["hourly"] = o.Hourly.Error()
	}
	if o.Future != nil {
		out["future"] = o.Future.Error()
	}
	return out
}
