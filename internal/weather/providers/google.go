package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"
	"go.uber.org/zap"
)

// geocoder keeps its API key in a package variable.
var googleMu sync.Mutex

// GoogleGeocoder resolves city names with the Google Geocoding API. Google returns a
// single best match, so at most one candidate is produced.
type GoogleGeocoder struct {
	name   string
	apiKey string
	logger *zap.Logger
}

func NewGoogleGeocoder(apiKey string, logger *zap.Logger) *GoogleGeocoder {
	return &GoogleGeocoder{name: "google", apiKey: apiKey, logger: logger}
}

func (p *GoogleGeocoder) Name() string {
	return p.name
}

func (p *GoogleGeocoder) DirectGeocode(ctx context.Context, q string, limit int) (json.RawMessage, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("google geocoder api key is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		candidates []directGeocodeResult
		err        error
	}
	done := make(chan result, 1)

	go func() {
		googleMu.Lock()
		defer googleMu.Unlock()
		geocoder.ApiKey = p.apiKey

		loc, err := geocoder.Geocoding(geocoder.Address{City: q})
		if err != nil {
			done <- result{err: err}
			return
		}
		r := directGeocodeResult{Name: q, Lat: loc.Latitude, Lon: loc.Longitude}

		addresses, err := geocoder.GeocodingReverse(loc)
		if err != nil {
			p.logger.Debug("google reverse lookup failed", zap.String("query", q), zap.Error(err))
		} else if len(addresses) > 0 {
			a := addresses[0]
			if a.City != "" {
				r.Name = a.City
			}
			r.State = a.State
			r.Country = a.Country
		}
		done <- result{candidates: []directGeocodeResult{r}}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%s geocoding: %w", p.name, res.err)
		}
		if limit <= 0 {
			limit = len(res.candidates)
		}
		if len(res.candidates) > limit {
			res.candidates = res.candidates[:limit]
		}
		return json.Marshal(res.candidates)
	}
}
