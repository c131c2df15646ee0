package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultOpenMeteoGeocodingURL is the keyless Open-Meteo geocoding search endpoint.
const DefaultOpenMeteoGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"

// OpenMeteoGeocoder resolves city names with the Open-Meteo geocoding API and answers
// in the OpenWeatherMap direct-geocoding shape.
type OpenMeteoGeocoder struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewOpenMeteoGeocoder(client *http.Client, baseURL string, logger *zap.Logger) *OpenMeteoGeocoder {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoGeocodingURL
	}
	return &OpenMeteoGeocoder{
		name:    "openmeteo",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newBreaker("openmeteo-geocoding", logger),
		logger:  logger,
	}
}

func (p *OpenMeteoGeocoder) Name() string {
	return p.name
}

func (p *OpenMeteoGeocoder) DirectGeocode(ctx context.Context, q string, limit int) (json.RawMessage, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("name", q)
		values.Set("language", "en")
		values.Set("format", "json")
		if limit > 0 {
			values.Set("count", strconv.Itoa(limit))
		}
		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	body, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, p.logger, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%s geocoding: %w", p.name, err)
	}

	var payload struct {
		Results []struct {
			Name        string  `json:"name"`
			Latitude    float64 `json:"latitude"`
			Longitude   float64 `json:"longitude"`
			CountryCode string  `json:"country_code"`
			Admin1      string  `json:"admin1"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%s geocoding: %w", p.name, err)
	}

	out := make([]directGeocodeResult, 0, len(payload.Results))
	for _, r := range payload.Results {
		out = append(out, directGeocodeResult{
			Name:    r.Name,
			Lat:     r.Latitude,
			Lon:     r.Longitude,
			Country: r.CountryCode,
			State:   r.Admin1,
		})
	}
	return json.Marshal(out)
}

// directGeocodeResult is one item of the OpenWeatherMap direct geocoding response.
type directGeocodeResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
}
