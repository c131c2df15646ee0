package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultWeatherAPISearchURL is the WeatherAPI.com location search endpoint.
const DefaultWeatherAPISearchURL = "https://api.weatherapi.com/v1/search.json"

// WeatherAPIGeocoder resolves city names with the WeatherAPI.com search API and answers
// in the OpenWeatherMap direct-geocoding shape.
type WeatherAPIGeocoder struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewWeatherAPIGeocoder(client *http.Client, apiKey, baseURL string, logger *zap.Logger) *WeatherAPIGeocoder {
	if baseURL == "" {
		baseURL = DefaultWeatherAPISearchURL
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weatherapi",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &WeatherAPIGeocoder{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
		logger:  logger,
	}
}

func (p *WeatherAPIGeocoder) Name() string {
	return p.name
}

func (p *WeatherAPIGeocoder) DirectGeocode(ctx context.Context, q string, limit int) (json.RawMessage, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi api key is not configured")
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		// WeatherAPI uses "q" for the free-text location.
		values.Set("q", strings.TrimSpace(q))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	body, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, p.logger, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%s geocoding: %w", p.name, err)
	}

	var payload []struct {
		Name    string  `json:"name"`
		Region  string  `json:"region"`
		Country string  `json:"country"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%s geocoding: %w", p.name, err)
	}

	out := make([]directGeocodeResult, 0, len(payload))
	for _, r := range payload {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, directGeocodeResult{
			Name:    r.Name,
			Lat:     r.Lat,
			Lon:     r.Lon,
			Country: r.Country,
			State:   r.Region,
		})
	}
	return json.Marshal(out)
}
