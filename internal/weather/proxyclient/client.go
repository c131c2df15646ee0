// Package proxyclient implements weather.Source against the weather proxy.
// The client never sees provider credentials.
package proxyclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/i474232898/city-weather/internal/weather"
)

const weatherEndpoint = "/api/weather"

// Config configures the proxy client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// Client talks to the proxy over HTTP.
type Client struct {
	client *resty.Client
	logger *zap.Logger
}

var _ weather.Source = (*Client)(nil)

// New creates a Client. Retries only cover transport errors and 5xx/429 answers.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 300 * time.Millisecond
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(4 * cfg.RetryWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == 429 || code >= 500
		})

	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Debug("proxy response",
			zap.String("url", resp.Request.URL),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("duration", resp.Time()),
		)
		return nil
	})

	return &Client{client: client, logger: logger}
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type geocodeItem struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

type listPayload[T any] struct {
	List []T `json:"list"`
}

func (c *Client) Geocode(ctx context.Context, query string, limit int) ([]weather.GeocodeCandidate, error) {
	action := "multiCityGeo"
	if limit == 1 {
		action = "cityGeo"
	}
	params := map[string]string{"action": action, "q": query}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	var items []geocodeItem
	if err := c.get(ctx, params, &items); err != nil {
		return nil, err
	}

	out := make([]weather.GeocodeCandidate, 0, len(items))
	for _, it := range items {
		out = append(out, weather.GeocodeCandidate{
			Name:        it.Name,
			Lat:         it.Lat,
			Lon:         it.Lon,
			StateCode:   it.State,
			CountryCode: it.Country,
		})
	}
	return out, nil
}

func (c *Client) Current(ctx context.Context, coord weather.Coordinate) (weather.CurrentConditions, error) {
	var cur weather.CurrentConditions
	err := c.get(ctx, coordParams("cityWeather", coord), &cur)
	return cur, err
}

func (c *Client) Hourly(ctx context.Context, coord weather.Coordinate) ([]weather.HourlyEntry, error) {
	var payload listPayload[weather.HourlyEntry]
	if err := c.get(ctx, coordParams("hourlyWeather", coord), &payload); err != nil {
		return nil, err
	}
	return payload.List, nil
}

func (c *Client) Daily(ctx context.Context, coord weather.Coordinate, count int) ([]weather.DailyEntry, error) {
	params := coordParams("futureWeather", coord)
	if count > 0 {
		params["cnt"] = strconv.Itoa(count)
	}
	var payload listPayload[weather.DailyEntry]
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, err
	}
	return payload.List, nil
}

func (c *Client) get(ctx context.Context, params map[string]string, out any) error {
	action := params["action"]

	var env envelope
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&env).
		Get(weatherEndpoint)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %v", action, weather.ErrUpstreamFetchFailed, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%s: %w: status %d: %s", action, weather.ErrUpstreamFetchFailed, resp.StatusCode(), errorMessage(resp))
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("%s: %w: empty response", action, weather.ErrUpstreamFetchFailed)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: %w: decode: %v", action, weather.ErrUpstreamFetchFailed, err)
	}
	return nil
}

func coordParams(action string, coord weather.Coordinate) map[string]string {
	return map[string]string{
		"action": action,
		"lat":    strconv.FormatFloat(coord.Lat, 'f', -1, 64),
		"lon":    strconv.FormatFloat(coord.Lon, 'f', -1, 64),
	}
}

func errorMessage(resp *resty.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return body.Error
	}
	return resp.Status()
}
