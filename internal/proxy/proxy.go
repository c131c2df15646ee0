package proxy

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Actions understood by the proxy.
const (
	ActionCityGeo       = "cityGeo"
	ActionMultiCityGeo  = "multiCityGeo"
	ActionCityWeather   = "cityWeather"
	ActionHourlyWeather = "hourlyWeather"
	ActionFutureWeather = "futureWeather"
)

// Error bodies returned to clients.
const (
	msgMissingQuery  = "Missing query parameter: q"
	msgInvalidAction = "Invalid action parameter"
	msgInvalidCoords = "Invalid coordinates"
	msgInvalidParams = "Invalid query parameters"
	msgUpstream      = "Failed to fetch weather data"
)

var validate = validator.New()

// Geocoder answers direct geocoding queries with the upstream JSON array.
type Geocoder interface {
	// Name identifies the provider in logs.
	Name() string
	DirectGeocode(ctx context.Context, q string, limit int) (json.RawMessage, error)
}

// Upstream is the weather provider behind the proxy.
type Upstream interface {
	Geocoder
	Current(ctx context.Context, lat, lon string) (json.RawMessage, error)
	Hourly(ctx context.Context, lat, lon string) (json.RawMessage, error)
	Daily(ctx context.Context, lat, lon string, cnt int) (json.RawMessage, error)
}

// Cache stores upstream payloads by request key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, payload []byte)
}

// Recorder receives proxy events for metrics.
type Recorder interface {
	ObserveUpstream(action string, err error)
	ObserveCache(action string, hit bool)
}

// Envelope wraps every successful response.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Proxy dispatches weather actions to the upstream provider.
type Proxy struct {
	upstream Upstream
	geocoder Geocoder
	cache    Cache
	recorder Recorder
	logger   *zap.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithGeocoder routes geocoding actions to g instead of the upstream provider.
func WithGeocoder(g Geocoder) Option {
	return func(p *Proxy) {
		if g != nil {
			p.geocoder = g
		}
	}
}

// WithCache enables response caching.
func WithCache(c Cache) Option {
	return func(p *Proxy) { p.cache = c }
}

// WithRecorder reports upstream and cache events to r.
func WithRecorder(r Recorder) Option {
	return func(p *Proxy) { p.recorder = r }
}

// New creates a Proxy.
func New(upstream Upstream, logger *zap.Logger, opts ...Option) *Proxy {
	p := &Proxy{upstream: upstream, geocoder: upstream, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	p.logger.Info("weather proxy configured",
		zap.String("upstream", upstream.Name()),
		zap.String("geocoder", p.geocoder.Name()))
	return p
}

type weatherQuery struct {
	Action string `query:"action"`
	Q      string `query:"q"`
	Limit  int    `query:"limit" validate:"gte=0,lte=50"`
	Lat    string `query:"lat"`
	Lon    string `query:"lon"`
	Cnt    int    `query:"cnt" validate:"gte=0,lte=16"`
}

type coordQuery struct {
	Lat string `validate:"required,latitude"`
	Lon string `validate:"required,longitude"`
}

// Register mounts the proxy on router at /weather.
func (p *Proxy) Register(router fiber.Router) {
	router.Get("/weather", p.Handle)
}

// Handle serves GET /weather?action=...
func (p *Proxy) Handle(c *fiber.Ctx) error {
	var q weatherQuery
	if err := c.QueryParser(&q); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, msgInvalidParams)
	}
	if err := validate.Struct(q); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, msgInvalidParams)
	}

	ctx := c.UserContext()

	switch q.Action {
	case ActionCityGeo, ActionMultiCityGeo:
		if q.Q == "" {
			return errorJSON(c, fiber.StatusBadRequest, msgMissingQuery)
		}
		key := cacheKey(q.Action, q.Q, strconv.Itoa(q.Limit))
		return p.serve(c, q.Action, p.geocoder.Name(), key, func() (json.RawMessage, error) {
			return p.geocoder.DirectGeocode(ctx, q.Q, q.Limit)
		})

	case ActionCityWeather, ActionHourlyWeather, ActionFutureWeather:
		if err := validate.Struct(coordQuery{Lat: q.Lat, Lon: q.Lon}); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, msgInvalidCoords)
		}
		key := cacheKey(q.Action, q.Lat, q.Lon, strconv.Itoa(q.Cnt))
		return p.serve(c, q.Action, p.upstream.Name(), key, func() (json.RawMessage, error) {
			switch q.Action {
			case ActionCityWeather:
				return p.upstream.Current(ctx, q.Lat, q.Lon)
			case ActionHourlyWeather:
				return p.upstream.Hourly(ctx, q.Lat, q.Lon)
			default:
				return p.upstream.Daily(ctx, q.Lat, q.Lon, q.Cnt)
			}
		})

	default:
		return errorJSON(c, fiber.StatusBadRequest, msgInvalidAction)
	}
}

func (p *Proxy) serve(c *fiber.Ctx, action, provider, key string, fetch func() (json.RawMessage, error)) error {
	ctx := c.UserContext()

	if p.cache != nil {
		if payload, ok := p.cache.Get(ctx, key); ok {
			p.observeCache(action, true)
			return c.JSON(Envelope{Type: responseType(action), Data: payload})
		}
		p.observeCache(action, false)
	}

	payload, err := fetch()
	if p.recorder != nil {
		p.recorder.ObserveUpstream(action, err)
	}
	if err != nil {
		p.logger.Error("weather api error",
			zap.String("action", action),
			zap.String("provider", provider),
			zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, msgUpstream)
	}

	if p.cache != nil {
		p.cache.Set(ctx, key, payload)
	}
	return c.JSON(Envelope{Type: responseType(action), Data: payload})
}

func (p *Proxy) observeCache(action string, hit bool) {
	if p.recorder != nil {
		p.recorder.ObserveCache(action, hit)
	}
}

// responseType keeps the historical envelope type of multiCityGeo.
func responseType(action string) string {
	if action == ActionMultiCityGeo {
		return "multiCityGeoRes"
	}
	return action
}

func cacheKey(action string, parts ...string) string {
	key := "weather:" + action
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
