package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/city-weather/internal/store"
	"github.com/i474232898/city-weather/internal/weather"
)

const anchorDt = int64(1700000000)

// stubSource answers every city with the same conditions.
type stubSource struct {
	failHourly bool
}

func (s *stubSource) Geocode(_ context.Context, query string, limit int) ([]weather.GeocodeCandidate, error) {
	if query == "Atlantis" {
		return nil, errors.New("upstream unavailable")
	}
	return []weather.GeocodeCandidate{
		{Name: query, Lat: 39.7817, Lon: -89.6501, StateCode: "IL", CountryCode: "US"},
		{Name: query, Lat: 37.2090, Lon: -93.2923, StateCode: "MO", CountryCode: "US"},
	}, nil
}

func (s *stubSource) Current(_ context.Context, coord weather.Coordinate) (weather.CurrentConditions, error) {
	var c weather.CurrentConditions
	c.Name = "Springfield"
	c.Sys.Country = "US"
	c.Coord = coord
	c.Dt = anchorDt
	c.Main.Temp = 293.15
	c.Weather = []weather.Condition{{ID: 800, Main: "Clear", Icon: "01d"}}
	return c, nil
}

func (s *stubSource) Hourly(context.Context, weather.Coordinate) ([]weather.HourlyEntry, error) {
	if s.failHourly {
		return nil, errors.New("hourly unavailable")
	}
	out := make([]weather.HourlyEntry, 0, 3)
	for i := -1; i < 2; i++ {
		var e weather.HourlyEntry
		e.Dt = anchorDt + int64(i)*3600
		e.Main.Temp = 290
		out = append(out, e)
	}
	return out, nil
}

func (s *stubSource) Daily(_ context.Context, _ weather.Coordinate, count int) ([]weather.DailyEntry, error) {
	out := make([]weather.DailyEntry, count)
	for i := range out {
		out[i].Dt = anchorDt + int64(i)*86400
		out[i].Temp.Min = 283.15
		out[i].Temp.Max = 293.15
	}
	return out, nil
}

func newTestApp(t *testing.T, src *stubSource, maxSessions int) *fiber.App {
	t.Helper()
	logger := zap.NewNop()
	agg := weather.NewAggregator(src, logger)
	resolver := weather.NewResolver(src, logger)
	sessions := store.NewMemoryStore(func(id string) *weather.Session {
		return weather.NewSession(id, agg, resolver, logger, weather.SessionOptions{})
	}, maxSessions)
	t.Cleanup(sessions.CloseAll)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	RegisterRoutes(app, sessions, logger)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func createSession(t *testing.T, app *fiber.App) string {
	t.Helper()
	code, body := do(t, app, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, code)
	id, ok := body["id"].(string)
	require.True(t, ok)
	return id
}

func TestSessions_CreateGetDelete(t *testing.T) {
	app := newTestApp(t, &stubSource{}, 0)
	id := createSession(t, app)

	code, body := do(t, app, http.MethodGet, "/api/v1/sessions/"+id, "")
	require.Equal(t, http.StatusOK, code)
	view := body["view"].(map[string]any)
	assert.Equal(t, id, view["id"])
	assert.Equal(t, string(weather.Celsius), view["unit"])
	assert.Nil(t, view["city"])

	code, _ = do(t, app, http.MethodDelete, "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, code)

	code, body = do(t, app, http.MethodGet, "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "session not found", body["error"])
}

func TestSessions_Full(t *testing.T) {
	app := newTestApp(t, &stubSource{}, 1)
	createSession(t, app)

	code, _ := do(t, app, http.MethodPost, "/api/v1/sessions", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestSessions_UnknownID(t *testing.T) {
	app := newTestApp(t, &stubSource{}, 0)

	for _, path := range []string{"/search", "/select", "/locate", "/unit/toggle"} {
		code, _ := do(t, app, http.MethodPost, "/api/v1/sessions/nope"+path, `{}`)
		assert.Equal(t, http.StatusNotFound, code, path)
	}
	code, _ := do(t, app, http.MethodDelete, "/api/v1/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSearchAndSelect(t *testing.T) {
	app := newTestApp(t, &stubSource{}, 0)
	id := createSession(t, app)
	base := "/api/v1/sessions/" + id

	code, body := do(t, app, http.MethodPost, base+"/search", `{"query":"Springfield"}`)
	require.Equal(t, http.StatusOK, code)
	candidates := body["candidates"].([]any)
	require.Len(t, candidates, 2)
	assert.Equal(t, "MO", candidates[1].(map[string]any)["stateCode"])

	code, body = do(t, app, http.MethodPost, base+"/select", `{"index":1}`)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["errors"])

	view := body["view"].(map[string]any)
	city := view["city"].(map[string]any)
	assert.Equal(t, "Springfield", city["cityName"])
	assert.Equal(t, "MO", city["stateCode"])
	assert.Equal(t, "US", city["countryCode"])
	assert.Equal(t, "20 °C", view["display"])
	assert.Equal(t, float64(anchorDt), view["anchor"])
	// the entry before the anchor is dropped
	assert.Len(t, view["hourly"], 2)
	assert.Len(t, view["future"], weather.DefaultFutureCount)
	assert.Empty(t, view["candidates"])
	assert.Equal(t, "", view["input"].(map[string]any)["cityName"])
}

func TestSearch_Validation(t *testing.T) {
	app := newTestApp(t, &stubSource{}, 0)
	base := "/api/v1/sessions/" + createSession(t, app)

	code, _ := do(t, app, http.MethodPost, base+"/search", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, app, http.MethodPost, base+"/search", `{"query":"Paris","limit":500}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, app, http.MethodPost, base+"/search", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSearch_FailureKeepsCandidates(t *testing.T) {
	app := newTestApp(t, &stubSource{}, 0)
	base := "/api/v1/sessions/" + createSession(t, app)

	code, _ := do(t, app, http.MethodPost, base+"/search", `{"query":"Springfield"}`)
	require.Equal(t, http.StatusOK, code)

	code, body := do(t, app, http.MethodPost, base+"/search", `{"query":"Atlantis"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["candidates"], 2)
	assert.Contains(t, body["errors"].(map[string]any), "search")
}

func TestSelect_Validation(t *testing.T) {
	app := newTestApp(t, &stubSource{}, 0)
	base := "/api/v1/sessions/" + createSession(t, app)

	tests := []struct {
		name string
		body string
	}{
		{"empty", `{}`},
		{"negative index", `{"index":-1}`},
		{"lat without lon", `{"lat":10}`},
		{"latitude out of range", `{"lat":91,"lon":0}`},
		{"index out of range", `{"index":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := do(t, app, http.MethodPost, base+"/select", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}
}

func TestSelect_Coordinate(t *testing.T) {
	app := newTestApp(t, &stubSource{}, 0)
	base := "/api/v1/sessions/" + createSession(t, app)

	code, body := do(t, app, http.MethodPost, base+"/select", `{"lat":48.8566,"lon":2.3522}`)
	require.Equal(t, http.StatusOK, code)
	city := body["view"].(map[string]any)["city"].(map[string]any)
	assert.Equal(t, 48.8566, city["lat"])
}

func TestSelect_PartialFailure(t *testing.T) {
	app := newTestApp(t, &stubSource{failHourly: true}, 0)
	base := "/api/v1/sessions/" + createSession(t, app)

	code, body := do(t, app, http.MethodPost, base+"/select", `{"lat":48.8566,"lon":2.3522}`)
	require.Equal(t, http.StatusOK, code)
	errs := body["errors"].(map[string]any)
	assert.Contains(t, errs, "hourly")
	assert.NotContains(t, errs, "current")
	assert.NotNil(t, body["view"].(map[string]any)["city"])
}

func TestLocate(t *testing.T) {
	app := newTestApp(t, &stubSource{}, 0)
	base := "/api/v1/sessions/" + createSession(t, app)

	code, body := do(t, app, http.MethodPost, base+"/locate", `{"denied":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["error"], "geolocation unavailable")

	code, _ = do(t, app, http.MethodPost, base+"/locate", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, body = do(t, app, http.MethodPost, base+"/locate", `{"lat":51.5072,"lon":-0.1276}`)
	require.Equal(t, http.StatusOK, code)
	view := body["view"].(map[string]any)
	assert.Equal(t, 51.5072, view["defaultCity"].(map[string]any)["lat"])
	assert.NotNil(t, view["city"])
}

func TestToggleUnit(t *testing.T) {
	app := newTestApp(t, &stubSource{}, 0)
	base := "/api/v1/sessions/" + createSession(t, app)

	code, body := do(t, app, http.MethodPost, base+"/unit/toggle", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(weather.Fahrenheit), body["view"].(map[string]any)["unit"])
	assert.Nil(t, body["errors"])

	code, _ = do(t, app, http.MethodPost, base+"/select", `{"lat":48.8566,"lon":2.3522}`)
	require.Equal(t, http.StatusOK, code)

	code, body = do(t, app, http.MethodPost, base+"/unit/toggle", "")
	require.Equal(t, http.StatusOK, code)
	view := body["view"].(map[string]any)
	assert.Equal(t, string(weather.Celsius), view["unit"])
	assert.Equal(t, "20 °C", view["display"])
}
