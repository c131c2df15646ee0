package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/i474232898/city-weather/internal/geolocation"
	"github.com/i474232898/city-weather/internal/store"
	"github.com/i474232898/city-weather/internal/weather"
)

var validate = validator.New()

// SessionStore is the session registry used by the handlers.
type SessionStore interface {
	Create() (*weather.Session, error)
	Get(id string) (*weather.Session, error)
	Delete(id string) error
}

// RegisterRoutes wires the session handlers into the router under /api/v1.
func RegisterRoutes(router fiber.Router, sessions SessionStore, logger *zap.Logger) {
	v1 := router.Group("/api/v1")

	v1.Post("/sessions", func(c *fiber.Ctx) error {
		sess, err := sessions.Create()
		if err != nil {
			if errors.Is(err, store.ErrFull) {
				return fiber.NewError(fiber.StatusServiceUnavailable, "too many sessions")
			}
			return err
		}
		logger.Info("session created", zap.String("session", sess.ID()))
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": sess.ID()})
	})

	v1.Delete("/sessions/:id", func(c *fiber.Ctx) error {
		if err := sessions.Delete(c.Params("id")); err != nil {
			return mapError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Get("/sessions/:id", func(c *fiber.Ctx) error {
		sess, err := sessions.Get(c.Params("id"))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(viewResponse{View: sess.View()})
	})

	v1.Post("/sessions/:id/search", func(c *fiber.Ctx) error {
		sess, err := sessions.Get(c.Params("id"))
		if err != nil {
			return mapError(err)
		}
		var req searchRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		candidates, err := sess.Search(c.UserContext(), req.Query, req.Limit)
		if err != nil {
			if errors.Is(err, weather.ErrInvalidInput) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			// The previous candidates stay selectable.
			return c.JSON(searchResponse{
				Candidates: sess.View().Candidates,
				Errors:     map[string]string{"search": err.Error()},
			})
		}
		return c.JSON(searchResponse{Candidates: candidates})
	})

	v1.Post("/sessions/:id/select", func(c *fiber.Ctx) error {
		sess, err := sessions.Get(c.Params("id"))
		if err != nil {
			return mapError(err)
		}
		var req selectRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		var out weather.Outcome
		if req.Index != nil {
			out, err = sess.SelectCandidate(c.UserContext(), *req.Index)
			if err != nil {
				return mapError(err)
			}
		} else {
			out = sess.ResolveCity(c.UserContext(), weather.Coordinate{Lat: *req.Lat, Lon: *req.Lon})
		}
		return c.JSON(newViewResponse(sess, out))
	})

	v1.Post("/sessions/:id/locate", func(c *fiber.Ctx) error {
		sess, err := sessions.Get(c.Params("id"))
		if err != nil {
			return mapError(err)
		}
		var req locateRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		out, err := sess.Locate(c.UserContext(), geolocation.Reported{Lat: req.Lat, Lon: req.Lon, Denied: req.Denied})
		if err != nil {
			return mapError(err)
		}
		return c.JSON(newViewResponse(sess, out))
	})

	v1.Post("/sessions/:id/unit/toggle", func(c *fiber.Ctx) error {
		sess, err := sessions.Get(c.Params("id"))
		if err != nil {
			return mapError(err)
		}
		resp := viewResponse{}
		if _, err := sess.ToggleUnit(c.UserContext()); err != nil && !errors.Is(err, weather.ErrSuperseded) {
			resp.Errors = map[string]string{"hourly": err.Error()}
		}
		resp.View = sess.View()
		return c.JSON(resp)
	})
}

type viewResponse struct {
	View   weather.View      `json:"view"`
	Errors map[string]string `json:"errors,omitempty"`
}

func newViewResponse(sess *weather.Session, out weather.Outcome) viewResponse {
	resp := viewResponse{View: sess.View()}
	if out.Stale() {
		resp.Errors = out.Errors()
	}
	return resp
}

type searchRequest struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit" validate:"gte=0,lte=50"`
}

type searchResponse struct {
	Candidates []weather.GeocodeCandidate `json:"candidates"`
	Errors     map[string]string          `json:"errors,omitempty"`
}

// selectRequest picks either a candidate index or an explicit coordinate.
type selectRequest struct {
	Index *int     `json:"index" validate:"required_without_all=Lat Lon,omitempty,gte=0"`
	Lat   *float64 `json:"lat" validate:"required_with=Lon,omitempty,latitude"`
	Lon   *float64 `json:"lon" validate:"required_with=Lat,omitempty,longitude"`
}

// locateRequest is the device-reported position. Missing coordinates mean no fix.
type locateRequest struct {
	Lat    *float64 `json:"lat" validate:"omitempty,latitude"`
	Lon    *float64 `json:"lon" validate:"omitempty,longitude"`
	Denied bool     `json:"denied"`
}

func bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	case errors.Is(err, weather.ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, weather.ErrGeolocationUnavailable):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}
