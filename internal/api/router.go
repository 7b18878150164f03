// Package api serves the admin HTTP surface: health, live sessions, the
// export journal, latest predictions and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"indlink/internal/link"
	"indlink/internal/metrics"
	"indlink/internal/model"
)

// PredictionReader looks up the latest prediction for an instrument.
type PredictionReader interface {
	Latest(ctx context.Context, instrument string) (*model.Prediction, error)
}

// Deps are the components the router reads from. Nil Journal or
// Predictions disable their endpoints with 503.
type Deps struct {
	Registry    *link.Registry
	Journal     model.ExportJournal
	Predictions PredictionReader
	Health      *metrics.HealthStatus
	Gatherer    prometheus.Gatherer
	Log         zerolog.Logger
}

// ExportsRequest is the query of GET /api/v1/exports.
type ExportsRequest struct {
	Limit int `query:"limit" default:"50" validate:"min=1,max=1000"`
}

type handler struct {
	deps Deps
}

// NewRouter builds the admin router.
func NewRouter(d Deps) *echo.Echo {
	if d.Registry == nil {
		d.Registry = link.NewRegistry()
	}
	if d.Health == nil {
		d.Health = metrics.NewHealthStatus()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(recoverer(d.Log), requestLogger(d.Log))

	h := &handler{deps: d}
	e.GET("/healthz", h.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	g := e.Group("/api/v1")
	g.GET("/sessions", h.sessions)
	g.GET("/sessions/:id", h.session)
	g.GET("/exports", h.exports)
	g.GET("/predictions/:instrument", h.prediction)
	return e
}

func (h *handler) health(c echo.Context) error {
	rep, code := h.deps.Health.Report()
	return c.JSON(code, rep)
}

func (h *handler) sessions(c echo.Context) error {
	return ok(c, h.deps.Registry.List())
}

func (h *handler) session(c echo.Context) error {
	info, found := h.deps.Registry.Get(c.Param("id"))
	if !found {
		return notFound(c, "session")
	}
	return ok(c, info)
}

func (h *handler) exports(c echo.Context) error {
	if h.deps.Journal == nil {
		return respond(c, http.StatusServiceUnavailable, "export journal disabled")
	}
	req := &ExportsRequest{}
	if verrs := bindQuery(c, req); verrs != nil {
		return respond(c, http.StatusBadRequest, verrs)
	}
	recs, err := h.deps.Journal.RecentExports(req.Limit)
	if err != nil {
		h.deps.Log.Error().Err(err).Msg("list exports")
		return internalError(c)
	}
	if recs == nil {
		recs = []model.ExportRecord{}
	}
	return ok(c, recs)
}

func (h *handler) prediction(c echo.Context) error {
	if h.deps.Predictions == nil {
		return respond(c, http.StatusServiceUnavailable, "prediction store disabled")
	}
	inst := strings.ToLower(c.Param("instrument"))
	pred, err := h.deps.Predictions.Latest(c.Request().Context(), inst)
	if err != nil {
		h.deps.Log.Error().Err(err).Str("instrument", inst).Msg("latest prediction")
		return internalError(c)
	}
	if pred == nil {
		return notFound(c, "prediction")
	}
	return ok(c, pred)
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			log.Debug().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote", req.RemoteAddr).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("http request")
			return err
		}
	}
}

func recoverer(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("panic", fmt.Sprint(r)).
						Bytes("stack", debug.Stack()).
						Msg("http handler panic")
					err = internalError(c)
				}
			}()
			return next(c)
		}
	}
}
