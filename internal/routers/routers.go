// Package routers registers the filter's routes on echo
package routers

import (
	"net/http"
	"net/url"

	"inference-filter/internal/engine"
	"inference-filter/internal/filter"
	"inference-filter/internal/host"
	"inference-filter/internal/middleware"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ModelInfo is the static part of the GET /v1/model answer.
type ModelInfo struct {
	Model            string `json:"model"`
	Task             string `json:"task"`
	Layout           string `json:"layout,omitempty"`
	InputSource      string `json:"input_source"`
	LabelHeader      string `json:"label_header"`
	ConfidenceHeader string `json:"confidence_header"`
	Labels           int    `json:"labels"`
}

type modelResponse struct {
	ModelInfo
	Inputs  []engine.IOInfo `json:"inputs"`
	Outputs []engine.IOInfo `json:"outputs"`
}

type AdminConfig struct {
	MetricsAPIKey string
	Info          ModelInfo
	Handle        *engine.Handle
}

func RegisterAdminRoutes(e *echo.Echo, cfg AdminConfig, log *zap.SugaredLogger) {
	e.GET("/ping", func(c echo.Context) error {
		return c.String(200, "")
	})
	if cfg.MetricsAPIKey == "" {
		log.Warn("No metrics api key set, /metrics rejects every request")
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.NewAPIKeyMiddleware(cfg.MetricsAPIKey))
	e.GET("/v1/model", func(c echo.Context) error {
		eng, err := cfg.Handle.Acquire()
		if err != nil {
			log.Errorw("Model unavailable", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "model unavailable"})
		}
		defer cfg.Handle.Release()
		return c.JSON(http.StatusOK, modelResponse{
			ModelInfo: cfg.Info,
			Inputs:    eng.Inputs(),
			Outputs:   eng.Outputs(),
		})
	})
}

// RegisterFilterRoutes sends every other request through the filter. With
// no upstreams the filter answers locally.
func RegisterFilterRoutes(e *echo.Echo, f *filter.Factory, upstreams []*url.URL, chunkSize int, log *zap.SugaredLogger) {
	mws := []echo.MiddlewareFunc{
		emw.CORS(),
		middleware.NewRecoverMiddleware(log),
		middleware.NewTrackMiddleware(log),
		host.NewClassifyMiddleware(f, chunkSize),
	}
	if len(upstreams) == 0 {
		log.Warn("No upstream configured, answering requests locally")
		e.Any("/*", host.LocalResponder, mws...)
		return
	}
	mws = append(mws, host.NewProxyMiddleware(upstreams))
	e.Any("/*", echo.NotFoundHandler, mws...)
}
