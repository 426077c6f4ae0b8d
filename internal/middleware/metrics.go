// Package middleware holds the echo middleware shared by every route
package middleware

import (
	"fmt"
	"time"

	"inference-filter/internal/ctx"
	"inference-filter/internal/metrics"
	"inference-filter/internal/shared"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func NewTrackMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			exID := shared.NewExchangeID()
			logger := log.With("exchange_id", exID)

			req := c.Request()
			cc := &ctx.Context{
				Context: c,
				Log:     logger,
				Reqid:   exID,
				LogValues: &ctx.ContextLogValues{
					ExchangeID: exID,
					Method:     req.Method,
					Path:       req.URL.Path,
					StartTime:  time.Now(),
				},
			}
			err := next(cc)
			if err != nil {
				cc.LogValues.AddError(err)
				c.Error(err)
			}

			status := cc.Response().Status
			cc.LogValues.StatusCode = status
			cc.LogValues.ExchangeDuration = time.Since(cc.LogValues.StartTime)
			metrics.ResponseCodes.WithLabelValues(cc.Path(), fmt.Sprintf("%d", status)).Inc()

			level := cc.LogValues.LogLevel
			if level == "" {
				switch {
				case status >= 500:
					level = "ERROR"
				case cc.LogValues.Error != nil:
					level = "WARN"
				default:
					level = "INFO"
				}
			}
			switch level {
			case "ERROR":
				cc.Log.Errorw("end_of_exchange", zap.Object("exchange", cc.LogValues))
			case "WARN":
				cc.Log.Warnw("end_of_exchange", zap.Object("exchange", cc.LogValues))
			default:
				cc.Log.Infow("end_of_exchange", zap.Object("exchange", cc.LogValues))
			}
			return nil
		}
	}
}

func NewRecoverMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			defer func() {
				_ = log.Sync()
			}()
			log.Errorw("Filter Panic", "error", err.Error(), "stack", string(stack))
			return c.String(500, shared.ErrInternalServerError.Err.Error())
		},
	})
}

// NewAPIKeyMiddleware guards admin routes behind a bearer key. An empty key
// locks the routes entirely.
func NewAPIKeyMiddleware(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return c.String(401, "Unauthorized API key")
			}
			apiKey, err := shared.ExtractAPIKey(c)
			if err != nil {
				return c.String(401, "Missing or invalid API key")
			}
			if apiKey != key {
				return c.String(401, "Unauthorized API key")
			}
			return next(c)
		}
	}
}
