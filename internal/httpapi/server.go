// Package httpapi exposes the scraper and health endpoints over echo.
package httpapi

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"articlepipe/internal/domain"
)

// Scraper is the producer operation behind POST /scrape.
type Scraper interface {
	Scrape(ctx context.Context, url string) (domain.ArticlePayload, error)
}

// Pinger reports transport connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewServer builds the echo instance. scraper may be nil for the summarizer
// process, which only serves /health and /metrics.
func NewServer(logger *slog.Logger, pinger Pinger, scraper Scraper) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			if v.Error == nil {
				logger.InfoContext(ctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				logger.ErrorContext(ctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	if scraper != nil {
		e.POST("/scrape", NewScrapeHandler(scraper).Handle)
	}
	e.GET("/health", NewHealthHandler(pinger).Handle)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}
