package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"articlepipe/internal/usecase"
)

const (
	msgURLRequired  = "URL is required"
	msgInvalidURL   = "URL must be an absolute http or https URL"
	msgScrapeFailed = "Failed to scrape the article"
)

type scrapeRequest struct {
	URL string `json:"url"`
}

type scrapeResponse struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ScrapeHandler serves POST /scrape.
type ScrapeHandler struct {
	scraper Scraper
}

// NewScrapeHandler wraps the producer.
func NewScrapeHandler(scraper Scraper) *ScrapeHandler {
	return &ScrapeHandler{scraper: scraper}
}

// Handle extracts and enqueues the article, echoing the extracted payload.
func (h *ScrapeHandler) Handle(c echo.Context) error {
	var req scrapeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgURLRequired})
	}

	payload, err := h.scraper.Scrape(c.Request().Context(), req.URL)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, scrapeResponse{URL: payload.URL, Content: payload.Content})
	case errors.Is(err, usecase.ErrMissingURL):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgURLRequired})
	case errors.Is(err, usecase.ErrInvalidURL):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgInvalidURL})
	default:
		details := strings.TrimPrefix(err.Error(), usecase.ErrFetch.Error()+": ")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgScrapeFailed, Details: details})
	}
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	pinger  Pinger
	timeout time.Duration
}

// NewHealthHandler reports on pinger; a nil pinger is always healthy.
func NewHealthHandler(pinger Pinger) *HealthHandler {
	return &HealthHandler{pinger: pinger, timeout: 2 * time.Second}
}

// Handle pings the transport.
func (h *HealthHandler) Handle(c echo.Context) error {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":    "unavailable",
				"transport": "disconnected",
				"error":     err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "ok",
		"transport": "connected",
	})
}
