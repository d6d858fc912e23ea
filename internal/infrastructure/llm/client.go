package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker/v2"

	"articlepipe/internal/config"
	"articlepipe/internal/ports"
)

const defaultPrompt = "Summarize the following blog content in a concise and engaging manner:"

var (
	// ErrNotConfigured is returned when a provider lacks its endpoint or key.
	ErrNotConfigured = errors.New("summarizer misconfigured")
	// ErrEmptySummary is returned when the service answers without text.
	ErrEmptySummary = errors.New("summarizer returned an empty summary")
)

// StatusError reports a non-2xx answer from the generation service.
type StatusError struct {
	Provider   string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s error %s", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s error %s: %s", e.Provider, e.Status, e.Body)
}

// Retryable reports whether the status is transient.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable classifies summarizer errors for the per-step retry loop.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotConfigured),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, context.Canceled):
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

// New builds the configured provider; callers wrap it with NewGuard.
func New(cfg config.SummarizerConfig) (ports.Summarizer, error) {
	client := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case config.ProviderGemini:
		c := NewGeminiClient(cfg, client)
		if c.apiKey == "" {
			return nil, fmt.Errorf("%w: gemini api key is empty", ErrNotConfigured)
		}
		return c, nil
	case config.ProviderOpenAI:
		c := NewChatGPTClient(cfg, client)
		if c.apiKey == "" {
			return nil, fmt.Errorf("%w: openai api key is empty", ErrNotConfigured)
		}
		return c, nil
	case config.ProviderService:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("%w: service endpoint is empty", ErrNotConfigured)
		}
		return NewServiceClient(cfg.Endpoint, cfg.APIKey, client), nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q", cfg.Provider)
	}
}

func buildPrompt(instruction, content string) string {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		instruction = defaultPrompt
	}
	return instruction + "\n\n\"" + content + "\""
}

// postJSON sends payload and decodes the JSON answer into v.
func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, headers map[string]string, payload, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
