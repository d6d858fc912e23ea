package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"articlepipe/internal/ports"
)

// ServiceClient talks to a self-hosted summarization service exposing
// POST /summarize {content} -> {summary}.
type ServiceClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Summarizer = (*ServiceClient)(nil)

// NewServiceClient creates a reusable HTTP client.
func NewServiceClient(endpoint, apiKey string, client *http.Client) *ServiceClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ServiceClient{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     client,
	}
}

// Summarize requests a summary for the article content.
func (c *ServiceClient) Summarize(ctx context.Context, content string) (string, error) {
	if c.endpoint == "" {
		return "", ErrNotConfigured
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp struct {
		Summary string `json:"summary"`
	}
	if err := postJSON(ctx, c.http, "summary-service", c.endpoint+"/summarize", headers, map[string]string{"content": content}, &resp); err != nil {
		return "", err
	}

	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}
