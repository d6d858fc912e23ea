package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"articlepipe/internal/config"
	"articlepipe/internal/ports"
)

// GeminiClient implements ports.Summarizer with the generateContent REST API.
type GeminiClient struct {
	endpoint   string
	model      string
	apiKey     string
	prompt     string
	httpClient *http.Client
}

var _ ports.Summarizer = (*GeminiClient)(nil)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// NewGeminiClient builds a client from configuration.
func NewGeminiClient(cfg config.SummarizerConfig, client *http.Client) *GeminiClient {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &GeminiClient{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		prompt:     cfg.Prompt,
		httpClient: client,
	}
}

// Summarize asks the model for a concise summary of content.
func (c *GeminiClient) Summarize(ctx context.Context, content string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("gemini client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, url.PathEscape(c.model))
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildPrompt(c.prompt, content)}},
		}},
	}

	var resp geminiResponse
	if err := postJSON(ctx, c.httpClient, "gemini", endpoint, map[string]string{"x-goog-api-key": c.apiKey}, payload, &resp); err != nil {
		return "", err
	}

	if resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", ErrEmptySummary, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmptySummary
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	summary := strings.TrimSpace(sb.String())
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}
