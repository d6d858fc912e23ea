package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"articlepipe/internal/config"
	"articlepipe/internal/ports"
)

const defaultChatEndpoint = "https://api.openai.com/v1/chat/completions"

// ChatGPTClient implements ports.Summarizer backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint   string
	model      string
	apiKey     string
	prompt     string
	httpClient *http.Client
}

var _ ports.Summarizer = (*ChatGPTClient)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewChatGPTClient builds a client from configuration. The Gemini endpoint
// default is replaced by the OpenAI one when the provider is switched
// without setting an endpoint.
func NewChatGPTClient(cfg config.SummarizerConfig, client *http.Client) *ChatGPTClient {
	endpoint := cfg.Endpoint
	if endpoint == "" || strings.Contains(endpoint, "generativelanguage.googleapis.com") {
		endpoint = defaultChatEndpoint
	}
	model := cfg.Model
	if model == "" || strings.HasPrefix(model, "gemini") {
		model = "gpt-4o-mini"
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &ChatGPTClient{
		endpoint:   endpoint,
		model:      model,
		apiKey:     cfg.APIKey,
		prompt:     cfg.Prompt,
		httpClient: client,
	}
}

// Summarize posts the article as a user message and returns the reply.
func (c *ChatGPTClient) Summarize(ctx context.Context, content string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", ErrNotConfigured
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You summarize blog articles for busy readers."},
			{Role: "user", Content: buildPrompt(c.prompt, content)},
		},
	}

	var resp chatResponse
	if err := postJSON(ctx, c.httpClient, "chatgpt", c.endpoint, map[string]string{"Authorization": "Bearer " + c.apiKey}, payload, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptySummary
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}
