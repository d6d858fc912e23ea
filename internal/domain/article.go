package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SummarizeFailedSentinel is stored as the summary when summarization is
// exhausted and the consumer runs with the sentinel policy.
const SummarizeFailedSentinel = "Failed to summarize the content."

// ErrMalformedPayload marks a message that can never be processed.
var ErrMalformedPayload = errors.New("malformed article payload")

// ArticlePayload is the message exchanged between the scraper and the summarizer.
type ArticlePayload struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Encode renders the payload in its wire format.
func (p ArticlePayload) Encode() ([]byte, error) {
	if strings.TrimSpace(p.URL) == "" {
		return nil, fmt.Errorf("%w: url is empty", ErrMalformedPayload)
	}
	return json.Marshal(p)
}

// DecodeArticlePayload parses a wire message. Both fields must be present as
// strings; content may be empty, url may not.
func DecodeArticlePayload(body []byte) (ArticlePayload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return ArticlePayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw == nil {
		return ArticlePayload{}, fmt.Errorf("%w: payload is null", ErrMalformedPayload)
	}

	url, err := stringField(raw, "url")
	if err != nil {
		return ArticlePayload{}, err
	}
	if strings.TrimSpace(url) == "" {
		return ArticlePayload{}, fmt.Errorf("%w: url is empty", ErrMalformedPayload)
	}

	content, err := stringField(raw, "content")
	if err != nil {
		return ArticlePayload{}, err
	}

	return ArticlePayload{URL: url, Content: content}, nil
}

func stringField(raw map[string]json.RawMessage, name string) (string, error) {
	value, ok := raw[name]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrMalformedPayload, name)
	}
	if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		return "", fmt.Errorf("%w: field %q is null", ErrMalformedPayload, name)
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return "", fmt.Errorf("%w: field %q is not a string", ErrMalformedPayload, name)
	}
	return s, nil
}

// SummaryRecord is the persisted result of one processed message. The store
// does not enforce uniqueness on URL; redelivery produces another record.
type SummaryRecord struct {
	URL             string `json:"url"`
	OriginalContent string `json:"originalContent"`
	Summary         string `json:"summary"`
}

// NewSummaryRecord pairs a payload with its summary.
func NewSummaryRecord(p ArticlePayload, summary string) SummaryRecord {
	return SummaryRecord{
		URL:             p.URL,
		OriginalContent: p.Content,
		Summary:         summary,
	}
}
