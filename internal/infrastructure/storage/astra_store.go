package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"articlepipe/internal/config"
	"articlepipe/internal/domain"
	"articlepipe/internal/ports"
)

// StatusError reports a non-2xx answer from the document API.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("astra error %s: %s", e.Status, e.Body)
}

// AstraStore inserts summary documents through the Astra DB Data API.
type AstraStore struct {
	endpoint string
	token    string
	client   *http.Client
}

var _ ports.SummaryStore = (*AstraStore)(nil)

type astraInsertOne struct {
	InsertOne struct {
		Document domain.SummaryRecord `json:"document"`
	} `json:"insertOne"`
}

type astraResponse struct {
	Status struct {
		InsertedIDs []any `json:"insertedIds"`
	} `json:"status"`
	Errors []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	} `json:"errors"`
}

// NewAstraStore builds the collection endpoint from configuration.
func NewAstraStore(cfg config.StoreConfig, client *http.Client) (*AstraStore, error) {
	var problems []error
	if cfg.URL == "" {
		problems = append(problems, errors.New("astra url is empty"))
	}
	if cfg.Token == "" {
		problems = append(problems, errors.New("astra token is empty"))
	}
	if cfg.Keyspace == "" || cfg.Collection == "" {
		problems = append(problems, errors.New("astra keyspace and collection are required"))
	}
	if err := errors.Join(problems...); err != nil {
		return nil, err
	}

	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	endpoint := fmt.Sprintf("%s/api/json/v1/%s/%s",
		strings.TrimSuffix(cfg.URL, "/"),
		url.PathEscape(cfg.Keyspace),
		url.PathEscape(cfg.Collection),
	)
	return &AstraStore{endpoint: endpoint, token: cfg.Token, client: client}, nil
}

// Save inserts record as a new document.
func (s *AstraStore) Save(ctx context.Context, record domain.SummaryRecord) error {
	var cmd astraInsertOne
	cmd.InsertOne.Document = record

	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	var out astraResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(out.Errors) > 0 {
		return fmt.Errorf("astra rejected document: %s (%s)", out.Errors[0].Message, out.Errors[0].ErrorCode)
	}
	return nil
}
