package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"articlepipe/internal/config"
	"articlepipe/internal/extractor"
)

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		Timeout:         2 * time.Second,
		UserAgent:       "articlepipe-test",
		MaxBodyBytes:    1 << 20,
		DefaultSelector: extractor.DefaultSelector,
	}
}

func TestArticleFetcher_Fetch(t *testing.T) {
	t.Parallel()

	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`
		<html><body>
		  <header><p>Sign in</p></header>
		  <article>
		    <h1>Title</h1>
		    <p>Go channels are typed conduits.</p>
		    <p>Select waits on multiple operations.</p>
		  </article>
		</body></html>`))
	}))
	defer server.Close()

	f := NewArticleFetcher(server.Client(), nil, testFetchConfig())

	content, err := f.Fetch(context.Background(), server.URL+"/post")
	require.NoError(t, err)

	assert.Equal(t, "Go channels are typed conduits. Select waits on multiple operations.", content)
	assert.Equal(t, "articlepipe-test", gotUA)
}

func TestArticleFetcher_Fetch_NoMatchIsEmpty(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div>no article here</div></body></html>`))
	}))
	defer server.Close()

	f := NewArticleFetcher(server.Client(), nil, testFetchConfig())

	content, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestArticleFetcher_Fetch_SiteSelector(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<div class="post"><p>custom body</p></div><article><p>ignored</p></article>`))
	}))
	defer server.Close()

	reg := extractor.NewRegistry("")
	require.NoError(t, reg.Register(extractor.Rule{Name: "local", Hosts: []string{"127.0.0.1"}, Selector: ".post p"}))

	f := NewArticleFetcher(server.Client(), reg, testFetchConfig())

	content, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "custom body", content)
}

func TestArticleFetcher_Fetch_StatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f := NewArticleFetcher(server.Client(), nil, testFetchConfig())

	_, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestArticleFetcher_Fetch_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testFetchConfig()
	cfg.Timeout = 50 * time.Millisecond
	f := NewArticleFetcher(server.Client(), nil, cfg)

	_, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
