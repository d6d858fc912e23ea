package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"articlepipe/internal/config"
	"articlepipe/internal/extractor"
	"articlepipe/internal/httpapi"
	"articlepipe/internal/infrastructure/deadletter"
	"articlepipe/internal/infrastructure/fetcher"
	"articlepipe/internal/infrastructure/llm"
	"articlepipe/internal/infrastructure/queue"
	"articlepipe/internal/infrastructure/storage"
	"articlepipe/internal/logging"
	"articlepipe/internal/ports"
	"articlepipe/internal/retry"
	"articlepipe/internal/usecase"
)

// Scraper is the producer process: HTTP front end publishing to the transport.
type Scraper struct {
	cfg       config.Config
	logger    *slog.Logger
	transport ports.Transport
	server    *echo.Echo
}

// NewScraper wires the producer. The transport is connected lazily so that a
// broker outage only fails individual publishes.
func NewScraper(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Scraper, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	registry, err := extractor.FromConfig(cfg.Fetch.DefaultSelector, cfg.Sites)
	if err != nil {
		return nil, fmt.Errorf("build extractor registry: %w", err)
	}

	transport, err := queue.Open(ctx, cfg.Transport, baseLogger)
	if err != nil {
		return nil, fmt.Errorf("open transport: %w", err)
	}

	producer := usecase.NewProducer(usecase.ProducerDeps{
		Fetcher:   fetcher.NewArticleFetcher(nil, registry, cfg.Fetch),
		Publisher: transport,
		Topic:     cfg.Transport.Topic,
		Logger:    baseLogger,
	})

	return &Scraper{
		cfg:       cfg,
		logger:    baseLogger.With("process", "scraper"),
		transport: transport,
		server:    httpapi.NewServer(baseLogger, transport, producer),
	}, nil
}

// Run serves HTTP until ctx is cancelled.
func (s *Scraper) Run(ctx context.Context) error {
	defer s.close()

	g, gctx := errgroup.WithContext(ctx)
	serve(gctx, g, s.server, s.cfg.HTTP, s.logger)
	return g.Wait()
}

func (s *Scraper) close() {
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("close transport", "error", err)
	}
}

// Summarizer is the consumer process: one sequential delivery loop plus the
// health endpoint.
type Summarizer struct {
	cfg        config.Config
	logger     *slog.Logger
	transport  ports.Transport
	consumer   *usecase.Consumer
	server     *echo.Echo
	closeStore func()
}

// NewSummarizer wires the consumer. An unreachable broker, summarizer
// misconfiguration or store failure is fatal.
func NewSummarizer(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Summarizer, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	provider, err := llm.New(cfg.Summarizer)
	if err != nil {
		return nil, fmt.Errorf("build summarizer: %w", err)
	}
	summarizer := llm.NewGuard(provider, cfg.Summarizer, baseLogger.With("component", "summarizer"))

	transport, err := queue.Open(ctx, cfg.Transport, baseLogger)
	if err != nil {
		return nil, fmt.Errorf("open transport: %w", err)
	}
	if err := transport.Ping(ctx); err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("connect transport: %w", err)
	}

	store, closeStore, err := storage.Open(ctx, cfg.Store, baseLogger.With("component", "storage"))
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	consumer := usecase.NewConsumer(usecase.ConsumerDeps{
		Summarizer:  summarizer,
		Store:       store,
		DeadLetters: deadletter.NewTransportRoute(transport, cfg.Consumer.DeadLetterTopic, baseLogger),
		Logger:      baseLogger,
	}, usecase.ConsumerOptions{
		SummarizeTimeout:   cfg.Summarizer.Timeout,
		PersistTimeout:     cfg.Store.Timeout,
		SummarizeRetry:     retry.FromConfig(cfg.Retry.Summarize),
		PersistRetry:       retry.FromConfig(cfg.Retry.Persist),
		SummarizeRetryable: llm.IsRetryable,
		OnSummarizeFailure: cfg.Consumer.OnSummarizeFailure,
	})

	return &Summarizer{
		cfg:        cfg,
		logger:     baseLogger.With("process", "summarizer"),
		transport:  transport,
		consumer:   consumer,
		server:     httpapi.NewServer(baseLogger, transport, nil),
		closeStore: closeStore,
	}, nil
}

// Run consumes until ctx is cancelled or the transport fails.
func (s *Summarizer) Run(ctx context.Context) error {
	defer s.close()

	g, gctx := errgroup.WithContext(ctx)
	serve(gctx, g, s.server, s.cfg.HTTP, s.logger)

	g.Go(func() error {
		s.logger.Info("consumer started",
			"transport", s.cfg.Transport.Kind,
			"topic", s.cfg.Transport.Topic,
			"on_summarize_failure", s.cfg.Consumer.OnSummarizeFailure)
		if err := s.transport.Subscribe(gctx, s.cfg.Transport.Topic, s.consumer.Handle); err != nil {
			return fmt.Errorf("consumer stopped: %w", err)
		}
		s.logger.Info("consumer stopped")
		return nil
	})

	return g.Wait()
}

func (s *Summarizer) close() {
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("close transport", "error", err)
	}
	if s.closeStore != nil {
		s.closeStore()
	}
}

// serve starts e in g and shuts it down once ctx is done.
func serve(ctx context.Context, g *errgroup.Group, e *echo.Echo, cfg config.HTTPConfig, logger *slog.Logger) {
	addr := cfg.Addr()

	g.Go(func() error {
		logger.Info("http server listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		logger.Info("shutting down http server")
		return e.Shutdown(shutdownCtx)
	})
}
