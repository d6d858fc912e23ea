package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"articlepipe/internal/config"
	"articlepipe/internal/domain"
	"articlepipe/internal/logging"
	"articlepipe/internal/ports"
	"articlepipe/internal/retry"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func testOptions() ConsumerOptions {
	return ConsumerOptions{
		SummarizeTimeout: time.Second,
		PersistTimeout:   time.Second,
		SummarizeRetry:   fastPolicy(3),
		PersistRetry:     fastPolicy(2),
	}
}

func delivery(body string) ports.Delivery {
	return ports.Delivery{Topic: "scraped_articles", Handle: "1-0", Body: []byte(body)}
}

func TestConsumer_Handle(t *testing.T) {
	t.Run("stores summary", func(t *testing.T) {
		summarizer := new(MockSummarizer)
		store := new(MockStore)
		summarizer.On("Summarize", mock.Anything, "Hello world.").Return("A greeting.", nil)
		store.On("Save", mock.Anything, domain.SummaryRecord{
			URL:             "https://example.com/a",
			OriginalContent: "Hello world.",
			Summary:         "A greeting.",
		}).Return(nil)

		c := NewConsumer(ConsumerDeps{Summarizer: summarizer, Store: store, Logger: logging.Discard()}, testOptions())
		err := c.Handle(context.Background(), delivery(`{"url":"https://example.com/a","content":"Hello world."}`))

		require.NoError(t, err)
		summarizer.AssertExpectations(t)
		store.AssertExpectations(t)
	})

	t.Run("malformed payload is dead-lettered and acknowledged", func(t *testing.T) {
		summarizer := new(MockSummarizer)
		store := new(MockStore)
		route := new(MockDeadLetterRoute)
		route.On("Send", mock.Anything, mock.MatchedBy(func(l domain.DeadLetter) bool {
			return l.Reason == domain.ReasonMalformedPayload && l.Payload == `{"url":1}` && l.Topic == "scraped_articles"
		})).Return(nil)

		c := NewConsumer(ConsumerDeps{Summarizer: summarizer, Store: store, DeadLetters: route, Logger: logging.Discard()}, testOptions())
		err := c.Handle(context.Background(), delivery(`{"url":1}`))

		require.NoError(t, err)
		route.AssertExpectations(t)
		summarizer.AssertNotCalled(t, "Summarize")
		store.AssertNotCalled(t, "Save")
	})

	t.Run("malformed payload without route is not acknowledged", func(t *testing.T) {
		c := NewConsumer(ConsumerDeps{Summarizer: new(MockSummarizer), Store: new(MockStore), Logger: logging.Discard()}, testOptions())
		err := c.Handle(context.Background(), delivery(`not json`))
		assert.Error(t, err)
	})

	t.Run("summarize exhaustion stores sentinel", func(t *testing.T) {
		summarizer := new(MockSummarizer)
		store := new(MockStore)
		summarizer.On("Summarize", mock.Anything, "body").Return("", errors.New("upstream 503")).Times(3)
		store.On("Save", mock.Anything, domain.SummaryRecord{
			URL:             "https://example.com/a",
			OriginalContent: "body",
			Summary:         domain.SummarizeFailedSentinel,
		}).Return(nil)

		c := NewConsumer(ConsumerDeps{Summarizer: summarizer, Store: store, Logger: logging.Discard()}, testOptions())
		err := c.Handle(context.Background(), delivery(`{"url":"https://example.com/a","content":"body"}`))

		require.NoError(t, err)
		summarizer.AssertNumberOfCalls(t, "Summarize", 3)
		store.AssertExpectations(t)
	})

	t.Run("summarize succeeds after transient failure", func(t *testing.T) {
		summarizer := new(MockSummarizer)
		store := new(MockStore)
		summarizer.On("Summarize", mock.Anything, "body").Return("", errors.New("timeout")).Once()
		summarizer.On("Summarize", mock.Anything, "body").Return("ok", nil).Once()
		store.On("Save", mock.Anything, mock.MatchedBy(func(r domain.SummaryRecord) bool { return r.Summary == "ok" })).Return(nil)

		c := NewConsumer(ConsumerDeps{Summarizer: summarizer, Store: store, Logger: logging.Discard()}, testOptions())
		require.NoError(t, c.Handle(context.Background(), delivery(`{"url":"https://example.com/a","content":"body"}`)))
		summarizer.AssertNumberOfCalls(t, "Summarize", 2)
	})

	t.Run("non retryable summarize error stops at once", func(t *testing.T) {
		summarizer := new(MockSummarizer)
		store := new(MockStore)
		permanent := errors.New("bad request")
		summarizer.On("Summarize", mock.Anything, "body").Return("", permanent)
		store.On("Save", mock.Anything, mock.Anything).Return(nil)

		opts := testOptions()
		opts.SummarizeRetryable = func(err error) bool { return !errors.Is(err, permanent) }
		c := NewConsumer(ConsumerDeps{Summarizer: summarizer, Store: store, Logger: logging.Discard()}, opts)

		require.NoError(t, c.Handle(context.Background(), delivery(`{"url":"https://example.com/a","content":"body"}`)))
		summarizer.AssertNumberOfCalls(t, "Summarize", 1)
	})

	t.Run("deadletter policy skips persistence", func(t *testing.T) {
		summarizer := new(MockSummarizer)
		store := new(MockStore)
		route := new(MockDeadLetterRoute)
		summarizer.On("Summarize", mock.Anything, "body").Return("", errors.New("upstream 503"))
		route.On("Send", mock.Anything, mock.MatchedBy(func(l domain.DeadLetter) bool {
			return l.Reason == domain.ReasonSummarizeExhausted && l.Attempts == 3
		})).Return(nil)

		opts := testOptions()
		opts.OnSummarizeFailure = config.OnFailureDeadLetter
		c := NewConsumer(ConsumerDeps{Summarizer: summarizer, Store: store, DeadLetters: route, Logger: logging.Discard()}, opts)

		require.NoError(t, c.Handle(context.Background(), delivery(`{"url":"https://example.com/a","content":"body"}`)))
		route.AssertExpectations(t)
		store.AssertNotCalled(t, "Save")
	})

	t.Run("persist exhaustion is dead-lettered", func(t *testing.T) {
		summarizer := new(MockSummarizer)
		store := new(MockStore)
		route := new(MockDeadLetterRoute)
		summarizer.On("Summarize", mock.Anything, "body").Return("s", nil)
		store.On("Save", mock.Anything, mock.Anything).Return(errors.New("db down"))
		route.On("Send", mock.Anything, mock.MatchedBy(func(l domain.DeadLetter) bool {
			return l.Reason == domain.ReasonPersistExhausted && l.Attempts == 2 && l.Error == "db down"
		})).Return(nil)

		c := NewConsumer(ConsumerDeps{Summarizer: summarizer, Store: store, DeadLetters: route, Logger: logging.Discard()}, testOptions())

		require.NoError(t, c.Handle(context.Background(), delivery(`{"url":"https://example.com/a","content":"body"}`)))
		store.AssertNumberOfCalls(t, "Save", 2)
		route.AssertExpectations(t)
	})

	t.Run("persist exhaustion with failing route is not acknowledged", func(t *testing.T) {
		summarizer := new(MockSummarizer)
		store := new(MockStore)
		route := new(MockDeadLetterRoute)
		summarizer.On("Summarize", mock.Anything, "body").Return("s", nil)
		store.On("Save", mock.Anything, mock.Anything).Return(errors.New("db down"))
		route.On("Send", mock.Anything, mock.Anything).Return(errors.New("broker down"))

		c := NewConsumer(ConsumerDeps{Summarizer: summarizer, Store: store, DeadLetters: route, Logger: logging.Discard()}, testOptions())

		err := c.Handle(context.Background(), delivery(`{"url":"https://example.com/a","content":"body"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
	})

	t.Run("cancellation leaves message unacknowledged", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		summarizer := new(MockSummarizer)
		store := new(MockStore)
		summarizer.On("Summarize", mock.Anything, "body").
			Run(func(mock.Arguments) { cancel() }).
			Return("", context.Canceled)

		c := NewConsumer(ConsumerDeps{Summarizer: summarizer, Store: store, Logger: logging.Discard()}, testOptions())

		err := c.Handle(ctx, delivery(`{"url":"https://example.com/a","content":"body"}`))
		assert.ErrorIs(t, err, context.Canceled)
		store.AssertNotCalled(t, "Save")
	})
}
