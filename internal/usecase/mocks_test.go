package usecase

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"articlepipe/internal/domain"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	args := m.Called(ctx, topic, body)
	return args.Error(0)
}

type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Summarize(ctx context.Context, content string) (string, error) {
	args := m.Called(ctx, content)
	return args.String(0), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(ctx context.Context, record domain.SummaryRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

type MockDeadLetterRoute struct {
	mock.Mock
}

func (m *MockDeadLetterRoute) Send(ctx context.Context, letter domain.DeadLetter) error {
	args := m.Called(ctx, letter)
	return args.Error(0)
}

// memoryStore records every saved summary.
type memoryStore struct {
	mu      sync.Mutex
	records []domain.SummaryRecord
	saved   chan struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(chan struct{}, 64)}
}

func (s *memoryStore) Save(_ context.Context, record domain.SummaryRecord) error {
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	s.saved <- struct{}{}
	return nil
}

func (s *memoryStore) Records() []domain.SummaryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SummaryRecord(nil), s.records...)
}
