package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockTier is a mock implementation of the Tier interface for testing
type MockTier struct {
	mock.Mock
}

func (m *MockTier) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockTier) Get(ctx context.Context, key string) (Entry, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(Entry), args.Bool(1), args.Error(2)
}

func (m *MockTier) Put(ctx context.Context, entry Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockTier) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockTier) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTier) Close() error {
	args := m.Called()
	return args.Error(0)
}
