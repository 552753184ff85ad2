package history

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSink is a mock implementation of Sink using testify/mock.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Record(ctx context.Context, ex Exchange) error {
	args := m.Called(ctx, ex)
	return args.Error(0)
}
