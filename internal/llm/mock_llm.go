package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockDispatcher is a mock implementation of Dispatcher using testify/mock.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Send(ctx context.Context, prompt, systemPrompt string, cfg ProviderConfig) (Completion, error) {
	args := m.Called(ctx, prompt, systemPrompt, cfg)
	return args.Get(0).(Completion), args.Error(1)
}

func (m *MockDispatcher) Validate(ctx context.Context, cfg ProviderConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}
