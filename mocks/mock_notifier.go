package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"batchforge/internal/domain"
)

// MockNotifier is a mock implementation of port.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyJobFinished(ctx context.Context, toEmail string, job *domain.Job) error {
	args := m.Called(ctx, toEmail, job)
	return args.Error(0)
}
