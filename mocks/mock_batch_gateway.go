package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"batchforge/internal/domain"
	"batchforge/internal/port"
)

// MockBatchGateway is a mock implementation of port.BatchGateway.
type MockBatchGateway struct {
	mock.Mock
}

func (m *MockBatchGateway) Upload(ctx context.Context, document []byte) (string, error) {
	args := m.Called(ctx, document)
	return args.String(0), args.Error(1)
}

func (m *MockBatchGateway) CreateJob(ctx context.Context, fileID string) (string, error) {
	args := m.Called(ctx, fileID)
	return args.String(0), args.Error(1)
}

func (m *MockBatchGateway) FetchStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockBatchGateway) FetchOutputDocument(ctx context.Context, fileID string) ([]byte, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockGatewayFactory is a mock implementation of port.GatewayFactory.
type MockGatewayFactory struct {
	mock.Mock
}

func (m *MockGatewayFactory) WithKey(apiKey string) port.BatchGateway {
	args := m.Called(apiKey)
	return args.Get(0).(port.BatchGateway)
}
