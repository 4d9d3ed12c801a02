package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"batchforge/internal/compiler"
	"batchforge/internal/domain"
	"batchforge/internal/service"
)

// MockBatchService is a mock implementation of service.BatchService.
type MockBatchService struct {
	mock.Mock
}

func (m *MockBatchService) DefaultParams() compiler.Params {
	args := m.Called()
	return args.Get(0).(compiler.Params)
}

func (m *MockBatchService) Preview(ctx context.Context, input service.BatchInput) (*service.PreviewResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PreviewResult), args.Error(1)
}

func (m *MockBatchService) Submit(ctx context.Context, input service.BatchInput) (*service.SubmitResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SubmitResult), args.Error(1)
}

func (m *MockBatchService) GetStatus(ctx context.Context, apiKey, jobID string) (*domain.Job, error) {
	args := m.Called(ctx, apiKey, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockBatchService) GetResults(ctx context.Context, apiKey, jobID string) (*service.ResultsOutput, error) {
	args := m.Called(ctx, apiKey, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ResultsOutput), args.Error(1)
}

func (m *MockBatchService) ExportResults(ctx context.Context, apiKey, jobID string) (*service.ExportOutput, error) {
	args := m.Called(ctx, apiKey, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ExportOutput), args.Error(1)
}

func (m *MockBatchService) ListJobs(ctx context.Context, offset, limit int) ([]domain.JobRecord, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.JobRecord), args.Int(1), args.Error(2)
}
