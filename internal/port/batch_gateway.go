package port

import (
	"context"

	"batchforge/internal/domain"
)

// BatchGateway is the provider's batch API, one method per endpoint.
// Implementations perform a single round trip per call and never retry.
type BatchGateway interface {
	Upload(ctx context.Context, document []byte) (fileID string, err error)
	CreateJob(ctx context.Context, fileID string) (jobID string, err error)
	FetchStatus(ctx context.Context, jobID string) (*domain.Job, error)
	FetchOutputDocument(ctx context.Context, fileID string) ([]byte, error)
}

// GatewayFactory binds a caller-supplied credential to a BatchGateway.
type GatewayFactory interface {
	WithKey(apiKey string) BatchGateway
}
