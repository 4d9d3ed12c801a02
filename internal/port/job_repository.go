package port

import (
	"context"
	"time"

	"batchforge/internal/domain"
)

// JobRepository keeps submitted job ids so they can be queried again later.
type JobRepository interface {
	Create(ctx context.Context, rec *domain.JobRecord) error
	GetByJobID(ctx context.Context, jobID string) (*domain.JobRecord, error)
	List(ctx context.Context, offset, limit int) ([]domain.JobRecord, int, error)
	MarkNotified(ctx context.Context, jobID string, at time.Time) error
}
