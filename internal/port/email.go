package port

import (
	"context"

	"batchforge/internal/domain"
)

// Notifier tells a recipient that a batch job reached a terminal status.
type Notifier interface {
	NotifyJobFinished(ctx context.Context, toEmail string, job *domain.Job) error
}
