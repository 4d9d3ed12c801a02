package noop

import (
	"context"
	"log"

	"batchforge/internal/domain"
	"batchforge/internal/port"
)

type noopSender struct{}

// NewNoopSender creates a no-op Notifier that logs notifications to stdout.
func NewNoopSender() port.Notifier {
	return &noopSender{}
}

func (s *noopSender) NotifyJobFinished(_ context.Context, toEmail string, job *domain.Job) error {
	log.Printf("[NOOP EMAIL] Job %s finished as %s for %s (total=%d completed=%d failed=%d)",
		job.ID, job.Status, toEmail, job.Counts.Total, job.Counts.Completed, job.Counts.Failed)
	return nil
}
