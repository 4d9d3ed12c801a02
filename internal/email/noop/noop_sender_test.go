package noop_test

import (
	"bytes"
	"context"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"batchforge/internal/domain"
	"batchforge/internal/email/noop"
)

func TestNoopSender_LogsNotification(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	job := &domain.Job{ID: "batch_1", Status: domain.JobStatusCompleted, Counts: domain.RequestCounts{Total: 3, Completed: 2, Failed: 1}}
	err := noop.NewNoopSender().NotifyJobFinished(context.Background(), "ops@example.com", job)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Job batch_1 finished as completed for ops@example.com")
	assert.Contains(t, buf.String(), "total=3 completed=2 failed=1")
}
