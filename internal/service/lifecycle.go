package service

import (
	"context"
	"fmt"
	"log"

	"batchforge/internal/domain"
	"batchforge/internal/port"
)

// Lifecycle drives one batch job through the provider: submit, poll, fetch.
// It keeps no job state between calls; every Poll asks the provider again.
type Lifecycle struct {
	gw port.BatchGateway
}

// NewLifecycle creates a Lifecycle over a credential-bound gateway.
func NewLifecycle(gw port.BatchGateway) *Lifecycle {
	return &Lifecycle{gw: gw}
}

// Submit uploads document and creates a job over it, returning the job id.
// Upload and creation are two round trips; if creation fails the uploaded
// file is left behind on the provider.
func (l *Lifecycle) Submit(ctx context.Context, document []byte) (string, error) {
	jobID, _, err := l.submit(ctx, document)
	return jobID, err
}

func (l *Lifecycle) submit(ctx context.Context, document []byte) (jobID, fileID string, err error) {
	fileID, err = l.gw.Upload(ctx, document)
	if err != nil {
		log.Printf("lifecycle.Submit: upload failed: %v", err)
		return "", "", fmt.Errorf("uploading input document: %w", err)
	}

	jobID, err = l.gw.CreateJob(ctx, fileID)
	if err != nil {
		log.Printf("lifecycle.Submit: create job failed for file %s: %v", fileID, err)
		return "", "", fmt.Errorf("creating batch job: %w", err)
	}

	log.Printf("lifecycle.Submit: job %s created over file %s (%d bytes)", jobID, fileID, len(document))
	return jobID, fileID, nil
}

// Poll fetches a fresh snapshot of the job.
func (l *Lifecycle) Poll(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := l.gw.FetchStatus(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("polling job %s: %w", jobID, err)
	}
	if !job.Status.IsKnown() {
		log.Printf("lifecycle.Poll: job %s reported undocumented status %q", jobID, job.Status)
	}
	return job, nil
}

// FetchOutput polls the job and downloads its output document once the job
// has completed with an output file.
func (l *Lifecycle) FetchOutput(ctx context.Context, jobID string) ([]byte, *domain.Job, error) {
	job, err := l.Poll(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	raw, err := l.FetchOutputFor(ctx, job)
	if err != nil {
		return nil, job, err
	}
	return raw, job, nil
}

// FetchOutputFor downloads the output document of an already polled job.
// A job that is not ready yields *domain.NotReadyError with no network call.
func (l *Lifecycle) FetchOutputFor(ctx context.Context, job *domain.Job) ([]byte, error) {
	if !job.OutputReady() {
		return nil, &domain.NotReadyError{JobID: job.ID, Status: job.Status}
	}
	raw, err := l.gw.FetchOutputDocument(ctx, job.OutputFileID)
	if err != nil {
		return nil, fmt.Errorf("fetching output of job %s: %w", job.ID, err)
	}
	return raw, nil
}
