package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"batchforge/internal/compiler"
	"batchforge/internal/config"
	"batchforge/internal/csvexport"
	"batchforge/internal/domain"
	"batchforge/internal/extractor"
	"batchforge/internal/port"
	"batchforge/internal/reconstruct"
)

const (
	previewRecords  = 3
	previewMaxChars = 200
)

// BatchInput is the DTO shared by preview and submission.
type BatchInput struct {
	APIKey      string
	SourceName  string
	Reader      io.Reader
	Params      compiler.Params
	NotifyEmail string
}

// PreviewResult describes what a submission would send, without sending it.
type PreviewResult struct {
	TotalRows          int             `json:"total_rows"`
	SkippedRows        int             `json:"skipped_rows"`
	RecordCount        int             `json:"record_count"`
	DocumentBytes      int             `json:"document_bytes"`
	PlaceholderMissing bool            `json:"placeholder_missing"`
	Sample             []domain.Record `json:"sample"`
}

// SubmitResult is returned once the provider has accepted a job.
type SubmitResult struct {
	JobID              string `json:"job_id"`
	TotalRows          int    `json:"total_rows"`
	SkippedRows        int    `json:"skipped_rows"`
	RecordCount        int    `json:"record_count"`
	PlaceholderMissing bool   `json:"placeholder_missing"`
}

// ResultsOutput pairs the reconstructed table with the job it came from.
type ResultsOutput struct {
	Job    *domain.Job
	Result *reconstruct.Result
}

// ExportOutput locates an uploaded result file.
type ExportOutput struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
	RowCount  int    `json:"row_count"`
}

// BatchService defines the batch job contract used by the presentation layers.
type BatchService interface {
	DefaultParams() compiler.Params
	Preview(ctx context.Context, input BatchInput) (*PreviewResult, error)
	Submit(ctx context.Context, input BatchInput) (*SubmitResult, error)
	GetStatus(ctx context.Context, apiKey, jobID string) (*domain.Job, error)
	GetResults(ctx context.Context, apiKey, jobID string) (*ResultsOutput, error)
	ExportResults(ctx context.Context, apiKey, jobID string) (*ExportOutput, error)
	ListJobs(ctx context.Context, offset, limit int) ([]domain.JobRecord, int, error)
}

type batchService struct {
	gateways    port.GatewayFactory
	jobRepo     port.JobRepository
	storage     port.ObjectStorage
	notifier    port.Notifier
	batchCfg    *config.BatchConfig
	providerCfg *config.ProviderConfig
	s3Cfg       *config.S3Config
}

// NewBatchService creates a new BatchService implementation.
// jobRepo, storage and notifier may be nil; the features that need them are
// then unavailable.
func NewBatchService(
	gateways port.GatewayFactory,
	jobRepo port.JobRepository,
	storage port.ObjectStorage,
	notifier port.Notifier,
	batchCfg *config.BatchConfig,
	providerCfg *config.ProviderConfig,
	s3Cfg *config.S3Config,
) BatchService {
	return &batchService{
		gateways:    gateways,
		jobRepo:     jobRepo,
		storage:     storage,
		notifier:    notifier,
		batchCfg:    batchCfg,
		providerCfg: providerCfg,
		s3Cfg:       s3Cfg,
	}
}

func (s *batchService) DefaultParams() compiler.Params {
	return compiler.Params{
		Model:       s.batchCfg.DefaultModel,
		UserPrompt:  compiler.Placeholder,
		MaxTokens:   s.batchCfg.MaxTokens,
		Temperature: s.batchCfg.Temperature,
		TopP:        s.batchCfg.TopP,
		Endpoint:    s.providerCfg.Endpoint,
	}
}

// prepared is an input that has been extracted, compiled and encoded.
type prepared struct {
	extraction extractor.Extraction
	document   []byte
	params     compiler.Params
}

func (s *batchService) prepare(input BatchInput) (*prepared, error) {
	params := input.Params
	if params.Endpoint == "" {
		params.Endpoint = s.providerCfg.Endpoint
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ext, err := extractor.ExtractFile(input.SourceName, input.Reader)
	if err != nil {
		return nil, err
	}

	doc, err := compiler.Build(ext.Records, params)
	if err != nil {
		return nil, fmt.Errorf("building batch document: %w", err)
	}
	return &prepared{extraction: ext, document: doc, params: params}, nil
}

func (s *batchService) Preview(_ context.Context, input BatchInput) (*PreviewResult, error) {
	p, err := s.prepare(input)
	if err != nil {
		return nil, err
	}

	n := len(p.extraction.Records)
	if n > previewRecords {
		n = previewRecords
	}
	sample := make([]domain.Record, n)
	for i := 0; i < n; i++ {
		rec := p.extraction.Records[i]
		sample[i] = domain.Record{OriginIndex: rec.OriginIndex, Text: truncate(rec.Text, previewMaxChars)}
	}

	return &PreviewResult{
		TotalRows:          p.extraction.TotalRows,
		SkippedRows:        p.extraction.SkippedRows,
		RecordCount:        len(p.extraction.Records),
		DocumentBytes:      len(p.document),
		PlaceholderMissing: !compiler.HasPlaceholder(p.params.UserPrompt),
		Sample:             sample,
	}, nil
}

func (s *batchService) Submit(ctx context.Context, input BatchInput) (*SubmitResult, error) {
	if input.APIKey == "" {
		return nil, domain.ErrMissingAPIKey
	}

	p, err := s.prepare(input)
	if err != nil {
		return nil, err
	}
	if len(p.extraction.Records) == 0 {
		return nil, domain.ErrNoRecords
	}

	log.Printf("batchService.Submit: submitting %d records from %q (rows=%d skipped=%d model=%s)",
		len(p.extraction.Records), input.SourceName, p.extraction.TotalRows, p.extraction.SkippedRows, p.params.Model)

	lc := NewLifecycle(s.gateways.WithKey(input.APIKey))
	jobID, fileID, err := lc.submit(ctx, p.document)
	if err != nil {
		return nil, err
	}

	if s.jobRepo != nil {
		rec := &domain.JobRecord{
			ID:          uuid.New(),
			JobID:       jobID,
			InputFileID: fileID,
			Model:       p.params.Model,
			SourceName:  input.SourceName,
			TotalRows:   p.extraction.TotalRows,
			SkippedRows: p.extraction.SkippedRows,
			RecordCount: len(p.extraction.Records),
			NotifyEmail: strings.TrimSpace(input.NotifyEmail),
		}
		// The job exists on the provider regardless; a ledger failure only loses the listing.
		if err := s.jobRepo.Create(ctx, rec); err != nil {
			log.Printf("batchService.Submit: failed to record job %s in ledger: %v", jobID, err)
		}
	}

	return &SubmitResult{
		JobID:              jobID,
		TotalRows:          p.extraction.TotalRows,
		SkippedRows:        p.extraction.SkippedRows,
		RecordCount:        len(p.extraction.Records),
		PlaceholderMissing: !compiler.HasPlaceholder(p.params.UserPrompt),
	}, nil
}

func (s *batchService) GetStatus(ctx context.Context, apiKey, jobID string) (*domain.Job, error) {
	if apiKey == "" {
		return nil, domain.ErrMissingAPIKey
	}

	job, err := NewLifecycle(s.gateways.WithKey(apiKey)).Poll(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.IsTerminal() {
		s.notifyOnce(ctx, job)
	}
	return job, nil
}

// notifyOnce emails the address recorded at submission the first time a
// terminal status is observed. Failures are logged and never surface.
func (s *batchService) notifyOnce(ctx context.Context, job *domain.Job) {
	if s.jobRepo == nil || s.notifier == nil {
		return
	}

	rec, err := s.jobRepo.GetByJobID(ctx, job.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Printf("batchService.notifyOnce: ledger lookup failed for job %s: %v", job.ID, err)
		}
		return
	}
	if rec.NotifyEmail == "" || rec.NotifiedAt != nil {
		return
	}

	if err := s.notifier.NotifyJobFinished(ctx, rec.NotifyEmail, job); err != nil {
		log.Printf("batchService.notifyOnce: failed to notify %s for job %s: %v", rec.NotifyEmail, job.ID, err)
		return
	}
	if err := s.jobRepo.MarkNotified(ctx, job.ID, time.Now().UTC()); err != nil {
		log.Printf("batchService.notifyOnce: failed to mark job %s notified: %v", job.ID, err)
		return
	}
	log.Printf("batchService.notifyOnce: notified %s that job %s is %s", rec.NotifyEmail, job.ID, job.Status)
}

func (s *batchService) GetResults(ctx context.Context, apiKey, jobID string) (*ResultsOutput, error) {
	if apiKey == "" {
		return nil, domain.ErrMissingAPIKey
	}

	raw, job, err := NewLifecycle(s.gateways.WithKey(apiKey)).FetchOutput(ctx, jobID)
	if err != nil {
		return nil, err
	}

	res, err := reconstruct.Parse(raw)
	if err != nil {
		log.Printf("batchService.GetResults: output of job %s could not be parsed: %v", jobID, err)
		return nil, err
	}
	if res.Skipped > 0 || res.Duplicates > 0 {
		log.Printf("batchService.GetResults: job %s: %d rows, %d lines skipped, %d duplicate ids",
			jobID, len(res.Rows), res.Skipped, res.Duplicates)
	}

	return &ResultsOutput{Job: job, Result: res}, nil
}

func (s *batchService) ExportResults(ctx context.Context, apiKey, jobID string) (*ExportOutput, error) {
	if s.storage == nil {
		return nil, domain.ErrStorageDisabled
	}

	out, err := s.GetResults(ctx, apiKey, jobID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := csvexport.WriteResults(&buf, out.Result.Rows); err != nil {
		return nil, fmt.Errorf("writing result csv: %w", err)
	}

	filename := csvexport.BuildFilename(time.Now())
	key := fmt.Sprintf("%s/%s", jobID, filename)
	if prefix := strings.Trim(s.s3Cfg.Prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}

	size := int64(buf.Len())
	if _, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:             s.s3Cfg.Bucket,
		Key:                key,
		Body:               &buf,
		ContentType:        csvexport.ContentType,
		Size:               size,
		ContentDisposition: `attachment; filename="` + filename + `"`,
	}); err != nil {
		log.Printf("batchService.ExportResults: upload failed for job %s: %v", jobID, err)
		return nil, fmt.Errorf("uploading result csv: %w", err)
	}

	url, err := s.storage.GetPresignedURL(ctx, s.s3Cfg.Bucket, key, s.s3Cfg.PresignExpiry)
	if err != nil {
		return nil, fmt.Errorf("presigning result csv: %w", err)
	}

	log.Printf("batchService.ExportResults: exported %d rows of job %s to s3://%s/%s",
		len(out.Result.Rows), jobID, s.s3Cfg.Bucket, key)

	return &ExportOutput{
		Bucket:    s.s3Cfg.Bucket,
		Key:       key,
		URL:       url,
		ExpiresIn: s.s3Cfg.PresignExpiry,
		RowCount:  len(out.Result.Rows),
	}, nil
}

func (s *batchService) ListJobs(ctx context.Context, offset, limit int) ([]domain.JobRecord, int, error) {
	if s.jobRepo == nil {
		return nil, 0, domain.ErrLedgerDisabled
	}
	return s.jobRepo.List(ctx, offset, limit)
}

// truncate cuts s to max characters, marking the cut with "...".
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
