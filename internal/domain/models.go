package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CustomIDPrefix prefixes every correlation id assigned to a compiled request.
const CustomIDPrefix = "request-"

// Record is one extracted input row. OriginIndex is the 1-based position of
// the row in the original input and is kept for tracing only; correlation ids
// come from the record's position among the extracted records.
type Record struct {
	OriginIndex int    `json:"origin_index"`
	Text        string `json:"text"`
}

// CustomIDFor returns the correlation id of the seq-th (1-based) record of a
// batch. Ids are dense over the extracted records, so skipped input rows
// leave no gaps.
func CustomIDFor(seq int) string {
	return CustomIDPrefix + strconv.Itoa(seq)
}

// Message is one role/content pair of a chat-completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestBody is the chat-completion payload of a compiled request.
// Field order is the serialized key order.
type RequestBody struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
}

// CompiledRequest is one line of a batch input document.
type CompiledRequest struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     RequestBody `json:"body"`
}

// RequestCounts holds the provider's sub-request accounting for a job.
type RequestCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// JobError is one provider-reported job error.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    *int   `json:"line,omitempty"`
}

// Job is a snapshot of a remote batch job as last reported by the provider.
// A fresh Job is produced on every status fetch; it is never patched in place.
type Job struct {
	ID           string        `json:"id"`
	Status       JobStatus     `json:"status"`
	InputFileID  string        `json:"input_file_id"`
	OutputFileID string        `json:"output_file_id,omitempty"`
	ErrorFileID  string        `json:"error_file_id,omitempty"`
	Counts       RequestCounts `json:"request_counts"`
	CreatedAt    int64         `json:"created_at"`
	Errors       []JobError    `json:"errors,omitempty"`
}

// NewJob validates the identity fields of a job snapshot.
func NewJob(id string, status JobStatus) (*Job, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: job id is empty", ErrMalformedResponse)
	}
	if strings.TrimSpace(string(status)) == "" {
		return nil, fmt.Errorf("%w: job %s has no status", ErrMalformedResponse, id)
	}
	return &Job{ID: id, Status: status}, nil
}

// OutputReady reports whether the job's output document can be fetched.
func (j *Job) OutputReady() bool {
	return j.Status == JobStatusCompleted && j.OutputFileID != ""
}

// ResultRow is one reconstructed output record.
type ResultRow struct {
	CustomID string `json:"custom_id"`
	Text     string `json:"text"`
}

// JobRecord is the ledger entry kept for a submitted job so it can be queried
// again later. It stores submission facts only, never a status.
type JobRecord struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	JobID       string     `db:"job_id" json:"job_id"`
	InputFileID string     `db:"input_file_id" json:"input_file_id"`
	Model       string     `db:"model" json:"model"`
	SourceName  string     `db:"source_name" json:"source_name"`
	TotalRows   int        `db:"total_rows" json:"total_rows"`
	SkippedRows int        `db:"skipped_rows" json:"skipped_rows"`
	RecordCount int        `db:"record_count" json:"record_count"`
	NotifyEmail string     `db:"notify_email" json:"notify_email,omitempty"`
	NotifiedAt  *time.Time `db:"notified_at" json:"notified_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
