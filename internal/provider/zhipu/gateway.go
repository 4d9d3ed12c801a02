// Package zhipu implements port.BatchGateway against the Zhipu batch API.
package zhipu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"batchforge/internal/config"
	"batchforge/internal/domain"
	"batchforge/internal/port"
)

const (
	defaultBaseURL          = "https://open.bigmodel.cn/api/paas/v4"
	defaultEndpoint         = "/v4/chat/completions"
	defaultCompletionWindow = "24h"

	uploadFilename    = "batch_requests.jsonl"
	uploadContentType = "application/jsonl"
	uploadPurpose     = "batch"
)

// Client holds the transport settings shared by every credential.
type Client struct {
	baseURL          string
	endpoint         string
	completionWindow string
	http             *http.Client
}

// NewClient creates a provider client from config.
func NewClient(cfg *config.ProviderConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	window := cfg.CompletionWindow
	if window == "" {
		window = defaultCompletionWindow
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:          baseURL,
		endpoint:         endpoint,
		completionWindow: window,
		http:             &http.Client{Timeout: timeout},
	}
}

// WithKey returns a gateway that authenticates every call with apiKey.
func (c *Client) WithKey(apiKey string) port.BatchGateway {
	return &Gateway{client: c, apiKey: apiKey}
}

// Gateway is a credential-bound view of Client.
type Gateway struct {
	client *Client
	apiKey string
}

type fileObject struct {
	ID string `json:"id"`
}

type createBatchRequest struct {
	InputFileID      string `json:"input_file_id"`
	Endpoint         string `json:"endpoint"`
	CompletionWindow string `json:"completion_window"`
}

// batchObject models GET /batches/{id}. Nullable provider fields are pointers.
type batchObject struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	InputFileID   string  `json:"input_file_id"`
	OutputFileID  *string `json:"output_file_id"`
	ErrorFileID   *string `json:"error_file_id"`
	CreatedAt     int64   `json:"created_at"`
	RequestCounts *struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"request_counts"`
	Errors *struct {
		Data []domain.JobError `json:"data"`
	} `json:"errors"`
}

// Upload posts document as a multipart file tagged for batch use.
func (g *Gateway) Upload(ctx context.Context, document []byte) (string, error) {
	const op = "upload"

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, uploadFilename))
	h.Set("Content-Type", uploadContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(document); err != nil {
		return "", fmt.Errorf("writing file part: %w", err)
	}
	if err := mw.WriteField("purpose", uploadPurpose); err != nil {
		return "", fmt.Errorf("writing purpose field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing multipart body: %w", err)
	}

	respBody, err := g.do(ctx, op, http.MethodPost, "/files", mw.FormDataContentType(), body)
	if err != nil {
		return "", err
	}

	var file fileObject
	if err := json.Unmarshal(respBody, &file); err != nil || file.ID == "" {
		return "", malformed(op, respBody, err)
	}
	return file.ID, nil
}

// CreateJob registers a batch job over an uploaded input file.
func (g *Gateway) CreateJob(ctx context.Context, fileID string) (string, error) {
	const op = "create batch"

	reqBytes, err := json.Marshal(createBatchRequest{
		InputFileID:      fileID,
		Endpoint:         g.client.endpoint,
		CompletionWindow: g.client.completionWindow,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	respBody, err := g.do(ctx, op, http.MethodPost, "/batches", "application/json", bytes.NewReader(reqBytes))
	if err != nil {
		return "", err
	}

	var batch batchObject
	if err := json.Unmarshal(respBody, &batch); err != nil || batch.ID == "" {
		return "", malformed(op, respBody, err)
	}
	return batch.ID, nil
}

// FetchStatus retrieves the current job snapshot.
func (g *Gateway) FetchStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	const op = "fetch status"

	respBody, err := g.do(ctx, op, http.MethodGet, "/batches/"+url.PathEscape(jobID), "", nil)
	if err != nil {
		return nil, err
	}

	var batch batchObject
	if err := json.Unmarshal(respBody, &batch); err != nil {
		return nil, malformed(op, respBody, err)
	}
	return toJob(op, respBody, &batch)
}

// FetchOutputDocument downloads the raw output document of a completed job.
func (g *Gateway) FetchOutputDocument(ctx context.Context, fileID string) ([]byte, error) {
	return g.do(ctx, "fetch output", http.MethodGet, "/files/"+url.PathEscape(fileID)+"/content", "", nil)
}

func toJob(op string, raw []byte, b *batchObject) (*domain.Job, error) {
	job, err := domain.NewJob(b.ID, domain.JobStatus(b.Status))
	if err != nil {
		return nil, &domain.TransportError{Op: op, StatusCode: http.StatusOK, Body: string(raw), Err: err}
	}
	job.InputFileID = b.InputFileID
	job.CreatedAt = b.CreatedAt
	if b.OutputFileID != nil {
		job.OutputFileID = *b.OutputFileID
	}
	if b.ErrorFileID != nil {
		job.ErrorFileID = *b.ErrorFileID
	}
	if b.RequestCounts != nil {
		job.Counts = domain.RequestCounts{
			Total:     b.RequestCounts.Total,
			Completed: b.RequestCounts.Completed,
			Failed:    b.RequestCounts.Failed,
		}
	}
	if b.Errors != nil {
		job.Errors = b.Errors.Data
	}
	return job, nil
}

// do performs one authenticated round trip and returns the body of a 2xx response.
func (g *Gateway) do(ctx context.Context, op, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.client.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.http.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func malformed(op string, raw []byte, cause error) error {
	err := domain.ErrMalformedResponse
	if cause != nil {
		err = fmt.Errorf("%w: %v", domain.ErrMalformedResponse, cause)
	}
	return &domain.TransportError{Op: op, StatusCode: http.StatusOK, Body: string(raw), Err: err}
}
