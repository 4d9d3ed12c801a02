package zhipu

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchforge/internal/config"
	"batchforge/internal/domain"
)

func newTestGateway(serverURL string) *Gateway {
	c := NewClient(&config.ProviderConfig{BaseURL: serverURL + "/", TimeoutSecs: 5})
	return c.WithKey("test-key").(*Gateway)
}

func TestGateway_Upload_Success(t *testing.T) {
	doc := []byte(`{"custom_id":"request-1"}` + "\n" + `{"custom_id":"request-2"}`)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/files", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "batch", r.FormValue("purpose"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "batch_requests.jsonl", header.Filename)
		assert.Equal(t, "application/jsonl", header.Header.Get("Content-Type"))
		got, _ := io.ReadAll(file)
		assert.Equal(t, doc, got)

		_, _ = w.Write([]byte(`{"id":"file_123","object":"file"}`))
	}))
	defer server.Close()

	fileID, err := newTestGateway(server.URL).Upload(context.Background(), doc)

	require.NoError(t, err)
	assert.Equal(t, "file_123", fileID)
}

func TestGateway_Upload_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"1001","message":"invalid token"}}`))
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).Upload(context.Background(), []byte("x"))

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.Equal(t, `{"error":{"code":"1001","message":"invalid token"}}`, te.Body)
	assert.Equal(t, "upload", te.Op)
}

func TestGateway_Upload_MissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":"file"}`))
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).Upload(context.Background(), []byte("x"))

	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestGateway_CreateJob_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/batches", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"input_file_id":     "file_123",
			"endpoint":          "/v4/chat/completions",
			"completion_window": "24h",
		}, body)

		_, _ = w.Write([]byte(`{"id":"batch_abc","status":"validating"}`))
	}))
	defer server.Close()

	jobID, err := newTestGateway(server.URL).CreateJob(context.Background(), "file_123")

	require.NoError(t, err)
	assert.Equal(t, "batch_abc", jobID)
}

func TestGateway_FetchStatus_Completed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/batches/batch_abc", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "batch_abc",
			"status": "completed",
			"input_file_id": "file_123",
			"output_file_id": "file_xyz",
			"error_file_id": null,
			"created_at": 1717000000,
			"request_counts": {"total": 2, "completed": 2, "failed": 0}
		}`))
	}))
	defer server.Close()

	job, err := newTestGateway(server.URL).FetchStatus(context.Background(), "batch_abc")

	require.NoError(t, err)
	assert.Equal(t, "batch_abc", job.ID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, "file_123", job.InputFileID)
	assert.Equal(t, "file_xyz", job.OutputFileID)
	assert.Empty(t, job.ErrorFileID)
	assert.Equal(t, int64(1717000000), job.CreatedAt)
	assert.Equal(t, domain.RequestCounts{Total: 2, Completed: 2}, job.Counts)
	assert.True(t, job.OutputReady())
}

func TestGateway_FetchStatus_FailedWithErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"batch_bad","status":"failed","output_file_id":null,
			"errors":{"object":"list","data":[{"code":"invalid_json","message":"line 3 is not JSON","line":3}]}}`))
	}))
	defer server.Close()

	job, err := newTestGateway(server.URL).FetchStatus(context.Background(), "batch_bad")

	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Empty(t, job.OutputFileID)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, "invalid_json", job.Errors[0].Code)
	require.NotNil(t, job.Errors[0].Line)
	assert.Equal(t, 3, *job.Errors[0].Line)
}

func TestGateway_FetchStatus_MissingStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"batch_abc"}`))
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).FetchStatus(context.Background(), "batch_abc")

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	assert.Equal(t, `{"id":"batch_abc"}`, te.Body)
}

func TestGateway_FetchStatus_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`batch not found`))
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).FetchStatus(context.Background(), "nope")

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.Equal(t, "batch not found", te.Body)
}

func TestGateway_FetchOutputDocument_ReturnsRawBytes(t *testing.T) {
	raw := "{\"custom_id\":\"request-1\"}\nnot json\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/file_xyz/content", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(raw))
	}))
	defer server.Close()

	got, err := newTestGateway(server.URL).FetchOutputDocument(context.Background(), "file_xyz")

	require.NoError(t, err)
	assert.Equal(t, raw, string(got))
}

func TestGateway_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestGateway(url).FetchStatus(context.Background(), "batch_abc")

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.StatusCode)
	assert.NotNil(t, te.Err)
}

func TestGateway_NoRetryOnServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).CreateJob(context.Background(), "file_1")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(&config.ProviderConfig{})

	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, defaultEndpoint, c.endpoint)
	assert.Equal(t, defaultCompletionWindow, c.completionWindow)
}
