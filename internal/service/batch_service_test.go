package service_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"batchforge/internal/compiler"
	"batchforge/internal/config"
	"batchforge/internal/csvexport"
	"batchforge/internal/domain"
	"batchforge/internal/port"
	"batchforge/internal/service"
	"batchforge/mocks"
)

type serviceDeps struct {
	factory  *mocks.MockGatewayFactory
	gw       *mocks.MockBatchGateway
	jobRepo  *mocks.MockJobRepo
	storage  *mocks.MockObjectStorage
	notifier *mocks.MockNotifier
}

func testBatchConfig() *config.BatchConfig {
	return &config.BatchConfig{
		DefaultModel: "GLM-4-Air-250414",
		MaxTokens:    2048,
		Temperature:  0.7,
		TopP:         0.9,
	}
}

func testProviderConfig() *config.ProviderConfig {
	return &config.ProviderConfig{Endpoint: "/v4/chat/completions"}
}

func testS3Config() *config.S3Config {
	return &config.S3Config{Bucket: "results-bucket", Prefix: "results", PresignExpiry: 3600}
}

func newTestService() (service.BatchService, *serviceDeps) {
	d := &serviceDeps{
		factory:  new(mocks.MockGatewayFactory),
		gw:       new(mocks.MockBatchGateway),
		jobRepo:  new(mocks.MockJobRepo),
		storage:  new(mocks.MockObjectStorage),
		notifier: new(mocks.MockNotifier),
	}
	d.factory.On("WithKey", "sk-test").Return(d.gw).Maybe()
	svc := service.NewBatchService(d.factory, d.jobRepo, d.storage, d.notifier,
		testBatchConfig(), testProviderConfig(), testS3Config())
	return svc, d
}

func testInput(csv string) service.BatchInput {
	return service.BatchInput{
		APIKey:     "sk-test",
		SourceName: "input.csv",
		Reader:     strings.NewReader(csv),
		Params: compiler.Params{
			Model:       "GLM-4-Air-250414",
			UserPrompt:  "Summarize: {content}",
			MaxTokens:   100,
			Temperature: 0.7,
			TopP:        0.9,
		},
	}
}

func TestBatchService_DefaultParams(t *testing.T) {
	svc, _ := newTestService()

	p := svc.DefaultParams()

	assert.Equal(t, "GLM-4-Air-250414", p.Model)
	assert.Equal(t, compiler.Placeholder, p.UserPrompt)
	assert.Equal(t, 2048, p.MaxTokens)
	assert.Equal(t, "/v4/chat/completions", p.Endpoint)
	assert.NoError(t, p.Validate())
}

func TestBatchService_Preview_TruncatesSample(t *testing.T) {
	svc, d := newTestService()
	long := strings.Repeat("x", 250)

	res, err := svc.Preview(context.Background(), testInput("a\n  \n"+long+"\nc\nd\n"))

	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalRows)
	assert.Equal(t, 1, res.SkippedRows)
	assert.Equal(t, 4, res.RecordCount)
	assert.False(t, res.PlaceholderMissing)
	assert.Positive(t, res.DocumentBytes)
	require.Len(t, res.Sample, 3)
	assert.Equal(t, 1, res.Sample[0].OriginIndex)
	assert.Equal(t, 3, res.Sample[1].OriginIndex)
	assert.Equal(t, strings.Repeat("x", 200)+"...", res.Sample[1].Text)
	d.factory.AssertNotCalled(t, "WithKey", mock.Anything)
}

func TestBatchService_Submit_Success(t *testing.T) {
	svc, d := newTestService()

	d.gw.On("Upload", mock.Anything, mock.MatchedBy(func(doc []byte) bool {
		return bytes.Count(doc, []byte("\n")) == 1 && bytes.Contains(doc, []byte(`"custom_id":"request-2"`))
	})).Return("file_1", nil)
	d.gw.On("CreateJob", mock.Anything, "file_1").Return("batch_1", nil)
	d.jobRepo.On("Create", mock.Anything, mock.MatchedBy(func(rec *domain.JobRecord) bool {
		return rec.JobID == "batch_1" && rec.InputFileID == "file_1" && rec.RecordCount == 2 && rec.SkippedRows == 1 &&
			rec.SourceName == "input.csv" && rec.NotifyEmail == "ops@example.com"
	})).Return(nil)

	input := testInput("first\n  \nthird\n")
	input.NotifyEmail = " ops@example.com "
	res, err := svc.Submit(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, &service.SubmitResult{
		JobID:       "batch_1",
		TotalRows:   3,
		SkippedRows: 1,
		RecordCount: 2,
	}, res)
	d.gw.AssertExpectations(t)
	d.jobRepo.AssertExpectations(t)
}

func TestBatchService_Submit_PlaceholderMissing(t *testing.T) {
	svc, d := newTestService()

	d.gw.On("Upload", mock.Anything, mock.Anything).Return("file_1", nil)
	d.gw.On("CreateJob", mock.Anything, "file_1").Return("batch_1", nil)
	d.jobRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	input := testInput("a\nb\n")
	input.Params.UserPrompt = "Say hello"
	res, err := svc.Submit(context.Background(), input)

	require.NoError(t, err)
	assert.True(t, res.PlaceholderMissing)
}

func TestBatchService_Submit_LedgerFailureStillReturnsJob(t *testing.T) {
	svc, d := newTestService()

	d.gw.On("Upload", mock.Anything, mock.Anything).Return("file_1", nil)
	d.gw.On("CreateJob", mock.Anything, "file_1").Return("batch_1", nil)
	d.jobRepo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	res, err := svc.Submit(context.Background(), testInput("a\n"))

	require.NoError(t, err)
	assert.Equal(t, "batch_1", res.JobID)
}

func TestBatchService_Submit_NoRecords(t *testing.T) {
	svc, d := newTestService()

	_, err := svc.Submit(context.Background(), testInput("\n  \n"))

	assert.ErrorIs(t, err, domain.ErrNoRecords)
	d.gw.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestBatchService_Preview_AllRowsSkipped(t *testing.T) {
	svc, d := newTestService()

	res, err := svc.Preview(context.Background(), testInput("  \n,x\n  \n"))

	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, 3, res.SkippedRows)
	assert.Equal(t, 0, res.RecordCount)
	assert.Empty(t, res.Sample)
	d.factory.AssertNotCalled(t, "WithKey", mock.Anything)
}

func TestBatchService_Submit_InvalidParams(t *testing.T) {
	svc, d := newTestService()

	input := testInput("a\n")
	input.Params.MaxTokens = 5000
	_, err := svc.Submit(context.Background(), input)

	assert.ErrorIs(t, err, domain.ErrInvalidParams)
	d.gw.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestBatchService_Submit_MissingAPIKey(t *testing.T) {
	svc, _ := newTestService()

	input := testInput("a\n")
	input.APIKey = ""
	_, err := svc.Submit(context.Background(), input)

	assert.ErrorIs(t, err, domain.ErrMissingAPIKey)
}

func TestBatchService_Submit_UnreadableInput(t *testing.T) {
	svc, _ := newTestService()

	input := testInput("")
	input.Reader = bytes.NewReader([]byte{0xff, 0xfe, 0x00})
	_, err := svc.Submit(context.Background(), input)

	var ie *domain.InputError
	assert.True(t, errors.As(err, &ie))
}

func TestBatchService_Submit_UploadFailureSkipsLedger(t *testing.T) {
	svc, d := newTestService()

	d.gw.On("Upload", mock.Anything, mock.Anything).
		Return("", &domain.TransportError{Op: "upload", StatusCode: 401, Body: "bad key"})

	_, err := svc.Submit(context.Background(), testInput("a\n"))

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	d.gw.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	d.jobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestBatchService_GetStatus_NotifiesOnceOnTerminal(t *testing.T) {
	svc, d := newTestService()
	job := &domain.Job{ID: "batch_1", Status: domain.JobStatusCompleted, OutputFileID: "out_1"}

	d.gw.On("FetchStatus", mock.Anything, "batch_1").Return(job, nil)
	d.jobRepo.On("GetByJobID", mock.Anything, "batch_1").
		Return(&domain.JobRecord{JobID: "batch_1", NotifyEmail: "ops@example.com"}, nil)
	d.notifier.On("NotifyJobFinished", mock.Anything, "ops@example.com", job).Return(nil)
	d.jobRepo.On("MarkNotified", mock.Anything, "batch_1", mock.AnythingOfType("time.Time")).Return(nil)

	got, err := svc.GetStatus(context.Background(), "sk-test", "batch_1")

	require.NoError(t, err)
	assert.Equal(t, job, got)
	d.notifier.AssertExpectations(t)
	d.jobRepo.AssertExpectations(t)
}

func TestBatchService_GetStatus_AlreadyNotified(t *testing.T) {
	svc, d := newTestService()
	notifiedAt := time.Now()

	d.gw.On("FetchStatus", mock.Anything, "batch_1").
		Return(&domain.Job{ID: "batch_1", Status: domain.JobStatusFailed}, nil)
	d.jobRepo.On("GetByJobID", mock.Anything, "batch_1").
		Return(&domain.JobRecord{JobID: "batch_1", NotifyEmail: "ops@example.com", NotifiedAt: &notifiedAt}, nil)

	_, err := svc.GetStatus(context.Background(), "sk-test", "batch_1")

	require.NoError(t, err)
	d.notifier.AssertNotCalled(t, "NotifyJobFinished", mock.Anything, mock.Anything, mock.Anything)
}

func TestBatchService_GetStatus_NonTerminalSkipsLedger(t *testing.T) {
	svc, d := newTestService()

	d.gw.On("FetchStatus", mock.Anything, "batch_1").
		Return(&domain.Job{ID: "batch_1", Status: domain.JobStatusInProgress}, nil)

	job, err := svc.GetStatus(context.Background(), "sk-test", "batch_1")

	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusInProgress, job.Status)
	d.jobRepo.AssertNotCalled(t, "GetByJobID", mock.Anything, mock.Anything)
}

func TestBatchService_GetStatus_NotifierFailureIsNotFatal(t *testing.T) {
	svc, d := newTestService()
	job := &domain.Job{ID: "batch_1", Status: domain.JobStatusExpired}

	d.gw.On("FetchStatus", mock.Anything, "batch_1").Return(job, nil)
	d.jobRepo.On("GetByJobID", mock.Anything, "batch_1").
		Return(&domain.JobRecord{JobID: "batch_1", NotifyEmail: "ops@example.com"}, nil)
	d.notifier.On("NotifyJobFinished", mock.Anything, "ops@example.com", job).Return(errors.New("ses down"))

	_, err := svc.GetStatus(context.Background(), "sk-test", "batch_1")

	require.NoError(t, err)
	d.jobRepo.AssertNotCalled(t, "MarkNotified", mock.Anything, mock.Anything, mock.Anything)
}

func TestBatchService_GetResults_Success(t *testing.T) {
	svc, d := newTestService()
	raw := []byte(`{"custom_id":"request-2","response":{"body":{"choices":[{"message":{"content":"B"}}]}}}` + "\n" +
		`{"custom_id":"request-1","response":{"body":{"choices":[{"message":{"content":"A"}}]}}}`)

	d.gw.On("FetchStatus", mock.Anything, "batch_1").
		Return(&domain.Job{ID: "batch_1", Status: domain.JobStatusCompleted, OutputFileID: "out_1"}, nil)
	d.gw.On("FetchOutputDocument", mock.Anything, "out_1").Return(raw, nil)

	out, err := svc.GetResults(context.Background(), "sk-test", "batch_1")

	require.NoError(t, err)
	assert.Equal(t, []domain.ResultRow{
		{CustomID: "request-1", Text: "A"},
		{CustomID: "request-2", Text: "B"},
	}, out.Result.Rows)
	assert.Equal(t, "batch_1", out.Job.ID)
}

func TestBatchService_GetResults_NotReady(t *testing.T) {
	svc, d := newTestService()

	d.gw.On("FetchStatus", mock.Anything, "batch_1").
		Return(&domain.Job{ID: "batch_1", Status: domain.JobStatusValidating}, nil)

	_, err := svc.GetResults(context.Background(), "sk-test", "batch_1")

	var nr *domain.NotReadyError
	assert.True(t, errors.As(err, &nr))
}

func TestBatchService_GetResults_ParseError(t *testing.T) {
	svc, d := newTestService()

	d.gw.On("FetchStatus", mock.Anything, "batch_1").
		Return(&domain.Job{ID: "batch_1", Status: domain.JobStatusCompleted, OutputFileID: "out_1"}, nil)
	d.gw.On("FetchOutputDocument", mock.Anything, "out_1").Return([]byte("garbage"), nil)

	_, err := svc.GetResults(context.Background(), "sk-test", "batch_1")

	var pe *domain.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, []byte("garbage"), pe.Raw)
}

func TestBatchService_ExportResults_Success(t *testing.T) {
	svc, d := newTestService()
	raw := []byte(`{"custom_id":"request-1","response":{"body":{"choices":[{"message":{"content":"A"}}]}}}`)

	d.gw.On("FetchStatus", mock.Anything, "batch_1").
		Return(&domain.Job{ID: "batch_1", Status: domain.JobStatusCompleted, OutputFileID: "out_1"}, nil)
	d.gw.On("FetchOutputDocument", mock.Anything, "out_1").Return(raw, nil)

	var uploaded []byte
	var uploadedKey, disposition string
	d.storage.On("Upload", mock.Anything, mock.AnythingOfType("port.UploadInput")).
		Run(func(args mock.Arguments) {
			in := args.Get(1).(port.UploadInput)
			uploadedKey = in.Key
			disposition = in.ContentDisposition
			uploaded, _ = io.ReadAll(in.Body)
		}).
		Return(&port.UploadOutput{Location: "s3://results-bucket/x"}, nil)
	d.storage.On("GetPresignedURL", mock.Anything, "results-bucket", mock.AnythingOfType("string"), int64(3600)).
		Return("https://signed.example.com/x", nil)

	out, err := svc.ExportResults(context.Background(), "sk-test", "batch_1")

	require.NoError(t, err)
	assert.Equal(t, "https://signed.example.com/x", out.URL)
	assert.Equal(t, 1, out.RowCount)
	assert.True(t, strings.HasPrefix(uploadedKey, "results/batch_1/batch_results_"))
	assert.True(t, strings.HasSuffix(uploadedKey, ".csv"))
	assert.Equal(t, uploadedKey, out.Key)
	assert.Equal(t, `attachment; filename="`+path.Base(uploadedKey)+`"`, disposition)
	assert.True(t, bytes.HasPrefix(uploaded, csvexport.BOM))
	assert.Contains(t, string(uploaded), "ID,Result\nrequest-1,A\n")
}

func TestBatchService_ExportResults_StorageDisabled(t *testing.T) {
	svc := service.NewBatchService(new(mocks.MockGatewayFactory), nil, nil, nil,
		testBatchConfig(), testProviderConfig(), testS3Config())

	_, err := svc.ExportResults(context.Background(), "sk-test", "batch_1")

	assert.ErrorIs(t, err, domain.ErrStorageDisabled)
}

func TestBatchService_ListJobs(t *testing.T) {
	svc, d := newTestService()
	recs := []domain.JobRecord{{JobID: "batch_2"}, {JobID: "batch_1"}}

	d.jobRepo.On("List", mock.Anything, 0, 20).Return(recs, 2, nil)

	got, total, err := svc.ListJobs(context.Background(), 0, 20)

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, recs, got)
}

func TestBatchService_ListJobs_LedgerDisabled(t *testing.T) {
	svc := service.NewBatchService(new(mocks.MockGatewayFactory), nil, nil, nil,
		testBatchConfig(), testProviderConfig(), testS3Config())

	_, _, err := svc.ListJobs(context.Background(), 0, 20)

	assert.ErrorIs(t, err, domain.ErrLedgerDisabled)
}
