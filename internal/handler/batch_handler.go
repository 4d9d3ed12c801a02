package handler

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"batchforge/internal/compiler"
	"batchforge/internal/csvexport"
	"batchforge/internal/domain"
	"batchforge/internal/middleware"
	"batchforge/internal/service"
)

// BatchHandler handles batch job endpoints.
type BatchHandler struct {
	batchService   service.BatchService
	maxUploadBytes int64
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(batchService service.BatchService, maxUploadMB int64) *BatchHandler {
	return &BatchHandler{
		batchService:   batchService,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
	}
}

// JobView is the poll response: the job snapshot plus its display phase.
type JobView struct {
	*domain.Job
	Phase    domain.JobPhase `json:"phase"`
	Terminal bool            `json:"terminal"`
}

// ResultsView is the JSON form of a reconstructed result table.
type ResultsView struct {
	JobID      string             `json:"job_id"`
	Rows       []domain.ResultRow `json:"rows"`
	Lines      int                `json:"lines"`
	Skipped    int                `json:"skipped"`
	Duplicates int                `json:"duplicates"`
}

// bindBatchInput reads the multipart form shared by Create and Preview.
// Returns false if the request was rejected (error response already written).
func (h *BatchHandler) bindBatchInput(c *gin.Context) (service.BatchInput, bool) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size")
			return service.BatchInput{}, false
		}
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return service.BatchInput{}, false
	}
	defer func() { _ = file.Close() }()

	// Read eagerly so the multipart file can be closed before the service runs.
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(file); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_INPUT", "failed to read uploaded file")
		return service.BatchInput{}, false
	}

	params, err := h.parseParams(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_PARAMS", err.Error())
		return service.BatchInput{}, false
	}

	return service.BatchInput{
		APIKey:      middleware.GetAPIKey(c),
		SourceName:  header.Filename,
		Reader:      &buf,
		Params:      params,
		NotifyEmail: c.PostForm("notify_email"),
	}, true
}

// parseParams overlays the submitted form fields on the configured defaults.
func (h *BatchHandler) parseParams(c *gin.Context) (compiler.Params, error) {
	p := h.batchService.DefaultParams()

	if v, ok := c.GetPostForm("model"); ok && strings.TrimSpace(v) != "" {
		p.Model = strings.TrimSpace(v)
	}
	if v, ok := c.GetPostForm("system_prompt"); ok {
		p.SystemPrompt = v
	}
	if v, ok := c.GetPostForm("user_prompt"); ok && v != "" {
		p.UserPrompt = v
	}
	if v, ok := c.GetPostForm("max_tokens"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, &formError{field: "max_tokens", value: v}
		}
		p.MaxTokens = n
	}
	if v, ok := c.GetPostForm("temperature"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, &formError{field: "temperature", value: v}
		}
		p.Temperature = f
	}
	if v, ok := c.GetPostForm("top_p"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, &formError{field: "top_p", value: v}
		}
		p.TopP = f
	}
	return p, nil
}

type formError struct {
	field string
	value string
}

func (e *formError) Error() string {
	return "invalid " + e.field + ": " + strconv.Quote(e.value)
}

// Create handles POST /api/v1/batches
// @Summary Submit a batch job
// @Description Extract records from the first column of a CSV or XLSX file, compile them into chat-completion requests and submit them as one provider batch job
// @Tags batches
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX file, one record per row in the first column"
// @Param model formData string false "Model name"
// @Param system_prompt formData string false "System prompt"
// @Param user_prompt formData string false "User prompt template containing {content}"
// @Param max_tokens formData int false "Max tokens (1-4096)"
// @Param temperature formData number false "Temperature (0-1)"
// @Param top_p formData number false "Top-p (0-1)"
// @Param notify_email formData string false "Email to notify when the job finishes"
// @Success 201 {object} APIResponse{data=service.SubmitResult}
// @Failure 400 {object} APIResponse
// @Failure 401 {object} APIResponse
// @Failure 502 {object} APIResponse
// @Security BearerAuth
// @Router /batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	input, ok := h.bindBatchInput(c)
	if !ok {
		return
	}

	result, err := h.batchService.Submit(c.Request.Context(), input)
	if err != nil {
		HandleError(c, err)
		return
	}

	if result.PlaceholderMissing {
		log.Printf("batchHandler.Create: job %s submitted without %s in the user prompt", result.JobID, compiler.Placeholder)
	}
	RespondCreated(c, result)
}

// Preview handles POST /api/v1/batches/preview
// @Summary Preview a batch job
// @Description Report what would be submitted for the given file and parameters without contacting the provider
// @Tags batches
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX file"
// @Success 200 {object} APIResponse{data=service.PreviewResult}
// @Failure 400 {object} APIResponse
// @Router /batches/preview [post]
func (h *BatchHandler) Preview(c *gin.Context) {
	input, ok := h.bindBatchInput(c)
	if !ok {
		return
	}

	result, err := h.batchService.Preview(c.Request.Context(), input)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, result)
}

// List handles GET /api/v1/batches
// @Summary List submitted jobs
// @Tags batches
// @Produce json
// @Param offset query int false "Offset for pagination" default(0)
// @Param limit query int false "Limit for pagination (max 100)" default(20)
// @Success 200 {object} APIResponse{data=[]domain.JobRecord,meta=PagMeta}
// @Failure 501 {object} APIResponse "Ledger disabled"
// @Router /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)

	records, total, err := h.batchService.ListJobs(c.Request.Context(), offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondPaginated(c, records, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// GetStatus handles GET /api/v1/batches/:id
// @Summary Poll a batch job
// @Tags batches
// @Produce json
// @Param id path string true "Provider job ID"
// @Success 200 {object} APIResponse{data=JobView}
// @Failure 401 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Security BearerAuth
// @Router /batches/{id} [get]
func (h *BatchHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("id")

	job, err := h.batchService.GetStatus(c.Request.Context(), middleware.GetAPIKey(c), jobID)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, JobView{Job: job, Phase: job.Status.Phase(), Terminal: job.Status.IsTerminal()})
}

// GetResults handles GET /api/v1/batches/:id/results
// @Summary Download job results
// @Description Returns the reconstructed result table as JSON, or as a CSV attachment with format=csv
// @Tags batches
// @Produce json,text/csv
// @Param id path string true "Provider job ID"
// @Param format query string false "json (default) or csv"
// @Success 200 {object} APIResponse{data=ResultsView}
// @Failure 409 {object} APIResponse "Job not ready"
// @Failure 422 {object} APIResponse "Output document could not be parsed"
// @Security BearerAuth
// @Router /batches/{id}/results [get]
func (h *BatchHandler) GetResults(c *gin.Context) {
	jobID := c.Param("id")

	out, err := h.batchService.GetResults(c.Request.Context(), middleware.GetAPIKey(c), jobID)
	if err != nil {
		HandleError(c, err)
		return
	}

	if strings.EqualFold(c.Query("format"), "csv") {
		var buf bytes.Buffer
		if err := csvexport.WriteResults(&buf, out.Result.Rows); err != nil {
			log.Printf("batchHandler.GetResults: csv write error for job %s: %v", jobID, err)
			HandleError(c, err)
			return
		}
		filename := csvexport.BuildFilename(time.Now())
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, csvexport.ContentType, buf.Bytes())
		return
	}

	RespondOK(c, ResultsView{
		JobID:      jobID,
		Rows:       out.Result.Rows,
		Lines:      out.Result.Lines,
		Skipped:    out.Result.Skipped,
		Duplicates: out.Result.Duplicates,
	})
}

// Export handles POST /api/v1/batches/:id/export
// @Summary Export job results to object storage
// @Tags batches
// @Produce json
// @Param id path string true "Provider job ID"
// @Success 200 {object} APIResponse{data=service.ExportOutput}
// @Failure 409 {object} APIResponse "Job not ready"
// @Failure 501 {object} APIResponse "Storage disabled"
// @Security BearerAuth
// @Router /batches/{id}/export [post]
func (h *BatchHandler) Export(c *gin.Context) {
	jobID := c.Param("id")

	out, err := h.batchService.ExportResults(c.Request.Context(), middleware.GetAPIKey(c), jobID)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, out)
}

func parsePagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}
