package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-advisor/internal/advisor"
	"github.com/dvloznov/receipt-advisor/internal/api/middleware"
	"github.com/dvloznov/receipt-advisor/internal/corpus"
	"github.com/dvloznov/receipt-advisor/internal/domain"
	"github.com/dvloznov/receipt-advisor/internal/ingest"
	"github.com/dvloznov/receipt-advisor/internal/jobs"
)

// maxReceiptBytes caps a synchronous receipt upload.
const maxReceiptBytes = 10 << 20

// ReceiptsHandler handles receipt upload and ingestion endpoints.
type ReceiptsHandler struct {
	ingest    *ingest.Service
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(ingest *ingest.Service, publisher jobs.Publisher, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		ingest:    ingest,
		publisher: publisher,
		log:       log,
	}
}

// UploadReceipt handles POST /api/receipts
// It accepts either a multipart form with a "file" field or a raw image
// body, ingests the receipt synchronously, and returns the stored
// transaction.
func (h *ReceiptsHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, contentType, err := readReceiptUpload(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Empty receipt upload")
		return
	}
	if len(data) > maxReceiptBytes {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Receipt exceeds upload limit")
		return
	}

	tx, err := h.ingest.IngestReceipt(ctx, data, contentType, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ingest.ErrParseFailure) {
			middleware.WriteError(w, http.StatusUnprocessableEntity, "Receipt is unreadable")
			return
		}
		h.log.Error().Err(err).Msg("Failed to ingest receipt")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to ingest receipt")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// readReceiptUpload pulls the receipt bytes and content type out of the
// request, from the "file" part of a multipart form or the raw body.
func readReceiptUpload(r *http.Request) ([]byte, string, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("multipart upload requires a \"file\" field")
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxReceiptBytes+1))
		if err != nil {
			return nil, "", fmt.Errorf("failed to read uploaded file")
		}

		partType := header.Header.Get("Content-Type")
		if partType == "" {
			partType = "image/jpeg"
		}
		return data, partType, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxReceiptBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read request body")
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}

// EnqueueIngestion handles POST /api/receipts/enqueue
// It schedules asynchronous ingestion of a receipt already stored in GCS.
func (h *ReceiptsHandler) EnqueueIngestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GCSURI   string `json:"gcs_uri"`
		MIMEType string `json:"mime_type"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.GCSURI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "gcs_uri is required")
		return
	}

	ctx := r.Context()

	job := &jobs.IngestReceiptJob{
		GCSURI:     req.GCSURI,
		MIMEType:   req.MIMEType,
		UploadTime: time.Now().UTC(),
	}

	if err := h.publisher.PublishIngestReceipt(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue ingestion job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingestion job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("gcs_uri", req.GCSURI).Msg("Ingestion job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  job.JobID,
		"gcs_uri": req.GCSURI,
		"status":  string(job.Status),
	})
}

// AdvisorHandler handles spending questions.
type AdvisorHandler struct {
	workflow *advisor.Workflow
	log      zerolog.Logger
}

// NewAdvisorHandler creates a new advisor handler.
func NewAdvisorHandler(workflow *advisor.Workflow, log zerolog.Logger) *AdvisorHandler {
	return &AdvisorHandler{
		workflow: workflow,
		log:      log,
	}
}

// Ask handles POST /api/ask
func (h *AdvisorHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Question == "" {
		middleware.WriteError(w, http.StatusBadRequest, "question is required")
		return
	}

	result, err := h.workflow.Ask(r.Context(), req.Question)
	if err != nil {
		var stageErr *advisor.StageError
		if errors.As(err, &stageErr) {
			h.log.Error().Err(err).Str("stage", string(stageErr.Stage)).Msg("Question failed")
			middleware.WriteJSON(w, http.StatusBadGateway, map[string]string{
				"error": "Failed to answer question",
				"stage": string(stageErr.Stage),
			})
			return
		}
		h.log.Error().Err(err).Msg("Question failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to answer question")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// TransactionLister reads the stored transactions.
type TransactionLister interface {
	List(ctx context.Context) ([]domain.Transaction, error)
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	journal TransactionLister
	log     zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(journal TransactionLister, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		journal: journal,
		log:     log,
	}
}

// ListTransactions handles GET /api/transactions
// Optional start_date/end_date query parameters (YYYY-MM-DD) filter the range.
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	var startDate, endDate civil.Date
	var err error

	if s := query.Get("start_date"); s != "" {
		startDate, err = civil.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
	}
	if s := query.Get("end_date"); s != "" {
		endDate, err = civil.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
	}

	transactions, err := h.journal.List(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	filtered := make([]domain.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if startDate.IsValid() && tx.Date.Before(startDate) {
			continue
		}
		if endDate.IsValid() && tx.Date.After(endDate) {
			continue
		}
		filtered = append(filtered, tx)
	}

	middleware.WriteJSON(w, http.StatusOK, filtered)
}

// ResetHandler handles corpus reset.
type ResetHandler struct {
	coordinator *corpus.ResetCoordinator
	log         zerolog.Logger
}

// NewResetHandler creates a new reset handler.
func NewResetHandler(coordinator *corpus.ResetCoordinator, log zerolog.Logger) *ResetHandler {
	return &ResetHandler{
		coordinator: coordinator,
		log:         log,
	}
}

// Reset handles POST /api/reset
// It clears both the transaction journal and the vector index.
func (h *ResetHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.Reset(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Corpus reset failed")

		var resetErr *corpus.ResetError
		if errors.As(err, &resetErr) {
			middleware.WriteJSON(w, http.StatusInternalServerError, map[string]string{
				"error":  "Reset failed",
				"detail": resetErr.Error(),
			})
			return
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Reset failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		GCSURI: query.Get("gcs_uri"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
