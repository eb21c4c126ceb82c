package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/receipt-advisor/internal/advisor"
	"github.com/dvloznov/receipt-advisor/internal/api/handlers"
	"github.com/dvloznov/receipt-advisor/internal/api/middleware"
	"github.com/dvloznov/receipt-advisor/internal/chunk"
	"github.com/dvloznov/receipt-advisor/internal/config"
	"github.com/dvloznov/receipt-advisor/internal/corpus"
	"github.com/dvloznov/receipt-advisor/internal/extract"
	"github.com/dvloznov/receipt-advisor/internal/gcsfetch"
	"github.com/dvloznov/receipt-advisor/internal/gemini"
	"github.com/dvloznov/receipt-advisor/internal/ingest"
	"github.com/dvloznov/receipt-advisor/internal/jobs"
	"github.com/dvloznov/receipt-advisor/internal/jobs/inmemory"
	"github.com/dvloznov/receipt-advisor/internal/journal"
	"github.com/dvloznov/receipt-advisor/internal/logger"
	"github.com/dvloznov/receipt-advisor/internal/vectorstore"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.GCSBucket == "" {
		log.Warn().Msg("No GCS bucket configured - async receipt ingestion from GCS will fail")
	}

	ctx := context.Background()

	// Initialize stores
	jnl, err := journal.Open(filepath.Join(cfg.DataDir, "transactions.jsonl"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transaction journal")
	}
	defer jnl.Close()

	idx, err := vectorstore.Open(filepath.Join(cfg.DataDir, "index"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open vector index")
	}

	guard := corpus.NewGuard()
	coordinator := corpus.NewResetCoordinator(guard, jnl, idx, logger.Component(log, "corpus"))

	// Initialize Gemini client
	gem, err := gemini.NewClient(ctx, cfg.GeminiModel, cfg.EmbeddingModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	chunker, err := chunk.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid chunking configuration")
	}

	ingestSvc := ingest.NewService(
		gem,
		extract.New(cfg.FallbackCurrency),
		chunker,
		gem,
		idx,
		jnl,
		guard,
		logger.Component(log, "ingest"),
	)

	workflow := advisor.NewWorkflow(
		gem, idx, jnl, gem, gem,
		cfg.TopK,
		advisor.Timeouts{
			Retrieve: cfg.RetrieveTimeout,
			Analyze:  cfg.AnalyzeTimeout,
			Answer:   cfg.AnswerTimeout,
		},
		logger.Component(log, "advisor"),
	)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 5, jobStore)
	fetcher := gcsfetch.NewClient()

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	// Job handler for async receipt ingestion from GCS
	jobHandler := func(ctx context.Context, job jobs.Job) error {
		ingestJob, ok := job.(*jobs.IngestReceiptJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", ingestJob.JobID).
			Str("gcs_uri", ingestJob.GCSURI).
			Msg("Processing ingestion job")

		data, err := fetcher.FetchReceipt(ctx, ingestJob.GCSURI)
		if err != nil {
			log.Error().Err(err).Str("job_id", ingestJob.JobID).Msg("Failed to fetch receipt")
			return err
		}

		mimeType := ingestJob.MIMEType
		if mimeType == "" {
			mimeType = gcsfetch.MIMETypeFromURI(ingestJob.GCSURI)
		}

		tx, err := ingestSvc.IngestReceipt(ctx, data, mimeType, ingestJob.UploadTime)
		if err != nil {
			log.Error().Err(err).Str("job_id", ingestJob.JobID).Msg("Receipt ingestion failed")
			return err
		}
		ingestJob.TransactionID = tx.ID

		log.Info().
			Str("job_id", ingestJob.JobID).
			Str("transaction_id", tx.ID).
			Msg("Ingestion job completed")

		return nil
	}

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	receiptsHandler := handlers.NewReceiptsHandler(ingestSvc, jobQueue, log)
	advisorHandler := handlers.NewAdvisorHandler(workflow, log)
	transactionsHandler := handlers.NewTransactionsHandler(jnl, log)
	resetHandler := handlers.NewResetHandler(coordinator, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/api/receipts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			receiptsHandler.UploadReceipt(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/receipts/enqueue", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			receiptsHandler.EnqueueIngestion(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/ask", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			advisorHandler.Ask(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			transactionsHandler.ListTransactions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			resetHandler.Reset(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
