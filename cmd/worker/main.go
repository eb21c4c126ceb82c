package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/receipt-advisor/internal/chunk"
	"github.com/dvloznov/receipt-advisor/internal/config"
	"github.com/dvloznov/receipt-advisor/internal/corpus"
	"github.com/dvloznov/receipt-advisor/internal/extract"
	"github.com/dvloznov/receipt-advisor/internal/gcsfetch"
	"github.com/dvloznov/receipt-advisor/internal/gemini"
	"github.com/dvloznov/receipt-advisor/internal/ingest"
	"github.com/dvloznov/receipt-advisor/internal/journal"
	"github.com/dvloznov/receipt-advisor/internal/logger"
	"github.com/dvloznov/receipt-advisor/internal/vectorstore"
)

// Batch ingestion worker: fetches each receipt URI given on the command line
// from GCS and runs it through the ingestion pipeline.
//
//	worker gs://bucket/receipts/a.jpg gs://bucket/receipts/b.png
func main() {
	log := logger.New()

	flag.Parse()
	uris := flag.Args()
	if len(uris) == 0 {
		log.Fatal().Msg("Usage: worker <gcs-uri> [gcs-uri ...]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	jnl, err := journal.Open(filepath.Join(cfg.DataDir, "transactions.jsonl"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transaction journal")
	}
	defer jnl.Close()

	idx, err := vectorstore.Open(filepath.Join(cfg.DataDir, "index"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open vector index")
	}

	gem, err := gemini.NewClient(ctx, cfg.GeminiModel, cfg.EmbeddingModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	chunker, err := chunk.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid chunking configuration")
	}

	svc := ingest.NewService(
		gem,
		extract.New(cfg.FallbackCurrency),
		chunker,
		gem,
		idx,
		jnl,
		corpus.NewGuard(),
		logger.Component(log, "ingest"),
	)

	fetcher := gcsfetch.NewClient()

	var failed int
	for _, uri := range uris {
		log.Info().Str("gcs_uri", uri).Msg("Ingesting receipt")

		data, err := fetcher.FetchReceipt(ctx, uri)
		if err != nil {
			log.Error().Err(err).Str("gcs_uri", uri).Msg("Failed to fetch receipt")
			failed++
			continue
		}

		tx, err := svc.IngestReceipt(ctx, data, gcsfetch.MIMETypeFromURI(uri), time.Now().UTC())
		if err != nil {
			log.Error().Err(err).Str("gcs_uri", uri).Msg("Ingestion failed")
			failed++
			continue
		}

		log.Info().
			Str("gcs_uri", uri).
			Str("transaction_id", tx.ID).
			Str("merchant", tx.Merchant).
			Msg("Receipt ingested")
	}

	if failed > 0 {
		log.Error().Int("failed", failed).Int("total", len(uris)).Msg("Batch completed with failures")
		os.Exit(1)
	}

	log.Info().Int("total", len(uris)).Msg("Batch completed")
}
