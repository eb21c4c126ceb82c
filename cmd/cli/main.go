package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-advisor/internal/advisor"
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

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(log)
	case "upload":
		runUpload(log)
	case "ask":
		runAsk(log)
	case "list":
		runList(log)
	case "reset":
		runReset(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Receipt Advisor CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest    Ingest a local receipt image")
	fmt.Println("  upload    Upload a receipt image to GCS")
	fmt.Println("  ask       Ask a question about your spending")
	fmt.Println("  list      List stored transactions")
	fmt.Println("  reset     Clear the transaction journal and vector index")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// stack holds the wired components shared by the subcommands.
type stack struct {
	cfg     *config.Config
	journal *journal.Journal
	index   *vectorstore.Index
	guard   *corpus.Guard
	gem     *gemini.Client
}

func buildStack(ctx context.Context, log zerolog.Logger) *stack {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	jnl, err := journal.Open(filepath.Join(cfg.DataDir, "transactions.jsonl"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transaction journal")
	}

	idx, err := vectorstore.Open(filepath.Join(cfg.DataDir, "index"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open vector index")
	}

	gem, err := gemini.NewClient(ctx, cfg.GeminiModel, cfg.EmbeddingModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	return &stack{
		cfg:     cfg,
		journal: jnl,
		index:   idx,
		guard:   corpus.NewGuard(),
		gem:     gem,
	}
}

func (s *stack) ingestService(log zerolog.Logger) *ingest.Service {
	chunker, err := chunk.New(s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid chunking configuration")
	}

	return ingest.NewService(
		s.gem,
		extract.New(s.cfg.FallbackCurrency),
		chunker,
		s.gem,
		s.index,
		s.journal,
		s.guard,
		logger.Component(log, "ingest"),
	)
}

func runIngest(log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to local receipt image")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read receipt file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	s := buildStack(ctx, log)
	defer s.journal.Close()

	mimeType := gcsfetch.MIMETypeFromURI(*filePath)

	tx, err := s.ingestService(log).IngestReceipt(ctx, data, mimeType, time.Now().UTC())
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	fmt.Printf("Ingested %s: %s at %s", *filePath, tx.Category, tx.Merchant)
	if tx.Amount != nil {
		fmt.Printf(" for %.2f %s", *tx.Amount, tx.Currency)
	}
	if tx.NeedsReview {
		fmt.Print(" (needs review)")
	}
	fmt.Println()
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", "", "GCS bucket name")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local receipt image")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read receipt file")
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading receipt to GCS")

	uri, err := gcsfetch.NewClient().UploadReceipt(ctx, *bucketName, *objectName, data)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, uri)
}

func runAsk(log zerolog.Logger) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	question := fs.String("question", "", "Question about your spending")
	fs.Parse(os.Args[2:])

	if *question == "" {
		log.Fatal().Msg("Error: --question is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	s := buildStack(ctx, log)
	defer s.journal.Close()

	workflow := advisor.NewWorkflow(
		s.gem, s.index, s.journal, s.gem, s.gem,
		s.cfg.TopK,
		advisor.Timeouts{
			Retrieve: s.cfg.RetrieveTimeout,
			Analyze:  s.cfg.AnalyzeTimeout,
			Answer:   s.cfg.AnswerTimeout,
		},
		logger.Component(log, "advisor"),
	)

	result, err := workflow.Ask(ctx, *question)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to answer question")
	}

	fmt.Println("\n" + result.Answer.Response)
	if len(result.Answer.Tips) > 0 {
		fmt.Println("\nTips:")
		for _, tip := range result.Answer.Tips {
			fmt.Printf("  - %s\n", tip)
		}
	}
	if result.Degraded {
		fmt.Println("\n(analysis degraded: computed locally without the model)")
	}
}

func runList(log zerolog.Logger) {
	ctx := context.Background()

	s := buildStack(ctx, log)
	defer s.journal.Close()

	transactions, err := s.journal.List(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	fmt.Printf("=== Transactions (%d) ===\n", len(transactions))
	for i, tx := range transactions {
		fmt.Printf("\n%d. %s\n", i+1, tx.Merchant)
		fmt.Printf("   Date:     %s\n", tx.Date)
		if tx.Amount != nil {
			fmt.Printf("   Amount:   %.2f %s\n", *tx.Amount, tx.Currency)
		} else {
			fmt.Printf("   Amount:   unknown\n")
		}
		fmt.Printf("   Category: %s\n", tx.Category)
		if tx.NeedsReview {
			fmt.Printf("   Needs review\n")
		}
	}
	fmt.Println()
}

func runReset(log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s := buildStack(ctx, log)
	defer s.journal.Close()

	coordinator := corpus.NewResetCoordinator(s.guard, s.journal, s.index, logger.Component(log, "corpus"))
	if err := coordinator.Reset(ctx); err != nil {
		log.Fatal().Err(err).Msg("Reset failed")
	}

	fmt.Println("Journal and index cleared.")
}
