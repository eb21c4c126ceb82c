package ingest_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-advisor/internal/chunk"
	"github.com/dvloznov/receipt-advisor/internal/corpus"
	"github.com/dvloznov/receipt-advisor/internal/extract"
	"github.com/dvloznov/receipt-advisor/internal/ingest"
	"github.com/dvloznov/receipt-advisor/internal/journal"
	"github.com/dvloznov/receipt-advisor/internal/logger"
	"github.com/dvloznov/receipt-advisor/internal/vectorstore"
)

const sampleReceipt = "SuperMart\n2024-03-01\nMilk 3.50\nBread 2.00\nTOTAL 5.50"

var uploadTime = time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

// MockTextExtractor is a hand-rolled OCR mock.
type MockTextExtractor struct {
	ExtractTextFunc func(ctx context.Context, data []byte, mimeType string) (string, error)
}

func (m *MockTextExtractor) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	return m.ExtractTextFunc(ctx, data, mimeType)
}

// MockEmbedder produces deterministic vectors from the text contents so
// retrieval behaves consistently in tests.
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	var sum float32
	for _, r := range text {
		sum += float32(r)
	}
	return []float32{sum, float32(len(text)), 1}, nil
}

type fixture struct {
	service *ingest.Service
	journal *journal.Journal
	index   *vectorstore.Index
}

func newFixture(t *testing.T, ocrText string, ocrErr error) *fixture {
	t.Helper()

	j, err := journal.Open(filepath.Join(t.TempDir(), "transactions.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })

	splitter, err := chunk.New(120, 20)
	if err != nil {
		t.Fatal(err)
	}

	idx := vectorstore.NewMemory()
	ocr := &MockTextExtractor{
		ExtractTextFunc: func(ctx context.Context, data []byte, mimeType string) (string, error) {
			return ocrText, ocrErr
		},
	}

	svc := ingest.NewService(
		ocr,
		extract.New("USD"),
		splitter,
		&MockEmbedder{},
		idx,
		j,
		corpus.NewGuard(),
		logger.NewWithWriter(io.Discard),
	)
	return &fixture{service: svc, journal: j, index: idx}
}

func TestIngestReceiptEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleReceipt, nil)

	tx, err := f.service.IngestReceipt(ctx, []byte("image-bytes"), "image/png", uploadTime)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if tx.ID == "" {
		t.Error("transaction ID not assigned")
	}
	if want := (civil.Date{Year: 2024, Month: 3, Day: 1}); tx.Date != want {
		t.Errorf("date = %v, want %v", tx.Date, want)
	}
	if tx.Merchant != "SuperMart" {
		t.Errorf("merchant = %q, want SuperMart", tx.Merchant)
	}
	if tx.Amount == nil || *tx.Amount != 5.50 {
		t.Errorf("amount = %v, want 5.50", tx.Amount)
	}
	if tx.Category != "Groceries" {
		t.Errorf("category = %q, want Groceries", tx.Category)
	}

	// Journaled.
	txs, err := f.journal.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || txs[0].ID != tx.ID {
		t.Fatalf("journal state: %+v", txs)
	}

	// Indexed, and chunks point back at the transaction.
	if f.index.Len() == 0 {
		t.Fatal("no chunks indexed")
	}
	matches, err := f.index.Query(ctx, mustEmbed(t, "How much did I spend at SuperMart?"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 {
		t.Fatal("no retrieval matches")
	}
	for _, m := range matches {
		if m.Chunk.TransactionID != tx.ID {
			t.Errorf("chunk %s owned by %s, want %s", m.Chunk.ID, m.Chunk.TransactionID, tx.ID)
		}
	}
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	vec, err := (&MockEmbedder{}).Embed(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	return vec
}

func TestIngestGarbledTextStillStores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "zxqw jkl pqow", nil)

	tx, err := f.service.IngestReceipt(ctx, []byte("image"), "image/png", uploadTime)
	if err != nil {
		t.Fatalf("garbled text should still ingest, got: %v", err)
	}

	if !tx.NeedsReview {
		t.Error("needs_review = false, want true")
	}
	if tx.Amount != nil {
		t.Errorf("amount = %v, want nil", *tx.Amount)
	}
	if tx.Date != civil.DateOf(uploadTime) {
		t.Errorf("date = %v, want upload date", tx.Date)
	}

	txs, _ := f.journal.List(ctx)
	if len(txs) != 1 {
		t.Errorf("journal has %d transactions, want 1", len(txs))
	}
}

func TestIngestEmptyOCRIsParseFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "   \n  ", nil)

	_, err := f.service.IngestReceipt(ctx, []byte("image"), "image/png", uploadTime)
	if !errors.Is(err, ingest.ErrParseFailure) {
		t.Fatalf("expected ErrParseFailure, got %v", err)
	}

	txs, _ := f.journal.List(ctx)
	if len(txs) != 0 {
		t.Errorf("journal has %d transactions after parse failure, want 0", len(txs))
	}
	if f.index.Len() != 0 {
		t.Errorf("index has %d chunks after parse failure, want 0", f.index.Len())
	}
}

func TestIngestEmptyDocumentIsParseFailure(t *testing.T) {
	f := newFixture(t, sampleReceipt, nil)
	_, err := f.service.IngestReceipt(context.Background(), nil, "image/png", uploadTime)
	if !errors.Is(err, ingest.ErrParseFailure) {
		t.Fatalf("expected ErrParseFailure, got %v", err)
	}
}

func TestIngestOCRErrorPropagates(t *testing.T) {
	f := newFixture(t, "", errors.New("ocr backend down"))
	_, err := f.service.IngestReceipt(context.Background(), []byte("image"), "image/png", uploadTime)
	if err == nil || errors.Is(err, ingest.ErrParseFailure) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestIngestEmbedderFailureAbortsCommit(t *testing.T) {
	ctx := context.Background()

	j, err := journal.Open(filepath.Join(t.TempDir(), "transactions.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	splitter, _ := chunk.New(120, 20)
	idx := vectorstore.NewMemory()

	svc := ingest.NewService(
		&MockTextExtractor{ExtractTextFunc: func(ctx context.Context, data []byte, mimeType string) (string, error) {
			return sampleReceipt, nil
		}},
		extract.New("USD"),
		splitter,
		&MockEmbedder{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("embedding service unavailable")
		}},
		idx,
		j,
		corpus.NewGuard(),
		logger.NewWithWriter(io.Discard),
	)

	if _, err := svc.IngestReceipt(ctx, []byte("image"), "image/png", uploadTime); err == nil {
		t.Fatal("expected error from embedder failure")
	}

	txs, _ := j.List(ctx)
	if len(txs) != 0 {
		t.Errorf("journal has %d transactions, want 0", len(txs))
	}
	if idx.Len() != 0 {
		t.Errorf("index has %d chunks, want 0", idx.Len())
	}
}
