package ingest

import (
	"context"
	"time"

	"github.com/dvloznov/receipt-advisor/internal/domain"
)

// TextExtractor is the OCR capability: receipt image/PDF bytes to raw text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// FieldParser turns raw OCR text into a structured transaction. The
// extract package provides the production implementation.
type FieldParser interface {
	Extract(rawText string, uploadTime time.Time) domain.Transaction
}

// ChunkSplitter splits indexable text into overlapping windows.
type ChunkSplitter interface {
	Split(text string) []domain.Chunk
}

// Appender is the journal side the pipeline writes to.
type Appender interface {
	Append(ctx context.Context, tx domain.Transaction) error
}
