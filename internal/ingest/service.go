package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-advisor/internal/corpus"
	"github.com/dvloznov/receipt-advisor/internal/domain"
	"github.com/dvloznov/receipt-advisor/internal/vectorstore"
)

// ErrParseFailure signals that OCR yielded no usable text. The upload is
// rejected and no transaction is created.
var ErrParseFailure = errors.New("ingest: no usable text extracted from document")

// Service turns uploaded receipt documents into journaled, indexed
// transactions: OCR → field extraction → chunking → embedding → commit.
type Service struct {
	ocr      TextExtractor
	pipeline *Pipeline
	log      zerolog.Logger
}

// NewService wires the ingestion pipeline over the shared stores.
func NewService(
	ocr TextExtractor,
	parser FieldParser,
	splitter ChunkSplitter,
	embedder Embedder,
	index vectorstore.Adapter,
	journal Appender,
	guard *corpus.Guard,
	log zerolog.Logger,
) *Service {
	return &Service{
		ocr: ocr,
		pipeline: NewPipeline(
			&ParseFieldsStep{parser: parser},
			&BuildDocumentStep{},
			&ChunkStep{splitter: splitter},
			&EmbedStep{embedder: embedder},
			&CommitStep{guard: guard, index: index, journal: journal},
		),
		log: log,
	}
}

// IngestReceipt processes a raw receipt document. Field-level extraction
// problems degrade into flagged data; only unreadable/empty OCR output
// fails the upload, with ErrParseFailure.
func (s *Service) IngestReceipt(ctx context.Context, document []byte, mimeType string, uploadTime time.Time) (*domain.Transaction, error) {
	if len(document) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrParseFailure)
	}

	text, err := s.ocr.ExtractText(ctx, document, mimeType)
	if err != nil {
		return nil, fmt.Errorf("ingest: ocr: %w", err)
	}

	return s.IngestText(ctx, text, uploadTime)
}

// IngestText processes already-extracted OCR text. Used by IngestReceipt
// and directly by callers that bring their own text.
func (s *Service) IngestText(ctx context.Context, ocrText string, uploadTime time.Time) (*domain.Transaction, error) {
	if strings.TrimSpace(ocrText) == "" {
		return nil, ErrParseFailure
	}

	state := &State{
		UploadTime: uploadTime,
		OCRText:    ocrText,
	}
	if err := s.pipeline.Execute(ctx, state); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("transaction_id", state.Transaction.ID).
		Str("merchant", state.Transaction.Merchant).
		Str("category", state.Transaction.Category).
		Bool("needs_review", state.Transaction.NeedsReview).
		Int("chunks", len(state.Chunks)).
		Msg("Receipt ingested")

	return &state.Transaction, nil
}
