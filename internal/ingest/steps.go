package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/receipt-advisor/internal/corpus"
	"github.com/dvloznov/receipt-advisor/internal/domain"
	"github.com/dvloznov/receipt-advisor/internal/vectorstore"
)

// Step is a single stage of the receipt ingestion pipeline.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// State is the shared state all ingestion steps read and write.
type State struct {
	UploadTime time.Time
	OCRText    string

	Transaction domain.Transaction
	IndexText   string
	Chunks      []domain.Chunk
	Embeddings  [][]float32
}

// ParseFieldsStep runs the deterministic field extractor and assigns the
// transaction its identity.
type ParseFieldsStep struct {
	parser FieldParser
}

func (s *ParseFieldsStep) Execute(ctx context.Context, state *State) error {
	tx := s.parser.Extract(state.OCRText, state.UploadTime)
	tx.ID = uuid.NewString()
	tx.CreatedAt = time.Now().UTC()
	state.Transaction = tx
	return nil
}

// BuildDocumentStep renders the transaction into the self-describing text
// that gets chunked and indexed, so retrieval hits carry their own
// metadata.
type BuildDocumentStep struct{}

func (s *BuildDocumentStep) Execute(ctx context.Context, state *State) error {
	state.IndexText = renderDocument(state.Transaction)
	return nil
}

func renderDocument(tx domain.Transaction) string {
	amount := "unknown"
	if tx.Amount != nil {
		amount = fmt.Sprintf("%.2f", *tx.Amount)
	}
	parts := []string{
		"Transaction ID: " + tx.ID,
		"Date: " + tx.Date.String(),
		"Merchant: " + tx.Merchant,
		"Category: " + tx.Category,
		strings.TrimSpace("Amount: " + amount + " " + tx.Currency),
		"",
		"Raw Text: " + tx.RawText,
	}
	return strings.Join(parts, "\n")
}

// ChunkStep splits the rendered document and assigns chunk identity.
type ChunkStep struct {
	splitter ChunkSplitter
}

func (s *ChunkStep) Execute(ctx context.Context, state *State) error {
	chunks := s.splitter.Split(state.IndexText)
	if len(chunks) == 0 {
		return fmt.Errorf("ingest: chunker produced no chunks")
	}
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].TransactionID = state.Transaction.ID
	}
	state.Chunks = chunks
	return nil
}

// EmbedStep embeds every chunk. This is the long external call of the
// upload path; it runs before the commit guard is taken so resets are
// not blocked behind it.
type EmbedStep struct {
	embedder Embedder
}

func (s *EmbedStep) Execute(ctx context.Context, state *State) error {
	embeddings := make([][]float32, 0, len(state.Chunks))
	for _, ch := range state.Chunks {
		vec, err := s.embedder.Embed(ctx, ch.Text)
		if err != nil {
			return fmt.Errorf("ingest: embed chunk %d: %w", ch.SequenceIndex, err)
		}
		embeddings = append(embeddings, vec)
	}
	state.Embeddings = embeddings
	return nil
}

// CommitStep appends the transaction and indexes its chunks under the
// corpus guard, so a reset never observes one without the other.
type CommitStep struct {
	guard   *corpus.Guard
	index   vectorstore.Adapter
	journal Appender
}

func (s *CommitStep) Execute(ctx context.Context, state *State) error {
	release := s.guard.AcquireCommit()
	defer release()

	for i, ch := range state.Chunks {
		if err := s.index.Add(ctx, ch, state.Embeddings[i]); err != nil {
			return fmt.Errorf("ingest: index chunk %d: %w", ch.SequenceIndex, err)
		}
	}
	if err := s.journal.Append(ctx, state.Transaction); err != nil {
		return fmt.Errorf("ingest: append transaction: %w", err)
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("ingest: step %d failed: %w", i+1, err)
		}
	}
	return nil
}
