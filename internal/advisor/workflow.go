package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-advisor/internal/domain"
	"github.com/dvloznov/receipt-advisor/internal/vectorstore"
)

// Stage identifies a step of the advisor workflow. A question moves through
// the stages in order; Analyze may degrade instead of failing, Answer may not.
type Stage string

const (
	StageRetrieve Stage = "retrieve"
	StageAnalyze  Stage = "analyze"
	StageAnswer   Stage = "answer"
	StageDone     Stage = "done"
	StageFailed   Stage = "failed"
)

// StageError reports which stage a failed question died in. RetrievedContext
// carries whatever was assembled before the failure so callers can surface
// partial results.
type StageError struct {
	Stage            Stage
	RetrievedContext string
	Err              error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("advisor: %s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Embedder turns a question into a vector in the same space as the indexed
// receipt chunks.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Analyst produces a structured spending analysis from retrieved context.
type Analyst interface {
	Analyze(ctx context.Context, question, retrievedContext string) (*domain.SpendingAnalysis, error)
}

// Answerer synthesizes the final natural-language answer.
type Answerer interface {
	Answer(ctx context.Context, question, retrievedContext, analysisText string) (*domain.AdvisorAnswer, error)
}

// TransactionLookup resolves a chunk's owning transaction.
type TransactionLookup interface {
	Find(ctx context.Context, id string) (domain.Transaction, bool, error)
}

// Timeouts bounds each external call independently so a slow model cannot
// stall the whole question.
type Timeouts struct {
	Retrieve time.Duration
	Analyze  time.Duration
	Answer   time.Duration
}

// Result is the outcome of a completed question. Degraded is set when the
// analysis came from the local aggregation fallback rather than the model.
type Result struct {
	Answer           *domain.AdvisorAnswer    `json:"answer"`
	Analysis         *domain.SpendingAnalysis `json:"analysis"`
	Degraded         bool                     `json:"degraded"`
	RetrievedContext string                   `json:"retrieved_context"`
	Transactions     []domain.Transaction     `json:"transactions"`
}

// Workflow runs a question through retrieve, analyze, and answer.
type Workflow struct {
	embedder Embedder
	index    vectorstore.Adapter
	lookup   TransactionLookup
	analyst  Analyst
	answerer Answerer
	topK     int
	timeouts Timeouts
	log      zerolog.Logger
}

func NewWorkflow(
	embedder Embedder,
	index vectorstore.Adapter,
	lookup TransactionLookup,
	analyst Analyst,
	answerer Answerer,
	topK int,
	timeouts Timeouts,
	log zerolog.Logger,
) *Workflow {
	return &Workflow{
		embedder: embedder,
		index:    index,
		lookup:   lookup,
		analyst:  analyst,
		answerer: answerer,
		topK:     topK,
		timeouts: timeouts,
		log:      log,
	}
}

// Ask answers a spending question over the indexed receipts. Retrieval and
// answer failures return a StageError; analysis failures degrade to a local
// aggregation over the retrieved transactions and keep going.
func (w *Workflow) Ask(ctx context.Context, question string) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &StageError{Stage: StageRetrieve, Err: fmt.Errorf("empty question")}
	}

	retrievedContext, transactions, err := w.retrieve(ctx, question)
	if err != nil {
		return nil, &StageError{Stage: StageRetrieve, Err: err}
	}

	analysis, degraded := w.analyze(ctx, question, retrievedContext, transactions)

	answer, err := w.answer(ctx, question, retrievedContext, analysis)
	if err != nil {
		return nil, &StageError{Stage: StageAnswer, RetrievedContext: retrievedContext, Err: err}
	}

	w.log.Info().
		Bool("degraded", degraded).
		Int("transactions", len(transactions)).
		Msg("question answered")

	return &Result{
		Answer:           answer,
		Analysis:         analysis,
		Degraded:         degraded,
		RetrievedContext: retrievedContext,
		Transactions:     transactions,
	}, nil
}

func (w *Workflow) retrieve(ctx context.Context, question string) (string, []domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeouts.Retrieve)
	defer cancel()

	embedding, err := w.embedder.Embed(ctx, question)
	if err != nil {
		return "", nil, fmt.Errorf("embed question: %w", err)
	}

	matches, err := w.index.Query(ctx, embedding, w.topK)
	if err != nil {
		return "", nil, fmt.Errorf("query index: %w", err)
	}

	// An empty corpus is a valid retrieval outcome, not a failure.
	var parts []string
	var transactions []domain.Transaction
	seen := make(map[string]bool)
	for _, m := range matches {
		parts = append(parts, m.Chunk.Text)
		if m.Chunk.TransactionID == "" || seen[m.Chunk.TransactionID] {
			continue
		}
		seen[m.Chunk.TransactionID] = true
		tx, ok, err := w.lookup.Find(ctx, m.Chunk.TransactionID)
		if err != nil {
			return "", nil, fmt.Errorf("resolve transaction %s: %w", m.Chunk.TransactionID, err)
		}
		if !ok {
			w.log.Warn().Str("transaction_id", m.Chunk.TransactionID).Msg("indexed chunk points at missing transaction")
			continue
		}
		transactions = append(transactions, tx)
	}

	return strings.Join(parts, "\n\n"), transactions, nil
}

func (w *Workflow) analyze(ctx context.Context, question, retrievedContext string, transactions []domain.Transaction) (*domain.SpendingAnalysis, bool) {
	actx, cancel := context.WithTimeout(ctx, w.timeouts.Analyze)
	defer cancel()

	analysis, err := w.analyst.Analyze(actx, question, retrievedContext)
	if err == nil {
		return analysis, false
	}

	w.log.Warn().Err(err).Msg("model analysis failed, using local aggregation")
	return localAnalysis(transactions), true
}

func (w *Workflow) answer(ctx context.Context, question, retrievedContext string, analysis *domain.SpendingAnalysis) (*domain.AdvisorAnswer, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeouts.Answer)
	defer cancel()

	return w.answerer.Answer(ctx, question, retrievedContext, renderAnalysis(analysis))
}

func renderAnalysis(a *domain.SpendingAnalysis) string {
	if a == nil {
		return ""
	}
	data, err := json.Marshal(a)
	if err != nil {
		return ""
	}
	return string(data)
}
