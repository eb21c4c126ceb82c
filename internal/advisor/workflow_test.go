package advisor_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-advisor/internal/advisor"
	"github.com/dvloznov/receipt-advisor/internal/domain"
	"github.com/dvloznov/receipt-advisor/internal/logger"
	"github.com/dvloznov/receipt-advisor/internal/vectorstore"
)

type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.EmbedFunc(ctx, text)
}

type MockAnalyst struct {
	AnalyzeFunc func(ctx context.Context, question, retrievedContext string) (*domain.SpendingAnalysis, error)
}

func (m *MockAnalyst) Analyze(ctx context.Context, question, retrievedContext string) (*domain.SpendingAnalysis, error) {
	return m.AnalyzeFunc(ctx, question, retrievedContext)
}

type MockAnswerer struct {
	AnswerFunc func(ctx context.Context, question, retrievedContext, analysisText string) (*domain.AdvisorAnswer, error)
}

func (m *MockAnswerer) Answer(ctx context.Context, question, retrievedContext, analysisText string) (*domain.AdvisorAnswer, error) {
	return m.AnswerFunc(ctx, question, retrievedContext, analysisText)
}

type MockLookup struct {
	transactions map[string]domain.Transaction
}

func (m *MockLookup) Find(ctx context.Context, id string) (domain.Transaction, bool, error) {
	tx, ok := m.transactions[id]
	return tx, ok, nil
}

func amount(v float64) *float64 { return &v }

var testTimeouts = advisor.Timeouts{
	Retrieve: time.Second,
	Analyze:  time.Second,
	Answer:   time.Second,
}

func seededIndex(t *testing.T) (*vectorstore.Index, *MockLookup) {
	t.Helper()
	ctx := context.Background()
	idx := vectorstore.NewMemory()

	chunks := []struct {
		id, txID, text string
		vec            []float32
	}{
		{"c1", "tx-grocery", "Merchant: SuperMart\nAmount: 5.50", []float32{1, 0, 0}},
		{"c2", "tx-coffee", "Merchant: Coffee Corner\nAmount: 4.20", []float32{0.9, 0.1, 0}},
		{"c3", "tx-grocery", "Raw Text: milk bread", []float32{0.8, 0.2, 0}},
	}
	for _, c := range chunks {
		err := idx.Add(ctx, domain.Chunk{ID: c.id, TransactionID: c.txID, Text: c.text}, c.vec)
		if err != nil {
			t.Fatal(err)
		}
	}

	lookup := &MockLookup{transactions: map[string]domain.Transaction{
		"tx-grocery": {
			ID: "tx-grocery", Merchant: "SuperMart", Category: "Groceries",
			Amount: amount(5.50), Date: civil.Date{Year: 2024, Month: 3, Day: 1},
		},
		"tx-coffee": {
			ID: "tx-coffee", Merchant: "Coffee Corner", Category: "Eating Out",
			Amount: amount(4.20), Date: civil.Date{Year: 2024, Month: 3, Day: 5},
		},
	}}
	return idx, lookup
}

func newWorkflow(idx vectorstore.Adapter, lookup advisor.TransactionLookup, analyst advisor.Analyst, answerer advisor.Answerer) *advisor.Workflow {
	return advisor.NewWorkflow(
		&MockEmbedder{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1, 0, 0}, nil
		}},
		idx,
		lookup,
		analyst,
		answerer,
		5,
		testTimeouts,
		logger.NewWithWriter(io.Discard),
	)
}

func TestAskHappyPath(t *testing.T) {
	idx, lookup := seededIndex(t)

	wantAnalysis := &domain.SpendingAnalysis{
		CategoryTotals: []domain.CategoryTotal{{Category: "Groceries", Total: 5.50}},
		Observations:   []string{"groceries dominate"},
	}
	var gotContext string
	analyst := &MockAnalyst{AnalyzeFunc: func(ctx context.Context, question, retrievedContext string) (*domain.SpendingAnalysis, error) {
		gotContext = retrievedContext
		return wantAnalysis, nil
	}}
	answerer := &MockAnswerer{AnswerFunc: func(ctx context.Context, question, retrievedContext, analysisText string) (*domain.AdvisorAnswer, error) {
		if !strings.Contains(analysisText, "groceries dominate") {
			t.Errorf("analysis text not passed to answer stage: %q", analysisText)
		}
		return &domain.AdvisorAnswer{Response: "You spent 5.50 at SuperMart.", Tips: []string{"set a grocery budget"}}, nil
	}}

	result, err := newWorkflow(idx, lookup, analyst, answerer).Ask(context.Background(), "How much at SuperMart?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	if result.Degraded {
		t.Error("degraded = true, want false")
	}
	if result.Answer.Response != "You spent 5.50 at SuperMart." {
		t.Errorf("response = %q", result.Answer.Response)
	}
	if result.Analysis != wantAnalysis {
		t.Error("analysis not propagated")
	}
	if !strings.Contains(gotContext, "SuperMart") || !strings.Contains(gotContext, "Coffee Corner") {
		t.Errorf("retrieved context missing chunk text: %q", gotContext)
	}
	// One transaction per ID, even when two chunks share an owner.
	if len(result.Transactions) != 2 {
		t.Errorf("got %d transactions, want 2", len(result.Transactions))
	}
}

func TestAskDegradesOnAnalysisFailure(t *testing.T) {
	idx, lookup := seededIndex(t)

	analyst := &MockAnalyst{AnalyzeFunc: func(ctx context.Context, question, retrievedContext string) (*domain.SpendingAnalysis, error) {
		return nil, errors.New("model returned malformed analysis")
	}}
	answerer := &MockAnswerer{AnswerFunc: func(ctx context.Context, question, retrievedContext, analysisText string) (*domain.AdvisorAnswer, error) {
		if !strings.Contains(analysisText, "Groceries") {
			t.Errorf("fallback analysis missing category totals: %q", analysisText)
		}
		return &domain.AdvisorAnswer{Response: "here is a rough summary"}, nil
	}}

	result, err := newWorkflow(idx, lookup, analyst, answerer).Ask(context.Background(), "What are my habits?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	if !result.Degraded {
		t.Fatal("degraded = false, want true")
	}
	if len(result.Analysis.CategoryTotals) != 2 {
		t.Fatalf("fallback totals: %+v", result.Analysis.CategoryTotals)
	}
	if result.Analysis.CategoryTotals[0].Category != "Groceries" || result.Analysis.CategoryTotals[0].Total != 5.50 {
		t.Errorf("top category = %+v", result.Analysis.CategoryTotals[0])
	}
	if result.Analysis.DateRange != "2024-03-01 to 2024-03-05" {
		t.Errorf("date range = %q", result.Analysis.DateRange)
	}
}

func TestAskDegradesOnAnalysisTimeout(t *testing.T) {
	idx, lookup := seededIndex(t)

	analyst := &MockAnalyst{AnalyzeFunc: func(ctx context.Context, question, retrievedContext string) (*domain.SpendingAnalysis, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	answerer := &MockAnswerer{AnswerFunc: func(ctx context.Context, question, retrievedContext, analysisText string) (*domain.AdvisorAnswer, error) {
		return &domain.AdvisorAnswer{Response: "ok"}, nil
	}}

	wf := advisor.NewWorkflow(
		&MockEmbedder{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1, 0, 0}, nil
		}},
		idx, lookup, analyst, answerer, 5,
		advisor.Timeouts{Retrieve: time.Second, Analyze: 10 * time.Millisecond, Answer: time.Second},
		logger.NewWithWriter(io.Discard),
	)

	result, err := wf.Ask(context.Background(), "slow question")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !result.Degraded {
		t.Error("degraded = false, want true after analysis timeout")
	}
}

func TestAskAnswerFailureIsFatal(t *testing.T) {
	idx, lookup := seededIndex(t)

	analyst := &MockAnalyst{AnalyzeFunc: func(ctx context.Context, question, retrievedContext string) (*domain.SpendingAnalysis, error) {
		return &domain.SpendingAnalysis{Observations: []string{"fine"}}, nil
	}}
	answerer := &MockAnswerer{AnswerFunc: func(ctx context.Context, question, retrievedContext, analysisText string) (*domain.AdvisorAnswer, error) {
		return nil, errors.New("generation failed")
	}}

	_, err := newWorkflow(idx, lookup, analyst, answerer).Ask(context.Background(), "question")
	if err == nil {
		t.Fatal("expected error")
	}

	var stageErr *advisor.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %T", err)
	}
	if stageErr.Stage != advisor.StageAnswer {
		t.Errorf("stage = %q, want %q", stageErr.Stage, advisor.StageAnswer)
	}
	if !strings.Contains(stageErr.RetrievedContext, "SuperMart") {
		t.Error("partial retrieved context not carried on answer failure")
	}
}

func TestAskRetrievalFailureIsFatal(t *testing.T) {
	idx, lookup := seededIndex(t)

	wf := advisor.NewWorkflow(
		&MockEmbedder{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("embedding service unavailable")
		}},
		idx, lookup,
		&MockAnalyst{AnalyzeFunc: func(ctx context.Context, question, retrievedContext string) (*domain.SpendingAnalysis, error) {
			t.Error("analyst should not run when retrieval fails")
			return nil, nil
		}},
		&MockAnswerer{AnswerFunc: func(ctx context.Context, question, retrievedContext, analysisText string) (*domain.AdvisorAnswer, error) {
			t.Error("answerer should not run when retrieval fails")
			return nil, nil
		}},
		5, testTimeouts, logger.NewWithWriter(io.Discard),
	)

	_, err := wf.Ask(context.Background(), "question")
	var stageErr *advisor.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != advisor.StageRetrieve {
		t.Fatalf("expected retrieve StageError, got %v", err)
	}
}

func TestAskEmptyCorpusProceeds(t *testing.T) {
	idx := vectorstore.NewMemory()
	lookup := &MockLookup{transactions: map[string]domain.Transaction{}}

	analyst := &MockAnalyst{AnalyzeFunc: func(ctx context.Context, question, retrievedContext string) (*domain.SpendingAnalysis, error) {
		if retrievedContext != "" {
			t.Errorf("retrieved context = %q, want empty", retrievedContext)
		}
		return &domain.SpendingAnalysis{Observations: []string{"no data yet"}}, nil
	}}
	answerer := &MockAnswerer{AnswerFunc: func(ctx context.Context, question, retrievedContext, analysisText string) (*domain.AdvisorAnswer, error) {
		return &domain.AdvisorAnswer{Response: "I have no receipts on file yet."}, nil
	}}

	result, err := newWorkflow(idx, lookup, analyst, answerer).Ask(context.Background(), "anything?")
	if err != nil {
		t.Fatalf("empty corpus should still answer, got: %v", err)
	}
	if result.Answer.Response == "" {
		t.Error("empty response")
	}
	if len(result.Transactions) != 0 {
		t.Errorf("got %d transactions, want 0", len(result.Transactions))
	}
}

func TestAskEmptyQuestionRejected(t *testing.T) {
	idx, lookup := seededIndex(t)
	wf := newWorkflow(idx, lookup, nil, nil)
	if _, err := wf.Ask(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty question")
	}
}

func TestLocalAnalysisSkipsUnknownAmounts(t *testing.T) {
	idx := vectorstore.NewMemory()
	ctx := context.Background()
	if err := idx.Add(ctx, domain.Chunk{ID: "c1", TransactionID: "tx-1", Text: "garbled"}, []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	lookup := &MockLookup{transactions: map[string]domain.Transaction{
		"tx-1": {ID: "tx-1", Merchant: "unknown", Category: "uncategorized", NeedsReview: true},
	}}

	analyst := &MockAnalyst{AnalyzeFunc: func(ctx context.Context, question, retrievedContext string) (*domain.SpendingAnalysis, error) {
		return nil, errors.New("forced fallback")
	}}
	answerer := &MockAnswerer{AnswerFunc: func(ctx context.Context, question, retrievedContext, analysisText string) (*domain.AdvisorAnswer, error) {
		return &domain.AdvisorAnswer{Response: "ok"}, nil
	}}

	result, err := newWorkflow(idx, lookup, analyst, answerer).Ask(ctx, "totals?")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Analysis.CategoryTotals) != 0 {
		t.Errorf("nil amounts should not contribute totals: %+v", result.Analysis.CategoryTotals)
	}
	if result.Analysis.DateRange != "" {
		t.Errorf("date range = %q, want empty for zero dates", result.Analysis.DateRange)
	}
}
