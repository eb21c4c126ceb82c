package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// Transaction is one parsed receipt, normalized from raw OCR text.
// This is the domain struct persisted by the journal; the extractor fills
// it field by field and flags NeedsReview instead of failing outright.
type Transaction struct {
	ID          string     `json:"id"`
	Date        civil.Date `json:"date"`
	Merchant    string     `json:"merchant"`
	Category    string     `json:"category"`
	Amount      *float64   `json:"amount"`
	Currency    string     `json:"currency"`
	RawText     string     `json:"raw_text"`
	NeedsReview bool       `json:"needs_review"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SpendingAnalysis is the structured summary produced by the analysis
// stage: per-category totals plus free-text observations. It is either
// model output validated against this shape, or a locally computed
// aggregate when the model output does not conform.
type SpendingAnalysis struct {
	CategoryTotals []CategoryTotal `json:"category_totals"`
	DateRange      string          `json:"date_range,omitempty"`
	Observations   []string        `json:"observations"`
}

// CategoryTotal is one category→amount entry in a spending analysis.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// AdvisorAnswer is the final synthesized response: a direct answer to the
// question plus a short list of actionable tips.
type AdvisorAnswer struct {
	Response string   `json:"response"`
	Tips     []string `json:"tips"`
}
