package advisor

import (
	"fmt"
	"sort"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-advisor/internal/domain"
)

// localAnalysis aggregates the retrieved transactions without a model call.
// It is the degraded substitute used when the analysis stage fails: totals
// per category, the covered date range, and a couple of plain observations.
func localAnalysis(transactions []domain.Transaction) *domain.SpendingAnalysis {
	totals := make(map[string]float64)
	var minDate, maxDate civil.Date
	var counted int

	for _, tx := range transactions {
		if tx.Amount != nil {
			totals[tx.Category] += *tx.Amount
			counted++
		}
		if !tx.Date.IsValid() {
			continue
		}
		if minDate == (civil.Date{}) || tx.Date.Before(minDate) {
			minDate = tx.Date
		}
		if maxDate == (civil.Date{}) || tx.Date.After(maxDate) {
			maxDate = tx.Date
		}
	}

	categoryTotals := make([]domain.CategoryTotal, 0, len(totals))
	for category, total := range totals {
		categoryTotals = append(categoryTotals, domain.CategoryTotal{Category: category, Total: total})
	}
	sort.Slice(categoryTotals, func(i, j int) bool {
		if categoryTotals[i].Total != categoryTotals[j].Total {
			return categoryTotals[i].Total > categoryTotals[j].Total
		}
		return categoryTotals[i].Category < categoryTotals[j].Category
	})

	var dateRange string
	if minDate != (civil.Date{}) {
		dateRange = fmt.Sprintf("%s to %s", minDate, maxDate)
	}

	observations := []string{
		fmt.Sprintf("Aggregated %d transactions with known amounts across %d categories.", counted, len(categoryTotals)),
	}
	if len(categoryTotals) > 0 {
		top := categoryTotals[0]
		observations = append(observations, fmt.Sprintf("Largest category: %s (%.2f).", top.Category, top.Total))
	}

	return &domain.SpendingAnalysis{
		CategoryTotals: categoryTotals,
		DateRange:      dateRange,
		Observations:   observations,
	}
}
