package extract

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-advisor/internal/domain"
)

// UnknownMerchant is stored when no qualifying merchant line exists.
const UnknownMerchant = "unknown"

// Extractor turns raw OCR text into a structured transaction using the
// ordered rule tables in rules.go. It never fails: fields that cannot be
// extracted degrade to their defaults, and a missing amount flags the
// transaction for review.
//
// Extraction is deterministic: identical text and upload time always
// produce identical fields. The caller assigns ID and CreatedAt.
type Extractor struct {
	fallbackCurrency string
}

// New creates an extractor with the given fallback currency code.
func New(fallbackCurrency string) *Extractor {
	if fallbackCurrency == "" {
		fallbackCurrency = "USD"
	}
	return &Extractor{fallbackCurrency: fallbackCurrency}
}

// Extract parses rawText into a transaction. The upload time's calendar
// date is the defined fallback when no date pattern matches.
func (e *Extractor) Extract(rawText string, uploadTime time.Time) domain.Transaction {
	lines := splitLines(rawText)

	date, dateLine, dateFound := findDate(lines)
	if !dateFound {
		date = civil.DateOf(uploadTime)
	}

	amt, amtFound := findAmount(lines)

	boundary := merchantBoundary(lines, dateLine, firstMonetaryLine(lines))
	merchant := findMerchant(lines, boundary)

	tx := domain.Transaction{
		Date:     date,
		Merchant: merchant,
		Category: categorize(merchant, rawText),
		Currency: e.detectCurrency(lines, amt, amtFound),
		RawText:  rawText,
	}

	if amtFound {
		v := amt.value
		if amt.negative {
			v = -v
		}
		tx.Amount = &v
	} else {
		tx.NeedsReview = true
	}

	return tx
}

func splitLines(text string) []string {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			lines = append(lines, ln)
		}
	}
	return lines
}

// findDate evaluates DateRules in priority order. For each rule, lines
// are scanned top to bottom and the first occurrence that parses as a
// real calendar date wins.
func findDate(lines []string) (civil.Date, int, bool) {
	for _, rule := range DateRules {
		for i, line := range lines {
			for _, raw := range rule.Pattern.FindAllString(line, -1) {
				t, err := time.Parse(rule.Layout, raw)
				if err != nil {
					continue
				}
				return civil.DateOf(t), i, true
			}
		}
	}
	return civil.Date{}, -1, false
}

type amountMatch struct {
	value    float64
	line     int
	negative bool
}

// findAmount walks the keyword ladder first: a monetary token on a line
// with a "total"-like keyword always beats larger tokens elsewhere. Only
// when no keyword line matches does it fall back to the largest plausible
// token in the whole text.
func findAmount(lines []string) (amountMatch, bool) {
	for _, rule := range AmountKeywordRules {
		for i, line := range lines {
			if !containsAny(strings.ToLower(line), rule.Keywords) {
				continue
			}
			if m, ok := tokenOnLine(line, i); ok {
				return m, true
			}
		}
	}

	// Largest plausible token across the whole text.
	best := amountMatch{line: -1}
	found := false
	for i, line := range lines {
		cleaned := stripCurrencyMarks(line)
		for _, tok := range amountPattern.FindAllString(cleaned, -1) {
			v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
			if err != nil || v <= 0 || v >= maxPlausibleAmount {
				continue
			}
			if !found || v > best.value {
				best = amountMatch{value: v, line: i}
				found = true
			}
		}
	}
	return best, found
}

// tokenOnLine returns the first monetary token on the line, noting a
// leading minus sign so refunds keep their sign.
func tokenOnLine(line string, idx int) (amountMatch, bool) {
	cleaned := stripCurrencyMarks(line)
	loc := amountPattern.FindStringIndex(cleaned)
	if loc == nil {
		return amountMatch{}, false
	}
	tok := cleaned[loc[0]:loc[1]]
	v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
	if err != nil {
		return amountMatch{}, false
	}
	neg := loc[0] > 0 && cleaned[loc[0]-1] == '-'
	return amountMatch{value: v, line: idx, negative: neg}, true
}

func stripCurrencyMarks(line string) string {
	r := strings.NewReplacer("$", "", "€", "", "£", "", "₹", "", "¥", "")
	return r.Replace(line)
}

// firstMonetaryLine returns the index of the first line containing any
// monetary token, or -1. Used to bound the merchant search.
func firstMonetaryLine(lines []string) int {
	for i, line := range lines {
		if amountPattern.MatchString(stripCurrencyMarks(line)) {
			return i
		}
	}
	return -1
}

func merchantBoundary(lines []string, dateLine, amountLine int) int {
	boundary := len(lines)
	if dateLine >= 0 && dateLine < boundary {
		boundary = dateLine
	}
	if amountLine >= 0 && amountLine < boundary {
		boundary = amountLine
	}
	return boundary
}

// findMerchant picks the first line above the boundary that still has
// letters after trimming surrounding punctuation.
func findMerchant(lines []string, boundary int) string {
	for _, line := range lines[:boundary] {
		trimmed := strings.TrimFunc(line, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r)
		})
		if trimmed == "" || !hasLetter(trimmed) {
			continue
		}
		return trimmed
	}
	return UnknownMerchant
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// categorize evaluates CategoryRules in declared order against the
// merchant and the full text.
func categorize(merchant, text string) string {
	combined := strings.ToLower(merchant + " " + text)
	for _, rule := range CategoryRules {
		if containsAny(combined, rule.Keywords) {
			return rule.Name
		}
	}
	return DefaultCategory
}

// detectCurrency inspects the chosen amount's line first, then the whole
// text, then falls back to the configured default.
func (e *Extractor) detectCurrency(lines []string, amt amountMatch, amtFound bool) string {
	if amtFound && amt.line >= 0 && amt.line < len(lines) {
		if code, ok := currencyIn(lines[amt.line]); ok {
			return code
		}
	}
	if code, ok := currencyIn(strings.Join(lines, "\n")); ok {
		return code
	}
	return e.fallbackCurrency
}

func currencyIn(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, rule := range CurrencyRules {
		for _, sym := range rule.Symbols {
			if strings.Contains(s, sym) {
				return rule.Code, true
			}
		}
		if containsAny(lower, rule.Words) {
			return rule.Code, true
		}
	}
	return "", false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
