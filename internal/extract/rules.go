package extract

import "regexp"

// DateRule is one date format the extractor recognizes. Rules are
// evaluated in the order they are declared; the first rule that matches
// anywhere in the text wins, and among matches of the same rule the
// earliest occurrence in reading order is used.
type DateRule struct {
	Name    string
	Pattern *regexp.Regexp
	Layout  string
}

// DateRules is the declared priority order for date extraction.
var DateRules = []DateRule{
	{Name: "iso", Pattern: regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), Layout: "2006-01-02"},
	{Name: "us-slash", Pattern: regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`), Layout: "01/02/2006"},
	{Name: "us-dash", Pattern: regexp.MustCompile(`\b\d{2}-\d{2}-\d{4}\b`), Layout: "01-02-2006"},
	{Name: "us-slash-short", Pattern: regexp.MustCompile(`\b\d{2}/\d{2}/\d{2}\b`), Layout: "01/02/06"},
}

// amountPattern matches monetary tokens like 53.23 or 1,234.56. Currency
// symbols are stripped from the line before matching.
var amountPattern = regexp.MustCompile(`\d{1,3}(?:,\d{3})*\.\d{2}|\d+\.\d{2}`)

// AmountKeywordRule anchors amount selection to lines containing one of
// its keywords. The ladder is tried top to bottom; a line matched by an
// earlier rung always beats larger tokens found elsewhere.
type AmountKeywordRule struct {
	Name     string
	Keywords []string
}

// AmountKeywordRules is the declared keyword ladder for amount selection.
var AmountKeywordRules = []AmountKeywordRule{
	{Name: "total", Keywords: []string{"total"}},
	{Name: "due-or-balance", Keywords: []string{"amount due", "amount", "subtotal", "balance"}},
}

// maxPlausibleAmount filters obviously wrong tokens (loyalty card numbers,
// phone fragments) when falling back to largest-token selection.
const maxPlausibleAmount = 2000

// CategoryRule maps keywords found in the merchant line or receipt body
// to a spending category. Rules are evaluated in declared order; the
// first matching rule wins.
type CategoryRule struct {
	Name     string
	Keywords []string
}

// CategoryRules is the declared priority order for categorization.
var CategoryRules = []CategoryRule{
	{Name: "Groceries", Keywords: []string{
		"costco", "walmart", "aldi", "kroger", "safeway",
		"whole foods", "grocery", "supermarket", "market", "mart", "foods",
		"milk", "bread",
	}},
	{Name: "Transport", Keywords: []string{
		"uber", "lyft", "taxi", "cab", "fuel", "gas station",
		"shell", "chevron", "petrol",
	}},
	{Name: "Shopping", Keywords: []string{
		"amazon", "flipkart", "shopping", "mall", "target",
		"best buy", "electronics",
	}},
	{Name: "Eating Out", Keywords: []string{
		"cafe", "restaurant", "pizza", "burger", "grill",
		"bistro", "coffee", "diner", "brew",
	}},
	{Name: "Subscriptions", Keywords: []string{
		"netflix", "spotify", "aws", "azure", "prime",
		"software", "saas", "license", "subscription",
	}},
	{Name: "Housing", Keywords: []string{
		"rent", "apartments", "property", "hotel", "inn", "villa",
	}},
	{Name: "Utilities", Keywords: []string{
		"electric", "water", "internet", "wifi", "broadband",
		"comcast", "verizon",
	}},
}

// DefaultCategory is used when no category rule matches.
const DefaultCategory = "uncategorized"

// CurrencyRule maps symbols or codes to an ISO currency code. Symbols are
// matched against the raw text, codes against its lowercased form.
type CurrencyRule struct {
	Code    string
	Symbols []string
	Words   []string
}

// CurrencyRules is the declared priority order for currency detection.
// The chosen amount's line is inspected first, then the whole text.
var CurrencyRules = []CurrencyRule{
	{Code: "USD", Symbols: []string{"$"}},
	{Code: "EUR", Symbols: []string{"€"}},
	{Code: "GBP", Symbols: []string{"£"}},
	{Code: "INR", Symbols: []string{"₹"}, Words: []string{"rs.", "inr"}},
	{Code: "CNY", Symbols: []string{"¥"}, Words: []string{"cny", "rmb"}},
	{Code: "CAD", Words: []string{"cad"}},
	{Code: "AUD", Words: []string{"aud"}},
	{Code: "USD", Words: []string{"usd"}},
	{Code: "EUR", Words: []string{"eur"}},
	{Code: "GBP", Words: []string{"gbp"}},
}
