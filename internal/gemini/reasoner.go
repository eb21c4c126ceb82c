package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/receipt-advisor/internal/domain"
)

// SchemaViolationError reports model output that did not conform to the
// requested schema even after cleanup. The analysis stage treats it as a
// signal to fall back to a locally computed summary.
type SchemaViolationError struct {
	Reason string
	Raw    string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("gemini: schema-non-conforming output: %s", e.Reason)
}

var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"category_totals": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"category": {Type: genai.TypeString},
					"total":    {Type: genai.TypeNumber},
				},
				Required: []string{"category", "total"},
			},
		},
		"date_range":   {Type: genai.TypeString},
		"observations": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"category_totals", "observations"},
}

var answerSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"response": {Type: genai.TypeString},
		"tips":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"response", "tips"},
}

// Analyze asks the model for a structured spending summary over the
// retrieved transaction context. Output is validated against the schema;
// non-conforming output returns a *SchemaViolationError.
func (c *Client) Analyze(ctx context.Context, question, retrievedContext string) (*domain.SpendingAnalysis, error) {
	prompt :=
		"You are a personal finance analyst.\n\n" +
			"User question:\n" + question + "\n\n" +
			"Relevant past transactions:\n" + retrievedContext + "\n\n" +
			"Task:\n" +
			"- Sum the amounts per category across the transactions above and report them in \"category_totals\".\n" +
			"- Mention EVERY category present in the transactions, including unknown or uncategorized ones.\n" +
			"- Report the covered date range in \"date_range\" if dates are present.\n" +
			"- Write 3-5 concise observations about the spending, relating them to the question.\n" +
			"- Output STRICT JSON only matching the response schema. No Markdown, no extra text.\n"

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   analysisSchema,
		Temperature:      genai.Ptr[float32](0.2),
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: analyze generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, &SchemaViolationError{Reason: "empty response"}
	}

	var analysis domain.SpendingAnalysis
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &analysis); err != nil {
		return nil, &SchemaViolationError{Reason: err.Error(), Raw: raw}
	}
	if err := validateAnalysis(&analysis); err != nil {
		return nil, &SchemaViolationError{Reason: err.Error(), Raw: raw}
	}
	return &analysis, nil
}

func validateAnalysis(a *domain.SpendingAnalysis) error {
	if len(a.Observations) == 0 {
		return fmt.Errorf("missing observations")
	}
	for i, ct := range a.CategoryTotals {
		if strings.TrimSpace(ct.Category) == "" {
			return fmt.Errorf("category_totals[%d] has empty category", i)
		}
	}
	return nil
}

// Answer synthesizes the final answer plus actionable tips from the
// question, the analysis, and the raw retrieved context.
func (c *Client) Answer(ctx context.Context, question, retrievedContext, analysisText string) (*domain.AdvisorAnswer, error) {
	prompt :=
		"You are a friendly personal finance assistant.\n\n" +
			"User question:\n" + question + "\n\n" +
			"Relevant past transactions:\n" + retrievedContext + "\n\n" +
			"Analysis of spending:\n" + analysisText + "\n\n" +
			"Now answer the user's question in clear, simple language.\n" +
			"Include concrete numbers where it makes sense (totals per category, approximate monthly spending).\n" +
			"Also include 2-3 short, practical money management tips based on their pattern.\n" +
			"Output STRICT JSON only matching the response schema.\n"

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   answerSchema,
		Temperature:      genai.Ptr[float32](0.3),
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: answer generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("gemini: empty answer response")
	}

	var answer domain.AdvisorAnswer
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &answer); err != nil {
		return nil, fmt.Errorf("gemini: unmarshal answer: %w\nraw response: %s", err, raw)
	}
	if strings.TrimSpace(answer.Response) == "" {
		return nil, fmt.Errorf("gemini: answer response text is empty")
	}
	return &answer, nil
}
