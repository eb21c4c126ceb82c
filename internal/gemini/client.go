package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Client wraps the GenAI client behind the four capabilities the core
// consumes: OCR, embedding, constrained-schema reasoning, and free-text
// reasoning. Authentication comes from the environment (GEMINI_API_KEY
// or application default credentials).
type Client struct {
	genai          *genai.Client
	model          string
	embeddingModel string
}

// NewClient creates a Gemini-backed capability client.
func NewClient(ctx context.Context, model, embeddingModel string) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{
		genai:          c,
		model:          model,
		embeddingModel: embeddingModel,
	}, nil
}

// cleanModelJSON strips Markdown fences and surrounding prose when the
// model ignores the raw-JSON instruction, keeping only the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
