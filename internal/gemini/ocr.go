package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const ocrPrompt = "Transcribe ALL text visible in the attached receipt, line by line, " +
	"preserving the reading order from top to bottom.\n" +
	"Output ONLY the transcribed text.\n" +
	"Do NOT add commentary, labels, or Markdown.\n" +
	"Do NOT correct spelling or reformat amounts and dates.\n"

// ExtractText runs OCR on a receipt image or PDF and returns the raw
// text. An empty transcription is returned as-is; the caller decides
// whether that is a parse failure.
func (c *Client) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: ocrPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     data,
					},
				},
			},
		},
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: ocr generate content: %w", err)
	}

	return resp.Text(), nil
}
