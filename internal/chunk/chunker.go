package chunk

import (
	"fmt"

	"github.com/dvloznov/receipt-advisor/internal/domain"
)

// Chunker splits text into overlapping character windows for indexing.
// It is deliberately not semantically aware: it walks the text in strides
// of size-overlap and emits whatever remainder is left as a final partial
// chunk.
type Chunker struct {
	size    int
	overlap int
}

// New validates size > overlap >= 0 and returns a chunker.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk: size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk: overlap must be non-negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk: overlap %d must be smaller than size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split chunks text into ordered windows. The result is non-empty for any
// non-empty input; text no longer than the chunk size yields exactly one
// chunk. Sequence indexes and overlap counts are filled; the caller owns
// chunk and transaction IDs.
//
// Windows are cut on rune boundaries so multi-byte text never splits
// mid-character; size and overlap count runes.
func (c *Chunker) Split(text string) []domain.Chunk {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	stride := c.size - c.overlap

	var chunks []domain.Chunk
	for start := 0; start < len(runes); start += stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}

		overlap := 0
		if len(chunks) > 0 {
			overlap = c.overlap
		}

		chunks = append(chunks, domain.Chunk{
			SequenceIndex:       len(chunks),
			Text:                string(runes[start:end]),
			OverlapWithPrevious: overlap,
		})

		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Reconstruct rebuilds the source text from chunks ordered by sequence
// index, stripping the leading overlap of every non-first chunk. It is
// the inverse of Split and exists mainly for verification.
func Reconstruct(chunks []domain.Chunk) string {
	var out []rune
	for _, ch := range chunks {
		runes := []rune(ch.Text)
		if ch.SequenceIndex > 0 && ch.OverlapWithPrevious > 0 {
			if ch.OverlapWithPrevious >= len(runes) {
				continue
			}
			runes = runes[ch.OverlapWithPrevious:]
		}
		out = append(out, runes...)
	}
	return string(out)
}
