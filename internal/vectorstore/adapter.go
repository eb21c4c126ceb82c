package vectorstore

import (
	"context"

	"github.com/dvloznov/receipt-advisor/internal/domain"
)

// Adapter is the contract the core consumes for embedding storage and
// similarity search. Implementations must return deterministic Query
// results for a fixed index state and input vector, break score ties by
// insertion order (earlier-added chunk ranks higher), and make Clear
// leave the index indistinguishable from a freshly created empty one.
type Adapter interface {
	// Add stores a chunk together with its embedding vector.
	Add(ctx context.Context, chunk domain.Chunk, embedding []float32) error

	// Query returns up to k chunks ranked by descending similarity.
	Query(ctx context.Context, embedding []float32, k int) ([]domain.ChunkMatch, error)

	// Clear atomically removes all entries.
	Clear(ctx context.Context) error
}
