package vectorstore

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dvloznov/receipt-advisor/internal/domain"
)

const snapshotFile = "index.snapshot"

// Index is an in-memory vector index with an optional on-disk snapshot
// directory. Similarity is cosine; entries are kept in insertion order,
// which doubles as the tie-break order for equal scores.
type Index struct {
	mu      sync.RWMutex
	dir     string // empty disables persistence
	dim     int
	entries []entry
}

type entry struct {
	Chunk  domain.Chunk
	Vector []float32
}

// Open loads (or initializes) a persistent index in dir. The directory's
// internal format is owned by this package; callers treat it as opaque.
func Open(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("vectorstore: create index dir: %w", err)
	}

	idx := &Index{dir: dir}
	path := filepath.Join(dir, snapshotFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("vectorstore: open snapshot: %w", err)
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&idx.entries); err != nil {
		return nil, fmt.Errorf("vectorstore: decode snapshot %s: %w", path, err)
	}
	if len(idx.entries) > 0 {
		idx.dim = len(idx.entries[0].Vector)
	}
	return idx, nil
}

// NewMemory returns a non-persistent index, mainly for tests.
func NewMemory() *Index {
	return &Index{}
}

// Add implements Adapter.
func (x *Index) Add(ctx context.Context, chunk domain.Chunk, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("vectorstore: empty embedding for chunk %s", chunk.ID)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dim == 0 {
		x.dim = len(embedding)
	} else if len(embedding) != x.dim {
		return fmt.Errorf("vectorstore: embedding dimension %d does not match index dimension %d", len(embedding), x.dim)
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	x.entries = append(x.entries, entry{Chunk: chunk, Vector: vec})

	if err := x.persistLocked(); err != nil {
		// Roll back so memory and disk stay consistent.
		x.entries = x.entries[:len(x.entries)-1]
		return err
	}
	return nil
}

// Query implements Adapter. Scoring every entry and stable-sorting by
// descending score keeps results deterministic and preserves insertion
// order among ties.
func (x *Index) Query(ctx context.Context, embedding []float32, k int) ([]domain.ChunkMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("vectorstore: k must be positive, got %d", k)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.entries) == 0 {
		return []domain.ChunkMatch{}, nil
	}
	if len(embedding) != x.dim {
		return nil, fmt.Errorf("vectorstore: query dimension %d does not match index dimension %d", len(embedding), x.dim)
	}

	matches := make([]domain.ChunkMatch, 0, len(x.entries))
	for _, e := range x.entries {
		matches = append(matches, domain.ChunkMatch{
			Chunk: e.Chunk,
			Score: cosine(embedding, e.Vector),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Clear implements Adapter.
func (x *Index) Clear(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	prev := x.entries
	prevDim := x.dim
	x.entries = nil
	x.dim = 0

	if err := x.persistLocked(); err != nil {
		x.entries = prev
		x.dim = prevDim
		return err
	}
	return nil
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// persistLocked writes the snapshot atomically (temp file + rename).
// Caller must hold the write lock.
func (x *Index) persistLocked() error {
	if x.dir == "" {
		return nil
	}

	path := filepath.Join(x.dir, snapshotFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("vectorstore: create snapshot temp: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(x.entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vectorstore: encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vectorstore: close snapshot temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vectorstore: replace snapshot: %w", err)
	}
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Adapter = (*Index)(nil)
