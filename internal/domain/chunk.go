package domain

// Chunk is a bounded, overlapping window of a transaction's indexed text.
// Concatenating a transaction's chunks in SequenceIndex order and dropping
// the first OverlapWithPrevious characters of every non-first chunk
// reconstructs the source text exactly.
type Chunk struct {
	ID                  string `json:"id"`
	TransactionID       string `json:"transaction_id"`
	SequenceIndex       int    `json:"sequence_index"`
	Text                string `json:"text"`
	OverlapWithPrevious int    `json:"overlap_with_previous"`
}

// ChunkMatch is one retrieval hit: a chunk together with its similarity
// score against the query vector.
type ChunkMatch struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
