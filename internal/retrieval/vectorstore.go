package retrieval

import (
	"context"
	"time"
)

// VectorStore is the interface for vector storage and similarity search
// backends. The embedded SQLite implementation does brute-force cosine
// similarity; the Qdrant implementation talks to a remote server over HTTP.
//
// Score convention, fixed across all backends: cosine similarity,
// higher is more relevant, range [-1, 1]. Thresholding in the Retriever
// relies on this direction.
type VectorStore interface {
	// Insert adds records to the collection. Records whose embedding
	// dimension does not match the collection's configured dimension are
	// rejected here, not at query time.
	Insert(ctx context.Context, records []Record) error

	// Search returns the top-K most similar records, best first.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteBySource removes all records originating from the given document.
	DeleteBySource(ctx context.Context, sourceID string) error

	// Count returns the number of records in the collection.
	Count(ctx context.Context) (int, error)
}

// Record represents one indexed chunk in the vector store.
type Record struct {
	ID        string
	SourceID  string // originating document, for traceability
	Text      string // the original chunk text
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
