package retrieval

import (
	"context"
	"fmt"
)

// NoContextText is the sentinel placed in the prompt when retrieval
// finds nothing relevant enough. It is emitted verbatim so the
// generation model sees a stable phrase it can condition on.
const NoContextText = "There is no specific context for this query"

// QueryResult is the outcome of a retrieval query.
// When Found is false, Text carries NoContextText and Score is the best
// score seen (zero if the index was empty).
type QueryResult struct {
	Text     string
	SourceID string
	Score    float32
	Found    bool
}

// Retriever embeds queries and searches the vector store, applying the
// relevance threshold. Results at or above the threshold surface the
// chunk text; everything else degrades to the no-context sentinel.
type Retriever struct {
	embedder  *Embedder
	store     VectorStore
	topK      int
	threshold float32
}

// NewRetriever constructs a Retriever. topK must be at least 1.
func NewRetriever(embedder *Embedder, store VectorStore, topK int, threshold float32) *Retriever {
	if topK < 1 {
		topK = 1
	}
	return &Retriever{
		embedder:  embedder,
		store:     store,
		topK:      topK,
		threshold: threshold,
	}
}

// Search embeds the query and returns the best-matching chunk, or the
// no-context sentinel when nothing clears the threshold. An unreachable
// index is an error, not an empty result; callers must not conflate the
// two.
func (r *Retriever) Search(ctx context.Context, query string) (QueryResult, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return QueryResult{}, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := r.store.Search(ctx, vector, r.topK)
	if err != nil {
		return QueryResult{}, fmt.Errorf("searching index: %w", err)
	}

	if len(scored) == 0 {
		return QueryResult{Text: NoContextText}, nil
	}

	best := scored[0]
	if best.Score < r.threshold {
		return QueryResult{Text: NoContextText, Score: best.Score}, nil
	}

	return QueryResult{
		Text:     best.Text,
		SourceID: best.SourceID,
		Score:    best.Score,
		Found:    true,
	}, nil
}

// SearchAll embeds the query and returns every hit at or above the
// threshold, best first. Used by the search surfaces rather than the
// reply pipeline, which only consumes the single best chunk.
func (r *Retriever) SearchAll(ctx context.Context, query string) ([]ScoredRecord, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := r.store.Search(ctx, vector, r.topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	var hits []ScoredRecord
	for _, s := range scored {
		if s.Score >= r.threshold {
			hits = append(hits, s)
		}
	}
	return hits, nil
}
