package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Compile-time check that QdrantStore implements VectorStore.
var _ VectorStore = (*QdrantStore)(nil)

// QdrantStore talks to a Qdrant server over its HTTP API. Collections use
// cosine distance so scores keep the same direction as the SQLite backend.
type QdrantStore struct {
	baseURL    string
	collection string
	apiKey     string
	dim        int
	client     *http.Client
}

// NewQdrantStore creates a QdrantStore for the given server and collection.
// dim is the embedding dimension used when the collection has to be created.
func NewQdrantStore(baseURL, collection, apiKey string, dim int) *QdrantStore {
	return &QdrantStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		collection: collection,
		apiKey:     apiKey,
		dim:        dim,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Result T            `json:"result"`
}

type qdrantStatus struct {
	State string
	Error string
}

// Qdrant returns status as either the string "ok" or an object {"error": ...}.
func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}

	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantPointResult struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet.
func (q *QdrantStore) EnsureCollection(ctx context.Context) error {
	path := fmt.Sprintf("/collections/%s", url.PathEscape(q.collection))

	var probe qdrantEnvelope[json.RawMessage]
	err := q.do(ctx, http.MethodGet, path, nil, &probe)
	if err == nil && strings.EqualFold(probe.Status.State, "ok") {
		return nil
	}
	if err != nil && !errors.Is(err, ErrCollectionNotFound) {
		return err
	}

	req := map[string]any{
		"vectors": map[string]any{
			"size":     q.dim,
			"distance": "Cosine",
		},
	}

	var rsp qdrantEnvelope[json.RawMessage]
	if err := q.do(ctx, http.MethodPut, path, req, &rsp); err != nil {
		return err
	}
	if !strings.EqualFold(rsp.Status.State, "ok") {
		return errors.New(rsp.Status.Error)
	}
	return nil
}

// Insert upserts records as points. Chunk text and source ID travel in the
// point payload so Search can return them without a second round trip.
func (q *QdrantStore) Insert(ctx context.Context, records []Record) error {
	points := make([]map[string]any, 0, len(records))
	for _, r := range records {
		if q.dim > 0 && len(r.Embedding) != q.dim {
			return fmt.Errorf("record %s: embedding dimension %d, store expects %d", r.ID, len(r.Embedding), q.dim)
		}
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		points = append(points, map[string]any{
			"id":     r.ID,
			"vector": r.Embedding,
			"payload": map[string]any{
				"source_id":  r.SourceID,
				"text_chunk": r.Text,
				"created_at": createdAt.Format(time.RFC3339),
			},
		})
	}

	req := map[string]any{"points": points}
	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(q.collection))

	var rsp qdrantEnvelope[json.RawMessage]
	if err := q.do(ctx, http.MethodPut, path, req, &rsp); err != nil {
		return err
	}
	if !strings.EqualFold(rsp.Status.State, "ok") && rsp.Status.Error != "" {
		return errors.New(rsp.Status.Error)
	}
	return nil
}

// Search returns the top-K most similar records, best first.
func (q *QdrantStore) Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error) {
	if topK < 1 {
		return nil, nil
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(q.collection))

	var rsp qdrantEnvelope[[]qdrantPointResult]
	if err := q.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
		return nil, err
	}

	results := make([]ScoredRecord, 0, len(rsp.Result))
	for _, point := range rsp.Result {
		rec := Record{
			ID:       point.ID,
			SourceID: payloadString(point.Payload, "source_id"),
			Text:     payloadString(point.Payload, "text_chunk"),
		}
		if ts := payloadString(point.Payload, "created_at"); ts != "" {
			rec.CreatedAt, _ = time.Parse(time.RFC3339, ts)
		}
		results = append(results, ScoredRecord{Record: rec, Score: float32(point.Score)})
	}
	return results, nil
}

// DeleteBySource removes all points whose payload names the given document.
func (q *QdrantStore) DeleteBySource(ctx context.Context, sourceID string) error {
	req := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   "source_id",
					"match": map[string]any{"value": sourceID},
				},
			},
		},
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", url.PathEscape(q.collection))

	var rsp qdrantEnvelope[json.RawMessage]
	if err := q.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
		return err
	}
	if !strings.EqualFold(rsp.Status.State, "ok") && rsp.Status.Error != "" {
		return errors.New(rsp.Status.Error)
	}
	return nil
}

// Count returns the number of points in the collection.
func (q *QdrantStore) Count(ctx context.Context) (int, error) {
	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(q.collection))

	var rsp qdrantEnvelope[struct {
		Count int `json:"count"`
	}]
	if err := q.do(ctx, http.MethodPost, path, map[string]any{"exact": true}, &rsp); err != nil {
		return 0, err
	}
	return rsp.Result.Count, nil
}

func (q *QdrantStore) do(ctx context.Context, method, path string, req, rsp any) error {
	var body io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		request.Header.Set("api-key", q.apiKey)
	}

	response, err := q.client.Do(request)
	if err != nil {
		return fmt.Errorf("qdrant request: %v: %w", err, ErrIndexUnavailable)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	if response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("collection %q: %w", q.collection, ErrCollectionNotFound)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("qdrant http %d: %s", response.StatusCode, string(payload))
	}

	if rsp != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, rsp); err != nil {
			return err
		}
	}
	return nil
}

func payloadString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
