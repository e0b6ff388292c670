package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/akarpos/glossa/internal/retrieval"
	"github.com/akarpos/glossa/internal/storage"
	"github.com/google/uuid"
)

// jobTypeIndex is the queue entry produced for every accepted document.
const jobTypeIndex = "index_document"

// JobStore abstracts the job queue and document operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetDocument(id string) (storage.Document, error)
	UpdateDocumentStatus(id, status string) error
}

// ContentEmbedder generates embeddings for text chunks.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorInserter inserts records into the vector store.
type VectorInserter interface {
	Insert(ctx context.Context, records []retrieval.Record) error
	DeleteBySource(ctx context.Context, sourceID string) error
}

// Worker processes index_document jobs from the SQLite job queue:
// chunk the stored content, embed each chunk, and insert the vectors.
type Worker struct {
	store    JobStore
	embedder ContentEmbedder
	vectors  VectorInserter
	chunker  *Chunker
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, vectors VectorInserter, chunker *Chunker, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if chunker == nil {
		chunker = NewChunker(0)
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		chunker:  chunker,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single index_document job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{jobTypeIndex})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type indexPayload struct {
	DocumentID string `json:"document_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload indexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetDocument(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocumentID, err)
	}

	chunks := w.chunker.Split(doc.Content)
	if len(chunks) == 0 {
		w.logger.Warn("document has no indexable content", "document_id", doc.ID)
		return w.store.UpdateDocumentStatus(doc.ID, "indexed")
	}

	vecs, err := w.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		markErr := w.store.UpdateDocumentStatus(doc.ID, "failed")
		if markErr != nil {
			w.logger.Error("failed to mark document failed", "document_id", doc.ID, "error", markErr)
		}
		return fmt.Errorf("embedding chunks: %w", err)
	}

	// Replace, not add. Re-indexing the same document must not leave
	// stale vectors behind.
	if err := w.vectors.DeleteBySource(ctx, doc.ID); err != nil {
		return fmt.Errorf("clearing old vectors: %w", err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = retrieval.Record{
			ID:        uuid.New().String(),
			SourceID:  doc.ID,
			Text:      chunk,
			Embedding: vecs[i],
			CreatedAt: now,
		}
	}

	if err := w.vectors.Insert(ctx, records); err != nil {
		markErr := w.store.UpdateDocumentStatus(doc.ID, "failed")
		if markErr != nil {
			w.logger.Error("failed to mark document failed", "document_id", doc.ID, "error", markErr)
		}
		return fmt.Errorf("inserting vectors: %w", err)
	}

	return w.store.UpdateDocumentStatus(doc.ID, "indexed")
}

// QueueDocument stores a document and enqueues its indexing job in the
// given store. The worker picks it up on its next poll.
func QueueDocument(store *storage.Store, doc storage.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = "queued"
	}
	if err := store.SaveDocument(doc); err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	payload, _ := json.Marshal(indexPayload{DocumentID: doc.ID})
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        jobTypeIndex,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueueing index job: %w", err)
	}
	return nil
}
