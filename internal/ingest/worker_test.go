package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/akarpos/glossa/internal/retrieval"
	"github.com/akarpos/glossa/internal/storage"
)

// fakeJobStore implements JobStore in memory.
type fakeJobStore struct {
	jobs      []*storage.Job
	docs      map[string]storage.Document
	completed []string
	failed    map[string]string
	statuses  map[string]string
	claimErr  error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		docs:     make(map[string]storage.Document),
		failed:   make(map[string]string),
		statuses: make(map[string]string),
	}
}

func (f *fakeJobStore) ClaimNextJob(types []string) (*storage.Job, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.jobs) == 0 {
		return nil, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job, nil
}

func (f *fakeJobStore) CompleteJob(id string) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeJobStore) FailJob(id string, errMsg string) error {
	f.failed[id] = errMsg
	return nil
}

func (f *fakeJobStore) GetDocument(id string) (storage.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return storage.Document{}, storage.ErrNotFound
	}
	return doc, nil
}

func (f *fakeJobStore) UpdateDocumentStatus(id, status string) error {
	f.statuses[id] = status
	return nil
}

// fakeEmbedder returns one small vector per input text.
type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{float32(i), 1}
	}
	return vecs, nil
}

// fakeInserter records inserted vectors and source deletions.
type fakeInserter struct {
	inserted  []retrieval.Record
	deleted   []string
	insertErr error
}

func (f *fakeInserter) Insert(ctx context.Context, records []retrieval.Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, records...)
	return nil
}

func (f *fakeInserter) DeleteBySource(ctx context.Context, sourceID string) error {
	f.deleted = append(f.deleted, sourceID)
	return nil
}

func queueDoc(f *fakeJobStore, id, content string) {
	f.docs[id] = storage.Document{ID: id, Title: "t", Content: content, Status: "queued"}
	f.jobs = append(f.jobs, &storage.Job{
		ID:          "job-" + id,
		Type:        "index_document",
		PayloadJSON: `{"document_id":"` + id + `"}`,
	})
}

func TestRunOnce_IndexesDocument(t *testing.T) {
	store := newFakeJobStore()
	queueDoc(store, "d1", "First paragraph.\n\nSecond paragraph here.")
	emb := &fakeEmbedder{}
	ins := &fakeInserter{}
	w := NewWorker(store, emb, ins, NewChunker(20), 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("done = false, want job processed")
	}
	if len(ins.inserted) != 2 {
		t.Fatalf("inserted %d vectors, want 2", len(ins.inserted))
	}
	for _, r := range ins.inserted {
		if r.SourceID != "d1" {
			t.Errorf("SourceID = %q, want d1", r.SourceID)
		}
		if r.ID == "" {
			t.Error("record missing ID")
		}
	}
	if store.statuses["d1"] != "indexed" {
		t.Errorf("document status = %q, want indexed", store.statuses["d1"])
	}
	if len(store.completed) != 1 {
		t.Errorf("completed %d jobs, want 1", len(store.completed))
	}
	if len(ins.deleted) != 1 || ins.deleted[0] != "d1" {
		t.Errorf("old vectors not cleared before insert: %v", ins.deleted)
	}
}

func TestRunOnce_NoJobs(t *testing.T) {
	w := NewWorker(newFakeJobStore(), &fakeEmbedder{}, &fakeInserter{}, nil, 0)
	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("done = true with empty queue")
	}
}

func TestRunOnce_EmbeddingFailureMarksJobAndDoc(t *testing.T) {
	store := newFakeJobStore()
	queueDoc(store, "d1", "Some content to index.")
	emb := &fakeEmbedder{err: errors.New("engine down")}
	w := NewWorker(store, emb, &fakeInserter{}, nil, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("done = false, want job claimed")
	}
	if _, ok := store.failed["job-d1"]; !ok {
		t.Error("job not marked failed")
	}
	if store.statuses["d1"] != "failed" {
		t.Errorf("document status = %q, want failed", store.statuses["d1"])
	}
}

func TestRunOnce_MissingDocumentFailsJob(t *testing.T) {
	store := newFakeJobStore()
	store.jobs = append(store.jobs, &storage.Job{
		ID:          "job-x",
		Type:        "index_document",
		PayloadJSON: `{"document_id":"nope"}`,
	})
	w := NewWorker(store, &fakeEmbedder{}, &fakeInserter{}, nil, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, ok := store.failed["job-x"]; !ok {
		t.Error("job for missing document not marked failed")
	}
}

func TestRunOnce_EmptyContentIndexedWithoutVectors(t *testing.T) {
	store := newFakeJobStore()
	queueDoc(store, "d1", "   ")
	emb := &fakeEmbedder{}
	ins := &fakeInserter{}
	w := NewWorker(store, emb, ins, nil, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if emb.calls != 0 {
		t.Error("embedder called for empty content")
	}
	if len(ins.inserted) != 0 {
		t.Error("vectors inserted for empty content")
	}
	if store.statuses["d1"] != "indexed" {
		t.Errorf("status = %q, want indexed", store.statuses["d1"])
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(newFakeJobStore(), &fakeEmbedder{}, &fakeInserter{}, nil, 10*time.Millisecond)

	finished := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(finished)
	}()

	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestQueueDocument(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	err = QueueDocument(store, storage.Document{Title: "notes", Content: "Some text."})
	if err != nil {
		t.Fatalf("QueueDocument: %v", err)
	}

	docs, err := store.ListDocuments(10)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	if docs[0].Status != "queued" {
		t.Errorf("status = %q, want queued", docs[0].Status)
	}

	job, err := store.ClaimNextJob([]string{"index_document"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("no index job enqueued")
	}
}
