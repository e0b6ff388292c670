package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/akarpos/glossa/internal/ingest"
	"github.com/akarpos/glossa/internal/storage"
)

const maxIngestBodySize = 10 << 20 // 10MB

type addDocumentRequest struct {
	Title   string `json:"title"`
	Source  string `json:"source"`
	Type    string `json:"type"` // "text" (default), "url", "pdf"
	Content string `json:"content"`
	URL     string `json:"url"`
}

func handleAddDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var req addDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of content or url is required")
			return
		}
		if req.Type == "" {
			req.Type = "text"
		}

		var resolvedContent string
		switch req.Type {
		case "url":
			if req.URL == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required for type url")
				return
			}
			text, err := ingest.FetchURL(r.Context(), deps.HTTPClient, req.URL)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "failed to fetch url: %v", err)
				return
			}
			resolvedContent = text
			if req.Source == "" {
				req.Source = req.URL
			}
			if req.Title == "" {
				req.Title = req.URL
			}

		case "pdf":
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			text, err := extractPDFBytes(decoded)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to extract pdf text: %v", err)
				return
			}
			resolvedContent = text

		case "text":
			resolvedContent = req.Content

		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown document type %q", req.Type)
			return
		}

		doc := storage.Document{
			ID:        uuid.New().String(),
			Title:     req.Title,
			Source:    req.Source,
			Content:   resolvedContent,
			CreatedAt: time.Now().UTC(),
		}
		if err := ingest.QueueDocument(deps.Store, doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to queue document: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"id":     doc.ID,
			"status": "queued",
		})
	}
}

// extractPDFBytes writes the payload to a temp file for the PDF parser,
// which needs seekable input.
func extractPDFBytes(data []byte) (string, error) {
	f, err := os.CreateTemp("", "glossa-*.pdf")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", err
	}
	f.Close()

	return ingest.ExtractPDF(f.Name())
}

type documentResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)

		docs, err := deps.Store.ListDocuments(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}

		out := make([]documentResponse, len(docs))
		for i, d := range docs {
			out[i] = documentResponse{
				ID:        d.ID,
				Title:     d.Title,
				Source:    d.Source,
				Status:    d.Status,
				CreatedAt: d.CreatedAt,
			}
		}
		writeJSON(w, out)
	}
}

func handleDeleteDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := deps.Store.DeleteDocument(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "document %s not found", id)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}

		if deps.Vectors != nil {
			if err := deps.Vectors.DeleteBySource(r.Context(), id); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "document deleted but vector cleanup failed: %v", err)
				return
			}
		}

		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func parseIntParam(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}
