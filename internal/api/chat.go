package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/akarpos/glossa/internal/history"
	"github.com/akarpos/glossa/internal/pipeline"
	"github.com/akarpos/glossa/internal/retrieval"
	"github.com/akarpos/glossa/internal/storage"
)

// ChatService is the conversation surface the HTTP layer exposes.
type ChatService interface {
	HandleMessage(ctx context.Context, sessionID, langHint, text string) (pipeline.Result, error)
	DegradedReplyFor(ctx context.Context, userLang string) string
}

// SessionStore is the slice of the history store the HTTP layer needs.
type SessionStore interface {
	CreateSession(ctx context.Context, userLang string) (string, error)
	Read(ctx context.Context, sessionID string) ([]history.Turn, error)
}

// DocSearcher exposes raw semantic search over the index.
type DocSearcher interface {
	SearchAll(ctx context.Context, query string) ([]retrieval.ScoredRecord, error)
}

// VectorDeleter abstracts vector cleanup for document deletion.
type VectorDeleter interface {
	DeleteBySource(ctx context.Context, sourceID string) error
}

type AppDeps struct {
	Chat       ChatService
	Sessions   SessionStore
	Store      *storage.Store
	Search     DocSearcher
	Vectors    VectorDeleter
	Token      string
	HTTPClient *http.Client
}

// NewAppHandler builds the HTTP API. Everything under /v1 requires the
// bearer token; /health does not, so process managers can probe it.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/chat", handleChat(deps))
		r.Post("/sessions", handleCreateSession(deps))
		r.Get("/sessions/{id}/history", handleSessionHistory(deps))
		r.Post("/documents", handleAddDocument(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))
		r.Get("/search", handleSearch(deps))
	})

	return r
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
	Text      string `json:"text"`
}

type chatResponse struct {
	SessionID    string  `json:"session_id"`
	Reply        string  `json:"reply"`
	Language     string  `json:"language"`
	ContextFound bool    `json:"context_found"`
	Score        float32 `json:"score,omitempty"`
	Degraded     bool    `json:"degraded,omitempty"`
}

func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		sessionID := req.SessionID
		if sessionID == "" {
			id, err := deps.Sessions.CreateSession(r.Context(), req.Language)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to create session: %v", err)
				return
			}
			sessionID = id
		}

		res, err := deps.Chat.HandleMessage(r.Context(), sessionID, req.Language, req.Text)
		if err != nil {
			// The turn failed but the session is intact. The caller gets
			// a degraded reply in their language and can simply retry.
			writeJSON(w, chatResponse{
				SessionID: sessionID,
				Reply:     deps.Chat.DegradedReplyFor(r.Context(), res.UserLang),
				Language:  res.UserLang,
				Degraded:  true,
			})
			return
		}

		writeJSON(w, chatResponse{
			SessionID:    sessionID,
			Reply:        res.Reply,
			Language:     res.UserLang,
			ContextFound: res.ContextFound,
			Score:        res.Score,
		})
	}
}

func handleCreateSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Language string `json:"language"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		id, err := deps.Sessions.CreateSession(r.Context(), req.Language)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create session: %v", err)
			return
		}
		writeJSON(w, map[string]string{"session_id": id})
	}
}

type turnResponse struct {
	Seq     int    `json:"seq"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

func handleSessionHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		turns, err := deps.Sessions.Read(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read history: %v", err)
			return
		}

		out := make([]turnResponse, len(turns))
		for i, t := range turns {
			out[i] = turnResponse{Seq: t.Seq, Role: t.Role, Content: t.Content}
		}
		writeJSON(w, out)
	}
}

type searchHit struct {
	ID       string  `json:"id"`
	SourceID string  `json:"source_id"`
	Text     string  `json:"text"`
	Score    float32 `json:"score"`
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}

		hits, err := deps.Search.SearchAll(r.Context(), query)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "search failed: %v", err)
			return
		}

		out := make([]searchHit, len(hits))
		for i, h := range hits {
			out[i] = searchHit{ID: h.ID, SourceID: h.SourceID, Text: h.Text, Score: h.Score}
		}
		writeJSON(w, out)
	}
}
