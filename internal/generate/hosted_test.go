package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/akarpos/glossa/internal/engine"
)

func TestHostedChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req hostedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "some/model" {
			t.Errorf("model = %q", req.Model)
		}
		if req.MaxTokens != 512 {
			t.Errorf("max_tokens = %d, want 512", req.MaxTokens)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hosted reply"}},
			},
		})
	}))
	defer srv.Close()

	c := NewHostedClient(srv.URL, "test-key")
	reply, err := c.Chat(context.Background(), "some/model",
		[]engine.Message{{Role: "user", Content: "hi"}},
		&engine.Sampling{Temperature: 0.4, DoSample: true, MaxNewTokens: 512})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "hosted reply" {
		t.Errorf("reply = %q", reply)
	}
}

func TestHostedChat_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "after backoff"}},
			},
		})
	}))
	defer srv.Close()

	c := NewHostedClient(srv.URL, "k")
	reply, err := c.Chat(context.Background(), "m", nil, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "after backoff" {
		t.Errorf("reply = %q", reply)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestHostedChat_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHostedClient(srv.URL, "bad")
	if _, err := c.Chat(context.Background(), "m", nil, nil); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestHostedChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := NewHostedClient(srv.URL, "k")
	if _, err := c.Chat(context.Background(), "m", nil, nil); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestHostedChat_GreedyOmitsTemperature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req hostedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Temperature != 0 {
			t.Errorf("temperature = %f, want 0 for greedy decoding", req.Temperature)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	c := NewHostedClient(srv.URL, "k")
	_, err := c.Chat(context.Background(), "m", nil, &engine.Sampling{Temperature: 0.9, DoSample: false})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
}
