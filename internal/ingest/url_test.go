package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchURL_ExtractsVisibleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>ignored</title><style>p{color:red}</style></head>
			<body><nav>menu items</nav>
			<h1>Heading</h1>
			<p>First paragraph.</p>
			<p>Second paragraph.</p>
			<script>var x = "hidden";</script>
			<footer>copyright</footer></body></html>`))
	}))
	defer srv.Close()

	text, err := FetchURL(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("FetchURL: %v", err)
	}

	if !strings.Contains(text, "Heading") || !strings.Contains(text, "First paragraph.") {
		t.Errorf("missing visible text: %q", text)
	}
	for _, hidden := range []string{"hidden", "color:red", "menu items", "copyright", "ignored"} {
		if strings.Contains(text, hidden) {
			t.Errorf("non-content text %q leaked into extraction", hidden)
		}
	}
	if !strings.Contains(text, "First paragraph.\n\nSecond paragraph.") {
		t.Errorf("paragraph breaks not preserved: %q", text)
	}
}

func TestFetchURL_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := FetchURL(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestFetchURL_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	if _, err := FetchURL(context.Background(), nil, srv.URL); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}
