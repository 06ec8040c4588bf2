package skills

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func searxStub(t *testing.T, results []searxResult) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q, want json", got)
		}
		json.NewEncoder(w).Encode(searxResponse{Results: results})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchQuery(t *testing.T) {
	t.Parallel()

	srv := searxStub(t, []searxResult{
		{Title: "Go", Content: "Go is a programming language."},
		{Title: "Golang", Content: "It was designed at Google."},
		{Title: "Extra", Content: "This one is beyond the limit."},
	})
	s := NewSearch(srv.URL, WithMaxResults(2))

	reply, err := s.Query(context.Background(), "what is go")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := "Go is a programming language. It was designed at Google."
	if reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}
}

func TestSearchNoResults(t *testing.T) {
	t.Parallel()

	srv := searxStub(t, nil)
	s := NewSearch(srv.URL)

	reply, err := s.Query(context.Background(), "gibberish")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if reply != "I couldn't find anything about that." {
		t.Errorf("reply = %q", reply)
	}
}

func TestSearchServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	s := NewSearch(srv.URL)
	if _, err := s.Query(context.Background(), "anything"); err == nil {
		t.Error("expected error for server failure")
	}
}
