package retrieval

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatforge/agentd/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.RetrievalConfig{
		BaseURL:      srv.URL,
		DefaultLimit: 3,
		Timeout:      2 * time.Second,
	}, log.New(io.Discard, "", 0))
}

func TestQueryReturnsOrderedChunks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostFormValue("query") != "refund policy" || r.PostFormValue("project_id") != "p1" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		if r.PostFormValue("limit") != "2" {
			t.Errorf("unexpected limit %q", r.PostFormValue("limit"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"content":"Refunds within 30 days.","document_id":"d1","similarity":0.92},
			{"content":"Contact support for refunds.","document_id":"d2","similarity":0.81}
		]`))
	})

	chunks := client.Query(context.Background(), "refund policy", "p1", 2)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Similarity < chunks[1].Similarity {
		t.Fatalf("chunks must keep descending similarity order")
	}
	if chunks[0].DocumentID != "d1" {
		t.Fatalf("unexpected first chunk %+v", chunks[0])
	}
}

func TestQueryDegradesToEmptyOnFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if got := client.Query(context.Background(), "q", "p1", 3); got != nil {
		t.Fatalf("expected nil on server error, got %v", got)
	}

	down := NewClient(config.RetrievalConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, log.New(io.Discard, "", 0))
	if got := down.Query(context.Background(), "q", "p1", 3); got != nil {
		t.Fatalf("expected nil on transport error, got %v", got)
	}
}
