package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/infrastructure/resilience"
)

func TestEnsureFacetsCreatesCollectionPerFacet(t *testing.T) {
	var created []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/collections/") && !strings.Contains(r.URL.Path, "/points") {
			created = append(created, strings.TrimPrefix(r.URL.Path, "/collections/"))
			w.WriteHeader(http.StatusCreated)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "toolrank", 768)
	if err := client.EnsureFacets(context.Background()); err != nil {
		t.Fatalf("EnsureFacets() error = %v", err)
	}
	want := []string{"toolrank_semantic", "toolrank_functionality", "toolrank_categories"}
	if len(created) != len(want) {
		t.Fatalf("expected %d collections, got %v", len(want), created)
	}
	for i, name := range want {
		if created[i] != name {
			t.Fatalf("expected collection %q, got %q", name, created[i])
		}
	}
}

func TestIndexFacetEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var lastUpsert map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/toolrank_semantic":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/toolrank_semantic/points":
			_ = json.NewDecoder(r.Body).Decode(&lastUpsert)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "toolrank", 2)
	points := []domain.FacetPoint{
		{ToolID: "tool-1", ChunkIndex: 0, Vector: []float32{0.1, 0.2}, Payload: map[string]any{"name": "CRM Pro"}},
		{ToolID: "tool-1", ChunkIndex: 1, Vector: []float32{0.3, 0.4}},
	}

	if err := client.IndexFacet(context.Background(), domain.SourceSemantic, points); err != nil {
		t.Fatalf("first IndexFacet() error = %v", err)
	}
	if err := client.IndexFacet(context.Background(), domain.SourceSemantic, points); err != nil {
		t.Fatalf("second IndexFacet() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}

	raw, ok := lastUpsert["points"].([]any)
	if !ok || len(raw) != 2 {
		t.Fatalf("expected 2 upserted points, got %v", lastUpsert)
	}
	first := raw[0].(map[string]any)
	payload := first["payload"].(map[string]any)
	if payload["tool_id"] != "tool-1" || payload["name"] != "CRM Pro" {
		t.Fatalf("expected tool_id and original payload kept, got %v", payload)
	}
	if _, ok := payload["chunk_index"]; !ok {
		t.Fatalf("expected chunk_index in payload, got %v", payload)
	}
}

func TestSearchFacetMapsHits(t *testing.T) {
	var searchBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collections/toolrank_categories/points/search" {
			_ = json.NewDecoder(r.Body).Decode(&searchBody)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"result":[
				{"score":0.91,"payload":{"tool_id":"tool-1","name":"CRM Pro"}},
				{"score":0.74,"payload":{"tool_id":"tool-2","name":"SalesBase"}}
			]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "toolrank", 2)
	hits, err := client.SearchFacet(context.Background(), domain.SourceCategories, []float32{0.5, 0.5}, 7)
	if err != nil {
		t.Fatalf("SearchFacet() error = %v", err)
	}
	if len(hits) != 2 || hits[0].ToolID != "tool-1" || hits[0].Score != 0.91 {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if hits[1].Payload["name"] != "SalesBase" {
		t.Fatalf("expected payload passthrough, got %v", hits[1].Payload)
	}
	if got := searchBody["limit"].(float64); got != 7 {
		t.Fatalf("expected limit 7 in request, got %v", got)
	}
}

func TestDeleteToolFiltersByToolID(t *testing.T) {
	var deleteBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collections/toolrank_semantic/points/delete" {
			_ = json.NewDecoder(r.Body).Decode(&deleteBody)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "toolrank", 2)
	if err := client.DeleteTool(context.Background(), domain.SourceSemantic, "tool-9"); err != nil {
		t.Fatalf("DeleteTool() error = %v", err)
	}
	raw, _ := json.Marshal(deleteBody)
	if !strings.Contains(string(raw), `"tool-9"`) || !strings.Contains(string(raw), `"tool_id"`) {
		t.Fatalf("expected tool_id filter, got %s", raw)
	}
}

func TestDeleteToolToleratesMissingCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "toolrank", 2)
	if err := client.DeleteTool(context.Background(), domain.SourceSemantic, "tool-9"); err != nil {
		t.Fatalf("expected missing collection to be a no-op, got %v", err)
	}
}

func TestSearchFacetMarksOutagesTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "toolrank", 2)
	_, err := client.SearchFacet(context.Background(), domain.SourceSemantic, []float32{0.1, 0.2}, 5)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary for 503, got %v", err)
	}
}

func TestSearchFacetRetriesThroughExecutor(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[{"score":0.8,"payload":{"tool_id":"tool-1"}}]}`))
	}))
	defer server.Close()

	client := NewWithOptions(server.URL, "toolrank", 2, Options{Resilience: &resilience.Policy{
		Attempts:      2,
		Backoff:       time.Millisecond,
		BackoffCap:    time.Millisecond,
		BackoffGrowth: 2,
	}})

	hits, err := client.SearchFacet(context.Background(), domain.SourceSemantic, []float32{0.1, 0.2}, 5)
	if err != nil {
		t.Fatalf("SearchFacet() error = %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if len(hits) != 1 || hits[0].ToolID != "tool-1" {
		t.Fatalf("unexpected hits %+v", hits)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/toolrank_semantic" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "toolrank", 2)
	err := client.IndexFacet(context.Background(), domain.SourceSemantic, []domain.FacetPoint{
		{ToolID: "tool-1", Vector: []float32{0.1, 0.2}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}
