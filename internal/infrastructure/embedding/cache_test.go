package embedding

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingEmbedder struct {
	calls   int
	batches [][]string
	err     error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	e.batches = append(e.batches, append([]string(nil), texts...))
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), float32(i)}
	}
	return out, nil
}

func (e *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func TestEmbedCachesRepeatedTexts(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, time.Minute, 100)
	defer cached.Stop()

	first, err := cached.Embed(context.Background(), []string{"crm", "helpdesk"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	second, err := cached.Embed(context.Background(), []string{"crm", "helpdesk"})
	if err != nil {
		t.Fatalf("Embed() second call error = %v", err)
	}

	if inner.calls != 1 {
		t.Fatalf("expected 1 inner call, got %d", inner.calls)
	}
	if len(second) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(second))
	}
	for i := range first {
		if len(first[i]) != len(second[i]) || first[i][0] != second[i][0] {
			t.Fatalf("cached vector %d diverged: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestEmbedOnlyForwardsMisses(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, time.Minute, 100)
	defer cached.Stop()

	if _, err := cached.Embed(context.Background(), []string{"crm"}); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	vectors, err := cached.Embed(context.Background(), []string{"wiki", "crm", "chat"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if inner.calls != 2 {
		t.Fatalf("expected 2 inner calls, got %d", inner.calls)
	}
	got := inner.batches[1]
	if len(got) != 2 || got[0] != "wiki" || got[1] != "chat" {
		t.Fatalf("expected second batch [wiki chat], got %v", got)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	if vectors[1][0] != float32(len("crm")) {
		t.Fatalf("expected cached vector for crm, got %v", vectors[1])
	}
}

func TestEmbedDoesNotCacheFailures(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("model offline")}
	cached := NewCachedEmbedder(inner, time.Minute, 100)
	defer cached.Stop()

	if _, err := cached.Embed(context.Background(), []string{"crm"}); err == nil {
		t.Fatal("expected error from inner embedder")
	}

	inner.err = nil
	if _, err := cached.Embed(context.Background(), []string{"crm"}); err != nil {
		t.Fatalf("Embed() after recovery error = %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected failed call to stay uncached, got %d inner calls", inner.calls)
	}
}

func TestEmbedQueryUsesCache(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, time.Minute, 100)
	defer cached.Stop()

	if _, err := cached.EmbedQuery(context.Background(), "best free crm"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	vector, err := cached.EmbedQuery(context.Background(), "best free crm")
	if err != nil {
		t.Fatalf("EmbedQuery() second call error = %v", err)
	}

	if inner.calls != 1 {
		t.Fatalf("expected 1 inner call, got %d", inner.calls)
	}
	if len(vector) == 0 {
		t.Fatal("expected non-empty vector")
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, time.Minute, 100)
	defer cached.Stop()

	vectors, err := cached.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vectors != nil {
		t.Fatalf("expected nil vectors, got %v", vectors)
	}
	if inner.calls != 0 {
		t.Fatalf("expected no inner calls, got %d", inner.calls)
	}
}
