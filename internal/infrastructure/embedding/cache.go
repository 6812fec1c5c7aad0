package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/toolrank-io/toolrank/internal/core/ports"
)

type CachedEmbedder struct {
	inner ports.Embedder
	cache *ttlcache.Cache[string, []float32]
}

func NewCachedEmbedder(inner ports.Embedder, ttl time.Duration, capacity uint64) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []float32](ttl),
		ttlcache.WithCapacity[string, []float32](capacity),
	)
	go cache.Start()
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if item := e.cache.Get(text); item != nil {
			out[i] = item.Value()
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := e.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missing))
	}
	for j, vector := range vectors {
		out[missingIdx[j]] = vector
		e.cache.Set(missing[j], vector, ttlcache.DefaultTTL)
	}
	return out, nil
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (e *CachedEmbedder) Stop() {
	e.cache.Stop()
}
