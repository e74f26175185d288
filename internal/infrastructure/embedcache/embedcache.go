// Package embedcache memoizes embeddings by content hash.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/evidence-rag/internal/core/ports"
)

const defaultSize = 4096

// Embedder wraps another embedder with an LRU cache keyed by the SHA-256 of
// the input text. Callers receive copies, never the cached slice.
type Embedder struct {
	next  ports.Embedder
	cache *lru.Cache[string, []float32]
}

func New(next ports.Embedder, size int) *Embedder {
	if size <= 0 {
		size = defaultSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		cache, _ = lru.New[string, []float32](defaultSize)
	}
	return &Embedder{next: next, cache: cache}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)
	if v, ok := e.cache.Get(key); ok {
		return clone(v), nil
	}
	v, err := e.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, clone(v))
	return v, nil
}

// Embed only sends the texts missing from the cache to the wrapped embedder.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		keys[i] = hashText(text)
		if v, ok := e.cache.Get(keys[i]); ok {
			out[i] = clone(v)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := e.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vectors {
		if j >= len(missingIdx) {
			break
		}
		i := missingIdx[j]
		out[i] = v
		e.cache.Add(keys[i], clone(v))
	}
	return out, nil
}

func (e *Embedder) Len() int { return e.cache.Len() }

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}
