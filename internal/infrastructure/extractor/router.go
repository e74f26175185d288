// Package extractor routes raw file content to a format specific extractor.
package extractor

import (
	"context"
	"path"
	"strings"

	"github.com/kirillkom/evidence-rag/internal/core/ports"
)

// Router picks an extractor by lower-cased file extension and falls back to
// the default extractor for anything unregistered.
type Router struct {
	byExt    map[string]ports.TextExtractor
	fallback ports.TextExtractor
}

func NewRouter(fallback ports.TextExtractor) *Router {
	return &Router{byExt: make(map[string]ports.TextExtractor), fallback: fallback}
}

func (r *Router) Register(extractor ports.TextExtractor, exts ...string) *Router {
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.byExt[ext] = extractor
	}
	return r
}

func (r *Router) Extract(ctx context.Context, filePath string, raw []byte) (string, error) {
	if ex, ok := r.byExt[strings.ToLower(path.Ext(filePath))]; ok {
		return ex.Extract(ctx, filePath, raw)
	}
	return r.fallback.Extract(ctx, filePath, raw)
}
