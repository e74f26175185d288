// Package memory is an in-process vector store for local runs and tests.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

type Store struct {
	mu     sync.RWMutex
	points map[string]domain.VectorPoint
}

func New() *Store {
	return &Store{points: make(map[string]domain.VectorPoint)}
}

func (s *Store) Upsert(_ context.Context, points []domain.VectorPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		s.points[p.ID] = p
	}
	return nil
}

func (s *Store) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.points, id)
	}
	return nil
}

func (s *Store) Query(_ context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error) {
	return s.collect(limit, filter, func(p domain.VectorPoint) (float64, bool) {
		return cosine(vector, p.Vector), true
	}), nil
}

// SearchLexical scores points by the share of query tokens they contain.
func (s *Store) SearchLexical(_ context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error) {
	query := tokenSet(queryText)
	if len(query) == 0 {
		return nil, nil
	}
	return s.collect(limit, filter, func(p domain.VectorPoint) (float64, bool) {
		text := tokenSet(p.Text + " " + p.Metadata.Path)
		hits := 0
		for token := range query {
			if _, ok := text[token]; ok {
				hits++
			}
		}
		return float64(hits) / float64(len(query)), hits > 0
	}), nil
}

func (s *Store) ScanText(_ context.Context, literal string, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error) {
	literal = strings.ToLower(strings.TrimSpace(literal))
	if literal == "" {
		return nil, nil
	}
	return s.collect(limit, filter, func(p domain.VectorPoint) (float64, bool) {
		n := strings.Count(strings.ToLower(p.Text), literal)
		return float64(n), n > 0
	}), nil
}

func (s *Store) SearchByPath(_ context.Context, pathHint string, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error) {
	pathHint = strings.ToLower(strings.TrimSpace(pathHint))
	if pathHint == "" {
		return nil, nil
	}
	return s.collect(limit, filter, func(p domain.VectorPoint) (float64, bool) {
		return 1, strings.Contains(strings.ToLower(p.Metadata.Path), pathHint)
	}), nil
}

func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.points[id]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// collect scores every point passing filter and returns the best first,
// ties ordered by path, chunk index and ID. limit <= 0 returns all matches.
func (s *Store) collect(limit int, filter domain.SearchFilter, score func(domain.VectorPoint) (float64, bool)) []domain.VectorMatch {
	s.mu.RLock()
	out := make([]domain.VectorMatch, 0, len(s.points))
	for _, p := range s.points {
		if filter.SourceID != "" && p.Metadata.SourceID != filter.SourceID {
			continue
		}
		sc, ok := score(p)
		if !ok {
			continue
		}
		out = append(out, domain.VectorMatch{ID: p.ID, Score: sc, Text: p.Text, Metadata: p.Metadata})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Metadata.Path != out[j].Metadata.Path {
			return out[i].Metadata.Path < out[j].Metadata.Path
		}
		if out[i].Metadata.ChunkIndex != out[j].Metadata.ChunkIndex {
			return out[i].Metadata.ChunkIndex < out[j].Metadata.ChunkIndex
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}
