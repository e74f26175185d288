package usecase

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/core/ports"
)

const (
	StrategySemantic   = "semantic"
	StrategyLexical    = "lexical"
	StrategyPattern    = "pattern"
	StrategyFileLookup = "file_lookup"
)

func matchesToResult(strategy, query string, matches []domain.VectorMatch, topK int) domain.RetrievalResult {
	nodes := make([]domain.EvidenceNode, 0, len(matches))
	for _, m := range matches {
		nodes = append(nodes, m.Node())
	}
	total := len(nodes)
	if topK > 0 && len(nodes) > topK {
		nodes = nodes[:topK]
	}
	return domain.RetrievalResult{Strategy: strategy, Query: query, Nodes: nodes, TotalCount: total}
}

// SemanticRetriever embeds the query and runs a nearest neighbour search.
type SemanticRetriever struct {
	embedder ports.Embedder
	vectorDB ports.VectorStore
}

func NewSemanticRetriever(embedder ports.Embedder, vectorDB ports.VectorStore) *SemanticRetriever {
	return &SemanticRetriever{embedder: embedder, vectorDB: vectorDB}
}

func (r *SemanticRetriever) Name() string { return StrategySemantic }

func (r *SemanticRetriever) Retrieve(ctx context.Context, query string, topK int, filter domain.SearchFilter) (domain.RetrievalResult, error) {
	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("embed query: %w", err)
	}
	matches, err := r.vectorDB.Query(ctx, queryVector, topK, filter)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("search vector db: %w", err)
	}
	for i := range matches {
		matches[i].Score = clamp01(matches[i].Score)
	}
	return matchesToResult(StrategySemantic, query, matches, topK), nil
}

// LexicalRetriever runs keyword search and rescores hits by the share of
// query tokens they contain.
type LexicalRetriever struct {
	searcher ports.LexicalSearcher
}

func NewLexicalRetriever(searcher ports.LexicalSearcher) *LexicalRetriever {
	return &LexicalRetriever{searcher: searcher}
}

func (r *LexicalRetriever) Name() string { return StrategyLexical }

func (r *LexicalRetriever) Retrieve(ctx context.Context, query string, topK int, filter domain.SearchFilter) (domain.RetrievalResult, error) {
	queryTokens := toTokenSet(query)
	if len(queryTokens) == 0 {
		return domain.RetrievalResult{Strategy: StrategyLexical, Query: query}, nil
	}
	matches, err := r.searcher.SearchLexical(ctx, query, topK, filter)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("lexical search: %w", err)
	}

	scored := matches[:0]
	for _, m := range matches {
		coverage := tokenOverlap(queryTokens, toTokenSet(m.Text))
		if coverage <= 0 {
			continue
		}
		m.Score = coverage
		scored = append(scored, m)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return matchesToResult(StrategyLexical, query, scored, topK), nil
}

var (
	quotedPattern     = regexp.MustCompile(`"([^"]+)"|` + "`([^`]+)`")
	identifierPattern = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*(?:[A-Z_.][A-Za-z0-9_]+|\(\))`)
)

// guessedPatternWeight scales hits on the longest-word fallback, which is
// far less selective than a quoted phrase or identifier. A single such hit
// stays below the default answer threshold.
const guessedPatternWeight = 0.4

// extractPatterns pulls literal search patterns from a question: quoted
// phrases, code-like identifiers, and otherwise the longest word, in which
// case guessed is true.
func extractPatterns(query string) (patterns []string, guessed bool) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		p = strings.TrimSpace(strings.TrimSuffix(p, "()"))
		if len(p) < 3 {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(query, -1) {
		if m[1] != "" {
			add(m[1])
		} else {
			add(m[2])
		}
	}
	for _, m := range identifierPattern.FindAllString(query, -1) {
		add(m)
	}
	if len(out) == 0 {
		longest := ""
		for _, token := range splitAlphaNumLower(query) {
			if len(token) > len(longest) && !isStopWord(token) {
				longest = token
			}
		}
		add(longest)
		return out, len(out) > 0
	}
	return out, false
}

// PatternRetriever scans stored text for literal patterns found in the query.
type PatternRetriever struct {
	searcher ports.PatternSearcher
}

func NewPatternRetriever(searcher ports.PatternSearcher) *PatternRetriever {
	return &PatternRetriever{searcher: searcher}
}

func (r *PatternRetriever) Name() string { return StrategyPattern }

func (r *PatternRetriever) Retrieve(ctx context.Context, query string, topK int, filter domain.SearchFilter) (domain.RetrievalResult, error) {
	patterns, guessed := extractPatterns(query)
	weight := 1.0
	if guessed {
		weight = guessedPatternWeight
	}
	if len(patterns) == 0 {
		return domain.RetrievalResult{Strategy: StrategyPattern, Query: query}, nil
	}

	byID := make(map[string]domain.VectorMatch)
	var order []string
	for _, pattern := range patterns {
		matches, err := r.searcher.ScanText(ctx, pattern, topK, filter)
		if err != nil {
			return domain.RetrievalResult{}, fmt.Errorf("pattern scan %q: %w", pattern, err)
		}
		lower := strings.ToLower(pattern)
		for _, m := range matches {
			occurrences := strings.Count(strings.ToLower(m.Text), lower)
			if occurrences == 0 {
				continue
			}
			m.Score = weight * (0.5 + 0.5*min(1, float64(occurrences)/3))
			prev, ok := byID[m.ID]
			if !ok {
				order = append(order, m.ID)
			}
			if !ok || m.Score > prev.Score {
				byID[m.ID] = m
			}
		}
	}

	matches := make([]domain.VectorMatch, 0, len(order))
	for _, id := range order {
		matches = append(matches, byID[id])
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matchesToResult(StrategyPattern, query, matches, topK), nil
}

var pathHintPattern = regexp.MustCompile(`[A-Za-z0-9_\-./]+\.[A-Za-z0-9]{1,8}\b|[A-Za-z0-9_\-.]+/[A-Za-z0-9_\-./]+`)

func extractPathHint(query string) string {
	hints := pathHintPattern.FindAllString(query, -1)
	best := ""
	for _, h := range hints {
		h = strings.Trim(h, "./")
		if len(h) > len(best) {
			best = h
		}
	}
	return best
}

func pathMatchScore(hint, candidate string) float64 {
	hint = strings.ToLower(hint)
	candidate = strings.ToLower(candidate)
	switch {
	case candidate == hint || path.Base(candidate) == hint:
		return 1.0
	case strings.HasSuffix(candidate, hint):
		return 0.9
	case strings.Contains(candidate, hint):
		return 0.7
	default:
		return 0
	}
}

// FileLookupRetriever resolves a path hint in the question to a single file
// and returns that file's chunks in order.
type FileLookupRetriever struct {
	searcher ports.MetadataSearcher
}

func NewFileLookupRetriever(searcher ports.MetadataSearcher) *FileLookupRetriever {
	return &FileLookupRetriever{searcher: searcher}
}

func (r *FileLookupRetriever) Name() string { return StrategyFileLookup }

func (r *FileLookupRetriever) Retrieve(ctx context.Context, query string, topK int, filter domain.SearchFilter) (domain.RetrievalResult, error) {
	hint := extractPathHint(query)
	if hint == "" {
		return domain.RetrievalResult{Strategy: StrategyFileLookup, Query: query}, nil
	}
	matches, err := r.searcher.SearchByPath(ctx, hint, 0, filter)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("path search %q: %w", hint, err)
	}

	bestPath := ""
	bestScore := 0.0
	for _, m := range matches {
		s := pathMatchScore(hint, m.Metadata.Path)
		if s > bestScore || (s == bestScore && s > 0 && m.Metadata.Path < bestPath) {
			bestScore = s
			bestPath = m.Metadata.Path
		}
	}
	if bestScore == 0 {
		return domain.RetrievalResult{Strategy: StrategyFileLookup, Query: query}, nil
	}

	file := make([]domain.VectorMatch, 0, len(matches))
	for _, m := range matches {
		if m.Metadata.Path != bestPath {
			continue
		}
		m.Score = bestScore
		file = append(file, m)
	}
	sort.SliceStable(file, func(i, j int) bool { return file[i].Metadata.ChunkIndex < file[j].Metadata.ChunkIndex })
	return matchesToResult(StrategyFileLookup, query, file, topK), nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "what": {}, "which": {}, "where": {}, "when": {}, "does": {},
	"how": {}, "why": {}, "that": {}, "this": {}, "with": {}, "from": {}, "about": {},
	"into": {}, "have": {}, "there": {}, "their": {}, "your": {}, "would": {}, "could": {},
}

func isStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}
