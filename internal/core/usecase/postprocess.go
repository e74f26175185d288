package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

type PostProcessOptions struct {
	SimilarityCutoff float64
	RerankEnabled    bool
	RerankTopN       int
}

// PostProcess applies the similarity cutoff and then the optional rerank.
func PostProcess(question string, nodes []domain.FusedNode, opts PostProcessOptions) []domain.FusedNode {
	out := applySimilarityCutoff(nodes, opts.SimilarityCutoff)
	if opts.RerankEnabled {
		out = rerankFused(question, out, opts.RerankTopN)
	}
	return out
}

func applySimilarityCutoff(nodes []domain.FusedNode, cutoff float64) []domain.FusedNode {
	if cutoff <= 0 {
		return nodes
	}
	out := make([]domain.FusedNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Relevance >= cutoff {
			out = append(out, n)
		}
	}
	return out
}

// rerankFused rescores the head of the list by fused score, query token
// overlap and file name hits, then truncates to topN.
func rerankFused(question string, fused []domain.FusedNode, topN int) []domain.FusedNode {
	if len(fused) == 0 {
		return fused
	}
	if topN <= 0 || topN > len(fused) {
		topN = len(fused)
	}

	head := make([]domain.FusedNode, topN)
	copy(head, fused[:topN])
	queryTokens := toTokenSet(question)

	minScore := head[0].Score
	maxScore := head[0].Score
	for _, node := range head[1:] {
		minScore = min(minScore, node.Score)
		maxScore = max(maxScore, node.Score)
	}

	rangeScore := maxScore - minScore
	normalize := func(v float64) float64 {
		if rangeScore <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / rangeScore
	}

	for i := range head {
		normalizedFused := normalize(head[i].Score)
		overlap := tokenOverlap(queryTokens, toTokenSet(head[i].Text))
		filenameBoost := filenameTokenHit(queryTokens, head[i].Metadata.Path)
		head[i].Score = 0.60*normalizedFused + 0.30*overlap + 0.10*filenameBoost
	}

	sort.SliceStable(head, func(i, j int) bool {
		if head[i].Score != head[j].Score {
			return head[i].Score > head[j].Score
		}
		return head[i].BestRank < head[j].BestRank
	})
	return head
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func filenameTokenHit(query map[string]struct{}, filename string) float64 {
	if len(query) == 0 || filename == "" {
		return 0
	}
	filename = strings.ToLower(filename)
	for token := range query {
		if len(token) < 3 {
			continue
		}
		if strings.Contains(filename, token) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
