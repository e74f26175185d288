package usecase

import (
	"strings"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

// evidenceFallbackReason reports why the surviving evidence cannot back a
// cited answer, or FallbackNone when it can.
func evidenceFallbackReason(nodes []domain.FusedNode, minScore float64) domain.FallbackReason {
	if len(nodes) == 0 {
		return domain.FallbackNoEvidence
	}
	if maxRelevance(nodes) < minScore {
		return domain.FallbackLowScore
	}
	return domain.FallbackNone
}

func answerFallbackReason(text string) domain.FallbackReason {
	if strings.TrimSpace(text) == "" {
		return domain.FallbackEmptyAnswer
	}
	return domain.FallbackNone
}

func maxRelevance(nodes []domain.FusedNode) float64 {
	best := 0.0
	for _, n := range nodes {
		best = max(best, n.Relevance)
	}
	return best
}
