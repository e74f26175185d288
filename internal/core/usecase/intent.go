package usecase

import (
	"context"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

var (
	broadKeywords = []string{
		"how", "why", "explain", "overview", "compare", "summarize", "summarise",
		"describe", "difference", "relationship", "architecture",
	}
)

const broadWordThreshold = 20

// shouldSkipUnderstanding reports whether a question is short and simple
// enough to route on heuristics alone.
func shouldSkipUnderstanding(question string, maxWords int) bool {
	if maxWords <= 0 {
		return false
	}
	if countWords(question) > maxWords {
		return false
	}
	return !containsAnyToken(question, broadKeywords)
}

// heuristicMode approximates intent routing from the raw question text.
// File lookup needs a path to resolve, so words like "file" alone do not
// select it.
func heuristicMode(question string) (domain.RouteMode, string) {
	if hint := extractPathHint(question); hint != "" {
		return domain.RouteFileLookup, "path hint " + hint
	}
	if containsAnyToken(question, broadKeywords) {
		return domain.RouteBroad, "exploratory keyword"
	}
	if countWords(question) > broadWordThreshold {
		return domain.RouteBroad, "long question"
	}
	return domain.RouteChunk, "default"
}

func modeForIntent(intent domain.Intent, question string) (domain.RouteMode, string) {
	reason := "intent " + string(intent.QueryType)
	switch intent.QueryType {
	case domain.QueryTypeFileLookup:
		if extractPathHint(question) == "" {
			return domain.RouteChunk, reason + " without path hint"
		}
		return domain.RouteFileLookup, reason
	case domain.QueryTypeExploratory:
		return domain.RouteBroad, reason
	default:
		return domain.RouteChunk, reason
	}
}

func containsAnyToken(s string, keywords []string) bool {
	tokens := toTokenSet(s)
	for _, kw := range keywords {
		if _, ok := tokens[kw]; ok {
			return true
		}
	}
	return false
}

type intentOutcome struct {
	intent  *domain.Intent
	skipped bool
}

func (uc *QueryUseCase) understand(ctx context.Context, question string) intentOutcome {
	if uc.classifier == nil || shouldSkipUnderstanding(question, uc.opts.SkipUnderstandingMaxWords) {
		return intentOutcome{skipped: true}
	}
	intent, err := uc.classifier.Classify(ctx, question)
	if err != nil {
		uc.logger.Warn("intent_classification_failed", "error", err)
		return intentOutcome{skipped: true}
	}
	return intentOutcome{intent: &intent}
}
