package usecase

import (
	"context"
	"strings"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

const (
	defaultHistoryDirectMaxTurns = 2
	defaultHistoryConcatMaxTurns = 4
)

// condenseQuestion turns a follow-up question into a standalone retrieval
// query. Short histories skip the model call entirely.
func (uc *QueryUseCase) condenseQuestion(ctx context.Context, question string, history []domain.ChatTurn) string {
	turns := len(history)
	if turns <= uc.opts.HistoryDirectMaxTurns {
		return question
	}
	if turns <= uc.opts.HistoryConcatMaxTurns {
		parts := make([]string, 0, turns+1)
		for _, turn := range history {
			if !strings.EqualFold(strings.TrimSpace(turn.Role), "user") {
				continue
			}
			if content := strings.TrimSpace(turn.Content); content != "" {
				parts = append(parts, content)
			}
		}
		parts = append(parts, question)
		return strings.Join(parts, " ")
	}

	condensed, err := uc.generator.Complete(ctx, buildCondensePrompt(history, question))
	if err != nil {
		uc.logger.Warn("history_condense_failed", "error", err)
		return question
	}
	condensed = strings.TrimSpace(condensed)
	if condensed == "" {
		return question
	}
	return condensed
}
