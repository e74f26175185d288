package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

const maxContextChars = 12000

func buildAnswerPrompt(question, standalone string, nodes []domain.FusedNode) string {
	var contextBuilder strings.Builder
	for idx, node := range nodes {
		entry := fmt.Sprintf(
			"[%d] path=%s relevance=%.3f\n%s\n\n",
			idx+1,
			node.Metadata.Path,
			node.Relevance,
			strings.TrimSpace(node.Text),
		)
		if contextBuilder.Len()+len(entry) > maxContextChars && idx > 0 {
			break
		}
		contextBuilder.WriteString(entry)
	}

	questionBlock := question
	if standalone != "" && standalone != question {
		questionBlock = fmt.Sprintf("%s\n(standalone form: %s)", question, standalone)
	}

	return fmt.Sprintf(`Answer user question only from context below.
Cite the sources you used by their number, e.g. [1].
If context is insufficient, say it directly.

Question:
%s

Context:
%s
`, questionBlock, contextBuilder.String())
}

func buildFallbackPrompt(question string, reason domain.FallbackReason) string {
	note := "No relevant documents were found for this question."
	if reason == domain.FallbackLowScore {
		note = "The documents found were only weakly related to this question."
	}
	return fmt.Sprintf(`%s
Answer the question from general knowledge. Do not cite sources or refer to documents.
Say briefly that the answer is not backed by the indexed documents.

Question:
%s
`, note, question)
}

func buildCondensePrompt(history []domain.ChatTurn, question string) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", strings.TrimSpace(turn.Role), content))
	}
	if len(lines) == 0 {
		lines = append(lines, "(empty)")
	}

	return fmt.Sprintf(`Rewrite the follow-up question as one standalone question using the conversation.
Return only the rewritten question.

Conversation:
%s

Follow-up question:
%s
`, strings.Join(lines, "\n"), question)
}
