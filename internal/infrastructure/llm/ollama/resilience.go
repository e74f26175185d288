package ollama

import (
	"github.com/kirillkom/evidence-rag/internal/infrastructure/resilience"
)

// classifyOllamaError treats a model that is still loading (Ollama answers
// 503 or 500) as transient like any other gateway failure, and a request
// rejected by the server as permanent.
func classifyOllamaError(err error) resilience.ErrorClassification {
	return resilience.ClassifyHTTPError(err)
}
