package qdrant

import (
	"errors"

	"github.com/kirillkom/evidence-rag/internal/infrastructure/resilience"
)

func classifyQdrantError(err error) resilience.ErrorClassification {
	if errors.Is(err, errCollectionMissing) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ClassifyHTTPError(err)
}

func asStatusError(err error, target **resilience.HTTPStatusError) bool {
	return err != nil && errors.As(err, target)
}
