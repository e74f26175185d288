package ports

import (
	"context"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

// QueryService is the inbound contract for evidence-grounded answering.
type QueryService interface {
	Answer(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error)
	AnswerStream(ctx context.Context, req domain.QueryRequest) (AnswerStream, error)
}

// AnswerStream streams answer text. Answer is complete once Next returned false
// without error.
type AnswerStream interface {
	TokenStream
	Answer() *domain.Answer
}

// SourceSynchronizer is the inbound contract for incremental synchronization.
type SourceSynchronizer interface {
	SyncSource(ctx context.Context, sourceID string) (*domain.SyncReport, error)
	SourceStatus(ctx context.Context, sourceID string) (*domain.RepositorySyncState, error)
}
