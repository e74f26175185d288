package ports

import (
	"context"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the upsert/delete/nearest-neighbour facade over the index.
// IDs are caller assigned and stable.
type VectorStore interface {
	Upsert(ctx context.Context, points []domain.VectorPoint) error
	Delete(ctx context.Context, ids []string) error
	Query(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error)
}

// LexicalSearcher is implemented by stores with keyword or sparse search.
type LexicalSearcher interface {
	SearchLexical(ctx context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error)
}

// PatternSearcher returns stored chunks whose text contains literal.
type PatternSearcher interface {
	ScanText(ctx context.Context, literal string, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error)
}

// MetadataSearcher returns chunks whose path contains pathHint.
type MetadataSearcher interface {
	SearchByPath(ctx context.Context, pathHint string, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error)
}

// TokenStream is a blocking iterator over generated text chunks.
// Next returns false at the end of the stream or on error; Err tells which.
type TokenStream interface {
	Next() bool
	Text() string
	Err() error
	Close() error
}

// ReasoningStream is optionally implemented by streams that expose the
// model's reasoning side-channel.
type ReasoningStream interface {
	Reasoning() string
}

// TextGenerator creates text from a fully rendered prompt.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string) (TokenStream, error)
}

// IntentClassifier infers the query type of a question.
type IntentClassifier interface {
	Classify(ctx context.Context, question string) (domain.Intent, error)
}

// SyncStateStore persists one RepositorySyncState per source.
// Load returns domain.ErrNotFound when the source was never synchronized.
type SyncStateStore interface {
	Load(ctx context.Context, sourceID string) (*domain.RepositorySyncState, error)
	Save(ctx context.Context, state *domain.RepositorySyncState) error
}

// SourceEnumerator lists the current items of a source.
type SourceEnumerator interface {
	Enumerate(ctx context.Context) (domain.SourceSnapshot, error)
}

// TextExtractor extracts plain text from raw item content.
type TextExtractor interface {
	Extract(ctx context.Context, path string, raw []byte) (string, error)
}

// Chunker splits text into semantically usable chunks.
type Chunker interface {
	Split(text string) []string
}

// Retriever is one retrieval strategy.
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, query string, topK int, filter domain.SearchFilter) (domain.RetrievalResult, error)
}

// SyncJobQueue publishes/consumes sync requests.
type SyncJobQueue interface {
	PublishSyncRequested(ctx context.Context, sourceID string) error
	SubscribeSyncRequested(ctx context.Context, handler func(context.Context, string) error) error
}
