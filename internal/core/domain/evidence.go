package domain

// NodeMetadata carries the well-known evidence attributes plus an open
// bucket for provider-specific fields.
type NodeMetadata struct {
	SourceID    string            `json:"source_id,omitempty"`
	Path        string            `json:"path,omitempty"`
	Title       string            `json:"title,omitempty"`
	ChunkIndex  int               `json:"chunk_index"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// EvidenceNode is one retrieved piece of text. Score is strategy specific
// until fusion replaces it with the fused score.
type EvidenceNode struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Score    float64      `json:"score"`
	Metadata NodeMetadata `json:"metadata"`
}

type RetrievalResult struct {
	Strategy   string         `json:"strategy"`
	Query      string         `json:"query"`
	Nodes      []EvidenceNode `json:"nodes"`
	TotalCount int            `json:"total_count"`
}

type FusionRule string

const (
	FusionReciprocalRank FusionRule = "rrf"
	FusionWeightedScore  FusionRule = "weighted"
)

// FusedNode is an evidence node after fusion. Score holds the fused score,
// Relevance the best calibrated per-strategy score in [0,1].
type FusedNode struct {
	EvidenceNode
	Relevance   float64  `json:"relevance"`
	BestRank    int      `json:"best_rank"`
	RetrievedBy []string `json:"retrieved_by"`
}

type StrategyFailure struct {
	Strategy string `json:"strategy"`
	Error    string `json:"error"`
}

type FusedResult struct {
	Nodes    []FusedNode       `json:"nodes"`
	Failures []StrategyFailure `json:"failures,omitempty"`
}

// TopRelevance returns the relevance of the first node or zero when empty.
func (r FusedResult) TopRelevance() float64 {
	if len(r.Nodes) == 0 {
		return 0
	}
	return r.Nodes[0].Relevance
}

type SearchFilter struct {
	SourceID string
}

// VectorPoint is a single embedded chunk as written to the vector store.
type VectorPoint struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata NodeMetadata
}

// VectorMatch is a vector store hit.
type VectorMatch struct {
	ID       string
	Score    float64
	Text     string
	Metadata NodeMetadata
}

func (m VectorMatch) Node() EvidenceNode {
	return EvidenceNode{
		ID:       m.ID,
		Text:     m.Text,
		Score:    m.Score,
		Metadata: m.Metadata,
	}
}
