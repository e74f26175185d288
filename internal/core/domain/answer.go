package domain

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type QueryRequest struct {
	Question string       `json:"question"`
	History  []ChatTurn   `json:"history,omitempty"`
	TopK     int          `json:"top_k,omitempty"`
	Filter   SearchFilter `json:"filter"`
}

type QueryStage string

const (
	StageReceived            QueryStage = "received"
	StageUnderstood          QueryStage = "understood"
	StageUnderstandingSkip   QueryStage = "understanding_skipped"
	StageRouted              QueryStage = "routed"
	StageRetrieved           QueryStage = "retrieved"
	StagePostProcessed       QueryStage = "post_processed"
	StageGenerated           QueryStage = "generated"
	StageFallbackRegenerated QueryStage = "fallback_regenerated"
	StageDelivered           QueryStage = "delivered"
)

type FallbackReason string

const (
	FallbackNone        FallbackReason = ""
	FallbackNoEvidence  FallbackReason = "no_evidence"
	FallbackLowScore    FallbackReason = "low_score"
	FallbackEmptyAnswer FallbackReason = "empty_answer"
)

type Answer struct {
	Text           string            `json:"text"`
	Sources        []FusedNode       `json:"sources"`
	Fallback       bool              `json:"fallback"`
	FallbackReason FallbackReason    `json:"fallback_reason,omitempty"`
	Question       string            `json:"question"`
	Intent         *Intent           `json:"intent,omitempty"`
	Routing        RoutingDecision   `json:"routing"`
	Failures       []StrategyFailure `json:"failures,omitempty"`
	Stages         []QueryStage      `json:"stages"`
	Reasoning      string            `json:"reasoning,omitempty"`
}
