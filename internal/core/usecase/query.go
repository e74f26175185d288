package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/core/ports"
)

type QueryOptions struct {
	TopK                      int
	BroadTopKFactor           int
	Fusion                    FusionOptions
	PostProcess               PostProcessOptions
	FallbackMinScore          float64
	RetrieverTimeout          time.Duration
	SkipUnderstandingMaxWords int
	HistoryDirectMaxTurns     int
	HistoryConcatMaxTurns     int
}

func (o QueryOptions) withDefaults() QueryOptions {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.BroadTopKFactor <= 0 {
		o.BroadTopKFactor = 2
	}
	if o.Fusion.Rule == "" {
		o.Fusion.Rule = domain.FusionReciprocalRank
	}
	if o.RetrieverTimeout <= 0 {
		o.RetrieverTimeout = 10 * time.Second
	}
	if o.HistoryDirectMaxTurns <= 0 {
		o.HistoryDirectMaxTurns = defaultHistoryDirectMaxTurns
	}
	if o.HistoryConcatMaxTurns < o.HistoryDirectMaxTurns {
		o.HistoryConcatMaxTurns = max(defaultHistoryConcatMaxTurns, o.HistoryDirectMaxTurns)
	}
	return o
}

type QueryUseCase struct {
	router     *Router
	classifier ports.IntentClassifier
	generator  ports.TextGenerator
	opts       QueryOptions
	logger     *slog.Logger
}

// NewQueryUseCase wires the orchestrator. classifier may be nil, in which
// case routing always uses heuristics.
func NewQueryUseCase(
	router *Router,
	classifier ports.IntentClassifier,
	generator ports.TextGenerator,
	opts QueryOptions,
	logger *slog.Logger,
) *QueryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		router:     router,
		classifier: classifier,
		generator:  generator,
		opts:       opts.withDefaults(),
		logger:     logger,
	}
}

// preparedQuery is the state of a query once evidence has been selected and
// the generation prompt is known.
type preparedQuery struct {
	answer *domain.Answer
	prompt string
}

func (uc *QueryUseCase) Answer(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	prep, err := uc.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	answer := prep.answer

	text, err := uc.generator.Complete(ctx, prep.prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	if answer.Fallback {
		answer.Stages = append(answer.Stages, domain.StageFallbackRegenerated)
	} else {
		answer.Stages = append(answer.Stages, domain.StageGenerated)
		if reason := answerFallbackReason(text); reason != domain.FallbackNone {
			uc.switchToFallback(answer, reason)
			text, err = uc.generator.Complete(ctx, buildFallbackPrompt(answer.Question, reason))
			if err != nil {
				return nil, fmt.Errorf("generate fallback answer: %w", err)
			}
			answer.Stages = append(answer.Stages, domain.StageFallbackRegenerated)
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.WrapError(domain.ErrPermanent, "generate answer", errors.New("empty answer"))
	}
	answer.Text = text
	answer.Stages = append(answer.Stages, domain.StageDelivered)
	uc.logDelivered(answer)
	return answer, nil
}

// prepare runs every stage up to generation. When the evidence is too weak
// the returned prompt is already the fallback prompt.
func (uc *QueryUseCase) prepare(ctx context.Context, req domain.QueryRequest) (*preparedQuery, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question is required"))
	}
	answer := &domain.Answer{Question: question, Stages: []domain.QueryStage{domain.StageReceived}}

	standalone := uc.condenseQuestion(ctx, question, req.History)

	understood := uc.understand(ctx, standalone)
	answer.Intent = understood.intent
	if understood.skipped {
		answer.Stages = append(answer.Stages, domain.StageUnderstandingSkip)
	} else {
		answer.Stages = append(answer.Stages, domain.StageUnderstood)
	}

	retrievers, decision := uc.router.Route(standalone, understood.intent)
	answer.Routing = decision
	answer.Stages = append(answer.Stages, domain.StageRouted)

	topK := req.TopK
	if topK <= 0 {
		topK = uc.opts.TopK
	}
	fetchK := topK
	if decision.Mode == domain.RouteBroad {
		fetchK = topK * uc.opts.BroadTopKFactor
	}

	fused, err := uc.retrieve(ctx, standalone, retrievers, fetchK, req.Filter)
	if err != nil {
		return nil, err
	}
	answer.Failures = fused.Failures
	answer.Stages = append(answer.Stages, domain.StageRetrieved)

	nodes := PostProcess(standalone, fused.Nodes, uc.opts.PostProcess)
	nodes = trimFused(nodes, fetchK)
	answer.Stages = append(answer.Stages, domain.StagePostProcessed)

	if reason := evidenceFallbackReason(nodes, uc.opts.FallbackMinScore); reason != domain.FallbackNone {
		uc.switchToFallback(answer, reason)
		return &preparedQuery{answer: answer, prompt: buildFallbackPrompt(question, reason)}, nil
	}

	answer.Sources = nodes
	return &preparedQuery{answer: answer, prompt: buildAnswerPrompt(question, standalone, nodes)}, nil
}

func (uc *QueryUseCase) switchToFallback(answer *domain.Answer, reason domain.FallbackReason) {
	answer.Fallback = true
	answer.FallbackReason = reason
	answer.Sources = nil
	uc.logger.Info("answer_fallback", "reason", string(reason), "mode", string(answer.Routing.Mode))
}

// retrieve fans out to every selected retriever with its own timeout and
// fuses whatever succeeded. A failing retriever only degrades the result.
func (uc *QueryUseCase) retrieve(
	ctx context.Context,
	question string,
	retrievers []ports.Retriever,
	topK int,
	filter domain.SearchFilter,
) (domain.FusedResult, error) {
	results := make([]domain.RetrievalResult, len(retrievers))
	errs := make([]error, len(retrievers))

	var g errgroup.Group
	for i, r := range retrievers {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(ctx, uc.opts.RetrieverTimeout)
			defer cancel()
			res, err := r.Retrieve(rctx, question, topK, filter)
			if err != nil {
				errs[i] = err
				return nil
			}
			if len(res.Nodes) > topK {
				res.Nodes = res.Nodes[:topK]
			}
			res.Strategy = r.Name()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.FusedResult{}, fmt.Errorf("retrieve evidence: %w", err)
	}

	var out domain.FusedResult
	succeeded := make([]domain.RetrievalResult, 0, len(retrievers))
	for i, r := range retrievers {
		if errs[i] != nil {
			uc.logger.Warn("retriever_failed", "strategy", r.Name(), "error", errs[i])
			out.Failures = append(out.Failures, domain.StrategyFailure{Strategy: r.Name(), Error: errs[i].Error()})
			continue
		}
		succeeded = append(succeeded, results[i])
	}
	out.Nodes = Fuse(succeeded, uc.opts.Fusion)
	return out, nil
}

func (uc *QueryUseCase) logDelivered(answer *domain.Answer) {
	uc.logger.Info("answer_delivered",
		"mode", string(answer.Routing.Mode),
		"strategies", answer.Routing.Strategies,
		"sources", len(answer.Sources),
		"fallback", answer.Fallback,
		"fallback_reason", string(answer.FallbackReason),
		"strategy_failures", len(answer.Failures),
	)
}
