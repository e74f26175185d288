package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/core/ports"
)

// AnswerStream prepares evidence and returns a blocking iterator over the
// generated answer. If the primary stream ends without any text it switches
// once to the fallback prompt.
func (uc *QueryUseCase) AnswerStream(ctx context.Context, req domain.QueryRequest) (ports.AnswerStream, error) {
	prep, err := uc.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	inner, err := uc.generator.Stream(ctx, prep.prompt)
	if err != nil {
		return nil, fmt.Errorf("stream answer: %w", err)
	}
	return &answerStream{ctx: ctx, uc: uc, answer: prep.answer, inner: inner}, nil
}

type answerStream struct {
	ctx       context.Context
	uc        *QueryUseCase
	answer    *domain.Answer
	inner     ports.TokenStream
	current   string
	text      strings.Builder
	reasoning strings.Builder
	err       error
	done      bool
}

func (s *answerStream) Next() bool {
	if s.done {
		return false
	}
	for {
		if s.inner.Next() {
			s.current = s.inner.Text()
			s.text.WriteString(s.current)
			if s.current == "" {
				continue
			}
			return true
		}
		if err := s.inner.Err(); err != nil {
			return s.fail(fmt.Errorf("stream answer: %w", err))
		}
		s.collectReasoning()
		_ = s.inner.Close()

		if !s.answer.Fallback {
			s.answer.Stages = append(s.answer.Stages, domain.StageGenerated)
			if reason := answerFallbackReason(s.text.String()); reason != domain.FallbackNone {
				s.uc.switchToFallback(s.answer, reason)
				next, err := s.uc.generator.Stream(s.ctx, buildFallbackPrompt(s.answer.Question, reason))
				if err != nil {
					return s.fail(fmt.Errorf("stream fallback answer: %w", err))
				}
				s.inner = next
				s.text.Reset()
				s.reasoning.Reset()
				s.answer.Stages = append(s.answer.Stages, domain.StageFallbackRegenerated)
				continue
			}
		} else if !containsStage(s.answer.Stages, domain.StageFallbackRegenerated) {
			s.answer.Stages = append(s.answer.Stages, domain.StageFallbackRegenerated)
		}

		return s.finish()
	}
}

func (s *answerStream) finish() bool {
	s.done = true
	s.current = ""
	text := strings.TrimSpace(s.text.String())
	if text == "" {
		s.err = domain.WrapError(domain.ErrPermanent, "stream answer", errors.New("empty answer"))
		return false
	}
	s.answer.Text = text
	s.answer.Reasoning = strings.TrimSpace(s.reasoning.String())
	s.answer.Stages = append(s.answer.Stages, domain.StageDelivered)
	s.uc.logDelivered(s.answer)
	return false
}

func (s *answerStream) fail(err error) bool {
	s.done = true
	s.current = ""
	s.err = err
	_ = s.inner.Close()
	return false
}

func (s *answerStream) collectReasoning() {
	if rs, ok := s.inner.(ports.ReasoningStream); ok {
		s.reasoning.WriteString(rs.Reasoning())
	}
}

func (s *answerStream) Text() string { return s.current }

func (s *answerStream) Err() error { return s.err }

func (s *answerStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.inner.Close()
}

// Answer returns the final answer once the stream ended without error.
func (s *answerStream) Answer() *domain.Answer {
	if !s.done || s.err != nil {
		return nil
	}
	return s.answer
}

func containsStage(stages []domain.QueryStage, stage domain.QueryStage) bool {
	for _, st := range stages {
		if st == stage {
			return true
		}
	}
	return false
}
