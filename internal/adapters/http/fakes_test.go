package httpadapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/core/ports"
)

type queryServiceFake struct {
	answer    *domain.Answer
	err       error
	tokens    []string
	streamErr error
	delay     time.Duration
	last      domain.QueryRequest
}

func (f *queryServiceFake) Answer(_ context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *queryServiceFake) AnswerStream(_ context.Context, req domain.QueryRequest) (ports.AnswerStream, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &answerStreamFake{tokens: f.tokens, err: f.streamErr, answer: f.answer, delay: f.delay, idx: -1}, nil
}

type answerStreamFake struct {
	tokens []string
	idx    int
	err    error
	answer *domain.Answer
	delay  time.Duration
}

func (s *answerStreamFake) Next() bool {
	if s.idx < 0 && s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.idx++
	return s.idx < len(s.tokens)
}

func (s *answerStreamFake) Text() string { return s.tokens[s.idx] }

func (s *answerStreamFake) Err() error { return s.err }

func (s *answerStreamFake) Close() error { return nil }

func (s *answerStreamFake) Answer() *domain.Answer {
	if s.err != nil {
		return nil
	}
	a := *s.answer
	a.Text = strings.Join(s.tokens, "")
	return &a
}

type sourcesFake struct {
	states map[string]*domain.RepositorySyncState
	report *domain.SyncReport
	err    error
}

func (f *sourcesFake) SyncSource(_ context.Context, sourceID string) (*domain.SyncReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *sourcesFake) SourceStatus(_ context.Context, sourceID string) (*domain.RepositorySyncState, error) {
	st, ok := f.states[sourceID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "source status", errors.New(sourceID))
	}
	return st, nil
}

type triggerFake struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *triggerFake) PublishSyncRequested(_ context.Context, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, sourceID)
	return nil
}

func defaultSources() *sourcesFake {
	return &sourcesFake{states: map[string]*domain.RepositorySyncState{
		"docs": {
			SourceID: "docs",
			Revision: "r1",
			Files: map[string]domain.FileRecord{
				"a.md": {Path: "a.md", VectorIDs: []string{"v1", "v2"}},
			},
		},
	}}
}
