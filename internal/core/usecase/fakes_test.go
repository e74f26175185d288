package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/core/ports"
)

type stateStoreFake struct {
	mu      sync.Mutex
	states  map[string]*domain.RepositorySyncState
	loadErr error
	// failLoads makes the next n loads fail with a transient error.
	failLoads int
	saveErr   error
	saves     int
}

func newStateStoreFake() *stateStoreFake {
	return &stateStoreFake{states: make(map[string]*domain.RepositorySyncState)}
}

func (f *stateStoreFake) Load(_ context.Context, sourceID string) (*domain.RepositorySyncState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.failLoads > 0 {
		f.failLoads--
		return nil, domain.WrapError(domain.ErrTransient, "load state", errors.New("connection reset"))
	}
	st, ok := f.states[sourceID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "load state", errors.New(sourceID))
	}
	return st.Clone(), nil
}

func (f *stateStoreFake) Save(_ context.Context, state *domain.RepositorySyncState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.states[state.SourceID] = state.Clone()
	return nil
}

type enumeratorFake struct {
	mu       sync.Mutex
	snapshot domain.SourceSnapshot
	err      error
}

func (f *enumeratorFake) set(revision string, files map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]domain.SourceItem, 0, len(files))
	for p, content := range files {
		items = append(items, domain.SourceItem{Path: p, Content: []byte(content), Size: int64(len(content))})
	}
	f.snapshot = domain.SourceSnapshot{Revision: revision, Items: items}
}

func (f *enumeratorFake) Enumerate(context.Context) (domain.SourceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.err
}

type extractorFake struct {
	failPaths map[string]bool
}

func (f *extractorFake) Extract(_ context.Context, path string, raw []byte) (string, error) {
	if f.failPaths[path] {
		return "", domain.WrapError(domain.ErrPermanent, "extract", errors.New("broken file"))
	}
	return string(raw), nil
}

// pipeChunker splits on "|" so tests control chunk counts.
type pipeChunker struct{}

func (pipeChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.Split(text, "|")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type embedderFake struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

type vectorStoreFake struct {
	mu          sync.Mutex
	points      map[string]domain.VectorPoint
	deleteCalls [][]string
	upsertCalls int
	failDelete  map[int]error
	failUpsert  map[string]error
	events      []string
}

func newVectorStoreFake() *vectorStoreFake {
	return &vectorStoreFake{points: make(map[string]domain.VectorPoint)}
}

func (f *vectorStoreFake) Upsert(_ context.Context, points []domain.VectorPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	for _, p := range points {
		if err := f.failUpsert[p.Metadata.Path]; err != nil {
			return err
		}
	}
	for _, p := range points {
		f.points[p.ID] = p
		f.events = append(f.events, "upsert:"+p.Metadata.Path)
	}
	return nil
}

func (f *vectorStoreFake) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := len(f.deleteCalls)
	f.deleteCalls = append(f.deleteCalls, append([]string(nil), ids...))
	if err := f.failDelete[call]; err != nil {
		return err
	}
	for _, id := range ids {
		if p, ok := f.points[id]; ok {
			f.events = append(f.events, "delete:"+p.Metadata.Path)
		}
		delete(f.points, id)
	}
	return nil
}

func (f *vectorStoreFake) Query(context.Context, []float32, int, domain.SearchFilter) ([]domain.VectorMatch, error) {
	return nil, nil
}

func (f *vectorStoreFake) idsForPath(path string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, p := range f.points {
		if p.Metadata.Path == path {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

type retrieverFake struct {
	name  string
	nodes []domain.EvidenceNode
	err   error
	delay time.Duration
	calls int
	topK  int
	mu    sync.Mutex
}

func (f *retrieverFake) Name() string { return f.name }

func (f *retrieverFake) Retrieve(ctx context.Context, query string, topK int, _ domain.SearchFilter) (domain.RetrievalResult, error) {
	f.mu.Lock()
	f.calls++
	f.topK = topK
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.RetrievalResult{}, ctx.Err()
		}
	}
	if f.err != nil {
		return domain.RetrievalResult{}, f.err
	}
	return domain.RetrievalResult{Strategy: f.name, Query: query, Nodes: f.nodes, TotalCount: len(f.nodes)}, nil
}

type generatorFake struct {
	mu        sync.Mutex
	responses []string
	err       error
	streamErr error
	prompts   []string
}

func (f *generatorFake) next(prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

func (f *generatorFake) Complete(_ context.Context, prompt string) (string, error) {
	return f.next(prompt)
}

func (f *generatorFake) Stream(_ context.Context, prompt string) (ports.TokenStream, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	text, err := f.next(prompt)
	if err != nil {
		return nil, err
	}
	return &tokenStreamFake{chunks: strings.SplitAfter(text, " "), reasoning: "thinking"}, nil
}

func (f *generatorFake) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type tokenStreamFake struct {
	chunks    []string
	pos       int
	err       error
	closed    bool
	reasoning string
}

func (s *tokenStreamFake) Next() bool {
	if s.pos < len(s.chunks) {
		s.pos++
		return true
	}
	return false
}

func (s *tokenStreamFake) Text() string      { return s.chunks[s.pos-1] }
func (s *tokenStreamFake) Err() error        { return s.err }
func (s *tokenStreamFake) Close() error      { s.closed = true; return nil }
func (s *tokenStreamFake) Reasoning() string { return s.reasoning }

type classifierFake struct {
	intent domain.Intent
	err    error
	calls  int
}

func (f *classifierFake) Classify(context.Context, string) (domain.Intent, error) {
	f.calls++
	return f.intent, f.err
}

func node(id, text string, score float64) domain.EvidenceNode {
	return domain.EvidenceNode{ID: id, Text: text, Score: score, Metadata: domain.NodeMetadata{Path: id + ".txt"}}
}
