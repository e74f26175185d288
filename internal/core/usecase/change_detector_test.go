package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

func priorState(files map[string]string) *domain.RepositorySyncState {
	st := &domain.RepositorySyncState{SourceID: "docs", Files: make(map[string]domain.FileRecord)}
	for p, fp := range files {
		st.Files[p] = domain.FileRecord{Path: p, Fingerprint: fp}
	}
	return st
}

func TestDetectChangesAddedAndModified(t *testing.T) {
	prior := priorState(map[string]string{"a": "h1", "b": "h2"})
	got := DetectChanges(map[string]string{"a": "h1", "b": "h3", "c": "h4"}, prior)

	want := domain.ChangePartition{Added: []string{"c"}, Modified: []string{"b"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected partition: %+v", got)
	}
}

func TestDetectChangesDeleted(t *testing.T) {
	prior := priorState(map[string]string{"a": "h1", "b": "h2"})
	got := DetectChanges(map[string]string{"a": "h1", "c": "h4"}, prior)

	if !reflect.DeepEqual(got.Deleted, []string{"b"}) {
		t.Fatalf("expected deleted=[b], got %v", got.Deleted)
	}
	if len(got.Modified) != 0 {
		t.Fatalf("expected no modified, got %v", got.Modified)
	}
	if !reflect.DeepEqual(got.Added, []string{"c"}) {
		t.Fatalf("expected added=[c], got %v", got.Added)
	}
}

func TestDetectChangesWithoutPriorAddsEverything(t *testing.T) {
	got := DetectChanges(map[string]string{"b": "h2", "a": "h1"}, nil)
	if !reflect.DeepEqual(got.Added, []string{"a", "b"}) {
		t.Fatalf("expected sorted added paths, got %v", got.Added)
	}
	if len(got.Modified)+len(got.Deleted) != 0 {
		t.Fatalf("expected only additions, got %+v", got)
	}
}

func TestDetectChangesSameContentIsUnchanged(t *testing.T) {
	prior := priorState(map[string]string{"a": Fingerprint([]byte("x"))})
	got := DetectChanges(map[string]string{"a": Fingerprint([]byte("x"))}, prior)
	if !got.IsEmpty() {
		t.Fatalf("expected empty partition, got %+v", got)
	}
}

func TestChangeDetectorDegradesOnLoadFailure(t *testing.T) {
	store := newStateStoreFake()
	store.loadErr = domain.WrapError(domain.ErrTransient, "load", errors.New("db down"))
	detector := NewChangeDetector(store, nil)

	part, prior, degraded := detector.Detect(context.Background(), "docs", []domain.SourceItem{
		{Path: "a", Content: []byte("x")},
	})
	if prior != nil {
		t.Fatalf("expected nil prior on load failure")
	}
	if !reflect.DeepEqual(part.Added, []string{"a"}) {
		t.Fatalf("expected everything added, got %+v", part)
	}
	if !degraded {
		t.Fatalf("expected degraded load to be reported")
	}
}

func TestChangeDetectorMissingStateIsNotDegraded(t *testing.T) {
	detector := NewChangeDetector(newStateStoreFake(), nil)

	part, prior, degraded := detector.Detect(context.Background(), "docs", []domain.SourceItem{
		{Path: "a", Content: []byte("x")},
	})
	if prior != nil || degraded {
		t.Fatalf("expected first run without degradation, prior=%v degraded=%v", prior, degraded)
	}
	if !reflect.DeepEqual(part.Added, []string{"a"}) {
		t.Fatalf("expected everything added, got %+v", part)
	}
}

func TestVectorIDDeterministic(t *testing.T) {
	a := VectorID("docs", "a.txt", "fp", 0)
	if a != VectorID("docs", "a.txt", "fp", 0) {
		t.Fatalf("expected stable vector id")
	}
	if a == VectorID("docs", "a.txt", "fp", 1) || a == VectorID("docs", "a.txt", "fp2", 0) {
		t.Fatalf("expected distinct ids for distinct chunks")
	}
}
