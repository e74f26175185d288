package domain

import (
	"errors"
	"testing"
)

func TestParseIntentNormalizesReply(t *testing.T) {
	intent, err := ParseIntent(" Specific-File Lookup ", " HIGH ", []string{" a.go ", "", "b.go"}, 1.7)
	if err != nil {
		t.Fatalf("parse intent: %v", err)
	}
	if intent.QueryType != QueryTypeFileLookup {
		t.Fatalf("unexpected type %q", intent.QueryType)
	}
	if intent.Complexity != "high" || intent.Confidence != 1 {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if len(intent.Entities) != 2 || intent.Entities[0] != "a.go" {
		t.Fatalf("unexpected entities: %v", intent.Entities)
	}

	if got, _ := ParseIntent("factual", "", nil, -0.2); got.Confidence != 0 {
		t.Fatalf("negative confidence should clamp to 0, got %v", got.Confidence)
	}
}

func TestParseIntentRejectsUnknownType(t *testing.T) {
	_, err := ParseIntent("poetry", "", nil, 0.9)
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSyncStateCloneIsDeep(t *testing.T) {
	orig := &RepositorySyncState{
		SourceID: "docs",
		Files: map[string]FileRecord{
			"a.md": {Path: "a.md", VectorIDs: []string{"v1", "v2"}},
			"b.md": {Path: "b.md", VectorIDs: []string{"v3"}},
		},
	}
	clone := orig.Clone()
	clone.Files["a.md"].VectorIDs[0] = "changed"
	delete(clone.Files, "b.md")

	if orig.Files["a.md"].VectorIDs[0] != "v1" || len(orig.Files) != 2 {
		t.Fatalf("clone shares memory with the original: %+v", orig.Files)
	}
	if orig.VectorCount() != 3 || clone.VectorCount() != 2 {
		t.Fatalf("unexpected vector counts: %d %d", orig.VectorCount(), clone.VectorCount())
	}

	var missing *RepositorySyncState
	if missing.Clone() != nil || missing.VectorCount() != 0 {
		t.Fatalf("nil state must clone to nil and count zero")
	}
}

func TestChangePartitionCounts(t *testing.T) {
	p := ChangePartition{Added: []string{"a"}, Deleted: []string{"b", "c"}}
	if p.IsEmpty() || p.Total() != 3 {
		t.Fatalf("unexpected partition summary: empty=%v total=%d", p.IsEmpty(), p.Total())
	}
	if !(ChangePartition{}).IsEmpty() {
		t.Fatalf("zero partition should be empty")
	}
}

func TestWrapErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrTransient, "embed", cause)
	if !IsKind(err, ErrTransient) || !errors.Is(err, cause) {
		t.Fatalf("wrapped error lost kind or cause: %v", err)
	}
	if !IsRetryable(err) || IsRetryable(WrapError(ErrPermanent, "embed", cause)) {
		t.Fatalf("unexpected retryable classification")
	}
	if WrapError(ErrTransient, "embed", nil) != nil {
		t.Fatalf("nil cause must stay nil")
	}
}
