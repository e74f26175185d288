package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

func TestSaveThenLoadRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	state := &domain.RepositorySyncState{
		SourceID: "team/docs",
		Revision: "r1",
		Files: map[string]domain.FileRecord{
			"a.md": {Path: "a.md", Fingerprint: "f1", VectorIDs: []string{"v1"}},
		},
		UpdatedAt: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Save(context.Background(), state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(context.Background(), "team/docs")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Revision != "r1" || got.Files["a.md"].VectorIDs[0] != "v1" || !got.UpdatedAt.Equal(state.UpdatedAt) {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, _ := New(dir)
	for i := 0; i < 3; i++ {
		if err := store.Save(context.Background(), &domain.RepositorySyncState{SourceID: "docs"}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "docs.json" {
		t.Fatalf("unexpected files: %v", entries)
	}
}

func TestLoadMissingIsNotFound(t *testing.T) {
	store, _ := New(t.TempDir())
	_, err := store.Load(context.Background(), "docs")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoadCorruptFileIsPermanent(t *testing.T) {
	dir := t.TempDir()
	store, _ := New(dir)
	if err := os.WriteFile(filepath.Join(dir, "docs.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := store.Load(context.Background(), "docs")
	if !domain.IsKind(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
