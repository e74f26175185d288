package fsdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEnumerateListsFilesRelativeToRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "alpha")
	writeFile(t, root, "nested/b.txt", "beta")
	writeFile(t, root, ".git/config", "hidden")
	writeFile(t, root, ".env", "secret")

	snap, err := New("docs", root, Options{}).Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if snap.SourceID != "docs" || len(snap.Items) != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Items[0].Path != "a.md" || snap.Items[1].Path != "nested/b.txt" || string(snap.Items[1].Content) != "beta" {
		t.Fatalf("unexpected items: %+v", snap.Items)
	}
}

func TestEnumerateFiltersExtensionsAndSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "alpha")
	writeFile(t, root, "b.go", "package b")
	writeFile(t, root, "big.md", "0123456789")

	snap, err := New("docs", root, Options{Extensions: []string{"MD"}, MaxFileSize: 6}).Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].Path != "a.md" {
		t.Fatalf("unexpected items: %+v", snap.Items)
	}
}

func TestEnumerateMissingRoot(t *testing.T) {
	_, err := New("docs", filepath.Join(t.TempDir(), "missing"), Options{}).Enumerate(context.Background())
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
