package plaintext

import (
	"context"
	"testing"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

func TestExtractTrimsAndStripsBOM(t *testing.T) {
	got, err := NewExtractor().Extract(context.Background(), "a.md", []byte("\xEF\xBB\xBF  hello\n"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "hello" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestExtractRejectsBinary(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), "a.bin", []byte{0xff, 0xfe, 0x00})
	if !domain.IsKind(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
