package xlsx

import (
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

func TestExtractRendersSheets(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	_ = f.SetCellValue("Sheet1", "A1", "name")
	_ = f.SetCellValue("Sheet1", "B1", "sound")
	_ = f.SetCellValue("Sheet1", "A2", "cat")
	_ = f.SetCellValue("Sheet1", "B2", "meow")
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	got, err := NewExtractor().Extract(context.Background(), "pets.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := "# Sheet1\nname\tsound\ncat\tmeow"
	if got != want {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestExtractRejectsGarbage(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), "x.xlsx", []byte("nope"))
	if !domain.IsKind(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
