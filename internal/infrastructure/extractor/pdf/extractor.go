// Package pdf extracts the plain text layer of PDF documents.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract concatenates the text of every readable page. Pages that fail to
// decode are skipped; a document without any text yields an empty string.
func (e *Extractor) Extract(ctx context.Context, path string, raw []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrPermanent, "extract pdf", fmt.Errorf("open %s: %w", path, err))
	}

	var buf strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("pdf_page_skipped", "path", path, "page", i, "error", err)
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n\n")
	}
	return strings.TrimSpace(buf.String()), nil
}
