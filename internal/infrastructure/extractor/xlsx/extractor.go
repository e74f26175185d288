// Package xlsx renders spreadsheet rows as tab separated text, one block
// per sheet.
package xlsx

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, path string, raw []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return "", domain.WrapError(domain.ErrPermanent, "extract xlsx", fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	var buf strings.Builder
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", domain.WrapError(domain.ErrPermanent, "extract xlsx", fmt.Errorf("read sheet %s: %w", sheet, err))
		}
		var lines []string
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		buf.WriteString("# ")
		buf.WriteString(sheet)
		buf.WriteString("\n")
		buf.WriteString(strings.Join(lines, "\n"))
		buf.WriteString("\n\n")
	}
	return strings.TrimSpace(buf.String()), nil
}
