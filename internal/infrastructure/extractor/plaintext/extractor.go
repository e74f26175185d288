package plaintext

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, path string, raw []byte) (string, error) {
	raw = trimBOM(raw)
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrPermanent, "extract plaintext", fmt.Errorf("unsupported binary content: %s", path))
	}
	return strings.TrimSpace(string(raw)), nil
}

func trimBOM(raw []byte) []byte {
	if len(raw) >= 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF {
		return raw[3:]
	}
	return raw
}
