package chunking

import (
	"strings"
	"unicode"
)

// Splitter packs text into chunks of at most ChunkSize runes, preferring to
// break at paragraph, then sentence, then word boundaries. Consecutive chunks
// share up to Overlap runes of trailing context.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}

	var units []string
	for _, para := range splitParagraphs(text) {
		units = append(units, s.fit(para)...)
	}

	out := make([]string, 0, len(units))
	var current strings.Builder
	currentLen := 0
	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			out = append(out, chunk)
		}
		current.Reset()
		currentLen = 0
	}

	for _, unit := range units {
		unitLen := runeLen(unit)
		if currentLen > 0 && currentLen+1+unitLen > s.ChunkSize {
			prev := current.String()
			flush()
			if tail := overlapTail(prev, s.Overlap); tail != "" && runeLen(tail)+1+unitLen <= s.ChunkSize {
				current.WriteString(tail)
				currentLen = runeLen(tail)
			}
		}
		if currentLen > 0 {
			current.WriteString("\n")
			currentLen++
		}
		current.WriteString(unit)
		currentLen += unitLen
	}
	flush()
	return out
}

// fit breaks a paragraph into pieces no longer than ChunkSize.
func (s *Splitter) fit(para string) []string {
	if runeLen(para) <= s.ChunkSize {
		return []string{para}
	}
	var out []string
	var current strings.Builder
	for _, sentence := range splitSentences(para) {
		if runeLen(sentence) > s.ChunkSize {
			if current.Len() > 0 {
				out = append(out, strings.TrimSpace(current.String()))
				current.Reset()
			}
			out = append(out, hardSplit(sentence, s.ChunkSize)...)
			continue
		}
		if current.Len() > 0 && runeLen(current.String())+1+runeLen(sentence) > s.ChunkSize {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		out = append(out, strings.TrimSpace(current.String()))
	}
	return out
}

func splitParagraphs(text string) []string {
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, block)
		}
	}
	return out
}

func splitSentences(para string) []string {
	var out []string
	runes := []rune(para)
	start := 0
	for i, r := range runes {
		if (r == '.' || r == '!' || r == '?' || r == '\n') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// hardSplit cuts at the last space inside each window, or mid-word when the
// window has none.
func hardSplit(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > 0 {
		if len(runes) <= size {
			out = append(out, strings.TrimSpace(string(runes)))
			break
		}
		cut := size
		for i := size; i > size/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	return out
}

func overlapTail(text string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= overlap {
		return ""
	}
	tail := runes[len(runes)-overlap:]
	for i, r := range tail {
		if unicode.IsSpace(r) {
			return strings.TrimSpace(string(tail[i:]))
		}
	}
	return ""
}

func runeLen(s string) int {
	return len([]rune(s))
}
