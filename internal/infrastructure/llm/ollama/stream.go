package ollama

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

// Stream reads Ollama's newline-delimited JSON generation frames.
type Stream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	text      string
	reasoning strings.Builder
	err       error
	done      bool
}

type streamFrame struct {
	Response string `json:"response"`
	Thinking string `json:"thinking"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func newStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{body: body, scanner: scanner}
}

func (s *Stream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		var frame streamFrame
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			s.err = domain.WrapError(domain.ErrTransient, "ollama stream", fmt.Errorf("decode frame: %w", err))
			return false
		}
		if frame.Error != "" {
			s.err = domain.WrapError(domain.ErrPermanent, "ollama stream", fmt.Errorf("%s", frame.Error))
			return false
		}
		s.reasoning.WriteString(frame.Thinking)
		if frame.Done {
			s.done = true
			if frame.Response == "" {
				return false
			}
		}
		if frame.Response == "" {
			continue
		}
		s.text = frame.Response
		return true
	}
	if err := s.scanner.Err(); err != nil {
		s.err = domain.WrapError(domain.ErrTransient, "ollama stream", err)
	}
	s.done = true
	return false
}

func (s *Stream) Text() string { return s.text }

func (s *Stream) Err() error { return s.err }

func (s *Stream) Reasoning() string { return s.reasoning.String() }

func (s *Stream) Close() error { return s.body.Close() }
