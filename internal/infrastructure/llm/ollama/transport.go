package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/resilience"
)

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "ollama "+operation, fmt.Errorf("marshal request: %w", err))
	}

	err = c.executor.Execute(ctx, "ollama."+operation, func(callCtx context.Context) error {
		resp, err := c.send(callCtx, path, body, operation)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}, classifyOllamaError)
	return resilience.WrapKind("ollama "+operation, err, classifyOllamaError)
}

// openStream retries only until the response headers arrive; once the body
// is handed to the caller a broken stream surfaces through the stream's Err.
func (c *Client) openStream(ctx context.Context, path string, payload any, operation string) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ollama "+operation, fmt.Errorf("marshal request: %w", err))
	}

	var stream io.ReadCloser
	err = c.executor.Execute(ctx, "ollama."+operation, func(callCtx context.Context) error {
		resp, err := c.send(callCtx, path, body, operation)
		if err != nil {
			return err
		}
		stream = resp.Body
		return nil
	}, classifyOllamaError)
	if err != nil {
		return nil, resilience.WrapKind("ollama "+operation, err, classifyOllamaError)
	}
	return stream, nil
}

func (c *Client) send(ctx context.Context, path string, body []byte, operation string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama %s request: %w", operation, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.HTTPStatusError{
			Service:    "ollama",
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
			RetryAfter: resilience.ParseRetryAfter(resp.Header, time.Now()),
		}
	}
	return resp, nil
}
