package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/core/ports"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	think      bool
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

// WithThinking asks reasoning models to stream their thinking separately.
func WithThinking(enabled bool) Option {
	return func(c *Client) { c.think = enabled }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor, opts ...Option) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type IntentClassifier struct {
	client *Client
}

func NewIntentClassifier(client *Client) *IntentClassifier {
	return &IntentClassifier{client: client}
}

func (c *IntentClassifier) Classify(ctx context.Context, question string) (domain.Intent, error) {
	respText, err := c.client.generate(ctx, buildIntentPrompt(question), true)
	if err != nil {
		return domain.Intent{}, err
	}

	var raw struct {
		QueryType  string   `json:"query_type"`
		Complexity string   `json:"complexity"`
		Entities   []string `json:"entities"`
		Confidence float64  `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &raw); err != nil {
		return domain.Intent{}, domain.WrapError(domain.ErrPermanent, "ollama classify intent", fmt.Errorf("parse intent json: %w", err))
	}
	return domain.ParseIntent(raw.QueryType, raw.Complexity, raw.Entities, raw.Confidence)
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(domain.ErrPermanent, "ollama embed", fmt.Errorf("got %d embeddings for %d inputs", len(response.Embeddings), len(texts)))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Complete(ctx context.Context, prompt string) (string, error) {
	return g.client.generate(ctx, prompt, false)
}

// Stream opens a streaming generation. The returned stream exposes the
// model's thinking through Reasoning when thinking is enabled.
func (g *Generator) Stream(ctx context.Context, prompt string) (ports.TokenStream, error) {
	reqBody := map[string]any{
		"model":  g.client.genModel,
		"prompt": prompt,
		"stream": true,
	}
	if g.client.think {
		reqBody["think"] = true
	}
	body, err := g.client.openStream(ctx, "/api/generate", reqBody, "generate_stream")
	if err != nil {
		return nil, err
	}
	return newStream(body), nil
}

func (c *Client) generate(ctx context.Context, prompt string, jsonFormat bool) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	operation := "generate"
	if jsonFormat {
		reqBody["format"] = "json"
		operation = "generate_json"
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, operation); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
