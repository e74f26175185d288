package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "lexical"
	maxScrollPoints  = 1000
)

var errCollectionMissing = errors.New("qdrant collection does not exist")

// Client is a Qdrant REST adapter storing one dense and one sparse named
// vector per chunk.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  map[string]any `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, points []domain.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	vectorSize := len(points[0].Vector)
	for _, p := range points {
		if len(p.Vector) != vectorSize || vectorSize == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("inconsistent vector size for point %s", p.ID))
		}
	}
	if err := c.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}

	body := make([]point, 0, len(points))
	for _, p := range points {
		body = append(body, point{
			ID: p.ID,
			Vector: map[string]any{
				denseVectorName:  p.Vector,
				sparseVectorName: encodeSparseDocument(p.Text, p.Metadata.Path),
			},
			Payload: buildPayload(p),
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	err := c.do(ctx, "upsert", http.MethodPut, url, map[string]any{"points": body}, nil)
	return resilience.WrapKind("qdrant upsert", err, classifyQdrantError)
}

func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	err := c.do(ctx, "delete", http.MethodPost, url, map[string]any{"points": ids}, nil)
	if errors.Is(err, errCollectionMissing) {
		return nil
	}
	return resilience.WrapKind("qdrant delete", err, classifyQdrantError)
}

func (c *Client) Query(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	return c.query(ctx, "query", map[string]any{
		"query": vector,
		"using": denseVectorName,
	}, limit, filter)
}

func (c *Client) SearchLexical(ctx context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error) {
	sparse := encodeSparseQuery(queryText)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	return c.query(ctx, "lexical query", map[string]any{
		"query": sparse,
		"using": sparseVectorName,
	}, limit, filter)
}

func (c *Client) ScanText(ctx context.Context, literal string, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return nil, nil
	}
	return c.scroll(ctx, "scan text", map[string]any{
		"key":   "text",
		"match": map[string]any{"text": literal},
	}, limit, filter)
}

func (c *Client) SearchByPath(ctx context.Context, pathHint string, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error) {
	pathHint = strings.TrimSpace(pathHint)
	if pathHint == "" {
		return nil, nil
	}
	return c.scroll(ctx, "path search", map[string]any{
		"key":   "path",
		"match": map[string]any{"text": pathHint},
	}, limit, filter)
}

func (c *Client) query(ctx context.Context, operation string, reqBody map[string]any, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	reqBody["limit"] = limit
	reqBody["with_payload"] = true
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	var resp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	err := c.do(ctx, operation, http.MethodPost, url, reqBody, &resp)
	if errors.Is(err, errCollectionMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, resilience.WrapKind("qdrant "+operation, err, classifyQdrantError)
	}

	out := make([]domain.VectorMatch, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		out = append(out, toMatch(p))
	}
	return out, nil
}

func (c *Client) scroll(ctx context.Context, operation string, condition map[string]any, limit int, filter domain.SearchFilter) ([]domain.VectorMatch, error) {
	if limit <= 0 || limit > maxScrollPoints {
		limit = maxScrollPoints
	}
	must := []map[string]any{condition}
	if filter.SourceID != "" {
		must = append(must, sourceCondition(filter.SourceID))
	}

	var out []domain.VectorMatch
	var offset any
	for len(out) < limit {
		reqBody := map[string]any{
			"filter":       map[string]any{"must": must},
			"limit":        limit - len(out),
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			reqBody["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points         []scoredPoint `json:"points"`
				NextPageOffset any           `json:"next_page_offset"`
			} `json:"result"`
		}
		url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, c.collection)
		err := c.do(ctx, operation, http.MethodPost, url, reqBody, &resp)
		if errors.Is(err, errCollectionMissing) {
			return out, nil
		}
		if err != nil {
			return nil, resilience.WrapKind("qdrant "+operation, err, classifyQdrantError)
		}
		for _, p := range resp.Result.Points {
			out = append(out, toMatch(p))
		}
		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	return out, nil
}

// do sends one JSON request through the retry executor. A 404 is reported
// as errCollectionMissing so readers can treat an empty index as no results.
func (c *Client) do(ctx context.Context, operation, method, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	return c.executor.Execute(ctx, "qdrant."+strings.ReplaceAll(operation, " ", "_"), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return errCollectionMissing
		}
		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &resilience.HTTPStatusError{
				Service:    "qdrant",
				Operation:  operation,
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       string(msg),
				RetryAfter: resilience.ParseRetryAfter(resp.Header, time.Now()),
			}
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}, classifyQdrantError)
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{},
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.do(ctx, "ensure collection", http.MethodPut, url, reqBody, nil)
	// 200/201 for create, 409 if already exists (depends on version/config).
	var statusErr *resilience.HTTPStatusError
	if asStatusError(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		err = nil
	}
	if err != nil {
		return resilience.WrapKind("qdrant ensure collection", err, classifyQdrantError)
	}

	indexURL := fmt.Sprintf("%s/collections/%s/index?wait=true", c.baseURL, c.collection)
	for _, index := range payloadIndexes() {
		if err := c.do(ctx, "ensure index", http.MethodPut, indexURL, index, nil); err != nil {
			return resilience.WrapKind("qdrant ensure index", err, classifyQdrantError)
		}
	}

	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func payloadIndexes() []map[string]any {
	textSchema := map[string]any{
		"type":      "text",
		"tokenizer": "word",
		"lowercase": true,
	}
	return []map[string]any{
		{"field_name": "text", "field_schema": textSchema},
		{"field_name": "path", "field_schema": textSchema},
		{"field_name": "source_id", "field_schema": "keyword"},
	}
}

func buildPayload(p domain.VectorPoint) map[string]any {
	payload := map[string]any{
		"source_id":   p.Metadata.SourceID,
		"path":        p.Metadata.Path,
		"title":       p.Metadata.Title,
		"chunk_index": p.Metadata.ChunkIndex,
		"fingerprint": p.Metadata.Fingerprint,
		"text":        p.Text,
	}
	if len(p.Metadata.Extra) > 0 {
		payload["extra"] = p.Metadata.Extra
	}
	return payload
}

func buildFilter(filter domain.SearchFilter) map[string]any {
	if filter.SourceID == "" {
		return nil
	}
	return map[string]any{"must": []map[string]any{sourceCondition(filter.SourceID)}}
}

func sourceCondition(sourceID string) map[string]any {
	return map[string]any{
		"key":   "source_id",
		"match": map[string]any{"value": sourceID},
	}
}

func toMatch(p scoredPoint) domain.VectorMatch {
	md := domain.NodeMetadata{
		SourceID:    getStringPayload(p.Payload, "source_id"),
		Path:        getStringPayload(p.Payload, "path"),
		Title:       getStringPayload(p.Payload, "title"),
		ChunkIndex:  getIntPayload(p.Payload, "chunk_index"),
		Fingerprint: getStringPayload(p.Payload, "fingerprint"),
	}
	if raw, ok := p.Payload["extra"].(map[string]any); ok {
		md.Extra = make(map[string]string, len(raw))
		for k, v := range raw {
			md.Extra[k] = fmt.Sprintf("%v", v)
		}
	}
	return domain.VectorMatch{
		ID:       fmt.Sprintf("%v", p.ID),
		Score:    p.Score,
		Text:     getStringPayload(p.Payload, "text"),
		Metadata: md,
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
