package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/infrastructure/resilience"
)

const defaultSearchLimit = 10

// Every facet lives in its own collection named <prefix>_<facet>.
type Client struct {
	baseURL    string
	prefix     string
	vectorSize int
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu sync.Mutex
	ensured  map[string]int
}

func New(baseURL, collectionPrefix string, vectorSize int) *Client {
	return NewWithOptions(baseURL, collectionPrefix, vectorSize, Options{})
}

type Options struct {
	Timeout    time.Duration
	Resilience *resilience.Policy
}

func NewWithOptions(baseURL, collectionPrefix string, vectorSize int, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		prefix:     collectionPrefix,
		vectorSize: vectorSize,
		httpClient: &http.Client{Timeout: timeout},
		ensured:    make(map[string]int),
	}
	if options.Resilience != nil {
		client.executor = resilience.New(*options.Resilience, classify)
	}
	return client
}

func (c *Client) collection(facet string) string {
	return c.prefix + "_" + facet
}

func (c *Client) EnsureFacets(ctx context.Context) error {
	for _, facet := range domain.AllFacets() {
		if err := c.ensureCollection(ctx, c.collection(facet), c.vectorSize); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) IndexFacet(ctx context.Context, facet string, points []domain.FacetPoint) error {
	if len(points) == 0 {
		return nil
	}
	collection := c.collection(facet)
	if err := c.ensureCollection(ctx, collection, len(points[0].Vector)); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	body := make([]point, 0, len(points))
	for _, p := range points {
		payload := make(map[string]any, len(p.Payload)+2)
		for k, v := range p.Payload {
			payload[k] = v
		}
		payload["tool_id"] = p.ToolID
		payload["chunk_index"] = p.ChunkIndex
		body = append(body, point{
			ID:      uuid.NewString(),
			Vector:  p.Vector,
			Payload: payload,
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, collection)
	if err := c.do(ctx, "qdrant.upsert", http.MethodPut, url, map[string]any{"points": body}, nil); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (c *Client) SearchFacet(ctx context.Context, facet string, vector []float32, limit int) ([]domain.FacetHit, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection(facet))
	err := c.do(ctx, "qdrant.search", http.MethodPost, url, map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}, &searchResp)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	out := make([]domain.FacetHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.FacetHit{
			ToolID:  getStringPayload(r.Payload, "tool_id"),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return out, nil
}

func (c *Client) DeleteTool(ctx context.Context, facet, toolID string) error {
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection(facet))
	err := c.do(ctx, "qdrant.delete", http.MethodPost, url, map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   "tool_id",
					"match": map[string]any{"value": toolID},
				},
			},
		},
	}, nil)
	// 404 means the collection does not exist yet; nothing to delete.
	if isStatus(err, http.StatusNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, collection string, vectorSize int) error {
	c.ensureMu.Lock()
	if size, ok := c.ensured[collection]; ok && size == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, collection)
	err := c.do(ctx, "qdrant.ensure", http.MethodPut, url, map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}, nil)
	// 409 means the collection already exists (depends on version/config).
	if err != nil && !isStatus(err, http.StatusConflict) {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}

	c.ensureMu.Lock()
	c.ensured[collection] = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) do(ctx context.Context, operation, method, url string, body map[string]any, out any) error {
	call := func(ctx context.Context) error {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return &httpStatusError{
				Operation:  operation,
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       readErrorBody(resp.Body),
			}
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Do(ctx, operation, call)
	} else {
		err = call(ctx)
	}
	return wrapTemporary(operation, err)
}

func readErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 2048))
	return strings.TrimSpace(string(body))
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
