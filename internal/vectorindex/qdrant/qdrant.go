// Package qdrant is a minimal REST client for a Qdrant collection, the
// default vector index backend. Backend payloads are converted to typed
// documents at this boundary and never passed through untyped.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/s3ev/evcharge-rag/internal/rag"
)

var ErrCollectionNotFound = errors.New("qdrant: collection not found")

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration

	// CreateMissing makes NewClient create the collection (with Dimension-
	// sized cosine vectors) instead of failing when it does not exist.
	// Only the importer sets this; the serving binary must fail fast on a
	// missing collection.
	CreateMissing bool
	Dimension     int
}

type Client struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// NewClient connects to Qdrant and verifies the target collection exists.
// A missing collection is a startup error so misconfiguration is caught
// before serving traffic, not mid-request.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}

	if err := c.checkCollection(ctx); err != nil {
		if errors.Is(err, ErrCollectionNotFound) && cfg.CreateMissing {
			if createErr := c.createCollection(ctx, cfg.Dimension); createErr != nil {
				return nil, createErr
			}
			return c, nil
		}
		return nil, err
	}
	return c, nil
}

func (c *Client) checkCollection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/collections/%s", c.url, c.collection), nil)
	if err != nil {
		return err
	}
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: check collection %s: %w", c.collection, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, c.collection)
	case resp.StatusCode >= 300:
		return fmt.Errorf("qdrant: check collection %s: %s", c.collection, resp.Status)
	}
	return nil
}

func (c *Client) createCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("qdrant: invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return c.putJSON(ctx, fmt.Sprintf("%s/collections/%s", c.url, c.collection), body)
}

type searchRequest struct {
	Vector         []float32 `json:"vector"`
	Limit          int       `json:"limit"`
	ScoreThreshold float64   `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
}

type searchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Search returns passages scoring at least scoreThreshold, at most limit of
// them, in the index's descending-score order. Ties keep the index order;
// no re-ranking happens here.
func (c *Client) Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]rag.Document, error) {
	if limit <= 0 {
		limit = 5
	}
	req := searchRequest{
		Vector:         vector,
		Limit:          limit,
		ScoreThreshold: scoreThreshold,
		WithPayload:    true,
	}

	var resp searchResponse
	if err := c.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", c.url, c.collection), req, &resp); err != nil {
		return nil, err
	}

	docs := make([]rag.Document, 0, len(resp.Result))
	for _, r := range resp.Result {
		if r.Score < scoreThreshold {
			continue
		}
		docs = append(docs, toDocument(r.Score, r.Payload))
		if len(docs) == limit {
			break
		}
	}
	return docs, nil
}

// Upsert writes entries with deterministic content-derived point IDs, so
// re-importing the same corpus overwrites instead of duplicating.
func (c *Client) Upsert(ctx context.Context, entries []rag.Entry) error {
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":     pointID(e.Text),
			"vector": e.Vector,
			"payload": map[string]any{
				"text":     e.Text,
				"metadata": e.Metadata,
			},
		}
	}
	body := map[string]any{"points": points}
	return c.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", c.url, c.collection), body)
}

func toDocument(score float64, payload map[string]any) rag.Document {
	doc := rag.Document{
		Confidence: clamp01(score),
		Metadata:   map[string]string{},
	}
	if v, ok := payload["text"].(string); ok {
		doc.Content = v
	}
	if m, ok := payload["metadata"].(map[string]any); ok {
		for k, v := range m {
			if s, ok := v.(string); ok {
				doc.Metadata[k] = s
			}
		}
	}
	doc.IsProductInfo = doc.Metadata["type"] == "product"
	return doc
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func pointID(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

func (c *Client) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
}

func (c *Client) putJSON(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant: PUT %s failed: %s", url, resp.Status)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant: POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var _ rag.SearchIndex = (*Client)(nil)
var _ rag.IndexWriter = (*Client)(nil)
