// Package vectorindex talks to the hosted vector index over its REST API
// (Pinecone-compatible). Records live in a single configured namespace;
// metadata carries the chunk text plus the owning file and, for visitor
// uploads, the session token.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Vector struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

type Metadata struct {
	Text      string `json:"text"`
	FileID    uint   `json:"file_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type Match struct {
	ID       string   `json:"id"`
	Score    float32  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Filter is a metadata filter expression, e.g.
// {"session_id": "abc"} or {"file_id": {"$in": [1, 2]}}.
type Filter map[string]any

type Client struct {
	baseURL    string
	apiKey     string
	namespace  string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, namespace string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		namespace:  namespace,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Upsert writes vectors to the index and returns the count the index reports.
// The caller is responsible for batching under the payload limit.
func (c *Client) Upsert(ctx context.Context, vectors []Vector) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	reqBody := map[string]any{
		"vectors":   vectors,
		"namespace": c.namespace,
	}
	var parsed struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	if err := c.post(ctx, "/vectors/upsert", reqBody, &parsed); err != nil {
		return 0, err
	}
	return parsed.UpsertedCount, nil
}

// Query returns the topK nearest matches, optionally constrained by filter.
func (c *Client) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if topK <= 0 {
		topK = 5
	}
	reqBody := map[string]any{
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
		"namespace":       c.namespace,
	}
	if len(filter) > 0 {
		reqBody["filter"] = filter
	}
	var parsed struct {
		Matches []Match `json:"matches"`
	}
	if err := c.post(ctx, "/query", reqBody, &parsed); err != nil {
		return nil, err
	}
	return parsed.Matches, nil
}

// QueryIDs returns the ids of up to limit vectors whose metadata matches
// filter; first phase of the two-phase file deletion.
func (c *Client) QueryIDs(ctx context.Context, filter Filter, limit int) ([]string, error) {
	if len(filter) == 0 {
		return nil, fmt.Errorf("id query filter is empty")
	}
	if limit <= 0 {
		limit = 1000
	}
	reqBody := map[string]any{
		"topK":            limit,
		"filter":          filter,
		"includeMetadata": false,
		"namespace":       c.namespace,
	}
	var parsed struct {
		Matches []Match `json:"matches"`
	}
	if err := c.post(ctx, "/query", reqBody, &parsed); err != nil {
		return nil, err
	}
	ids := make([]string, len(parsed.Matches))
	for i := range parsed.Matches {
		ids[i] = parsed.Matches[i].ID
	}
	return ids, nil
}

// DeleteByIDs removes the given vector ids from the index.
func (c *Client) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	reqBody := map[string]any{
		"ids":       ids,
		"namespace": c.namespace,
	}
	return c.post(ctx, "/vectors/delete", reqBody, nil)
}

// DeleteByFilter removes every vector whose metadata matches filter in a
// single call; used by the cleanup job for session sweeps.
func (c *Client) DeleteByFilter(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return fmt.Errorf("delete filter is empty")
	}
	reqBody := map[string]any{
		"filter":    filter,
		"namespace": c.namespace,
	}
	return c.post(ctx, "/vectors/delete", reqBody, nil)
}

func (c *Client) post(ctx context.Context, path string, reqBody any, out any) error {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal vector index request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("build vector index request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vector index request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read vector index response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("vector index response status %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse vector index json failed: %w", err)
	}
	return nil
}
