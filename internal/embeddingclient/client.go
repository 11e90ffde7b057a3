// Package embeddingclient implements the HTTP adapters embedding.Gateway
// dials out to: the node-embedding model, the relation-embedding model and
// the LLM, each reached over a plain JSON request/response contract.
package embeddingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpClient is the shared request/response plumbing all three adapters use,
// in the style of the provider clients' doRequest helper.
type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newHTTPClient(baseURL, apiKey string, timeout time.Duration) *httpClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) doRequest(ctx context.Context, endpoint string, payload, result any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request to %s failed with status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

// NodeEmbeddingClient calls an external node-embedding model over HTTP,
// satisfying embedding.NodeEmbedder.
type NodeEmbeddingClient struct{ *httpClient }

// NewNodeEmbeddingClient builds a NodeEmbeddingClient against baseURL.
func NewNodeEmbeddingClient(baseURL, apiKey string, timeout time.Duration) *NodeEmbeddingClient {
	return &NodeEmbeddingClient{newHTTPClient(baseURL, apiKey, timeout)}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedNode posts text to /embed/node and returns the returned vector.
func (c *NodeEmbeddingClient) EmbedNode(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := c.doRequest(ctx, "/embed/node", embedRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

// RelationEmbeddingClient calls an external relation-embedding model over
// HTTP, satisfying embedding.RelationEmbedder.
type RelationEmbeddingClient struct{ *httpClient }

// NewRelationEmbeddingClient builds a RelationEmbeddingClient against baseURL.
func NewRelationEmbeddingClient(baseURL, apiKey string, timeout time.Duration) *RelationEmbeddingClient {
	return &RelationEmbeddingClient{newHTTPClient(baseURL, apiKey, timeout)}
}

// EmbedRelation posts text to /embed/relation and returns the returned vector.
func (c *RelationEmbeddingClient) EmbedRelation(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := c.doRequest(ctx, "/embed/relation", embedRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

// LLMHTTPClient calls an external chat/completion endpoint over HTTP,
// satisfying embedding.LLMClient.
type LLMHTTPClient struct{ *httpClient }

// NewLLMHTTPClient builds an LLMHTTPClient against baseURL.
func NewLLMHTTPClient(baseURL, apiKey string, timeout time.Duration) *LLMHTTPClient {
	return &LLMHTTPClient{newHTTPClient(baseURL, apiKey, timeout)}
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Complete posts prompt to /v1/complete and returns the generated text.
func (c *LLMHTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	var resp completionResponse
	if err := c.doRequest(ctx, "/v1/complete", completionRequest{Prompt: prompt}, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}
