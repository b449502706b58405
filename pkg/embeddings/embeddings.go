// Package embeddings is a thin OpenAI-compatible embeddings client
// plus the cosine-similarity ranking the tool layer builds on top of
// it for fuzzy project and specification lookups.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/docassistant/docassistant/pkg/apperrors"
)

// Config configures the embeddings client and its availability probe.
type Config struct {
	URL                string
	APIKey             string
	Model              string
	HealthCheckTimeout time.Duration
}

// Client wraps an OpenAI-compatible /embeddings endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New constructs a Client against a shared HTTP client (reused by the
// rest of the upstream-facing clients per the kernel's shared
// transport pool).
func New(cfg Config, httpClient *http.Client) *Client {
	return &Client{cfg: cfg, httpClient: httpClient}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.UpstreamErrorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.UpstreamErrorf("embeddings endpoint returned status %d", resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.UpstreamErrorf("failed to decode embeddings response: %w", err)
	}

	vectors := make([][]float64, len(parsed.Data))
	for i, item := range parsed.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

// HealthCheck probes the embeddings endpoint with a tiny request and
// reports whether it is reachable within cfg.HealthCheckTimeout.
func (c *Client) HealthCheck(ctx context.Context) bool {
	timeout := c.cfg.HealthCheckTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := c.Embed(ctx, []string{"health check"})
	return err == nil
}

// Scored is one candidate and its cosine-similarity score against a
// query vector.
type Scored struct {
	Item  string
	Score float64
}

// CosineSimilarity computes the cosine similarity of two vectors of
// equal length.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RankByQuery embeds query and candidates together, then returns the
// top-k candidates ranked by descending cosine similarity to query.
func RankByQuery(ctx context.Context, client *Client, query string, candidates []string, topK int) ([]Scored, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	vectors, err := client.Embed(ctx, append([]string{query}, candidates...))
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(candidates)+1 {
		return nil, apperrors.UpstreamErrorf("embeddings endpoint returned %d vectors for %d inputs", len(vectors), len(candidates)+1)
	}

	queryVec := vectors[0]
	scored := make([]Scored, len(candidates))
	for i, candidate := range candidates {
		scored[i] = Scored{Item: candidate, Score: CosineSimilarity(queryVec, vectors[i+1])}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}
