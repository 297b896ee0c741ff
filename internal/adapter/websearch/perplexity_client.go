package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"em-backend/internal/domain"

	"golang.org/x/time/rate"
)

// chatRequest is the Perplexity chat completions payload. Perplexity exposes
// search through an OpenAI-compatible chat endpoint.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	SearchResults []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"search_results"`
}

// PerplexityClient implements domain.WebSearchClient against the Perplexity
// API. A local rate limiter keeps bursts of concurrent pipelines from
// tripping the provider's quota.
type PerplexityClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewPerplexityClient constructs a new PerplexityClient. If client is nil, a
// default http.Client is created with the given timeout.
func NewPerplexityClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger, client ...*http.Client) *PerplexityClient {
	var c *http.Client
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	} else {
		c = &http.Client{Timeout: timeout}
	}
	return &PerplexityClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Client:  c,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		logger:  logger,
	}
}

// Search runs one web search and returns the answer content alongside the
// cited sources.
func (c *PerplexityClient) Search(ctx context.Context, query string) ([]domain.WebDocument, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	startTime := time.Now()
	c.logger.Info("web_search_started",
		slog.String("query", truncateString(query, 100)),
		slog.String("model", c.Model))

	reqBody := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You research current political and electoral information. Answer concisely and cite sources."},
			{Role: "user", Content: query},
		},
	}

	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		c.logger.Warn("web_search_failed",
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))
		return nil, fmt.Errorf("failed to call search endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Warn("web_search_failed",
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", truncateString(string(body), 500)),
			slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))
		return nil, fmt.Errorf("search endpoint returned %d: %w", resp.StatusCode, domain.ErrBackendUnavailable)
	}

	var searchResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if len(searchResp.Choices) == 0 {
		return nil, fmt.Errorf("search response contained no choices")
	}

	content := searchResp.Choices[0].Message.Content
	docs := make([]domain.WebDocument, 0, len(searchResp.SearchResults)+1)
	docs = append(docs, domain.WebDocument{
		Title:   "Web research summary",
		Content: content,
	})
	for _, r := range searchResp.SearchResults {
		docs = append(docs, domain.WebDocument{
			Title: r.Title,
			URL:   r.URL,
		})
	}

	c.logger.Info("web_search_completed",
		slog.Int("source_count", len(searchResp.SearchResults)),
		slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))
	return docs, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
