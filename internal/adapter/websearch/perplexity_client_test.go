package websearch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerplexityClient_Search_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "sonar", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "user", req.Messages[1].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "The election takes place in September."}}],
			"search_results": [
				{"title": "Election overview", "url": "https://example.org/election"},
				{"title": "Candidate list", "url": "https://example.org/candidates"}
			]
		}`))
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewPerplexityClient(server.URL, "test-key", "sonar", 30*time.Second, logger)

	docs, err := client.Search(context.Background(), "when is the election")
	require.NoError(t, err)

	require.Len(t, docs, 3)
	assert.Equal(t, "The election takes place in September.", docs[0].Content)
	assert.Equal(t, "Election overview", docs[1].Title)
	assert.Equal(t, "https://example.org/candidates", docs[2].URL)
}

func TestPerplexityClient_Search_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("quota exceeded"))
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewPerplexityClient(server.URL, "test-key", "sonar", 30*time.Second, logger)

	docs, err := client.Search(context.Background(), "when is the election")
	assert.Error(t, err)
	assert.Nil(t, docs)
	assert.Contains(t, err.Error(), "429")
}

func TestPerplexityClient_Search_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [], "search_results": []}`))
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewPerplexityClient(server.URL, "test-key", "sonar", 30*time.Second, logger)

	docs, err := client.Search(context.Background(), "when is the election")
	assert.Error(t, err)
	assert.Nil(t, docs)
}

func TestPerplexityClient_Search_ContextCancelled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewPerplexityClient("http://localhost:1", "test-key", "sonar", 30*time.Second, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docs, err := client.Search(ctx, "when is the election")
	assert.Error(t, err)
	assert.Nil(t, docs)
}
