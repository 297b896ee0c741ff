package openaiapi

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
)

// realtimeSessionRequest is the payload for the ephemeral session endpoint.
type realtimeSessionRequest struct {
	Model        string `json:"model"`
	Voice        string `json:"voice"`
	Instructions string `json:"instructions,omitempty"`
}

type realtimeSessionResponse struct {
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
}

// RealtimeClient creates ephemeral realtime-voice sessions. The realtime
// session endpoint has no SDK surface, so this is a plain HTTP client.
type RealtimeClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
	logger  *slog.Logger
}

// NewRealtimeClient constructs a new RealtimeClient. If client is nil, a
// default http.Client is created with the given timeout.
func NewRealtimeClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger, client ...*http.Client) *RealtimeClient {
	var c *http.Client
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	} else {
		c = &http.Client{Timeout: timeout}
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &RealtimeClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Client:  c,
		logger:  logger,
	}
}

// CreateSession requests an ephemeral session and returns only the client
// secret. The secret is short-lived and safe to hand to browsers.
func (c *RealtimeClient) CreateSession(ctx context.Context, language domain.Language) (string, error) {
	reqBody := realtimeSessionRequest{
		Model:        c.Model,
		Voice:        "verse",
		Instructions: fmt.Sprintf("You are a helpful voice assistant answering questions about upcoming elections. Always respond in %s.", language.Name),
	}

	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/realtime/sessions", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return "", fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call realtime session endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Warn("realtime_session_failed",
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", truncateString(string(body), 500)))
		return "", fmt.Errorf("realtime session endpoint returned %d: %w", resp.StatusCode, domain.ErrBackendUnavailable)
	}

	var sessionResp realtimeSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sessionResp); err != nil {
		return "", fmt.Errorf("failed to decode session response: %w", err)
	}
	if sessionResp.ClientSecret.Value == "" {
		return "", fmt.Errorf("realtime session response missing client secret")
	}

	c.logger.Info("realtime_session_created", slog.String("language", language.Code))
	return sessionResp.ClientSecret.Value, nil
}
