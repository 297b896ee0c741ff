package openaiapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"em-backend/internal/domain"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

type chatClient struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewChatClient creates an LLMClient backed by the OpenAI chat completions
// API. baseURL may be empty to use the default endpoint. timeout bounds every
// request, streamed ones included; a timed-out call fails only its own task.
func NewChatClient(apiKey, baseURL, model string, timeout time.Duration, logger *slog.Logger) domain.LLMClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &chatClient{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

func (c *chatClient) Chat(ctx context.Context, messages []domain.Message) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toChatMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *chatClient) ChatStream(ctx context.Context, messages []domain.Message) (<-chan domain.LLMStreamChunk, <-chan error, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toChatMessages(messages),
	})

	chunks := make(chan domain.LLMStreamChunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			content := chunk.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			select {
			case chunks <- domain.LLMStreamChunk{Content: content}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := stream.Err(); err != nil {
			errs <- fmt.Errorf("chat stream failed: %w", err)
			return
		}
		select {
		case chunks <- domain.LLMStreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return chunks, errs, nil
}

func (c *chatClient) ChatStructured(ctx context.Context, messages []domain.Message, format domain.StructuredFormat, out any) error {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toChatMessages(messages),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   format.Name,
					Schema: format.Schema,
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("structured completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("structured completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		c.logger.Warn("structured completion returned invalid json",
			"schema", format.Name,
			"content", truncateString(content, 200))
		return fmt.Errorf("failed to parse structured response: %w", err)
	}
	return nil
}

func (c *chatClient) Version() string {
	return c.model
}

func toChatMessages(messages []domain.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Type {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
