package openaiapi

import (
	"context"
	"fmt"
	"io"

	"em-backend/internal/domain"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

type transcriber struct {
	client openai.Client
	model  string
}

// NewTranscriber creates a Transcriber backed by the OpenAI audio API.
func NewTranscriber(apiKey, baseURL, model string) domain.Transcriber {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &transcriber{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (t *transcriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(t.model),
		File:  openai.File(audio, filename, "audio/webm"),
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}
