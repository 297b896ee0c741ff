package domain

import "context"

// LLMStreamChunk is one increment of a streamed completion. Done is set on
// the final chunk.
type LLMStreamChunk struct {
	Content string
	Done    bool
}

// StructuredFormat names a JSON schema that constrains a structured chat
// completion. Schema follows the JSON Schema object form.
type StructuredFormat struct {
	Name   string
	Schema map[string]any
}

// LLMClient defines the capability to send chat messages to a language model.
type LLMClient interface {
	// Chat returns the complete assistant message for the conversation.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ChatStream starts a streaming completion. Increments arrive on the
	// first channel, a terminal failure (if any) on the second. Both channels
	// are closed when the stream ends.
	ChatStream(ctx context.Context, messages []Message) (<-chan LLMStreamChunk, <-chan error, error)

	// ChatStructured requests a completion constrained to the given JSON
	// schema and unmarshals the response into out.
	ChatStructured(ctx context.Context, messages []Message, format StructuredFormat, out any) error

	// Version returns the model identifier for logging.
	Version() string
}
