package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Message roles as they appear on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of a conversation. Type is the discriminator
// ("user" or "assistant"); system messages exist only inside prompts and are
// never serialized to clients.
type Message struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewUserMessage creates a user turn with a fresh id.
func NewUserMessage(content string) Message {
	return Message{ID: uuid.NewString(), Type: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant turn with a fresh id.
func NewAssistantMessage(content string) Message {
	return Message{ID: uuid.NewString(), Type: RoleAssistant, Content: content}
}

// UnmarshalJSON validates the discriminator so malformed histories are
// rejected at the API boundary instead of deep inside the pipeline.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Type != RoleUser && a.Type != RoleAssistant {
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidRequest, a.Type)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	*m = Message(a)
	return nil
}

// Conversation is the ordered message history of one chat session. It is
// read-only for the duration of a request; the orchestrator appends the final
// assistant message only after all generation tasks complete.
type Conversation []Message

// LastUserMessage returns the latest user turn, or an empty message.
func (c Conversation) LastUserMessage() Message {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Type == RoleUser {
			return c[i]
		}
	}
	return Message{}
}
