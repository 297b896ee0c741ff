package domain

import "github.com/google/uuid"

// Chunk type discriminators as emitted on the SSE stream. Clients dispatch on
// the tag, never on the structural shape of the payload.
const (
	ChunkTypePartyToken        = "party_response"
	ChunkTypePartySources      = "party_response_sources"
	ChunkTypePartyMessage      = "party_message_chunk"
	ChunkTypeComparisonToken   = "comparison_response"
	ChunkTypeComparisonSources = "comparison_response_sources"
	ChunkTypeComparisonMessage = "message"
	ChunkTypeTitle             = "title"
	ChunkTypeFollowUp          = "follow_up"
	ChunkTypeError             = "error"
)

// OwnerComparison and OwnerPipeline scope chunks that belong to no single
// party: the synthesized comparison narration and request-level failures.
const (
	OwnerComparison = "comparison"
	OwnerPipeline   = "pipeline"
)

// AnyChunk is one event of the merged output stream. Every chunk carries a
// fresh id and its type tag.
type AnyChunk interface {
	// ChunkType returns the wire discriminator.
	ChunkType() string
}

type baseChunk struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func newBase(chunkType string) baseChunk {
	return baseChunk{ID: uuid.NewString(), Type: chunkType}
}

func (b baseChunk) ChunkType() string { return b.Type }

// PartyTokenChunk is an incremental piece of one party's answer text.
// Concatenating token chunks for one party in emission order reconstructs
// that party's final answer.
type PartyTokenChunk struct {
	baseChunk
	Party   string `json:"party"`
	Content string `json:"content"`
}

func NewPartyTokenChunk(party, content string) PartyTokenChunk {
	return PartyTokenChunk{baseChunk: newBase(ChunkTypePartyToken), Party: party, Content: content}
}

// PartySourcesChunk attributes retrieved document chunks to one party.
type PartySourcesChunk struct {
	baseChunk
	Party     string          `json:"party"`
	Documents []DocumentChunk `json:"documents"`
}

func NewPartySourcesChunk(party string, documents []DocumentChunk) PartySourcesChunk {
	return PartySourcesChunk{baseChunk: newBase(ChunkTypePartySources), Party: party, Documents: documents}
}

// PartyMessageChunk carries one party's complete assistant message, emitted
// once when that party's generation finishes.
type PartyMessageChunk struct {
	baseChunk
	Party   string  `json:"party"`
	Message Message `json:"message"`
}

func NewPartyMessageChunk(party string, message Message) PartyMessageChunk {
	return PartyMessageChunk{baseChunk: newBase(ChunkTypePartyMessage), Party: party, Message: message}
}

// ComparisonTokenChunk is an incremental piece of the cross-party answer.
type ComparisonTokenChunk struct {
	baseChunk
	Content string `json:"content"`
}

func NewComparisonTokenChunk(content string) ComparisonTokenChunk {
	return ComparisonTokenChunk{baseChunk: newBase(ChunkTypeComparisonToken), Content: content}
}

// ComparisonSourcesChunk maps party shortnames to their retrieved chunks.
// Dedup happens within one party's list only; the same chunk id may appear
// under two parties.
type ComparisonSourcesChunk struct {
	baseChunk
	Documents map[string][]DocumentChunk `json:"documents"`
}

func NewComparisonSourcesChunk(documents map[string][]DocumentChunk) ComparisonSourcesChunk {
	return ComparisonSourcesChunk{baseChunk: newBase(ChunkTypeComparisonSources), Documents: documents}
}

// ComparisonMessageChunk carries the complete comparison assistant message.
type ComparisonMessageChunk struct {
	baseChunk
	Message Message `json:"message"`
}

func NewComparisonMessageChunk(message Message) ComparisonMessageChunk {
	return ComparisonMessageChunk{baseChunk: newBase(ChunkTypeComparisonMessage), Message: message}
}

// TitleChunk carries the generated conversation title.
type TitleChunk struct {
	baseChunk
	Title string `json:"title"`
}

func NewTitleChunk(title string) TitleChunk {
	return TitleChunk{baseChunk: newBase(ChunkTypeTitle), Title: title}
}

// FollowUpQuestionsChunk carries suggested follow-up questions.
type FollowUpQuestionsChunk struct {
	baseChunk
	FollowUpQuestions []string `json:"follow_up_questions"`
}

func NewFollowUpQuestionsChunk(questions []string) FollowUpQuestionsChunk {
	return FollowUpQuestionsChunk{baseChunk: newBase(ChunkTypeFollowUp), FollowUpQuestions: questions}
}

// ErrorChunk reports a failure scoped to one owner: a party shortname,
// OwnerComparison, or OwnerPipeline when the whole request failed.
type ErrorChunk struct {
	baseChunk
	Owner  string `json:"owner"`
	Reason string `json:"reason"`
}

func NewErrorChunk(owner, reason string) ErrorChunk {
	return ErrorChunk{baseChunk: newBase(ChunkTypeError), Owner: owner, Reason: reason}
}
