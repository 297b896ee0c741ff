package domain

import "github.com/google/uuid"

// DocumentChunk is a unit of source text retrieved from the vector store.
// Chunks live for one request only; nothing in the core persists them.
type DocumentChunk struct {
	ID      uuid.UUID `json:"id"`
	PartyID uuid.UUID `json:"party_id"`
	Title   string    `json:"title"`
	Text    string    `json:"text"`
	Score   float32   `json:"score"`
}

// WebDocument is a single live web-search result.
type WebDocument struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// DedupChunks removes chunks with a repeated id, keeping the first
// occurrence. Order of the survivors is unchanged.
func DedupChunks(chunks []DocumentChunk) []DocumentChunk {
	seen := make(map[uuid.UUID]bool, len(chunks))
	out := make([]DocumentChunk, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
