package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MinChunkLength is the minimum chunk length in characters. Shorter
	// paragraphs are merged with a neighbour so embeddings stay meaningful.
	MinChunkLength = 80
	// MaxChunkLength is the maximum chunk length in characters. Longer
	// paragraphs are split at sentence boundaries.
	MaxChunkLength = 1000
)

// Chunk is one piece of an ingested document, pre-embedding.
type Chunk struct {
	Ordinal int    // sequence number, 0-indexed
	Content string // the text content
	Hash    string // SHA-256 of the content
}

// Chunker splits document text into embeddable chunks.
type Chunker interface {
	Chunk(body string) ([]Chunk, error)
}

type paragraphChunker struct{}

// NewChunker creates the default paragraph-based chunker.
func NewChunker() Chunker {
	return &paragraphChunker{}
}

// Chunk splits the body at blank lines, merges short paragraphs with their
// neighbours and splits over-long ones at sentence boundaries. Empty
// paragraphs are dropped.
func (c *paragraphChunker) Chunk(body string) ([]Chunk, error) {
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	var paragraphs []string
	for _, part := range strings.Split(normalized, "\n\n") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	pieces := splitLongParagraphs(mergeShortParagraphs(paragraphs))

	var chunks []Chunk
	for i, content := range pieces {
		sum := sha256.Sum256([]byte(content))
		chunks = append(chunks, Chunk{
			Ordinal: i,
			Content: content,
			Hash:    hex.EncodeToString(sum[:]),
		})
	}
	return chunks, nil
}

// mergeShortParagraphs folds paragraphs shorter than MinChunkLength into the
// following paragraph (or the preceding one at the end of the document).
func mergeShortParagraphs(paragraphs []string) []string {
	var merged []string
	carry := ""
	for _, p := range paragraphs {
		if carry != "" {
			p = carry + "\n" + p
			carry = ""
		}
		if len(p) < MinChunkLength {
			carry = p
			continue
		}
		merged = append(merged, p)
	}
	if carry != "" {
		if len(merged) == 0 {
			return []string{carry}
		}
		merged[len(merged)-1] += "\n" + carry
	}
	return merged
}

// splitLongParagraphs breaks paragraphs longer than MaxChunkLength at
// sentence ends, falling back to a hard cut for a single huge sentence.
func splitLongParagraphs(paragraphs []string) []string {
	var out []string
	for _, p := range paragraphs {
		for len(p) > MaxChunkLength {
			cut := lastSentenceEnd(p[:MaxChunkLength])
			if cut <= 0 {
				cut = MaxChunkLength
			}
			out = append(out, strings.TrimSpace(p[:cut]))
			p = strings.TrimSpace(p[cut:])
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i > 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	return -1
}
