package domain

import (
	"context"

	"github.com/google/uuid"
)

// VectorEncoder turns texts into embedding vectors.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the retrieval backend capability: scoped candidate fetch for
// the retriever plus chunk ingestion for uploads. Ranking beyond the store's
// own similarity order is the retriever's concern.
type VectorStore interface {
	// Ready reports whether the backend can serve queries.
	Ready(ctx context.Context) error

	// RetrieveChunks returns candidate chunks for the query scoped to one
	// election and party, most similar first. An empty result is not an error.
	RetrieveChunks(ctx context.Context, electionID, partyID uuid.UUID, query string) ([]DocumentChunk, error)

	// InsertChunks stores document chunks for one party's source document.
	InsertChunks(ctx context.Context, electionID, partyID uuid.UUID, title string, chunks []Chunk) error

	// DeleteChunks removes all stored chunks of one party's source document.
	DeleteChunks(ctx context.Context, electionID, partyID uuid.UUID, title string) error
}

// WebSearchClient is the live web-search capability.
type WebSearchClient interface {
	Search(ctx context.Context, query string) ([]WebDocument, error)
}
