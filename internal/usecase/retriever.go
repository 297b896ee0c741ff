package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"em-backend/internal/domain"
)

// Retriever fetches the document chunks grounding one party's answer.
type Retriever interface {
	Retrieve(ctx context.Context, election *domain.Election, party domain.Party, conversation domain.Conversation) ([]domain.DocumentChunk, error)
}

type rerankResult struct {
	Indices []int `json:"indices"`
}

type documentRetriever struct {
	llm       domain.LLMClient
	store     domain.VectorStore
	maxChunks int
	logger    *slog.Logger
}

// NewDocumentRetriever creates the rewrite/fetch/rerank retrieval pipeline.
// maxChunks bounds the final result.
func NewDocumentRetriever(llm domain.LLMClient, store domain.VectorStore, maxChunks int, logger *slog.Logger) Retriever {
	return &documentRetriever{llm: llm, store: store, maxChunks: maxChunks, logger: logger}
}

// Retrieve rewrites the conversation into a retrieval query, fetches
// candidates scoped to the party, and reranks them with the model. Rewrite
// and rerank failures degrade; only a failing candidate fetch is an error.
func (r *documentRetriever) Retrieve(ctx context.Context, election *domain.Election, party domain.Party, conversation domain.Conversation) ([]domain.DocumentChunk, error) {
	query := r.rewriteQuery(ctx, conversation, party)

	candidates, err := r.store.RetrieveChunks(ctx, election.ID, party.ID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidates for %s: %w", party.Shortname, err)
	}
	if len(candidates) == 0 {
		return []domain.DocumentChunk{}, nil
	}

	return r.rerank(ctx, conversation, candidates, party), nil
}

func (r *documentRetriever) rewriteQuery(ctx context.Context, conversation domain.Conversation, party domain.Party) string {
	rewritten, err := r.llm.Chat(ctx, buildRewritePrompt(conversation, party))
	if err != nil {
		r.logger.Warn("query rewrite failed, using raw question",
			"party", party.Shortname,
			"error", err.Error())
		return conversation.LastUserMessage().Content
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return conversation.LastUserMessage().Content
	}
	return rewritten
}

// rerank asks the model for the most relevant candidate indices. Out-of-range
// and repeated indices are dropped, the rest truncated to maxChunks. A failed
// or empty rerank falls back to the first maxChunks candidates in retrieval
// order.
func (r *documentRetriever) rerank(ctx context.Context, conversation domain.Conversation, candidates []domain.DocumentChunk, party domain.Party) []domain.DocumentChunk {
	var result rerankResult
	err := r.llm.ChatStructured(ctx, buildRerankPrompt(conversation, candidates, r.maxChunks), rerankSchema, &result)
	if err != nil {
		r.logger.Warn("rerank failed, keeping retrieval order",
			"party", party.Shortname,
			"error", err.Error())
		return truncateChunks(candidates, r.maxChunks)
	}

	seen := make(map[int]bool, len(result.Indices))
	selected := make([]domain.DocumentChunk, 0, r.maxChunks)
	for _, idx := range result.Indices {
		if idx < 0 || idx >= len(candidates) || seen[idx] {
			continue
		}
		seen[idx] = true
		selected = append(selected, candidates[idx])
		if len(selected) == r.maxChunks {
			break
		}
	}
	if len(selected) == 0 {
		r.logger.Warn("rerank returned no usable indices, keeping retrieval order",
			"party", party.Shortname,
			"index_count", len(result.Indices))
		return truncateChunks(candidates, r.maxChunks)
	}
	return selected
}

func truncateChunks(chunks []domain.DocumentChunk, limit int) []domain.DocumentChunk {
	if len(chunks) > limit {
		return chunks[:limit]
	}
	return chunks
}
