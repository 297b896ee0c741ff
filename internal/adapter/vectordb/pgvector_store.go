package vectordb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"em-backend/internal/adapter/repository"
	"em-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

type pgVectorStore struct {
	pool       *pgxpool.Pool
	encoder    domain.VectorEncoder
	candidates int
	logger     *slog.Logger
}

type dbExecutor interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func (s *pgVectorStore) getExecutor(ctx context.Context) dbExecutor {
	if tx := repository.ExtractTx(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// NewPgVectorStore creates a VectorStore backed by pgvector. candidates is
// the number of chunks a similarity query returns before reranking.
func NewPgVectorStore(pool *pgxpool.Pool, encoder domain.VectorEncoder, candidates int, logger *slog.Logger) domain.VectorStore {
	return &pgVectorStore{
		pool:       pool,
		encoder:    encoder,
		candidates: candidates,
		logger:     logger,
	}
}

func (s *pgVectorStore) Ready(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("vector store not ready: %w", err)
	}
	return nil
}

func (s *pgVectorStore) RetrieveChunks(ctx context.Context, electionID, partyID uuid.UUID, query string) ([]domain.DocumentChunk, error) {
	embeddings, err := s.encoder.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("encoder returned no embedding")
	}

	sql := `
		SELECT id, party_id, title, content, 1 - (embedding <=> $1) AS score
		FROM document_chunks
		WHERE election_id = $2 AND party_id = $3
		ORDER BY embedding <=> $1
		LIMIT $4
	`
	rows, err := s.getExecutor(ctx).Query(ctx, sql, pgvector.NewVector(embeddings[0]), electionID, partyID, s.candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.DocumentChunk
	for rows.Next() {
		var c domain.DocumentChunk
		if err := rows.Scan(&c.ID, &c.PartyID, &c.Title, &c.Text, &c.Score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	s.logger.Debug("retrieved candidate chunks",
		"party_id", partyID,
		"count", len(chunks))
	return chunks, nil
}

func (s *pgVectorStore) InsertChunks(ctx context.Context, electionID, partyID uuid.UUID, title string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := s.encoder.Encode(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to encode chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("encoder returned %d embeddings for %d chunks", len(embeddings), len(chunks))
	}

	now := time.Now()
	rows := make([][]interface{}, len(chunks))
	for i, c := range chunks {
		rows[i] = []interface{}{
			uuid.New(),
			electionID,
			partyID,
			title,
			c.Ordinal,
			c.Content,
			c.Hash,
			pgvector.NewVector(embeddings[i]),
			now,
		}
	}

	_, err = s.getExecutor(ctx).CopyFrom(
		ctx,
		pgx.Identifier{"document_chunks"},
		[]string{"id", "election_id", "party_id", "title", "ordinal", "content", "content_hash", "embedding", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk insert chunks: %w", err)
	}

	s.logger.Info("inserted document chunks",
		"party_id", partyID,
		"title", title,
		"count", len(chunks))
	return nil
}

func (s *pgVectorStore) DeleteChunks(ctx context.Context, electionID, partyID uuid.UUID, title string) error {
	sql := `
		DELETE FROM document_chunks
		WHERE election_id = $1 AND party_id = $2 AND title = $3
	`
	tag, err := s.getExecutor(ctx).Exec(ctx, sql, electionID, partyID, title)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if tag.RowsAffected() > 0 {
		s.logger.Info("replaced document chunks",
			"party_id", partyID,
			"title", title,
			"removed", tag.RowsAffected())
	}
	return nil
}
