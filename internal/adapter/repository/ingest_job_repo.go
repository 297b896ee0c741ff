package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"em-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ingestJobRepository struct {
	pool *pgxpool.Pool
}

// NewIngestJobRepository creates a new IngestJobRepository.
func NewIngestJobRepository(pool *pgxpool.Pool) domain.IngestJobRepository {
	return &ingestJobRepository{pool: pool}
}

func (r *ingestJobRepository) Enqueue(ctx context.Context, job *domain.IngestJob) error {
	query := `
		INSERT INTO ingest_jobs (id, election_id, party_id, title, body, status, last_error, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.ElectionID,
		job.PartyID,
		job.Title,
		job.Body,
		job.Status,
		job.LastError,
		job.Attempts,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// AcquireNextJob claims the oldest 'new' job and flips it to 'processing' in a
// single statement so concurrent workers never pick the same job.
func (r *ingestJobRepository) AcquireNextJob(ctx context.Context) (*domain.IngestJob, error) {
	query := `
		WITH next_job AS (
			SELECT id
			FROM ingest_jobs
			WHERE status = 'new'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE ingest_jobs
		SET status = 'processing', attempts = ingest_jobs.attempts + 1, updated_at = $1
		FROM next_job
		WHERE ingest_jobs.id = next_job.id
		RETURNING ingest_jobs.id, ingest_jobs.election_id, ingest_jobs.party_id, ingest_jobs.title,
			ingest_jobs.body, ingest_jobs.status, ingest_jobs.last_error, ingest_jobs.attempts,
			ingest_jobs.created_at, ingest_jobs.updated_at
	`

	var job domain.IngestJob
	err := r.pool.QueryRow(ctx, query, time.Now()).Scan(
		&job.ID,
		&job.ElectionID,
		&job.PartyID,
		&job.Title,
		&job.Body,
		&job.Status,
		&job.LastError,
		&job.Attempts,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire next job: %w", err)
	}
	return &job, nil
}

func (r *ingestJobRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	return r.updateStatus(ctx, id, domain.IngestJobStatusDone, "")
}

func (r *ingestJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.updateStatus(ctx, id, domain.IngestJobStatusFailed, reason)
}

func (r *ingestJobRepository) updateStatus(ctx context.Context, id uuid.UUID, status, lastError string) error {
	query := `
		UPDATE ingest_jobs
		SET status = $1, last_error = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := r.pool.Exec(ctx, query, status, lastError, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}
