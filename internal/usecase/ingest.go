package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"em-backend/internal/domain"

	"github.com/google/uuid"
)

// IngestDocumentsUsecase turns document text into embedded chunks, either
// synchronously or via the ingest job queue.
type IngestDocumentsUsecase struct {
	chunker   domain.Chunker
	store     domain.VectorStore
	elections domain.ElectionRepository
	parties   domain.PartyRepository
	jobs      domain.IngestJobRepository
	tx        domain.TransactionManager
	logger    *slog.Logger
}

func NewIngestDocumentsUsecase(
	chunker domain.Chunker,
	store domain.VectorStore,
	elections domain.ElectionRepository,
	parties domain.PartyRepository,
	jobs domain.IngestJobRepository,
	tx domain.TransactionManager,
	logger *slog.Logger,
) *IngestDocumentsUsecase {
	return &IngestDocumentsUsecase{
		chunker:   chunker,
		store:     store,
		elections: elections,
		parties:   parties,
		jobs:      jobs,
		tx:        tx,
		logger:    logger,
	}
}

// ResolveParty maps a country code and party shortname to the stored party.
func (u *IngestDocumentsUsecase) ResolveParty(ctx context.Context, countryCode, shortname string) (*domain.Election, *domain.Party, error) {
	election, err := u.elections.GetByCountryCode(ctx, countryCode)
	if err != nil {
		return nil, nil, err
	}
	parties, err := u.parties.GetByShortnames(ctx, election.ID, []string{shortname})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve party: %w", err)
	}
	if len(parties) == 0 {
		return nil, nil, fmt.Errorf("%w: unknown party %q", domain.ErrInvalidRequest, shortname)
	}
	return election, &parties[0], nil
}

// IngestDocument chunks the body and inserts the embedded chunks. Uploading a
// document under an existing title replaces the stored chunks atomically.
func (u *IngestDocumentsUsecase) IngestDocument(ctx context.Context, electionID, partyID uuid.UUID, title, body string) error {
	chunks, err := u.chunker.Chunk(body)
	if err != nil {
		return fmt.Errorf("failed to chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return errors.New("document produced no chunks")
	}

	err = u.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := u.store.DeleteChunks(ctx, electionID, partyID, title); err != nil {
			return err
		}
		return u.store.InsertChunks(ctx, electionID, partyID, title, chunks)
	})
	if err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	u.logger.Info("document ingested",
		"party_id", partyID,
		"title", title,
		"chunk_count", len(chunks))
	return nil
}

// Enqueue stores the document for asynchronous ingestion by the worker.
func (u *IngestDocumentsUsecase) Enqueue(ctx context.Context, electionID, partyID uuid.UUID, title, body string) error {
	now := time.Now()
	job := &domain.IngestJob{
		ID:         uuid.New(),
		ElectionID: electionID,
		PartyID:    partyID,
		Title:      title,
		Body:       body,
		Status:     domain.IngestJobStatusNew,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := u.jobs.Enqueue(ctx, job); err != nil {
		return err
	}
	u.logger.Info("ingest job enqueued", "job_id", job.ID, "title", title)
	return nil
}

// ProcessNextJob claims and processes one queued job. It returns false when
// the queue is empty. A failing job is marked failed; the error is not
// propagated so the worker keeps polling.
func (u *IngestDocumentsUsecase) ProcessNextJob(ctx context.Context) (bool, error) {
	job, err := u.jobs.AcquireNextJob(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := u.IngestDocument(ctx, job.ElectionID, job.PartyID, job.Title, job.Body); err != nil {
		u.logger.Warn("ingest job failed", "job_id", job.ID, "error", err.Error())
		if markErr := u.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			u.logger.Error("failed to mark job failed", "job_id", job.ID, "error", markErr.Error())
		}
		return true, nil
	}

	if err := u.jobs.MarkDone(ctx, job.ID); err != nil {
		u.logger.Error("failed to mark job done", "job_id", job.ID, "error", err.Error())
	}
	return true, nil
}
