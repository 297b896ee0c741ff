package worker

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"em-backend/internal/domain"
	"em-backend/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type stubJobRepo struct {
	mu    sync.Mutex
	calls int
}

func (s *stubJobRepo) Enqueue(context.Context, *domain.IngestJob) error { return nil }

func (s *stubJobRepo) AcquireNextJob(context.Context) (*domain.IngestJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil, nil
}

func (s *stubJobRepo) MarkDone(context.Context, uuid.UUID) error           { return nil }
func (s *stubJobRepo) MarkFailed(context.Context, uuid.UUID, string) error { return nil }

func (s *stubJobRepo) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubVectorStore struct{}

func (stubVectorStore) Ready(context.Context) error { return nil }

func (stubVectorStore) RetrieveChunks(context.Context, uuid.UUID, uuid.UUID, string) ([]domain.DocumentChunk, error) {
	return nil, nil
}

func (stubVectorStore) InsertChunks(context.Context, uuid.UUID, uuid.UUID, string, []domain.Chunk) error {
	return nil
}

func (stubVectorStore) DeleteChunks(context.Context, uuid.UUID, uuid.UUID, string) error {
	return nil
}

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestIngestWorker_PollsUntilStopped(t *testing.T) {
	repo := &stubJobRepo{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	ingest := usecase.NewIngestDocumentsUsecase(domain.NewChunker(), stubVectorStore{}, nil, nil, repo, passthroughTx{}, logger)

	w := NewIngestWorker(ingest, 5*time.Millisecond, logger)
	w.Start()
	time.Sleep(50 * time.Millisecond)
	w.Stop()
	time.Sleep(20 * time.Millisecond)

	polled := repo.callCount()
	assert.Greater(t, polled, 0)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, polled, repo.callCount())
}

func TestIngestWorker_BackoffGrowsAndCaps(t *testing.T) {
	w := &IngestWorker{}

	b := w.nextBackoff(0)
	assert.Equal(t, initialBackoff, b)

	for i := 0; i < 20; i++ {
		b = w.nextBackoff(b)
	}
	assert.Equal(t, maxBackoff, b)
}
