package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PartyRepository resolves parties for one election.
type PartyRepository interface {
	// GetByShortnames returns the parties matching the given shortnames within
	// the election, in database order. Missing shortnames are simply absent
	// from the result.
	GetByShortnames(ctx context.Context, electionID uuid.UUID, shortnames []string) ([]Party, error)

	// ListByElection returns all parties of the election.
	ListByElection(ctx context.Context, electionID uuid.UUID) ([]Party, error)
}

// ElectionRepository resolves the election serving one country.
type ElectionRepository interface {
	// GetByCountryCode returns the active election for a country.
	GetByCountryCode(ctx context.Context, countryCode string) (*Election, error)
}

// IngestJob is a queued document-ingest task processed by the worker.
type IngestJob struct {
	ID          uuid.UUID
	ElectionID  uuid.UUID
	PartyID     uuid.UUID
	Title       string
	Body        string
	Status      string
	LastError   string
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Ingest job statuses.
const (
	IngestJobStatusNew        = "new"
	IngestJobStatusProcessing = "processing"
	IngestJobStatusDone       = "done"
	IngestJobStatusFailed     = "failed"
)

// IngestJobRepository is the queue behind asynchronous document ingestion.
type IngestJobRepository interface {
	Enqueue(ctx context.Context, job *IngestJob) error

	// AcquireNextJob claims the oldest runnable job, or returns nil when the
	// queue is empty.
	AcquireNextJob(ctx context.Context) (*IngestJob, error)

	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// TransactionManager runs a function inside one database transaction.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
