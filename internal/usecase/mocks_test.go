package usecase

import (
	"context"
	"log/slog"
	"os"

	"em-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// tokenStream builds a closed, pre-filled LLM stream for mocks.
func tokenStream(tokens ...string) (<-chan domain.LLMStreamChunk, <-chan error) {
	chunks := make(chan domain.LLMStreamChunk, len(tokens)+1)
	errs := make(chan error)
	for _, t := range tokens {
		chunks <- domain.LLMStreamChunk{Content: t}
	}
	chunks <- domain.LLMStreamChunk{Done: true}
	close(chunks)
	close(errs)
	return chunks, errs
}

// failingStream builds a stream that errors out after the given tokens.
func failingStream(err error, tokens ...string) (<-chan domain.LLMStreamChunk, <-chan error) {
	chunks := make(chan domain.LLMStreamChunk, len(tokens))
	errs := make(chan error, 1)
	for _, t := range tokens {
		chunks <- domain.LLMStreamChunk{Content: t}
	}
	close(chunks)
	errs <- err
	close(errs)
	return chunks, errs
}

type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) Chat(ctx context.Context, messages []domain.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

func (m *mockLLMClient) ChatStream(ctx context.Context, messages []domain.Message) (<-chan domain.LLMStreamChunk, <-chan error, error) {
	args := m.Called(ctx, messages)
	var chunks <-chan domain.LLMStreamChunk
	if v := args.Get(0); v != nil {
		chunks = v.(<-chan domain.LLMStreamChunk)
	}
	var errs <-chan error
	if v := args.Get(1); v != nil {
		errs = v.(<-chan error)
	}
	return chunks, errs, args.Error(2)
}

func (m *mockLLMClient) ChatStructured(ctx context.Context, messages []domain.Message, format domain.StructuredFormat, out any) error {
	args := m.Called(ctx, messages, format, out)
	return args.Error(0)
}

func (m *mockLLMClient) Version() string { return "mock-llm" }

type mockVectorStore struct {
	mock.Mock
}

func (m *mockVectorStore) Ready(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockVectorStore) RetrieveChunks(ctx context.Context, electionID, partyID uuid.UUID, query string) ([]domain.DocumentChunk, error) {
	args := m.Called(ctx, electionID, partyID, query)
	var chunks []domain.DocumentChunk
	if v := args.Get(0); v != nil {
		chunks = v.([]domain.DocumentChunk)
	}
	return chunks, args.Error(1)
}

func (m *mockVectorStore) InsertChunks(ctx context.Context, electionID, partyID uuid.UUID, title string, chunks []domain.Chunk) error {
	args := m.Called(ctx, electionID, partyID, title, chunks)
	return args.Error(0)
}

func (m *mockVectorStore) DeleteChunks(ctx context.Context, electionID, partyID uuid.UUID, title string) error {
	args := m.Called(ctx, electionID, partyID, title)
	return args.Error(0)
}

// passthroughTx runs the function without a real transaction.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockWebSearchClient struct {
	mock.Mock
}

func (m *mockWebSearchClient) Search(ctx context.Context, query string) ([]domain.WebDocument, error) {
	args := m.Called(ctx, query)
	var docs []domain.WebDocument
	if v := args.Get(0); v != nil {
		docs = v.([]domain.WebDocument)
	}
	return docs, args.Error(1)
}

type mockElectionRepository struct {
	mock.Mock
}

func (m *mockElectionRepository) GetByCountryCode(ctx context.Context, countryCode string) (*domain.Election, error) {
	args := m.Called(ctx, countryCode)
	var e *domain.Election
	if v := args.Get(0); v != nil {
		e = v.(*domain.Election)
	}
	return e, args.Error(1)
}

type mockPartyRepository struct {
	mock.Mock
}

func (m *mockPartyRepository) GetByShortnames(ctx context.Context, electionID uuid.UUID, shortnames []string) ([]domain.Party, error) {
	args := m.Called(ctx, electionID, shortnames)
	var parties []domain.Party
	if v := args.Get(0); v != nil {
		parties = v.([]domain.Party)
	}
	return parties, args.Error(1)
}

func (m *mockPartyRepository) ListByElection(ctx context.Context, electionID uuid.UUID) ([]domain.Party, error) {
	args := m.Called(ctx, electionID)
	var parties []domain.Party
	if v := args.Get(0); v != nil {
		parties = v.([]domain.Party)
	}
	return parties, args.Error(1)
}

type mockIngestJobRepository struct {
	mock.Mock
}

func (m *mockIngestJobRepository) Enqueue(ctx context.Context, job *domain.IngestJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *mockIngestJobRepository) AcquireNextJob(ctx context.Context) (*domain.IngestJob, error) {
	args := m.Called(ctx)
	var job *domain.IngestJob
	if v := args.Get(0); v != nil {
		job = v.(*domain.IngestJob)
	}
	return job, args.Error(1)
}

func (m *mockIngestJobRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockIngestJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

// Function adapters for behavioral tests where mock.Mock call matching gets
// in the way.

type retrieverFunc func(ctx context.Context, election *domain.Election, party domain.Party, conversation domain.Conversation) ([]domain.DocumentChunk, error)

func (f retrieverFunc) Retrieve(ctx context.Context, election *domain.Election, party domain.Party, conversation domain.Conversation) ([]domain.DocumentChunk, error) {
	return f(ctx, election, party, conversation)
}

type deciderFunc func(ctx context.Context, conversation domain.Conversation, strategy SearchStrategy, parties []domain.Party) bool

func (f deciderFunc) ShouldSearch(ctx context.Context, conversation domain.Conversation, strategy SearchStrategy, parties []domain.Party) bool {
	return f(ctx, conversation, strategy, parties)
}

type queryBuilderFunc func(ctx context.Context, conversation domain.Conversation, strategy SearchStrategy, parties []domain.Party, election *domain.Election, language domain.Language) (string, bool)

func (f queryBuilderFunc) Build(ctx context.Context, conversation domain.Conversation, strategy SearchStrategy, parties []domain.Party, election *domain.Election, language domain.Language) (string, bool) {
	return f(ctx, conversation, strategy, parties, election, language)
}

func skipSearchDecider() SearchDecider {
	return deciderFunc(func(context.Context, domain.Conversation, SearchStrategy, []domain.Party) bool {
		return false
	})
}

func noQueryBuilder() SearchQueryBuilder {
	return queryBuilderFunc(func(context.Context, domain.Conversation, SearchStrategy, []domain.Party, *domain.Election, domain.Language) (string, bool) {
		return "", false
	})
}
