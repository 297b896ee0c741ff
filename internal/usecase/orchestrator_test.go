package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"em-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func collectChunks(ch <-chan domain.AnyChunk) []domain.AnyChunk {
	var out []domain.AnyChunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func fillMetadata(title string, followUps ...string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		if meta, ok := args.Get(3).(*conversationMetadata); ok {
			meta.Title = title
			meta.FollowUpQuestions = followUps
		}
	}
}

func repoFixture(election *domain.Election, parties ...domain.Party) (*mockElectionRepository, *mockPartyRepository) {
	elections := new(mockElectionRepository)
	elections.On("GetByCountryCode", mock.Anything, election.CountryCode).Return(election, nil)
	partyRepo := new(mockPartyRepository)
	partyRepo.On("GetByShortnames", mock.Anything, election.ID, mock.Anything).Return(parties, nil)
	return elections, partyRepo
}

func newOrchestrator(
	elections domain.ElectionRepository,
	parties domain.PartyRepository,
	llm domain.LLMClient,
	retriever Retriever,
	web domain.WebSearchClient,
) *Orchestrator {
	return NewOrchestrator(elections, parties, llm, retriever, skipSearchDecider(), noQueryBuilder(), web, 16, time.Minute, testLogger())
}

func englishLang(t *testing.T) domain.Language {
	t.Helper()
	lang, err := domain.ParseLanguage("en")
	require.NoError(t, err)
	return lang
}

func TestOrchestrator_Stream_SinglePartyOrdering(t *testing.T) {
	election := testElection()
	spd := testParty("spd")
	spd.ElectionID = election.ID
	elections, partyRepo := repoFixture(election, spd)

	docs := makeChunks(2)
	retriever := retrieverFunc(func(context.Context, *domain.Election, domain.Party, domain.Conversation) ([]domain.DocumentChunk, error) {
		return docs, nil
	})

	llm := new(mockLLMClient)
	chunkCh, errCh := tokenStream("The SPD ", "plans to ", "build housing.")
	llm.On("ChatStream", mock.Anything, mock.Anything).Return(chunkCh, errCh, nil)
	llm.On("ChatStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(fillMetadata("Housing policy", "What about rents?")).Return(nil)

	o := newOrchestrator(elections, partyRepo, llm, retriever, new(mockWebSearchClient))

	events, err := o.Stream(context.Background(), englishLang(t), "de", Question{
		Question:          "What is the housing policy?",
		SelectedParties:   []string{"spd"},
		UseDatabaseSearch: true,
	})
	require.NoError(t, err)
	chunks := collectChunks(events)

	var tokenText strings.Builder
	var order []string
	for _, c := range chunks {
		switch v := c.(type) {
		case domain.PartyTokenChunk:
			assert.Equal(t, "spd", v.Party)
			tokenText.WriteString(v.Content)
			order = append(order, "token")
		case domain.PartySourcesChunk:
			assert.Equal(t, "spd", v.Party)
			assert.Len(t, v.Documents, 2)
			order = append(order, "sources")
		case domain.PartyMessageChunk:
			assert.Equal(t, "The SPD plans to build housing.", v.Message.Content)
			order = append(order, "message")
		case domain.TitleChunk:
			assert.Equal(t, "Housing policy", v.Title)
			order = append(order, "title")
		case domain.FollowUpQuestionsChunk:
			assert.Equal(t, []string{"What about rents?"}, v.FollowUpQuestions)
			order = append(order, "follow_up")
		case domain.ErrorChunk:
			t.Fatalf("unexpected error chunk: %s", v.Reason)
		}
	}

	assert.Equal(t, "The SPD plans to build housing.", tokenText.String())
	assert.Equal(t, []string{"token", "token", "token", "sources", "message", "title", "follow_up"}, order)
}

func TestRunTasks_StrictSubsetFailure(t *testing.T) {
	o := &Orchestrator{logger: testLogger()}

	mkTask := func(owner string, fail bool) streamTask {
		return streamTask{owner: owner, run: func(ctx context.Context, emit func(domain.AnyChunk) bool) error {
			emit(domain.NewPartyTokenChunk(owner, "text"))
			if fail {
				return errors.New("generator blew up")
			}
			emit(domain.NewPartyMessageChunk(owner, domain.NewAssistantMessage("text")))
			return nil
		}}
	}
	tasks := []streamTask{mkTask("a", false), mkTask("b", true), mkTask("c", false)}

	out := make(chan domain.AnyChunk, 64)
	failures := o.runTasks(context.Background(), out, tasks)
	close(out)

	assert.Equal(t, map[string]string{"b": "generator blew up"}, failures)

	terminal := map[string]bool{}
	errorOwners := map[string]bool{}
	for c := range out {
		switch v := c.(type) {
		case domain.PartyMessageChunk:
			terminal[v.Party] = true
		case domain.ErrorChunk:
			errorOwners[v.Owner] = true
		}
	}
	assert.True(t, terminal["a"])
	assert.True(t, terminal["c"])
	assert.False(t, terminal["b"])
	assert.Equal(t, map[string]bool{"b": true}, errorOwners)
}

func TestOrchestrator_Stream_TotalFailureEmitsPipelineError(t *testing.T) {
	election := testElection()
	spd := testParty("spd")
	elections, partyRepo := repoFixture(election, spd)

	retriever := retrieverFunc(func(context.Context, *domain.Election, domain.Party, domain.Conversation) ([]domain.DocumentChunk, error) {
		return nil, errors.New("store down")
	})

	llm := new(mockLLMClient)
	llm.On("ChatStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("metadata not needed"))

	o := newOrchestrator(elections, partyRepo, llm, retriever, new(mockWebSearchClient))

	events, err := o.Stream(context.Background(), englishLang(t), "de", Question{
		Question:          "Anything?",
		SelectedParties:   []string{"spd"},
		UseDatabaseSearch: true,
	})
	require.NoError(t, err)
	chunks := collectChunks(events)

	require.NotEmpty(t, chunks)
	last, ok := chunks[len(chunks)-1].(domain.ErrorChunk)
	require.True(t, ok)
	assert.Equal(t, domain.OwnerPipeline, last.Owner)

	var partyError bool
	for _, c := range chunks {
		if e, ok := c.(domain.ErrorChunk); ok && e.Owner == "spd" {
			partyError = true
		}
	}
	assert.True(t, partyError)
}

func TestOrchestrator_Query_ComparisonToleratesPartialRetrievalFailure(t *testing.T) {
	election := testElection()
	spd := testParty("spd")
	cdu := testParty("cdu")
	elections, partyRepo := repoFixture(election, spd, cdu)

	shared := domain.DocumentChunk{ID: uuid.New(), Title: "Shared", Text: "common ground"}
	other := domain.DocumentChunk{ID: uuid.New(), Title: "Program", Text: "spd only"}
	retriever := retrieverFunc(func(_ context.Context, _ *domain.Election, party domain.Party, _ domain.Conversation) ([]domain.DocumentChunk, error) {
		if party.Shortname == "cdu" {
			return nil, errors.New("store down for cdu")
		}
		return []domain.DocumentChunk{shared, shared, other}, nil
	})

	llm := new(mockLLMClient)
	chunkCh, errCh := tokenStream("Both parties ", "differ on housing.")
	llm.On("ChatStream", mock.Anything, mock.Anything).Return(chunkCh, errCh, nil)
	llm.On("ChatStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(fillMetadata("Housing comparison")).Return(nil)

	o := newOrchestrator(elections, partyRepo, llm, retriever, new(mockWebSearchClient))

	answer, err := o.Query(context.Background(), englishLang(t), "de", Question{
		Question:          "Compare housing policy",
		SelectedParties:   []string{"spd", "cdu"},
		UseDatabaseSearch: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Both parties differ on housing.", answer.ComparisonAnswer)
	assert.Equal(t, "Housing comparison", answer.Title)
	require.Len(t, answer.Sources["spd"], 2)
	assert.Equal(t, shared.ID, answer.Sources["spd"][0].ID)
	assert.Equal(t, other.ID, answer.Sources["spd"][1].ID)
	assert.Empty(t, answer.Sources["cdu"])
	require.Contains(t, answer.FailedParties, "cdu")
	assert.Contains(t, answer.FailedParties["cdu"], "retrieval failed")
	assert.NotContains(t, answer.FailedParties, "spd")
}

func TestOrchestrator_Query_DegradedComparisonNotCached(t *testing.T) {
	election := testElection()
	spd := testParty("spd")
	cdu := testParty("cdu")
	elections, partyRepo := repoFixture(election, spd, cdu)

	var retrieveCalls atomic.Int32
	retriever := retrieverFunc(func(_ context.Context, _ *domain.Election, party domain.Party, _ domain.Conversation) ([]domain.DocumentChunk, error) {
		retrieveCalls.Add(1)
		if party.Shortname == "cdu" {
			return nil, errors.New("store down for cdu")
		}
		return makeChunks(1), nil
	})

	llm := new(mockLLMClient)
	first, firstErrs := tokenStream("Take one.")
	second, secondErrs := tokenStream("Take two.")
	llm.On("ChatStream", mock.Anything, mock.Anything).Return(first, firstErrs, nil).Once()
	llm.On("ChatStream", mock.Anything, mock.Anything).Return(second, secondErrs, nil).Once()
	llm.On("ChatStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("no metadata"))

	o := newOrchestrator(elections, partyRepo, llm, retriever, new(mockWebSearchClient))

	q := Question{
		Question:          "Compare housing policy",
		SelectedParties:   []string{"spd", "cdu"},
		UseDatabaseSearch: true,
	}
	answer, err := o.Query(context.Background(), englishLang(t), "de", q)
	require.NoError(t, err)
	require.Contains(t, answer.FailedParties, "cdu")

	again, err := o.Query(context.Background(), englishLang(t), "de", q)
	require.NoError(t, err)
	require.Contains(t, again.FailedParties, "cdu")

	assert.Equal(t, "Take two.", again.ComparisonAnswer)
	assert.Equal(t, int32(4), retrieveCalls.Load())
}

func TestOrchestrator_ComparisonSourcesKeepSharedChunkPerParty(t *testing.T) {
	election := testElection()
	spd := testParty("spd")
	cdu := testParty("cdu")
	elections, partyRepo := repoFixture(election, spd, cdu)

	shared := domain.DocumentChunk{ID: uuid.New(), Title: "Shared", Text: "common ground"}
	retriever := retrieverFunc(func(_ context.Context, _ *domain.Election, party domain.Party, _ domain.Conversation) ([]domain.DocumentChunk, error) {
		return []domain.DocumentChunk{shared}, nil
	})

	llm := new(mockLLMClient)
	chunkCh, errCh := tokenStream("Answer.")
	llm.On("ChatStream", mock.Anything, mock.Anything).Return(chunkCh, errCh, nil)
	llm.On("ChatStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("no metadata"))

	o := newOrchestrator(elections, partyRepo, llm, retriever, new(mockWebSearchClient))

	answer, err := o.Query(context.Background(), englishLang(t), "de", Question{
		Question:          "Compare housing policy",
		SelectedParties:   []string{"spd", "cdu"},
		UseDatabaseSearch: true,
	})
	require.NoError(t, err)

	require.Len(t, answer.Sources["spd"], 1)
	require.Len(t, answer.Sources["cdu"], 1)
	assert.Equal(t, shared.ID, answer.Sources["spd"][0].ID)
	assert.Equal(t, shared.ID, answer.Sources["cdu"][0].ID)
}

func TestOrchestrator_Query_PipelineExhausted(t *testing.T) {
	election := testElection()
	spd := testParty("spd")
	cdu := testParty("cdu")
	elections, partyRepo := repoFixture(election, spd, cdu)

	retriever := retrieverFunc(func(context.Context, *domain.Election, domain.Party, domain.Conversation) ([]domain.DocumentChunk, error) {
		return nil, errors.New("store down")
	})

	llm := new(mockLLMClient)
	llm.On("ChatStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("no metadata"))

	o := newOrchestrator(elections, partyRepo, llm, retriever, new(mockWebSearchClient))

	_, err := o.Query(context.Background(), englishLang(t), "de", Question{
		Question:          "Compare housing policy",
		SelectedParties:   []string{"spd", "cdu"},
		UseDatabaseSearch: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPipelineExhausted))
}

func TestOrchestrator_Stream_UnknownPartyRejectedSynchronously(t *testing.T) {
	election := testElection()
	spd := testParty("spd")
	elections, partyRepo := repoFixture(election, spd)

	o := newOrchestrator(elections, partyRepo, new(mockLLMClient), retrieverFunc(nil), new(mockWebSearchClient))

	_, err := o.Stream(context.Background(), englishLang(t), "de", Question{
		Question:        "Anything?",
		SelectedParties: []string{"spd", "ghost"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}

func TestOrchestrator_Stream_EmptyQuestionRejected(t *testing.T) {
	o := newOrchestrator(new(mockElectionRepository), new(mockPartyRepository), new(mockLLMClient), retrieverFunc(nil), new(mockWebSearchClient))

	_, err := o.Stream(context.Background(), englishLang(t), "de", Question{
		Question:        "",
		SelectedParties: []string{"spd"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}

func TestOrchestrator_CancellationStopsSubTasks(t *testing.T) {
	election := testElection()
	spd := testParty("spd")
	elections, partyRepo := repoFixture(election, spd)

	var retrieveCalls atomic.Int32
	retriever := retrieverFunc(func(ctx context.Context, _ *domain.Election, _ domain.Party, _ domain.Conversation) ([]domain.DocumentChunk, error) {
		retrieveCalls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	llm := new(mockLLMClient)
	llm.On("ChatStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).Return(context.Canceled)

	o := newOrchestrator(elections, partyRepo, llm, retriever, new(mockWebSearchClient))

	ctx, cancel := context.WithCancel(context.Background())
	events, err := o.Stream(ctx, englishLang(t), "de", Question{
		Question:          "Anything?",
		SelectedParties:   []string{"spd"},
		UseDatabaseSearch: true,
	})
	require.NoError(t, err)

	cancel()
	collectChunks(events)

	callsAfterClose := retrieveCalls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, callsAfterClose, retrieveCalls.Load())
	assert.Equal(t, int32(1), callsAfterClose)
	llm.AssertNotCalled(t, "ChatStream", mock.Anything, mock.Anything)
}

func TestOrchestrator_DeclinedWebSearchNeverCallsProvider(t *testing.T) {
	election := testElection()
	spd := testParty("spd")
	elections, partyRepo := repoFixture(election, spd)

	retriever := retrieverFunc(func(context.Context, *domain.Election, domain.Party, domain.Conversation) ([]domain.DocumentChunk, error) {
		return makeChunks(1), nil
	})

	llm := new(mockLLMClient)
	chunkCh, errCh := tokenStream("Answer.")
	llm.On("ChatStream", mock.Anything, mock.Anything).Return(chunkCh, errCh, nil)
	llm.On("ChatStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("no metadata"))

	web := new(mockWebSearchClient)
	o := newOrchestrator(elections, partyRepo, llm, retriever, web)

	answer, err := o.Query(context.Background(), englishLang(t), "de", Question{
		Question:          "Anything?",
		SelectedParties:   []string{"spd"},
		UseWebSearch:      true,
		UseDatabaseSearch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Answer.", answer.PartyAnswers["spd"])
	web.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestOrchestrator_Query_CachesCleanAnswers(t *testing.T) {
	election := testElection()
	spd := testParty("spd")
	elections, partyRepo := repoFixture(election, spd)

	retriever := retrieverFunc(func(context.Context, *domain.Election, domain.Party, domain.Conversation) ([]domain.DocumentChunk, error) {
		return nil, nil
	})

	llm := new(mockLLMClient)
	chunkCh, errCh := tokenStream("Answer.")
	llm.On("ChatStream", mock.Anything, mock.Anything).Return(chunkCh, errCh, nil).Once()
	llm.On("ChatStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("no metadata"))

	o := newOrchestrator(elections, partyRepo, llm, retriever, new(mockWebSearchClient))

	q := Question{Question: "Anything?", SelectedParties: []string{"spd"}, UseDatabaseSearch: true}
	first, err := o.Query(context.Background(), englishLang(t), "de", q)
	require.NoError(t, err)

	second, err := o.Query(context.Background(), englishLang(t), "de", q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, len(elections.Calls))
}
