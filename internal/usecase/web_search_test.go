package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"em-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestWebSearchDecider_Positive(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("ChatStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			out := args.Get(3).(*webSearchDecision)
			out.UseWebSearch = true
			out.Reason = "question asks about current polls"
		}).Return(nil)

	d := NewWebSearchDecider(llm, time.Second, testLogger())
	conversation := domain.Conversation{domain.NewUserMessage("who leads the polls?")}

	assert.True(t, d.ShouldSearch(context.Background(), conversation, StrategyGeneric, nil))
}

func TestWebSearchDecider_FailureDegradesToSkip(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("ChatStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("deadline exceeded"))

	d := NewWebSearchDecider(llm, time.Second, testLogger())
	conversation := domain.Conversation{domain.NewUserMessage("who leads the polls?")}

	assert.False(t, d.ShouldSearch(context.Background(), conversation, StrategySingleParty, []domain.Party{testParty("spd")}))
}

func TestWebSearchDecider_TimeoutDegradesToSkip(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("ChatStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).Return(context.DeadlineExceeded)

	d := NewWebSearchDecider(llm, 10*time.Millisecond, testLogger())
	conversation := domain.Conversation{domain.NewUserMessage("who leads the polls?")}

	start := time.Now()
	assert.False(t, d.ShouldSearch(context.Background(), conversation, StrategyGeneric, nil))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSearchQueryBuilder_StripsQuotesAndWhitespace(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("Chat", mock.Anything, mock.Anything).Return("  \"SPD housing program 2025\"  ", nil)

	b := NewSearchQueryBuilder(llm, testLogger())
	conversation := domain.Conversation{domain.NewUserMessage("housing?")}
	lang, _ := domain.ParseLanguage("en")

	query, ok := b.Build(context.Background(), conversation, StrategySingleParty, []domain.Party{testParty("spd")}, testElection(), lang)
	assert.True(t, ok)
	assert.Equal(t, "SPD housing program 2025", query)
}

func TestSearchQueryBuilder_RejectsMultiLine(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("Chat", mock.Anything, mock.Anything).Return("first query\nsecond query", nil)

	b := NewSearchQueryBuilder(llm, testLogger())
	conversation := domain.Conversation{domain.NewUserMessage("housing?")}
	lang, _ := domain.ParseLanguage("en")

	_, ok := b.Build(context.Background(), conversation, StrategyComparison, []domain.Party{testParty("spd"), testParty("cdu")}, testElection(), lang)
	assert.False(t, ok)
}

func TestSearchQueryBuilder_RejectsEmpty(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("Chat", mock.Anything, mock.Anything).Return("\"\"", nil)

	b := NewSearchQueryBuilder(llm, testLogger())
	conversation := domain.Conversation{domain.NewUserMessage("housing?")}
	lang, _ := domain.ParseLanguage("en")

	_, ok := b.Build(context.Background(), conversation, StrategyGeneric, nil, testElection(), lang)
	assert.False(t, ok)
}

func TestSearchQueryBuilder_ModelFailureSkips(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("Chat", mock.Anything, mock.Anything).Return("", errors.New("model down"))

	b := NewSearchQueryBuilder(llm, testLogger())
	conversation := domain.Conversation{domain.NewUserMessage("housing?")}
	lang, _ := domain.ParseLanguage("en")

	_, ok := b.Build(context.Background(), conversation, StrategyGeneric, nil, testElection(), lang)
	assert.False(t, ok)
}
