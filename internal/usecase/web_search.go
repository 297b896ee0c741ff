package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"em-backend/internal/domain"
)

// SearchStrategy selects the phrasing of web-search prompts.
type SearchStrategy string

const (
	StrategySingleParty SearchStrategy = "single_party"
	StrategyComparison  SearchStrategy = "comparison"
	StrategyGeneric     SearchStrategy = "generic"
)

// SearchDecider decides whether a turn benefits from live web data.
type SearchDecider interface {
	ShouldSearch(ctx context.Context, conversation domain.Conversation, strategy SearchStrategy, parties []domain.Party) bool
}

// SearchQueryBuilder produces the single-line web search query for a turn.
// ok is false when no usable query could be produced; the turn then proceeds
// without web data.
type SearchQueryBuilder interface {
	Build(ctx context.Context, conversation domain.Conversation, strategy SearchStrategy, parties []domain.Party, election *domain.Election, language domain.Language) (query string, ok bool)
}

type webSearchDecision struct {
	UseWebSearch bool   `json:"use_web_search"`
	Reason       string `json:"reason"`
}

type webSearchDecider struct {
	llm     domain.LLMClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewWebSearchDecider creates a SearchDecider with its own call timeout. A
// timeout or model failure degrades to "skip"; the decision is never fatal.
func NewWebSearchDecider(llm domain.LLMClient, timeout time.Duration, logger *slog.Logger) SearchDecider {
	return &webSearchDecider{llm: llm, timeout: timeout, logger: logger}
}

func (d *webSearchDecider) ShouldSearch(ctx context.Context, conversation domain.Conversation, strategy SearchStrategy, parties []domain.Party) bool {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var decision webSearchDecision
	err := d.llm.ChatStructured(ctx, buildWebSearchDecisionPrompt(conversation, strategy, parties), webSearchDecisionSchema, &decision)
	if err != nil {
		d.logger.Warn("web search decision failed, skipping web search",
			"strategy", string(strategy),
			"error", err.Error())
		return false
	}

	d.logger.Info("web search decision",
		"use_web_search", decision.UseWebSearch,
		"reason", decision.Reason,
		"strategy", string(strategy))
	return decision.UseWebSearch
}

type searchQueryBuilder struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

// NewSearchQueryBuilder creates the LLM-backed query builder.
func NewSearchQueryBuilder(llm domain.LLMClient, logger *slog.Logger) SearchQueryBuilder {
	return &searchQueryBuilder{llm: llm, logger: logger}
}

// Build asks for exactly one query line. Surrounding whitespace and quotes
// are stripped; an empty or multi-line response is rejected.
func (b *searchQueryBuilder) Build(ctx context.Context, conversation domain.Conversation, strategy SearchStrategy, parties []domain.Party, election *domain.Election, language domain.Language) (string, bool) {
	raw, err := b.llm.Chat(ctx, buildSearchQueryPrompt(conversation, strategy, parties, election, language))
	if err != nil {
		b.logger.Warn("search query generation failed, skipping web search",
			"strategy", string(strategy),
			"error", err.Error())
		return "", false
	}

	query := strings.TrimSpace(raw)
	query = strings.Trim(query, `"'`)
	query = strings.TrimSpace(query)

	if query == "" || strings.ContainsAny(query, "\n\r") {
		b.logger.Warn("search query unusable, skipping web search",
			"strategy", string(strategy),
			"raw_length", len(raw))
		return "", false
	}
	return query, true
}
