package usecase

import (
	"fmt"
	"strings"

	"em-backend/internal/domain"
)

// AnswerMode selects the answer pipeline shape.
type AnswerMode string

const (
	// ModeSingle answers for exactly one party.
	ModeSingle AnswerMode = "single"
	// ModeComparison synthesizes one answer across two or more parties.
	ModeComparison AnswerMode = "comparison"
)

// Question is the chat request body. Messages is the optional conversation
// history. A history ending with a user turn already carries the current
// question in that turn; otherwise the Question field supplies it.
type Question struct {
	Question          string              `json:"question"`
	SelectedParties   []string            `json:"selected_parties"`
	UseWebSearch      bool                `json:"use_web_search"`
	UseDatabaseSearch bool                `json:"use_database_search"`
	Messages          domain.Conversation `json:"messages,omitempty"`
}

// latestTurn returns the text of the current user turn.
func (q Question) latestTurn() string {
	if n := len(q.Messages); n > 0 && q.Messages[n-1].Type == domain.RoleUser {
		return q.Messages[n-1].Content
	}
	return q.Question
}

// Conversation returns the full prompt conversation. The question is appended
// as a fresh user turn unless the history already ends with one.
func (q Question) Conversation() domain.Conversation {
	conv := append(domain.Conversation{}, q.Messages...)
	if n := len(conv); n > 0 && conv[n-1].Type == domain.RoleUser {
		return conv
	}
	return append(conv, domain.NewUserMessage(q.Question))
}

// Classification is the result of validating a question's party selection.
type Classification struct {
	Mode    AnswerMode
	Parties []string
}

// ClassifyQuestion validates the question and its selected parties.
// Duplicate shortnames are removed keeping the first occurrence; an empty
// question or an empty selection is rejected.
func ClassifyQuestion(q Question) (Classification, error) {
	if strings.TrimSpace(q.latestTurn()) == "" {
		return Classification{}, fmt.Errorf("%w: question is required", domain.ErrInvalidRequest)
	}

	seen := make(map[string]bool, len(q.SelectedParties))
	parties := make([]string, 0, len(q.SelectedParties))
	for _, p := range q.SelectedParties {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		parties = append(parties, p)
	}
	if len(parties) == 0 {
		return Classification{}, fmt.Errorf("%w: at least one party must be selected", domain.ErrInvalidRequest)
	}

	mode := ModeSingle
	if len(parties) > 1 {
		mode = ModeComparison
	}
	return Classification{Mode: mode, Parties: parties}, nil
}
