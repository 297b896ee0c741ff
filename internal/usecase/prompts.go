package usecase

import (
	"fmt"
	"strings"

	"em-backend/internal/domain"
)

// Prompt construction for every LLM call in the pipeline. All prompts are
// plain strings assembled here so behavior changes stay reviewable in one
// place.

func electionContext(election *domain.Election) string {
	return fmt.Sprintf("the %s (%s, %d)", election.Name, election.CountryName, election.Year)
}

func conversationTranscript(conversation domain.Conversation) string {
	var b strings.Builder
	for _, m := range conversation {
		b.WriteString(m.Type)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// buildRewritePrompt asks the model to compress the conversation into one
// keyword-dense retrieval query.
func buildRewritePrompt(conversation domain.Conversation, party domain.Party) []domain.Message {
	var b strings.Builder
	b.WriteString("Rewrite the user's latest question as a single keyword-dense search query ")
	b.WriteString("for retrieving passages from the election program of ")
	b.WriteString(party.Fullname)
	b.WriteString(".\n")
	b.WriteString("Resolve pronouns and references using the conversation. ")
	b.WriteString("Return only the query text, nothing else.\n\n")
	b.WriteString("Conversation:\n")
	b.WriteString(conversationTranscript(conversation))

	return []domain.Message{{Type: domain.RoleSystem, Content: "You optimize search queries for semantic document retrieval."},
		{Type: domain.RoleUser, Content: b.String()}}
}

// buildRerankPrompt lists the candidates with their index and asks for the
// most relevant ones.
func buildRerankPrompt(conversation domain.Conversation, candidates []domain.DocumentChunk, limit int) []domain.Message {
	var b strings.Builder
	b.WriteString("Select the passages most relevant to the user's latest question. ")
	fmt.Fprintf(&b, "Return the indices of the best passages, most relevant first, at most %d.\n\n", limit)
	b.WriteString("Conversation:\n")
	b.WriteString(conversationTranscript(conversation))
	b.WriteString("\nPassages:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", i, c.Text)
	}

	return []domain.Message{{Type: domain.RoleSystem, Content: "You rank retrieved passages for relevance."},
		{Type: domain.RoleUser, Content: b.String()}}
}

// rerankSchema constrains the rerank response to an index list.
var rerankSchema = domain.StructuredFormat{
	Name: "rerank_result",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"indices": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "integer"},
			},
		},
		"required":             []string{"indices"},
		"additionalProperties": false,
	},
}

// buildWebSearchDecisionPrompt asks whether live web data would improve the
// answer beyond what stored party programs cover.
func buildWebSearchDecisionPrompt(conversation domain.Conversation, strategy SearchStrategy, parties []domain.Party) []domain.Message {
	var b strings.Builder
	b.WriteString("Decide whether answering the user's latest question requires current information ")
	b.WriteString("from the web, such as polls, recent events or news coverage. ")
	b.WriteString("Party programs and manifestos are already available without web search.\n\n")
	switch strategy {
	case StrategyComparison:
		b.WriteString("The answer will compare these parties: ")
		b.WriteString(joinPartyNames(parties))
		b.WriteString(".\n")
	case StrategySingleParty:
		if len(parties) > 0 {
			b.WriteString("The answer concerns ")
			b.WriteString(parties[0].Fullname)
			b.WriteString(".\n")
		}
	case StrategyGeneric:
		b.WriteString("The answer concerns the election in general, no specific party.\n")
	}
	b.WriteString("\nConversation:\n")
	b.WriteString(conversationTranscript(conversation))

	return []domain.Message{{Type: domain.RoleSystem, Content: "You decide whether a question needs live web research."},
		{Type: domain.RoleUser, Content: b.String()}}
}

var webSearchDecisionSchema = domain.StructuredFormat{
	Name: "web_search_decision",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"use_web_search": map[string]any{"type": "boolean"},
			"reason":         map[string]any{"type": "string"},
		},
		"required":             []string{"use_web_search", "reason"},
		"additionalProperties": false,
	},
}

// buildSearchQueryPrompt produces the instruction for one single-line web
// search query in the given strategy.
func buildSearchQueryPrompt(conversation domain.Conversation, strategy SearchStrategy, parties []domain.Party, election *domain.Election, language domain.Language) []domain.Message {
	var b strings.Builder
	switch strategy {
	case StrategySingleParty:
		b.WriteString("Write one web search query about ")
		b.WriteString(parties[0].Fullname)
		b.WriteString(" in the context of ")
		b.WriteString(electionContext(election))
		b.WriteString(", targeting the user's latest question.\n")
	case StrategyComparison:
		b.WriteString("Write one neutral, comparative web search query covering ")
		b.WriteString(joinPartyNames(parties))
		b.WriteString(" in the context of ")
		b.WriteString(electionContext(election))
		b.WriteString(", targeting the user's latest question. Do not favor any party.\n")
	case StrategyGeneric:
		b.WriteString("Write one web search query for ")
		b.WriteString(electionContext(election))
		b.WriteString(" that carries the user's latest question together with the concrete entities it mentions.\n")
	}
	fmt.Fprintf(&b, "Write the query in %s. Return exactly one line with the query text and nothing else.\n\n", language.Name)
	b.WriteString("Conversation:\n")
	b.WriteString(conversationTranscript(conversation))

	return []domain.Message{{Type: domain.RoleSystem, Content: "You write precise web search queries."},
		{Type: domain.RoleUser, Content: b.String()}}
}

// buildPartyAnswerPrompt grounds one party's answer in its retrieved passages
// and optional web research.
func buildPartyAnswerPrompt(conversation domain.Conversation, party domain.Party, election *domain.Election, chunks []domain.DocumentChunk, webDocs []domain.WebDocument, language domain.Language) []domain.Message {
	var b strings.Builder
	b.WriteString("You answer questions about ")
	b.WriteString(party.Fullname)
	fmt.Fprintf(&b, " (%s) for ", party.Shortname)
	b.WriteString(electionContext(election))
	b.WriteString(".\nGround your answer in the provided excerpts from the party's own documents. ")
	b.WriteString("If the excerpts do not cover the question, say so instead of guessing. ")
	b.WriteString("Stay neutral and do not endorse any party. ")
	fmt.Fprintf(&b, "Answer in %s.\n", language.Name)

	if len(chunks) > 0 {
		b.WriteString("\nDocument excerpts:\n")
		for _, c := range chunks {
			fmt.Fprintf(&b, "- [%s] %s\n", c.Title, c.Text)
		}
	}
	writeWebResearch(&b, webDocs)

	messages := []domain.Message{{Type: domain.RoleSystem, Content: b.String()}}
	return append(messages, conversation...)
}

// buildComparisonAnswerPrompt grounds the cross-party narration in each
// party's passages.
func buildComparisonAnswerPrompt(conversation domain.Conversation, parties []domain.Party, election *domain.Election, chunksByParty map[string][]domain.DocumentChunk, webDocs []domain.WebDocument, language domain.Language) []domain.Message {
	var b strings.Builder
	b.WriteString("You compare the positions of ")
	b.WriteString(joinPartyNames(parties))
	b.WriteString(" for ")
	b.WriteString(electionContext(election))
	b.WriteString(".\nGround every claim in the provided excerpts, attribute each position to its party, ")
	b.WriteString("and point out where a party's documents are silent. Stay neutral. ")
	fmt.Fprintf(&b, "Answer in %s.\n", language.Name)

	for _, p := range parties {
		chunks := chunksByParty[p.Shortname]
		if len(chunks) == 0 {
			fmt.Fprintf(&b, "\nNo excerpts available for %s.\n", p.Fullname)
			continue
		}
		fmt.Fprintf(&b, "\nExcerpts from %s:\n", p.Fullname)
		for _, c := range chunks {
			fmt.Fprintf(&b, "- [%s] %s\n", c.Title, c.Text)
		}
	}
	writeWebResearch(&b, webDocs)

	messages := []domain.Message{{Type: domain.RoleSystem, Content: b.String()}}
	return append(messages, conversation...)
}

// buildMetadataPrompt requests the conversation title and follow-up
// questions in one call.
func buildMetadataPrompt(conversation domain.Conversation, language domain.Language) []domain.Message {
	var b strings.Builder
	b.WriteString("Create a short title (at most six words) for this conversation ")
	b.WriteString("and three follow-up questions the user might ask next. ")
	fmt.Fprintf(&b, "Write both in %s.\n\n", language.Name)
	b.WriteString("Conversation:\n")
	b.WriteString(conversationTranscript(conversation))

	return []domain.Message{{Type: domain.RoleSystem, Content: "You summarize conversations about elections."},
		{Type: domain.RoleUser, Content: b.String()}}
}

var metadataSchema = domain.StructuredFormat{
	Name: "conversation_metadata",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"follow_up_questions": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []string{"title", "follow_up_questions"},
		"additionalProperties": false,
	},
}

func writeWebResearch(b *strings.Builder, webDocs []domain.WebDocument) {
	if len(webDocs) == 0 {
		return
	}
	b.WriteString("\nCurrent web research:\n")
	for _, d := range webDocs {
		if d.Content == "" {
			continue
		}
		fmt.Fprintf(b, "- %s\n", d.Content)
	}
	for _, d := range webDocs {
		if d.URL == "" {
			continue
		}
		fmt.Fprintf(b, "- %s (%s)\n", d.Title, d.URL)
	}
}

func joinPartyNames(parties []domain.Party) string {
	names := make([]string, len(parties))
	for i, p := range parties {
		names[i] = p.Fullname
	}
	return strings.Join(names, ", ")
}
