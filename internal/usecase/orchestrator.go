package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"em-backend/internal/domain"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
)

// Answer is the aggregate response of the non-streaming query endpoint.
// FailedParties carries the error indicator for owners whose generation
// failed; their answer fields are absent.
type Answer struct {
	PartyAnswers      map[string]string                 `json:"party_answers,omitempty"`
	ComparisonAnswer  string                            `json:"comparison_answer,omitempty"`
	Sources           map[string][]domain.DocumentChunk `json:"sources,omitempty"`
	Title             string                            `json:"title,omitempty"`
	FollowUpQuestions []string                          `json:"follow_up_questions,omitempty"`
	FailedParties     map[string]string                 `json:"failed_parties,omitempty"`
}

// conversationMetadata is the structured title/follow-up payload. The JSON
// tags double as the response schema field names.
type conversationMetadata struct {
	Title             string   `json:"title"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

// streamTask is one concurrently running producer of output chunks. emit
// returns false when the request context ended; the task must stop then.
type streamTask struct {
	owner string
	run   func(ctx context.Context, emit func(domain.AnyChunk) bool) error
}

// Orchestrator drives the answer pipeline: classify the question, decide on
// web search, retrieve per party, fan out generation tasks and merge their
// chunk streams into one channel.
type Orchestrator struct {
	elections    domain.ElectionRepository
	parties      domain.PartyRepository
	llm          domain.LLMClient
	retriever    Retriever
	decider      SearchDecider
	queryBuilder SearchQueryBuilder
	webSearch    domain.WebSearchClient
	cache        *expirable.LRU[string, *Answer]
	logger       *slog.Logger
}

// NewOrchestrator wires the pipeline. cacheSize 0 disables answer caching.
func NewOrchestrator(
	elections domain.ElectionRepository,
	parties domain.PartyRepository,
	llm domain.LLMClient,
	retriever Retriever,
	decider SearchDecider,
	queryBuilder SearchQueryBuilder,
	webSearch domain.WebSearchClient,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	var cache *expirable.LRU[string, *Answer]
	if cacheSize > 0 {
		cache = expirable.NewLRU[string, *Answer](cacheSize, nil, cacheTTL)
	}
	return &Orchestrator{
		elections:    elections,
		parties:      parties,
		llm:          llm,
		retriever:    retriever,
		decider:      decider,
		queryBuilder: queryBuilder,
		webSearch:    webSearch,
		cache:        cache,
		logger:       logger,
	}
}

// request is the resolved, validated input shared read-only by all tasks.
type request struct {
	question Question
	mode     AnswerMode
	language domain.Language
	election *domain.Election
	parties  []domain.Party
}

func (o *Orchestrator) resolve(ctx context.Context, language domain.Language, countryCode string, q Question) (*request, error) {
	classification, err := ClassifyQuestion(q)
	if err != nil {
		return nil, err
	}

	election, err := o.elections.GetByCountryCode(ctx, countryCode)
	if err != nil {
		return nil, err
	}

	found, err := o.parties.GetByShortnames(ctx, election.ID, classification.Parties)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve parties: %w", err)
	}
	byShortname := make(map[string]domain.Party, len(found))
	for _, p := range found {
		byShortname[p.Shortname] = p
	}

	parties := make([]domain.Party, 0, len(classification.Parties))
	for _, shortname := range classification.Parties {
		p, ok := byShortname[shortname]
		if !ok {
			return nil, fmt.Errorf("%w: unknown party %q", domain.ErrInvalidRequest, shortname)
		}
		parties = append(parties, p)
	}

	return &request{
		question: q,
		mode:     classification.Mode,
		language: language,
		election: election,
		parties:  parties,
	}, nil
}

// Stream validates the request synchronously and returns the merged chunk
// stream. Per-task order is preserved on the channel; interleaving between
// tasks is unspecified. The channel closes when every task finished.
func (o *Orchestrator) Stream(ctx context.Context, language domain.Language, countryCode string, q Question) (<-chan domain.AnyChunk, error) {
	req, err := o.resolve(ctx, language, countryCode, q)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.AnyChunk, 8)
	go o.run(ctx, out, req)
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, out chan<- domain.AnyChunk, req *request) {
	defer close(out)

	conversation := req.question.Conversation()
	webDocs := o.maybeWebSearch(ctx, req, conversation)

	// Metadata runs alongside generation but its chunks only surface once
	// every primary task finished.
	metaCh := make(chan *conversationMetadata, 1)
	go func() {
		metaCh <- o.generateMetadata(ctx, conversation, req.language)
	}()

	var tasks []streamTask
	if req.mode == ModeComparison {
		tasks = []streamTask{o.comparisonTask(req, conversation, webDocs)}
	} else {
		for _, party := range req.parties {
			tasks = append(tasks, o.partyTask(req, party, conversation, webDocs))
		}
	}

	failures := o.runTasks(ctx, out, tasks)
	if len(failures) == len(tasks) {
		o.logger.Error("every generation task failed", "task_count", len(tasks))
		o.send(ctx, out, domain.NewErrorChunk(domain.OwnerPipeline, domain.ErrPipelineExhausted.Error()))
		return
	}

	select {
	case meta := <-metaCh:
		if meta != nil {
			if !o.send(ctx, out, domain.NewTitleChunk(meta.Title)) {
				return
			}
			o.send(ctx, out, domain.NewFollowUpQuestionsChunk(meta.FollowUpQuestions))
		}
	case <-ctx.Done():
	}
}

// runTasks fans the tasks out, forwards their chunks to out and waits for all
// of them. A failing task gets a scoped error chunk; siblings keep running.
func (o *Orchestrator) runTasks(ctx context.Context, out chan<- domain.AnyChunk, tasks []streamTask) map[string]string {
	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := make(map[string]string)

	for _, task := range tasks {
		wg.Add(1)
		go func(t streamTask) {
			defer wg.Done()
			emit := func(c domain.AnyChunk) bool {
				return o.send(ctx, out, c)
			}
			if err := t.run(ctx, emit); err != nil {
				mu.Lock()
				failures[t.owner] = err.Error()
				mu.Unlock()
				o.logger.Warn("generation task failed",
					"owner", t.owner,
					"error", err.Error())
				o.send(ctx, out, domain.NewErrorChunk(t.owner, err.Error()))
			}
		}(task)
	}

	wg.Wait()
	return failures
}

func (o *Orchestrator) maybeWebSearch(ctx context.Context, req *request, conversation domain.Conversation) []domain.WebDocument {
	if !req.question.UseWebSearch {
		return nil
	}

	strategy := StrategySingleParty
	if req.mode == ModeComparison {
		strategy = StrategyComparison
	}
	if !o.decider.ShouldSearch(ctx, conversation, strategy, req.parties) {
		return nil
	}
	query, ok := o.queryBuilder.Build(ctx, conversation, strategy, req.parties, req.election, req.language)
	if !ok {
		return nil
	}

	docs, err := o.webSearch.Search(ctx, query)
	if err != nil {
		o.logger.Warn("web search failed, continuing without web data", "error", err.Error())
		return nil
	}
	return docs
}

func (o *Orchestrator) partyTask(req *request, party domain.Party, conversation domain.Conversation, webDocs []domain.WebDocument) streamTask {
	return streamTask{
		owner: party.Shortname,
		run: func(ctx context.Context, emit func(domain.AnyChunk) bool) error {
			var chunks []domain.DocumentChunk
			if req.question.UseDatabaseSearch {
				retrieved, err := o.retriever.Retrieve(ctx, req.election, party, conversation)
				if err != nil {
					return err
				}
				chunks = domain.DedupChunks(retrieved)
			}

			prompt := buildPartyAnswerPrompt(conversation, party, req.election, chunks, webDocs, req.language)
			full, err := o.streamCompletion(ctx, prompt, func(token string) bool {
				return emit(domain.NewPartyTokenChunk(party.Shortname, token))
			})
			if err != nil {
				return err
			}

			if !emit(domain.NewPartySourcesChunk(party.Shortname, chunks)) {
				return ctx.Err()
			}
			if !emit(domain.NewPartyMessageChunk(party.Shortname, domain.NewAssistantMessage(full))) {
				return ctx.Err()
			}
			return nil
		},
	}
}

func (o *Orchestrator) comparisonTask(req *request, conversation domain.Conversation, webDocs []domain.WebDocument) streamTask {
	return streamTask{
		owner: domain.OwnerComparison,
		run: func(ctx context.Context, emit func(domain.AnyChunk) bool) error {
			chunksByParty := make(map[string][]domain.DocumentChunk, len(req.parties))
			if req.question.UseDatabaseSearch {
				var mu sync.Mutex
				failed := make(map[string]string, len(req.parties))

				var g errgroup.Group
				for _, party := range req.parties {
					party := party
					g.Go(func() error {
						retrieved, err := o.retriever.Retrieve(ctx, req.election, party, conversation)
						mu.Lock()
						defer mu.Unlock()
						if err != nil {
							failed[party.Shortname] = fmt.Sprintf("retrieval failed: %s", err.Error())
							o.logger.Warn("comparison retrieval failed for party",
								"party", party.Shortname,
								"error", err.Error())
							return nil
						}
						chunksByParty[party.Shortname] = domain.DedupChunks(retrieved)
						return nil
					})
				}
				_ = g.Wait()

				if len(failed) == len(req.parties) {
					return errors.New("retrieval failed for every party")
				}
				// Surface degraded parties so the answer is marked partial
				// and stays out of the cache.
				for _, party := range req.parties {
					if reason, ok := failed[party.Shortname]; ok {
						if !emit(domain.NewErrorChunk(party.Shortname, reason)) {
							return ctx.Err()
						}
					}
				}
			}

			prompt := buildComparisonAnswerPrompt(conversation, req.parties, req.election, chunksByParty, webDocs, req.language)
			full, err := o.streamCompletion(ctx, prompt, func(token string) bool {
				return emit(domain.NewComparisonTokenChunk(token))
			})
			if err != nil {
				return err
			}

			if !emit(domain.NewComparisonSourcesChunk(chunksByParty)) {
				return ctx.Err()
			}
			if !emit(domain.NewComparisonMessageChunk(domain.NewAssistantMessage(full))) {
				return ctx.Err()
			}
			return nil
		},
	}
}

// streamCompletion drains one LLM token stream, forwarding each increment and
// returning the accumulated text.
func (o *Orchestrator) streamCompletion(ctx context.Context, messages []domain.Message, onToken func(string) bool) (string, error) {
	chunkCh, errCh, err := o.llm.ChatStream(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("stream setup failed: %w", err)
	}

	var builder strings.Builder
	for chunkCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case chunk, ok := <-chunkCh:
			if !ok {
				chunkCh = nil
				continue
			}
			if chunk.Content != "" {
				builder.WriteString(chunk.Content)
				if !onToken(chunk.Content) {
					return "", ctx.Err()
				}
			}
			if chunk.Done {
				chunkCh = nil
			}
		case streamErr, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if streamErr != nil {
				return "", fmt.Errorf("stream failed: %w", streamErr)
			}
		}
	}

	if builder.Len() == 0 {
		return "", errors.New("stream produced no output")
	}
	return builder.String(), nil
}

// generateMetadata produces the title and follow-up questions. Failure is
// non-fatal and returns nil.
func (o *Orchestrator) generateMetadata(ctx context.Context, conversation domain.Conversation, language domain.Language) *conversationMetadata {
	var meta conversationMetadata
	err := o.llm.ChatStructured(ctx, buildMetadataPrompt(conversation, language), metadataSchema, &meta)
	if err != nil {
		o.logger.Warn("metadata generation failed", "error", err.Error())
		return nil
	}
	return &meta
}

// Query runs the full pipeline and assembles the aggregate answer. Clean
// answers are cached per (language, country, question) for the cache TTL.
func (o *Orchestrator) Query(ctx context.Context, language domain.Language, countryCode string, q Question) (*Answer, error) {
	key := cacheKey(language, countryCode, q)
	if o.cache != nil {
		if cached, ok := o.cache.Get(key); ok {
			return cached, nil
		}
	}

	events, err := o.Stream(ctx, language, countryCode, q)
	if err != nil {
		return nil, err
	}

	answer := &Answer{
		PartyAnswers:  make(map[string]string),
		Sources:       make(map[string][]domain.DocumentChunk),
		FailedParties: make(map[string]string),
	}
	for chunk := range events {
		switch c := chunk.(type) {
		case domain.PartySourcesChunk:
			answer.Sources[c.Party] = domain.DedupChunks(c.Documents)
		case domain.PartyMessageChunk:
			answer.PartyAnswers[c.Party] = c.Message.Content
		case domain.ComparisonSourcesChunk:
			for party, docs := range c.Documents {
				answer.Sources[party] = docs
			}
		case domain.ComparisonMessageChunk:
			answer.ComparisonAnswer = c.Message.Content
		case domain.TitleChunk:
			answer.Title = c.Title
		case domain.FollowUpQuestionsChunk:
			answer.FollowUpQuestions = c.FollowUpQuestions
		case domain.ErrorChunk:
			if c.Owner == domain.OwnerPipeline {
				return nil, fmt.Errorf("%w: %s", domain.ErrPipelineExhausted, c.Reason)
			}
			answer.FailedParties[c.Owner] = c.Reason
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if o.cache != nil && len(answer.FailedParties) == 0 {
		o.cache.Add(key, answer)
	}
	return answer, nil
}

// FetchRAGData serves the realtime voice agent's function call: it gathers
// stored document context for every party of the country's election and
// returns it as one text block.
func (o *Orchestrator) FetchRAGData(ctx context.Context, countryCode, questionBody string) (string, error) {
	if strings.TrimSpace(questionBody) == "" {
		return "", fmt.Errorf("%w: question_body is required", domain.ErrInvalidRequest)
	}

	election, err := o.elections.GetByCountryCode(ctx, countryCode)
	if err != nil {
		return "", err
	}
	parties, err := o.parties.ListByElection(ctx, election.ID)
	if err != nil {
		return "", fmt.Errorf("failed to list parties: %w", err)
	}

	conversation := domain.Conversation{domain.NewUserMessage(questionBody)}

	var mu sync.Mutex
	sections := make(map[string]string, len(parties))

	var g errgroup.Group
	for _, party := range parties {
		party := party
		g.Go(func() error {
			chunks, err := o.retriever.Retrieve(ctx, election, party, conversation)
			if err != nil {
				o.logger.Warn("fetch-rag-data retrieval failed for party",
					"party", party.Shortname,
					"error", err.Error())
				return nil
			}
			if len(chunks) == 0 {
				return nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "## %s\n", party.Fullname)
			for _, c := range chunks {
				fmt.Fprintf(&b, "- %s\n", c.Text)
			}
			mu.Lock()
			sections[party.Shortname] = b.String()
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, party := range parties {
		if s, ok := sections[party.Shortname]; ok {
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return "No stored documents matched the question.", nil
	}
	return strings.TrimSpace(b.String()), nil
}

func (o *Orchestrator) send(ctx context.Context, out chan<- domain.AnyChunk, chunk domain.AnyChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- chunk:
		return true
	}
}

func cacheKey(language domain.Language, countryCode string, q Question) string {
	payload, _ := json.Marshal(q)
	sum := sha256.Sum256(append([]byte(language.Code+"|"+countryCode+"|"), payload...))
	return hex.EncodeToString(sum[:])
}
