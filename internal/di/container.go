package di

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"em-backend/internal/adapter/openaiapi"
	rag_http "em-backend/internal/adapter/rag_http"
	"em-backend/internal/adapter/repository"
	"em-backend/internal/adapter/vectordb"
	"em-backend/internal/adapter/websearch"
	"em-backend/internal/domain"
	"em-backend/internal/infra/config"
	"em-backend/internal/infra/httpclient"
	"em-backend/internal/usecase"
	"em-backend/internal/worker"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Repositories
	Elections domain.ElectionRepository
	Parties   domain.PartyRepository
	Jobs      domain.IngestJobRepository

	// Retrieval backend
	Store domain.VectorStore

	// Usecases
	Orchestrator *usecase.Orchestrator
	Ingest       *usecase.IngestDocumentsUsecase

	// Worker
	Worker *worker.IngestWorker

	// HTTP surface
	Handler *rag_http.Handler
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) *ApplicationComponents {
	// Repositories
	elections := repository.NewElectionRepository(pool)
	parties := repository.NewPartyRepository(pool)
	jobs := repository.NewIngestJobRepository(pool)
	txManager := repository.NewPostgresTransactionManager(pool)

	// Shared HTTP clients with connection pooling
	webSearchHTTP := httpclient.NewPooledClient(cfg.WebSearchTimeout)
	realtimeHTTP := httpclient.NewPooledClient(cfg.WebSearchTimeout)

	// External clients
	llm := openaiapi.NewChatClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel, cfg.LLMTimeout, log)
	encoder := openaiapi.NewEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	transcriber := openaiapi.NewTranscriber(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TranscriptionModel)
	realtime := openaiapi.NewRealtimeClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.RealtimeModel, cfg.WebSearchTimeout, log, realtimeHTTP)
	webSearch := websearch.NewPerplexityClient(cfg.PerplexityURL, cfg.PerplexityAPIKey, cfg.PerplexityModel, cfg.WebSearchTimeout, log, webSearchHTTP)

	// Retrieval backend
	store := vectordb.NewPgVectorStore(pool, encoder, cfg.RetrieveCandidates, log)

	// Answer pipeline
	retriever := usecase.NewDocumentRetriever(llm, store, cfg.AnswerMaxChunks, log)
	decider := usecase.NewWebSearchDecider(llm, cfg.DeciderTimeout, log)
	queryBuilder := usecase.NewSearchQueryBuilder(llm, log)
	orchestrator := usecase.NewOrchestrator(
		elections, parties, llm,
		retriever, decider, queryBuilder, webSearch,
		cfg.AnswerCacheSize, cfg.AnswerCacheTTL,
		log,
	)

	// Ingestion
	ingest := usecase.NewIngestDocumentsUsecase(
		domain.NewChunker(), store,
		elections, parties, jobs, txManager,
		log,
	)

	// Worker
	ingestWorker := worker.NewIngestWorker(ingest, cfg.WorkerInterval, log)

	// HTTP handler
	handler := rag_http.NewHandler(orchestrator, ingest, transcriber, realtime, store, cfg.CountryCode, log)

	return &ApplicationComponents{
		Elections:    elections,
		Parties:      parties,
		Jobs:         jobs,
		Store:        store,
		Orchestrator: orchestrator,
		Ingest:       ingest,
		Worker:       ingestWorker,
		Handler:      handler,
	}
}
