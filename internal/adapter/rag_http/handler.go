package rag_http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"em-backend/internal/adapter/parser"
	"em-backend/internal/domain"
	"em-backend/internal/usecase"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	orchestrator *usecase.Orchestrator
	ingest       *usecase.IngestDocumentsUsecase
	transcriber  domain.Transcriber
	realtime     domain.RealtimeSessionClient
	store        domain.VectorStore
	countryCode  string
	logger       *slog.Logger
}

func NewHandler(
	orchestrator *usecase.Orchestrator,
	ingest *usecase.IngestDocumentsUsecase,
	transcriber domain.Transcriber,
	realtime domain.RealtimeSessionClient,
	store domain.VectorStore,
	countryCode string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		ingest:       ingest,
		transcriber:  transcriber,
		realtime:     realtime,
		store:        store,
		countryCode:  countryCode,
		logger:       logger,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/openapi.json", h.OpenAPIDocument)
	e.POST("/query/:language_code", h.Query)
	e.POST("/stream/:language_code", h.Stream)
	e.POST("/function/fetch-rag-data", h.FetchRAGData)
	e.GET("/session/:language_code", h.Session)
	e.POST("/uploadfiles", h.UploadFiles)
	e.POST("/upload-audio-webm", h.UploadAudio)
}

// Health is the liveness probe.
// (GET /health)
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"health": "Ok"})
}

// Query returns the aggregate answer for a question.
// (POST /query/{language_code})
func (h *Handler) Query(c echo.Context) error {
	language, err := domain.ParseLanguage(c.Param("language_code"))
	if err != nil {
		return h.errorResponse(c, err)
	}

	var q usecase.Question
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	if err := h.store.Ready(ctx); err != nil {
		return h.errorResponse(c, fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, err.Error()))
	}

	answer, err := h.orchestrator.Query(ctx, language, h.countryCode, q)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, answer)
}

// Stream answers a question as a server-sent event stream of typed chunks,
// terminated by an empty DONE event.
// (POST /stream/{language_code})
func (h *Handler) Stream(c echo.Context) error {
	language, err := domain.ParseLanguage(c.Param("language_code"))
	if err != nil {
		return h.errorResponse(c, err)
	}

	var q usecase.Question
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	if err := h.store.Ready(ctx); err != nil {
		return h.errorResponse(c, fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, err.Error()))
	}

	events, err := h.orchestrator.Stream(ctx, language, h.countryCode, q)
	if err != nil {
		return h.errorResponse(c, err)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	for chunk := range events {
		if err := writeSSEEvent(resp, chunk); err != nil {
			h.logger.Warn("client stream write failed", "error", err.Error())
			return nil
		}
		resp.Flush()
	}

	if _, err := fmt.Fprint(resp, "event: DONE\ndata: [DONE]\n\n"); err != nil {
		return nil
	}
	resp.Flush()
	return nil
}

func writeSSEEvent(w io.Writer, chunk domain.AnyChunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", chunk.ChunkType(), payload)
	return err
}

type fetchRAGDataRequest struct {
	CountryCode  string `json:"country_code"`
	QuestionBody string `json:"question_body"`
}

// FetchRAGData is the realtime voice session's function-call delegate.
// (POST /function/fetch-rag-data)
func (h *Handler) FetchRAGData(c echo.Context) error {
	var req fetchRAGDataRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.CountryCode == "" {
		req.CountryCode = h.countryCode
	}

	data, err := h.orchestrator.FetchRAGData(c.Request().Context(), req.CountryCode, req.QuestionBody)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"data": data})
}

// Session creates an ephemeral realtime-voice session.
// (GET /session/{language_code})
func (h *Handler) Session(c echo.Context) error {
	language, err := domain.ParseLanguage(c.Param("language_code"))
	if err != nil {
		return h.errorResponse(c, err)
	}

	secret, err := h.realtime.CreateSession(c.Request().Context(), language)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"client_secret": secret})
}

// UploadFiles ingests party documents. Form fields: party (shortname,
// required), country_code (optional), async (optional, queue instead of
// embedding inline), files (repeated). Failing files are reported together
// with a 500; a clean ingest returns 204.
// (POST /uploadfiles)
func (h *Handler) UploadFiles(c echo.Context) error {
	party := c.FormValue("party")
	if party == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "party form field is required"})
	}
	countryCode := c.FormValue("country_code")
	if countryCode == "" {
		countryCode = h.countryCode
	}
	asyncMode := c.FormValue("async") == "true"

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
	}
	files := form.File["files"]
	if len(files) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no files uploaded"})
	}

	ctx := c.Request().Context()
	election, resolved, err := h.ingest.ResolveParty(ctx, countryCode, party)
	if err != nil {
		return h.errorResponse(c, err)
	}

	var failed []string
	for _, fileHeader := range files {
		if err := h.ingestFile(c, election, resolved, fileHeader, asyncMode); err != nil {
			h.logger.Warn("file ingest failed",
				"filename", fileHeader.Filename,
				"party", party,
				"error", err.Error())
			failed = append(failed, fileHeader.Filename)
		}
	}

	if len(failed) > 0 {
		uploadErr := &domain.UploadError{FailedFiles: failed}
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"error":        uploadErr.Error(),
			"failed_files": failed,
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ingestFile(c echo.Context, election *domain.Election, party *domain.Party, fileHeader *multipart.FileHeader, asyncMode bool) error {
	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}

	text, err := parser.ExtractText(fileHeader.Filename, data)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if asyncMode {
		return h.ingest.Enqueue(ctx, election.ID, party.ID, fileHeader.Filename, text)
	}
	return h.ingest.IngestDocument(ctx, election.ID, party.ID, fileHeader.Filename, text)
}

// UploadAudio transcribes one webm audio upload.
// (POST /upload-audio-webm)
func (h *Handler) UploadAudio(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file form field is required"})
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !isWebmContentType(contentType) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unsupported content type %q, expected audio/webm or video/webm", contentType),
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open upload"})
	}
	defer func() { _ = file.Close() }()

	transcription, err := h.transcriber.Transcribe(c.Request().Context(), fileHeader.Filename, file)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message":       "Audio transcribed successfully",
		"transcription": transcription,
	})
}

func isWebmContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "audio/webm") || strings.HasPrefix(contentType, "video/webm")
}

// OpenAPIDocument serves the embedded API description.
// (GET /openapi.json)
func (h *Handler) OpenAPIDocument(c echo.Context) error {
	doc, err := Spec()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "api description unavailable"})
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrPipelineExhausted):
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.Path(), "error", err.Error())
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
