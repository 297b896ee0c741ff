package domain

import (
	"errors"
	"strings"
)

// Sentinel errors shared across usecases and handlers. Handlers map these to
// HTTP statuses with errors.Is; wrap with fmt.Errorf("%w", ...) to add detail.
var (
	// ErrInvalidRequest marks user-correctable input problems (empty question,
	// unknown or empty party selection).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBackendUnavailable means the vector store is not ready to serve.
	ErrBackendUnavailable = errors.New("vector store unavailable")

	// ErrPipelineExhausted means every selected party's pipeline failed.
	ErrPipelineExhausted = errors.New("answer pipeline exhausted")
)

// UploadError reports the filenames that failed during a multi-file ingest.
// Files not listed were ingested successfully.
type UploadError struct {
	FailedFiles []string
}

func (e *UploadError) Error() string {
	return "file upload failed for: " + strings.Join(e.FailedFiles, ", ")
}
