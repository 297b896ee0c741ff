package domain

import (
	"context"
	"io"
)

// Transcriber converts an uploaded audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// RealtimeSessionClient creates ephemeral sessions with the realtime-voice
// provider. Only the client secret is passed back to browsers.
type RealtimeSessionClient interface {
	CreateSession(ctx context.Context, language Language) (string, error)
}
