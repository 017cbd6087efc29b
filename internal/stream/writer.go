// Package stream writes the UI message stream protocol over SSE. The
// dashboard's chat widget consumes this format directly.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"comunicacion/chat-gateway/internal/domain"
)

type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	started bool
}

// NewWriter wraps a response writer for streaming. It fails when the
// underlying writer cannot flush, so callers can still reply with a plain
// JSON error before any stream bytes are written.
func NewWriter(ctx context.Context, w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	return &Writer{w: w, flusher: flusher, ctx: ctx}, nil
}

// Started reports whether any stream bytes have been written. Before the
// first Send the handler can still switch to a JSON error response.
func (s *Writer) Started() bool {
	return s.started
}

// Send emits one stream part. Headers go out lazily on the first call.
// Once the client context is done, parts are dropped silently.
func (s *Writer) Send(part domain.StreamPart) {
	if s.ctx.Err() != nil {
		return
	}
	if !s.started {
		header := s.w.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		header.Set("X-Accel-Buffering", "no")
		header.Set("x-vercel-ai-ui-message-stream", "v1")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	payload, err := json.Marshal(part)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	s.flusher.Flush()
}

// Done terminates the stream. No-op when nothing was sent.
func (s *Writer) Done() {
	if !s.started || s.ctx.Err() != nil {
		return
	}
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}
