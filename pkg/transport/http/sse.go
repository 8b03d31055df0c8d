package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/claudepipe/pkg/api"
	"github.com/rhuss/claudepipe/pkg/transport"
)

// writerState tracks the state of a chunkWriter.
type writerState int

const (
	writerIdle      writerState = iota // no writes yet
	writerStreaming                    // at least one SSE frame written
	writerCompleted                    // [DONE], stream error, or JSON body written
)

// doneFrame terminates a successful stream.
const doneFrame = "data: [DONE]\n\n"

var errWriterCompleted = errors.New("cannot write: writer is completed")

// chunkWriter implements transport.ResponseWriter over HTTP. Streaming
// output is one "data: <json>\n\n" frame per chunk, flushed immediately.
type chunkWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState

	// onFirstChunk is called with the completion id of the first chunk.
	onFirstChunk func(id string)
}

var _ transport.ResponseWriter = (*chunkWriter)(nil)

func newChunkWriter(w http.ResponseWriter, onFirstChunk func(id string)) *chunkWriter {
	return &chunkWriter{
		w:            w,
		rc:           http.NewResponseController(w),
		onFirstChunk: onFirstChunk,
	}
}

// WriteChunk sends one chat.completion.chunk frame.
func (s *chunkWriter) WriteChunk(_ context.Context, chunk *api.ChatCompletionChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errWriterCompleted
	}
	s.begin()

	if s.onFirstChunk != nil {
		s.onFirstChunk(chunk.ID)
		s.onFirstChunk = nil
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}
	return s.frame("data: " + string(data) + "\n\n")
}

// WriteStreamError sends {"error":{...}} as a data frame and completes the
// stream without [DONE].
func (s *chunkWriter) WriteStreamError(_ context.Context, apiErr *api.APIError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errWriterCompleted
	}
	s.begin()
	s.state = writerCompleted

	data, err := json.Marshal(api.ErrorResponse{Error: apiErr})
	if err != nil {
		return fmt.Errorf("failed to marshal error: %w", err)
	}
	return s.frame("data: " + string(data) + "\n\n")
}

// WriteDone sends the [DONE] sentinel and completes the stream.
func (s *chunkWriter) WriteDone(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errWriterCompleted
	}
	s.begin()
	s.state = writerCompleted
	return s.frame(doneFrame)
}

// WriteCompletion sends a complete non-streaming JSON response.
func (s *chunkWriter) WriteCompletion(_ context.Context, resp *api.ChatCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case writerStreaming:
		return errors.New("cannot write completion: streaming has already started")
	case writerCompleted:
		return errWriterCompleted
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted
	if err := json.NewEncoder(s.w).Encode(resp); err != nil {
		return fmt.Errorf("failed to encode completion: %w", err)
	}
	return nil
}

// Flush ensures buffered data is sent to the client.
func (s *chunkWriter) Flush() error {
	return s.rc.Flush()
}

// started reports whether any output has been written.
func (s *chunkWriter) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != writerIdle
}

// completed reports whether the writer accepts no further output.
func (s *chunkWriter) completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == writerCompleted
}

// begin sets the SSE headers before the first frame. Callers hold mu.
func (s *chunkWriter) begin() {
	if s.state != writerIdle {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.state = writerStreaming
}

// frame writes and flushes one SSE frame. Callers hold mu.
func (s *chunkWriter) frame(f string) error {
	if _, err := fmt.Fprint(s.w, f); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}
