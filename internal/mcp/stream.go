// ABOUTME: Serialized server-sent-event writer shared by both transports.
// ABOUTME: Once closed it refuses writes, so no write outlives its HTTP handler.

package mcp

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// errStreamClosed is returned by writes after the stream has closed.
var errStreamClosed = errors.New("stream closed")

// eventStream writes SSE frames to one HTTP response.
type eventStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	closed  bool
	done    chan struct{}
}

// newEventStream wraps w. It fails if w cannot flush. Nothing is written
// until open.
func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	return &eventStream{w: w, flusher: flusher, done: make(chan struct{})}, nil
}

// open sends the streaming response headers.
func (s *eventStream) open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.start()
	}
}

// start writes the headers once. Callers hold mu.
func (s *eventStream) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

// event writes one named event.
func (s *eventStream) event(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	s.start()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("writing %s event: %w", name, err)
	}
	s.flusher.Flush()
	return nil
}

// comment writes an SSE comment line, used for keepalives.
func (s *eventStream) comment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	s.start()
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("writing comment: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// close stops further writes and releases the handler waiting on done.
func (s *eventStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}
