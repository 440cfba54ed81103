// ABOUTME: A connected MCP client bound to a verified identity and one transport.
// ABOUTME: Holds the cached capability view, the coalesced signal slot and the close latch.

package session

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/toolhub/internal/auth"
)

// Kind identifies a transport shape.
type Kind string

const (
	// KindPushStream is a long-lived server-to-client stream (SSE) paired with
	// a message endpoint.
	KindPushStream Kind = "sse"
	// KindContinuation is the streamable HTTP shape: one endpoint, session id
	// carried in a header.
	KindContinuation Kind = "streamable"
)

// Transport is the server-to-client half of a session.
type Transport interface {
	Kind() Kind
	// Send delivers one serialized JSON-RPC message.
	Send(ctx context.Context, msg []byte) error
	// Heartbeat writes a keepalive, or returns ErrNoStream when there is
	// nothing to write to.
	Heartbeat() error
	Close() error
}

// Session is one client's live connection.
type Session struct {
	ID        string
	Identity  auth.Identity
	Transport Transport
	CreatedAt time.Time

	signal    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	lastActive atomic.Int64

	viewMu    sync.Mutex
	viewGen   uint64
	viewNames []string
	viewValid bool
}

func newSession(id string, identity auth.Identity, transport Transport, now time.Time) *Session {
	s := &Session{
		ID:        id,
		Identity:  identity.Clone(),
		Transport: transport,
		CreatedAt: now,
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

// Email is the bound identity's email.
func (s *Session) Email() string {
	return s.Identity.Email
}

// Kind is the transport shape, or empty for a session with no transport.
func (s *Session) Kind() Kind {
	if s.Transport == nil {
		return ""
	}
	return s.Transport.Kind()
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Touch records client activity.
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the last recorded activity.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Signal requests a tool-list-changed notification. Signals coalesce: while
// one is pending, further signals are dropped.
func (s *Session) Signal() bool {
	if s.Closed() {
		return false
	}
	select {
	case s.signal <- struct{}{}:
		return true
	default:
		return false
	}
}

// CachedView returns the cached tool names and the current view generation.
// ok is false when no valid view is cached.
func (s *Session) CachedView() (names []string, gen uint64, ok bool) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	if !s.viewValid {
		return nil, s.viewGen, false
	}
	return slices.Clone(s.viewNames), s.viewGen, true
}

// StoreView caches names if no invalidation happened since gen was read.
// It reports whether the view was stored.
func (s *Session) StoreView(names []string, gen uint64) bool {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	if gen != s.viewGen {
		return false
	}
	s.viewNames = slices.Clone(names)
	s.viewValid = true
	return true
}

// InvalidateView drops the cached view and bumps the generation so that any
// computation already in flight is discarded.
func (s *Session) InvalidateView() {
	s.viewMu.Lock()
	s.viewGen++
	s.viewNames = nil
	s.viewValid = false
	s.viewMu.Unlock()
}

// shutdown runs exactly once per session.
func (s *Session) shutdown() (first bool) {
	s.closeOnce.Do(func() {
		close(s.done)
		first = true
	})
	return first
}
