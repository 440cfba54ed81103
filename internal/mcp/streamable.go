// ABOUTME: Continuation-channel MCP transport: POST/GET/DELETE on {base}/mcp.
// ABOUTME: Sessions ride the Mcp-Session-Id header; GET optionally attaches a notification stream.

package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/session"
)

// SessionHeader carries the session id on the continuation channel.
const SessionHeader = "Mcp-Session-Id"

// ProtocolVersionHeader carries the negotiated protocol version.
const ProtocolVersionHeader = "Mcp-Protocol-Version"

// streamableConn is the server-to-client half of a continuation session.
// Responses go in POST bodies; only notifications use the attached stream.
type streamableConn struct {
	mu     sync.Mutex
	stream *eventStream
	closed bool
}

func (c *streamableConn) Kind() session.Kind { return session.KindContinuation }

func (c *streamableConn) Send(ctx context.Context, msg []byte) error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return session.ErrNoStream
	}
	return stream.event("message", msg)
}

// Heartbeat writes a keepalive on the attached GET stream. A failed write
// detaches the stream and leaves the session open.
func (c *streamableConn) Heartbeat() error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return session.ErrNoStream
	}
	if err := stream.comment("heartbeat"); err != nil {
		c.detach(stream)
		return session.ErrNoStream
	}
	return nil
}

func (c *streamableConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.stream != nil {
		c.stream.close()
		c.stream = nil
	}
	return nil
}

// attach installs stream unless one is already attached or the conn is closed.
func (c *streamableConn) attach(stream *eventStream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.stream != nil {
		return false
	}
	c.stream = stream
	return true
}

// detach removes stream if it is still the attached one.
func (c *streamableConn) detach(stream *eventStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == stream {
		c.stream = nil
	}
	stream.close()
}

// StreamableConfig holds configuration for the continuation-channel transport.
type StreamableConfig struct {
	Sessions      *session.Manager
	Dispatcher    *Dispatcher
	Authenticator auth.Authenticator
	BasePath      string
	Logger        *slog.Logger
}

// StreamableHandler serves the continuation-channel transport.
type StreamableHandler struct {
	sessions   *session.Manager
	dispatcher *Dispatcher
	authn      auth.Authenticator
	basePath   string
	logger     *slog.Logger
}

// NewStreamableHandler creates the continuation-channel transport handler.
func NewStreamableHandler(cfg StreamableConfig) (*StreamableHandler, error) {
	if cfg.Sessions == nil || cfg.Dispatcher == nil || cfg.Authenticator == nil {
		return nil, errors.New("sessions, dispatcher and authenticator are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamableHandler{
		sessions:   cfg.Sessions,
		dispatcher: cfg.Dispatcher,
		authn:      cfg.Authenticator,
		basePath:   cleanBasePath(cfg.BasePath),
		logger:     logger.With("component", "mcp-streamable"),
	}, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (h *StreamableHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(h.basePath+"/mcp", h.handleMCP)
}

// handleMCP dispatches by HTTP method.
func (h *StreamableHandler) handleMCP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authn.Authenticate(r)
	if err != nil {
		h.logger.Debug("MCP request rejected", "method", r.Method, "remote_addr", r.RemoteAddr, "error", err)
		auth.WriteAuthError(w, err)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r, identity)
	case http.MethodGet:
		h.handleGet(w, r, identity)
	case http.MethodDelete:
		h.handleDelete(w, r, identity)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// ownedSession resolves the request's session header for identity. A
// session owned by someone else is treated as unknown.
func (h *StreamableHandler) ownedSession(r *http.Request, identity auth.Identity) (*session.Session, bool) {
	sess, err := h.sessions.Get(r.Header.Get(SessionHeader))
	if err != nil || sess.Kind() != session.KindContinuation {
		return nil, false
	}
	if sess.Email() != identity.Email {
		h.logger.Warn("session used by another identity",
			"session_id", sess.ID,
			"owner", sess.Email(),
			"email", identity.Email,
		)
		return nil, false
	}
	return sess, true
}

func (h *StreamableHandler) handlePost(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	req, errResp := decodeRequest(r.Body)
	if errResp != nil {
		writeJSON(w, http.StatusBadRequest, errResp)
		return
	}

	if req.Method == "initialize" {
		h.handleInitialize(w, r, identity, req)
		return
	}

	if v := r.Header.Get(ProtocolVersionHeader); v != "" && !supportedProtocolVersions[v] {
		http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
		return
	}

	sess, ok := h.ownedSession(r, identity)
	if !ok {
		writeJSON(w, http.StatusBadRequest, noSessionBody)
		return
	}

	resp := h.dispatcher.Handle(r.Context(), sess, req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInitialize creates a session and answers the handshake on it. A
// failed handshake discards the session.
func (h *StreamableHandler) handleInitialize(w http.ResponseWriter, r *http.Request, identity auth.Identity, req *Request) {
	if req.IsNotification() {
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, CodeInvalidRequest, "initialize requires an id"))
		return
	}

	sess, err := h.sessions.Create(identity, &streamableConn{})
	if err != nil {
		auth.WriteAuthError(w, auth.ErrMissingCredential)
		return
	}

	resp := h.dispatcher.Handle(r.Context(), sess, req)
	if resp == nil || resp.Error != nil {
		h.sessions.Close(sess.ID)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	w.Header().Set(SessionHeader, sess.ID)
	writeJSON(w, http.StatusOK, resp)
}

// handleGet attaches a notification stream to the session and holds it open.
func (h *StreamableHandler) handleGet(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	sess, ok := h.ownedSession(r, identity)
	if !ok {
		writeJSON(w, http.StatusBadRequest, noSessionBody)
		return
	}
	conn, ok := sess.Transport.(*streamableConn)
	if !ok {
		writeJSON(w, http.StatusBadRequest, noSessionBody)
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !conn.attach(stream) {
		http.Error(w, "notification stream already attached", http.StatusConflict)
		return
	}
	defer conn.detach(stream)
	stream.open()

	h.logger.Debug("notification stream attached", "session_id", sess.ID)

	// Keepalives come from the session manager's heartbeat.
	select {
	case <-r.Context().Done():
	case <-sess.Done():
	case <-stream.done:
	}
}

// handleDelete closes the caller's own session.
func (h *StreamableHandler) handleDelete(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, noSessionBody)
		return
	}
	sess, err := h.sessions.Get(id)
	if err != nil || sess.Kind() != session.KindContinuation {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if sess.Email() != identity.Email {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	h.sessions.Close(id)
	w.WriteHeader(http.StatusNoContent)
}
