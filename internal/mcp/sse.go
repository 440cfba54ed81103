// ABOUTME: Push-stream MCP transport: GET {base}/sse plus POST {base}/message?sessionId=.
// ABOUTME: Responses and notifications travel back over the long-lived event stream.

package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/session"
)

// sseTransport adapts an eventStream to session.Transport.
type sseTransport struct {
	stream *eventStream
}

func (t *sseTransport) Kind() session.Kind { return session.KindPushStream }

func (t *sseTransport) Send(ctx context.Context, msg []byte) error {
	return t.stream.event("message", msg)
}

func (t *sseTransport) Heartbeat() error {
	return t.stream.comment("heartbeat")
}

func (t *sseTransport) Close() error {
	t.stream.close()
	return nil
}

// SSEConfig holds configuration for the push-stream transport.
type SSEConfig struct {
	Sessions      *session.Manager
	Dispatcher    *Dispatcher
	Authenticator auth.Authenticator
	BasePath      string
	Logger        *slog.Logger
}

// SSEHandler serves the push-stream transport.
type SSEHandler struct {
	sessions   *session.Manager
	dispatcher *Dispatcher
	authn      auth.Authenticator
	basePath   string
	logger     *slog.Logger
}

// NewSSEHandler creates the push-stream transport handler.
func NewSSEHandler(cfg SSEConfig) (*SSEHandler, error) {
	if cfg.Sessions == nil || cfg.Dispatcher == nil || cfg.Authenticator == nil {
		return nil, errors.New("sessions, dispatcher and authenticator are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEHandler{
		sessions:   cfg.Sessions,
		dispatcher: cfg.Dispatcher,
		authn:      cfg.Authenticator,
		basePath:   cleanBasePath(cfg.BasePath),
		logger:     logger.With("component", "mcp-sse"),
	}, nil
}

// RegisterRoutes registers the SSE and message endpoints on the given ServeMux.
func (h *SSEHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+h.basePath+"/sse", h.handleSSE)
	mux.HandleFunc("POST "+h.basePath+"/message", h.handleMessage)
}

// handleSSE authenticates, opens the stream, announces the message endpoint
// and holds the connection until the client or the session goes away.
func (h *SSEHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authn.Authenticate(r)
	if err != nil {
		h.logger.Debug("SSE connection rejected", "remote_addr", r.RemoteAddr, "error", err)
		auth.WriteAuthError(w, err)
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	stream.open()

	sess, err := h.sessions.Create(identity, &sseTransport{stream: stream})
	if err != nil {
		stream.close()
		return
	}
	defer h.sessions.Close(sess.ID)

	endpoint := h.basePath + "/message?sessionId=" + url.QueryEscape(sess.ID)
	if err := stream.event("endpoint", []byte(endpoint)); err != nil {
		h.logger.Debug("failed to send endpoint event", "session_id", sess.ID, "error", err)
		return
	}

	select {
	case <-r.Context().Done():
	case <-stream.done:
	}
}

// handleMessage accepts one client message for a push-stream session. The
// response is delivered on the session's stream.
func (h *SSEHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.URL.Query().Get("sessionId"))
	if err != nil || sess.Kind() != session.KindPushStream {
		http.Error(w, "no transport found for session", http.StatusBadRequest)
		return
	}

	req, errResp := decodeRequest(r.Body)
	if errResp != nil {
		writeJSON(w, http.StatusBadRequest, errResp)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	// The call outlives this POST; it is bounded by the session instead.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sess.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		defer cancel()
		resp := h.dispatcher.Handle(ctx, sess, req)
		if resp == nil {
			return
		}
		data, err := marshalResponse(resp)
		if err != nil {
			h.logger.Error("failed to encode response", "session_id", sess.ID, "error", err)
			return
		}
		if err := sess.Transport.Send(ctx, data); err != nil {
			h.logger.Debug("response dropped", "session_id", sess.ID, "method", req.Method, "error", err)
		}
	}()
}
