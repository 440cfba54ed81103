// ABOUTME: HTTP tests for the continuation-channel transport on /mcp.
// ABOUTME: Covers auth-before-session, session header handling, ownership and the notification stream.

package mcp

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/toolhub/internal/session"
)

func postMCP(h *harness, token, sessionID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func initialize(t *testing.T, h *harness, token string) string {
	t.Helper()
	rec := postMCP(h, token, "", rpc(1, "initialize", map[string]any{"protocolVersion": "2025-06-18"}))
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(SessionHeader)
	require.NotEmpty(t, id)
	return id
}

func decodeRecorder(t *testing.T, rec *httptest.ResponseRecorder) decodedResponse {
	t.Helper()
	var resp decodedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestStreamable_AuthBeforeSession(t *testing.T) {
	h := newHarness(t)

	rec := postMCP(h, "", "", rpc(1, "initialize", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing credential"}`, rec.Body.String())

	rec = postMCP(h, "forged", "", rpc(1, "initialize", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credential"}`, rec.Body.String())

	assert.Equal(t, 0, h.sessions.Count())
}

func TestStreamable_InitializeCreatesSession(t *testing.T) {
	h := newHarness(t)

	id := initialize(t, h, aliceToken)

	sess, err := h.sessions.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", sess.Email())
	assert.Equal(t, session.KindContinuation, sess.Kind())

	rec := postMCP(h, aliceToken, id, rpc(2, "tools/list", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"greet", "motd"}, toolNames(t, decodeRecorder(t, rec).Result))
}

func TestStreamable_InvalidInitializeCreatesNoSession(t *testing.T) {
	h := newHarness(t)

	rec := postMCP(h, aliceToken, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":"bad"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(SessionHeader))
	assert.Equal(t, 0, h.sessions.Count())
}

func TestStreamable_NoValidSession(t *testing.T) {
	h := newHarness(t)
	bobSession := initialize(t, h, bobToken)

	tests := []struct {
		name      string
		sessionID string
	}{
		{"missing", ""},
		{"unknown", "00000000-0000-0000-0000-000000000000"},
		{"owned by someone else", bobSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postMCP(h, aliceToken, tt.sessionID, rpc(2, "tools/list", nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":{"code":-32000,"message":"no valid session ID provided"}}`, rec.Body.String())
		})
	}
}

func TestStreamable_NotificationAccepted(t *testing.T) {
	h := newHarness(t)
	id := initialize(t, h, aliceToken)

	rec := postMCP(h, aliceToken, id, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestStreamable_UnsupportedProtocolVersion(t *testing.T) {
	h := newHarness(t)
	id := initialize(t, h, aliceToken)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(rpc(2, "ping", nil)))
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	req.Header.Set(SessionHeader, id)
	req.Header.Set(ProtocolVersionHeader, "1999-01-01")
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamable_Delete(t *testing.T) {
	h := newHarness(t)
	id := initialize(t, h, aliceToken)

	del := func(token string) int {
		req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(SessionHeader, id)
		rec := httptest.NewRecorder()
		h.mux.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, del(bobToken))
	assert.Equal(t, http.StatusNoContent, del(aliceToken))
	assert.Equal(t, http.StatusNotFound, del(aliceToken))

	rec := postMCP(h, aliceToken, id, rpc(2, "ping", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamable_MethodNotAllowed(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPut, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func openNotificationStream(t *testing.T, srv *httptest.Server, token, sessionID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(SessionHeader, sessionID)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func TestStreamable_NotificationStream(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.mux)
	defer srv.Close()

	id := initialize(t, h, aliceToken)

	resp := openNotificationStream(t, srv, aliceToken, id)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	second := openNotificationStream(t, srv, aliceToken, id)
	second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)

	h.broadcaster.NotifyToolListChanged(t.Context(), "alice@example.com")

	ev := readEvent(t, bufio.NewReader(resp.Body))
	assert.Equal(t, "message", ev.name)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notifications/tools/list_changed"}`, ev.data)
}

func TestStreamable_ManagerHeartbeatsAttachedStream(t *testing.T) {
	h := newHarnessWithHeartbeat(t, 10*time.Millisecond)
	srv := httptest.NewServer(h.mux)
	defer srv.Close()

	id := initialize(t, h, aliceToken)
	sess, err := h.sessions.Get(id)
	require.NoError(t, err)

	// No stream yet: keepalives are skipped and the session survives.
	time.Sleep(50 * time.Millisecond)
	assert.False(t, sess.Closed())

	resp := openNotificationStream(t, srv, aliceToken, id)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	r := bufio.NewReader(resp.Body)
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == ": heartbeat\n" {
			break
		}
	}
}

func TestStreamableConn_HeartbeatWithoutStream(t *testing.T) {
	conn := &streamableConn{}
	assert.ErrorIs(t, conn.Heartbeat(), session.ErrNoStream)
}

func TestStreamable_StreamEndsWhenSessionDeleted(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.mux)
	defer srv.Close()

	id := initialize(t, h, aliceToken)
	resp := openNotificationStream(t, srv, aliceToken, id)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.True(t, h.sessions.Close(id))

	_, err := bufio.NewReader(resp.Body).ReadString('\n')
	assert.Error(t, err)
}
