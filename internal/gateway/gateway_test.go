// ABOUTME: Tests for Gateway wiring, startup loading and HTTP lifecycle
// ABOUTME: Drives the real mux end to end: health, admin API, and an MCP session

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/config"
	"github.com/2389/toolhub/internal/mcp"
	"github.com/2389/toolhub/internal/tools"
)

const testSecret = "toolhub-gateway-test-secret-32b!"

// testConfig creates a minimal config backed by an in-memory database.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: ":memory:"},
		Auth:     config.AuthConfig{JWTSecret: testSecret},
		Sessions: config.SessionsConfig{HeartbeatInterval: time.Hour},
		Tools:    config.ToolsConfig{CallTimeout: 5 * time.Second},
		Capability: config.CapabilityConfig{
			Mode: "live",
		},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, cfg *config.Config) *Gateway {
	t.Helper()
	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return gw
}

func token(t *testing.T, email string, roles ...string) string {
	t.Helper()
	v, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	tok, err := v.Generate(auth.Identity{Email: email, Roles: roles}, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, gw *Gateway, method, path, tok, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if sessionID != "" {
		req.Header.Set(mcp.SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	return rec
}

func rpc(id int, method string, params any) string {
	msg := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		msg["params"] = params
	}
	data, _ := json.Marshal(msg)
	return string(data)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *mcp.Error      `json:"error"`
}

func decodeRPC(t *testing.T, rec *httptest.ResponseRecorder) rpcResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
	return resp
}

func openSession(t *testing.T, gw *Gateway, tok string) string {
	t.Helper()
	rec := do(t, gw, http.MethodPost, "/mcp", tok, "", rpc(1, "initialize", map[string]any{"protocolVersion": "2025-06-18"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := rec.Header().Get(mcp.SessionHeader)
	require.NotEmpty(t, id)
	return id
}

// provision upserts a user through the admin API.
func provision(t *testing.T, gw *Gateway, adminTok, email string, roles ...string) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"roles": roles})
	require.NoError(t, err)
	rec := do(t, gw, http.MethodPut, "/api/admin/users/"+email, adminTok, "", string(body))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func callTool(t *testing.T, gw *Gateway, tok, sessionID, name string) tools.Result {
	t.Helper()
	resp := decodeRPC(t, do(t, gw, http.MethodPost, "/mcp", tok, sessionID,
		rpc(3, "tools/call", map[string]any{"name": name, "arguments": map[string]any{}})))
	var result tools.Result
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	return result
}

func listTools(t *testing.T, gw *Gateway, tok, sessionID string) []string {
	t.Helper()
	resp := decodeRPC(t, do(t, gw, http.MethodPost, "/mcp", tok, sessionID, rpc(2, "tools/list", nil)))
	var list struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	names := make([]string, len(list.Tools))
	for i, ti := range list.Tools {
		names[i] = ti.Name
	}
	return names
}

func TestGatewayNew(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	_, ok := gw.registry.Get("whoami")
	assert.True(t, ok, "base pack should be synced")
	_, ok = gw.registry.Get("admin_share_tool")
	assert.True(t, ok, "admin pack should be synced")
	assert.Equal(t, gw.registry, gw.Registry())
	assert.NotEmpty(t, gw.serverID)
}

func TestGatewayNew_BuiltinsDisabled(t *testing.T) {
	cfg := testConfig(t)
	off := false
	cfg.Tools.BuiltinsEnabled = &off

	gw := newTestGateway(t, cfg)
	assert.Equal(t, 0, gw.registry.Len())
}

func TestGatewayNew_InvalidConfig(t *testing.T) {
	t.Run("bad mode", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Capability.Mode = "psychic"
		_, err := New(cfg, testLogger())
		require.Error(t, err)
	})

	t.Run("no credentials", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWTSecret = ""
		_, err := New(cfg, testLogger())
		require.Error(t, err)
	})

	t.Run("bad api key hash", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.APIKeys = []config.APIKeyConfig{{Email: "ci@example.com", KeyHash: "plaintext"}}
		_, err := New(cfg, testLogger())
		require.Error(t, err)
	})
}

func TestHealthEndpoints(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	rec := do(t, gw, http.MethodGet, "/health", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, gw, http.MethodGet, "/health/ready", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready (")
}

func TestGateway_EndToEnd(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	root := token(t, "root@example.com", auth.RoleAdmin)
	alice := token(t, "alice@example.com", "user")
	provision(t, gw, root, "root@example.com", auth.RoleAdmin)
	provision(t, gw, root, "alice@example.com", "user")

	// Admin registers a tool for the "user" role.
	def := `{"name":"motd","description":"Message of the day","handlerType":"static",` +
		`"handlerConfig":{"text":"hello"},"rolesPermitted":["user"]}`
	rec := do(t, gw, http.MethodPost, "/api/admin/tools", root, "", def)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Non-admins can't reach the admin API.
	rec = do(t, gw, http.MethodGet, "/api/admin/tools", alice, "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	sid := openSession(t, gw, alice)
	names := listTools(t, gw, alice, sid)
	assert.Contains(t, names, "motd")
	assert.Contains(t, names, "whoami")
	assert.NotContains(t, names, "admin_share_tool")

	result := callTool(t, gw, alice, sid, "motd")
	assert.False(t, result.IsError)
	assert.Equal(t, "hello", result.Text())

	// The admin sees the admin pack.
	adminSID := openSession(t, gw, root)
	assert.Contains(t, listTools(t, gw, root, adminSID), "admin_share_tool")

	rec = do(t, gw, http.MethodGet, "/health/ready", "", "", "")
	assert.Contains(t, rec.Body.String(), "2 sessions")
}

func TestGateway_UnprovisionedUser(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	root := token(t, "root@example.com", auth.RoleAdmin)
	bob := token(t, "bob@example.com", "user")

	// A valid token alone lists nothing and every call is denied.
	sid := openSession(t, gw, bob)
	assert.Empty(t, listTools(t, gw, bob, sid))

	result := callTool(t, gw, bob, sid, "whoami")
	assert.True(t, result.IsError)
	assert.Equal(t, "not authorized to call whoami: user_not_found", result.Text())

	rec := do(t, gw, http.MethodGet, "/api/admin/audit?user=bob@example.com", root, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "user_not_found")

	// Provisioning notifies bob's sessions; the next listing and call succeed.
	provision(t, gw, root, "bob@example.com", "user")
	assert.Contains(t, listTools(t, gw, bob, sid), "whoami")
	assert.False(t, callTool(t, gw, bob, sid, "whoami").IsError)
}

func TestGateway_NotifyToolListChanged(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	alice := token(t, "alice@example.com", "user")

	sid := openSession(t, gw, alice)
	sess, err := gw.sessions.Get(sid)
	require.NoError(t, err)

	_ = listTools(t, gw, alice, sid)
	_, _, cached := sess.CachedView()
	require.True(t, cached)

	gw.NotifyToolListChanged(context.Background(), "alice@example.com")
	_, _, cached = sess.CachedView()
	assert.False(t, cached, "notification should invalidate the cached view")
}

func TestGateway_ReloadsStoredTools(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "toolhub.db")

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	_, err = gw.admin.RegisterTool(context.Background(), tools.Definition{
		Name:          "motd",
		Description:   "Message of the day",
		HandlerType:   "static",
		HandlerConfig: json.RawMessage(`{"text":"hello"}`),
	})
	require.NoError(t, err)
	require.NoError(t, gw.Shutdown(context.Background()))

	gw2 := newTestGateway(t, cfg)
	def, ok := gw2.registry.Get("motd")
	require.True(t, ok, "stored tool should be reloaded")
	assert.Equal(t, "static", def.HandlerType)
	assert.False(t, def.IsSystem(), "tools registered without a caller are not built-ins")

	entry, ok := gw2.registry.Entry("whoami")
	require.True(t, ok)
	assert.True(t, entry.Definition().IsSystem())
}

func TestGateway_ServeAndShutdown(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
