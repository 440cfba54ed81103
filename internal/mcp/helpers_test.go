// ABOUTME: Shared fixtures for MCP tests: a static authenticator and a wired dispatcher.
// ABOUTME: Tools "greet" (role user), "secret" (role admin) and "motd" (always visible).

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/authz"
	"github.com/2389/toolhub/internal/capability"
	"github.com/2389/toolhub/internal/notify"
	"github.com/2389/toolhub/internal/session"
	"github.com/2389/toolhub/internal/store"
	"github.com/2389/toolhub/internal/tools"
)

// staticAuthn maps bearer tokens to identities.
type staticAuthn map[string]auth.Identity

func (a staticAuthn) Authenticate(r *http.Request) (auth.Identity, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return auth.Identity{}, auth.ErrMissingCredential
	}
	id, ok := a[strings.TrimPrefix(h, "Bearer ")]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return id, nil
}

const (
	aliceToken = "alice-token"
	bobToken   = "bob-token"
)

type harness struct {
	store       *store.MockStore
	registry    *tools.Registry
	sessions    *session.Manager
	dispatcher  *Dispatcher
	broadcaster *notify.Broadcaster
	authn       staticAuthn
	mux         *http.ServeMux
}

func echoFactory(config json.RawMessage) (tools.Handler, error) {
	return func(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
		return tools.TextResult(cc.Identity.Email + ":" + string(args)), nil
	}, nil
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithHeartbeat(t, time.Hour)
}

func newHarnessWithHeartbeat(t *testing.T, heartbeat time.Duration) *harness {
	t.Helper()

	st := store.NewMockStore()
	st.PutUser(&store.UserIdentity{Email: "alice@example.com", Roles: []string{"user"}})
	st.PutUser(&store.UserIdentity{Email: "bob@example.com", Roles: []string{"user"}})

	dispatch := tools.NewDispatch()
	dispatch.RegisterFactory("echo", echoFactory)
	registry := tools.NewRegistry(tools.RegistryConfig{Dispatch: dispatch})

	for _, def := range []tools.Definition{
		{Name: "greet", Description: "Say hello", HandlerType: "echo", RolesPermitted: []string{"user"}},
		{Name: "secret", Description: "Admin only", HandlerType: "echo", RolesPermitted: []string{"admin"}},
		{Name: "motd", Description: "Message of the day", HandlerType: "echo", AlwaysVisible: true},
	} {
		_, err := registry.Register(def)
		require.NoError(t, err)
	}

	sessions := session.NewManager(session.Config{HeartbeatInterval: heartbeat})
	t.Cleanup(func() { sessions.CloseAll() })

	engine := capability.New(capability.Config{Registry: registry, Identities: st})
	gate := authz.New(authz.Config{Registry: registry, Identities: st, Audit: st})

	dispatcher, err := NewDispatcher(DispatcherConfig{
		Registry:     registry,
		Capabilities: engine,
		Gate:         gate,
	})
	require.NoError(t, err)

	authn := staticAuthn{
		aliceToken: {Email: "alice@example.com", Roles: []string{"user"}},
		bobToken:   {Email: "bob@example.com", Roles: []string{"user"}},
	}

	h := &harness{
		store:       st,
		registry:    registry,
		sessions:    sessions,
		dispatcher:  dispatcher,
		broadcaster: notify.NewBroadcaster(sessions, nil),
		authn:       authn,
		mux:         http.NewServeMux(),
	}

	sse, err := NewSSEHandler(SSEConfig{Sessions: sessions, Dispatcher: dispatcher, Authenticator: authn})
	require.NoError(t, err)
	sse.RegisterRoutes(h.mux)

	streamable, err := NewStreamableHandler(StreamableConfig{Sessions: sessions, Dispatcher: dispatcher, Authenticator: authn})
	require.NoError(t, err)
	streamable.RegisterRoutes(h.mux)

	return h
}

// shareSecret grants "secret" to alice in the store.
func (h *harness) shareSecret() {
	h.store.PutUser(&store.UserIdentity{
		Email:       "alice@example.com",
		Roles:       []string{"user"},
		SharedTools: []store.SharedTool{{ToolID: "secret", AccessLevel: store.AccessRead}},
	})
}

func rpc(id int, method string, params any) string {
	msg := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		msg["params"] = params
	}
	data, _ := json.Marshal(msg)
	return string(data)
}

// decodedResponse is a Response with raw result for easy assertions.
type decodedResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

func toolNames(t *testing.T, result json.RawMessage) []string {
	t.Helper()
	var list ListToolsResult
	require.NoError(t, json.Unmarshal(result, &list))
	names := make([]string, len(list.Tools))
	for i, ti := range list.Tools {
		names[i] = ti.Name
	}
	return names
}

func callResult(t *testing.T, result json.RawMessage) tools.Result {
	t.Helper()
	var res tools.Result
	require.NoError(t, json.Unmarshal(result, &res))
	return res
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

// readEvent reads the next named event, skipping comments.
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" || ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}
