// ABOUTME: Tests for the admin CLI against a real admin API over httptest
// ABOUTME: Covers argument parsing, definition files, and each API-backed command

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/toolhub/internal/admin"
	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/builtins"
	"github.com/2389/toolhub/internal/store"
	"github.com/2389/toolhub/internal/tools"
)

type staticAuthn map[string]auth.Identity

func (a staticAuthn) Authenticate(r *http.Request) (auth.Identity, error) {
	id, ok := a[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return id, nil
}

type nopNotifier struct{}

func (nopNotifier) NotifyToolListChanged(ctx context.Context, email string) int { return 0 }

type cliFixture struct {
	store    *store.MockStore
	registry *tools.Registry
	client   *client
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dispatch := tools.NewDispatch()
	dispatch.RegisterFactory(builtins.StaticHandlerType, builtins.StaticFactory)
	registry := tools.NewRegistry(tools.RegistryConfig{Dispatch: dispatch, Logger: logger})
	ms := store.NewMockStore()

	svc, err := admin.NewService(admin.Config{Registry: registry, Store: ms, Notifier: nopNotifier{}, Logger: logger})
	require.NoError(t, err)
	api, err := admin.NewAPI(admin.APIConfig{
		Service: svc,
		Authenticator: staticAuthn{
			"root": {Email: "root@example.com", Roles: []string{auth.RoleAdmin}},
		},
		Builtins: func() []tools.Definition {
			return []tools.Definition{{
				Name:          "banner",
				HandlerType:   builtins.StaticHandlerType,
				HandlerConfig: []byte(`{"text":"hi"}`),
				Creator:       tools.SystemCreator,
			}}
		},
		Logger: logger,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &cliFixture{store: ms, registry: registry, client: newClient(srv.URL+"/", "root")}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const motdYAML = `
name: motd
description: Message of the day
handlerType: static
handlerConfig:
  text: hello
inputSchema:
  type: object
  properties: {}
rolesPermitted: [user]
`

func TestParseArgs(t *testing.T) {
	pos, flags, err := parseArgs([]string{"alice@example.com", "--roles", "a,b", "motd", "--tools=x"}, "roles", "tools")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com", "motd"}, pos)
	assert.Equal(t, map[string]string{"roles": "a,b", "tools": "x"}, flags)

	_, _, err = parseArgs([]string{"--nope", "x"}, "roles")
	assert.ErrorContains(t, err, "unknown flag")

	_, _, err = parseArgs([]string{"--roles"}, "roles")
	assert.ErrorContains(t, err, "requires a value")
}

func TestLoadDefinition(t *testing.T) {
	def, err := loadDefinition(writeFile(t, "motd.yaml", motdYAML))
	require.NoError(t, err)
	assert.Equal(t, "motd", def.Name)
	assert.Equal(t, "static", def.HandlerType)
	assert.JSONEq(t, `{"text":"hello"}`, string(def.HandlerConfig))
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(def.InputSchema))
	assert.Equal(t, []string{"user"}, def.RolesPermitted)

	def, err = loadDefinition(writeFile(t, "motd.json", `{"name":"motd","handlerType":"static","alwaysVisible":true}`))
	require.NoError(t, err)
	assert.True(t, def.AlwaysVisible)

	_, err = loadDefinition(writeFile(t, "bad.yaml", "name: [unclosed"))
	assert.Error(t, err)

	_, err = loadDefinition(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCommands_ToolAndGrantLifecycle(t *testing.T) {
	f := newCLIFixture(t)
	ctx := context.Background()

	require.NoError(t, run(ctx, f.client, "tools", []string{"register", writeFile(t, "motd.yaml", motdYAML)}))
	def, ok := f.registry.Get("motd")
	require.True(t, ok)
	assert.Equal(t, "root@example.com", def.Creator)
	require.NoError(t, run(ctx, f.client, "tools", nil))

	require.NoError(t, run(ctx, f.client, "users", []string{"upsert", "alice@example.com", "--roles", "user"}))
	require.NoError(t, run(ctx, f.client, "share", []string{"alice@example.com", "motd", "--level", "write"}))

	u, err := f.store.FindIdentity(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, u.Roles)
	require.Len(t, u.SharedTools, 1)
	assert.Equal(t, store.AccessLevel("write"), u.SharedTools[0].AccessLevel)
	assert.Equal(t, "root@example.com", u.SharedTools[0].SharedBy)

	require.NoError(t, run(ctx, f.client, "hide", []string{"alice@example.com", "motd"}))
	require.NoError(t, run(ctx, f.client, "users", []string{"roles", "alice@example.com", "user,ops"}))
	require.NoError(t, run(ctx, f.client, "users", nil))

	u, err = f.store.FindIdentity(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"motd"}, u.HiddenTools)
	assert.Equal(t, []string{"ops", "user"}, u.Roles)

	require.NoError(t, run(ctx, f.client, "unhide", []string{"alice@example.com", "motd"}))
	require.NoError(t, run(ctx, f.client, "unshare", []string{"alice@example.com", "motd"}))
	shared, err := f.store.CheckToolAccess(ctx, "alice@example.com", "motd")
	require.NoError(t, err)
	assert.False(t, shared)

	require.NoError(t, run(ctx, f.client, "audit", []string{"--user", "root@example.com", "--limit", "5"}))

	require.NoError(t, run(ctx, f.client, "tools", []string{"remove", "motd"}))
	_, ok = f.registry.Get("motd")
	assert.False(t, ok)
}

func TestCommands_Errors(t *testing.T) {
	f := newCLIFixture(t)
	ctx := context.Background()

	err := run(ctx, f.client, "share", []string{"alice@example.com", "nope"})
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	err = run(ctx, newClient(f.client.baseURL, "wrong"), "tools", nil)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	assert.Error(t, run(ctx, f.client, "share", []string{"only-email"}))
	assert.Error(t, run(ctx, f.client, "audit", []string{"--limit", "many"}))
	assert.Error(t, run(ctx, f.client, "tools", []string{"frobnicate"}))
	assert.Error(t, run(ctx, f.client, "bogus", nil))
}

func TestCommands_SyncBuiltins(t *testing.T) {
	f := newCLIFixture(t)

	require.NoError(t, run(context.Background(), f.client, "sync-builtins", nil))
	def, ok := f.registry.Get("banner")
	require.True(t, ok)
	assert.True(t, def.IsSystem())
}

func TestHashKey(t *testing.T) {
	key, err := generateKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "th_"))
	assert.Len(t, key, 3+64)

	hash, err := auth.HashAPIKey(key)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)))

	assert.NoError(t, cmdHashKey([]string{"secret"}))
	assert.NoError(t, cmdHashKey(nil))
	assert.Error(t, cmdHashKey([]string{"a", "b"}))
}

func TestUserPath(t *testing.T) {
	assert.Equal(t, "/users/a%2Fb@example.com/shares/my%20tool", userPath("a/b@example.com", "shares", "my tool"))
}
