// ABOUTME: Tests for the builtin catalog, its definitions and the base pack handlers.
// ABOUTME: Tools are exercised through a real registry so dispatch and invocation are covered.

package builtins

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/tools"
)

type fakeHost struct {
	registry *tools.Registry
	notified []string
}

func (h *fakeHost) Registry() *tools.Registry { return h.registry }

func (h *fakeHost) NotifyToolListChanged(ctx context.Context, email string) {
	h.notified = append(h.notified, email)
}

// installCatalog registers every catalog tool into a fresh registry.
func installCatalog(t *testing.T, packs ...*Pack) *tools.Registry {
	t.Helper()
	catalog, err := NewCatalog(nil, packs...)
	require.NoError(t, err)

	dispatch := tools.NewDispatch()
	Install(dispatch, catalog)
	registry := tools.NewRegistry(tools.RegistryConfig{Dispatch: dispatch})
	for _, def := range catalog.Definitions() {
		_, err := registry.Register(def)
		require.NoError(t, err)
	}
	return registry
}

func call(t *testing.T, registry *tools.Registry, name string, args string, cc tools.CallContext) *tools.Result {
	t.Helper()
	entry, ok := registry.Entry(name)
	require.True(t, ok, "tool %s not registered", name)
	return entry.Invoke(context.Background(), json.RawMessage(args), cc)
}

func TestCatalog_DuplicateNames(t *testing.T) {
	_, err := NewCatalog(nil, BasePack(), BasePack())
	assert.Error(t, err)
}

func TestCatalog_Definitions(t *testing.T) {
	catalog, err := NewCatalog(nil, BasePack())
	require.NoError(t, err)

	defs := catalog.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "refresh_tools", defs[0].Name)
	assert.Equal(t, "whoami", defs[1].Name)
	for _, def := range defs {
		assert.True(t, def.IsSystem())
		assert.Equal(t, HandlerType, def.HandlerType)
		assert.JSONEq(t, `{"tool":"`+def.Name+`"}`, string(def.HandlerConfig))
	}
}

func TestCatalog_FactoryRejectsUnknownTool(t *testing.T) {
	catalog, err := NewCatalog(nil, BasePack())
	require.NoError(t, err)
	dispatch := tools.NewDispatch()
	Install(dispatch, catalog)

	_, err = dispatch.Resolve(HandlerType, json.RawMessage(`{"tool":"nope"}`))
	assert.ErrorIs(t, err, tools.ErrInvalidHandlerConfig)

	assert.Equal(t, []string{HandlerType, HTTPHandlerType, StaticHandlerType}, dispatch.Types())
}

func TestWhoami(t *testing.T) {
	registry := installCatalog(t, BasePack())

	res := call(t, registry, "whoami", `{}`, tools.CallContext{
		Identity:  auth.Identity{Email: "alice@example.com", Roles: []string{"user"}},
		SessionID: "sess-1",
	})
	require.False(t, res.IsError, res.Text())
	assert.JSONEq(t, `{"email":"alice@example.com","roles":["user"],"session_id":"sess-1"}`, res.Text())
}

func TestRefreshTools(t *testing.T) {
	registry := installCatalog(t, BasePack())
	host := &fakeHost{registry: registry}

	res := call(t, registry, "refresh_tools", `{}`, tools.CallContext{
		Identity: auth.Identity{Email: "alice@example.com"},
		Host:     host,
	})
	require.False(t, res.IsError, res.Text())
	assert.Equal(t, []string{"alice@example.com"}, host.notified)

	res = call(t, registry, "refresh_tools", `{}`, tools.CallContext{Identity: auth.Identity{Email: "alice@example.com"}})
	assert.True(t, res.IsError)
}
