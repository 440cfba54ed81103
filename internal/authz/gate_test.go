// ABOUTME: Tests for the live authorization gate
// ABOUTME: Covers every denial reason, share revocation and the audit trail

package authz

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/toolhub/internal/store"
	"github.com/2389/toolhub/internal/tools"
)

func newRegistry(t *testing.T, defs ...tools.Definition) *tools.Registry {
	t.Helper()
	d := tools.NewDispatch()
	d.RegisterFactory("noop", func(json.RawMessage) (tools.Handler, error) {
		return func(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
			return tools.TextResult("ok"), nil
		}, nil
	})
	r := tools.NewRegistry(tools.RegistryConfig{Dispatch: d})
	for _, def := range defs {
		def.HandlerType = "noop"
		_, err := r.Register(def)
		require.NoError(t, err)
	}
	return r
}

func setup(t *testing.T) (*Gate, *store.MockStore) {
	t.Helper()
	reg := newRegistry(t,
		tools.Definition{Name: "list-users", RolesPermitted: []string{"admin"}},
		tools.Definition{Name: "share-tool", RolesPermitted: []string{"admin"}},
		tools.Definition{Name: "help", AlwaysVisible: true},
	)
	st := store.NewMockStore()
	st.PutUser(&store.UserIdentity{
		Email:       "u@x.com",
		Roles:       []string{"user"},
		SharedTools: []store.SharedTool{{ToolID: "share-tool", AccessLevel: store.AccessRead}},
	})
	st.PutUser(&store.UserIdentity{Email: "admin@x.com", Roles: []string{"admin"}})
	return New(Config{Registry: reg, Identities: st, Audit: st}), st
}

func TestGate_Authorize(t *testing.T) {
	g, _ := setup(t)

	tests := []struct {
		name   string
		email  string
		tool   string
		want   bool
		reason string
	}{
		{"no email", "", "help", false, ReasonNoEmail},
		{"unknown user", "ghost@x.com", "help", false, ReasonUserNotFound},
		{"role match", "admin@x.com", "list-users", true, ""},
		{"role mismatch", "u@x.com", "list-users", false, ReasonNotAuthorized},
		{"shared", "u@x.com", "share-tool", true, ""},
		{"always visible", "u@x.com", "help", true, ""},
		{"missing tool", "admin@x.com", "nope", false, ReasonNotAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Authorize(context.Background(), tt.email, tt.tool)
			assert.Equal(t, tt.want, d.Authorized)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestGate_RevokedShareDeniesImmediately(t *testing.T) {
	g, st := setup(t)
	ctx := context.Background()

	require.True(t, g.Authorize(ctx, "u@x.com", "share-tool").Authorized)

	removed, err := st.UnshareTool(ctx, "u@x.com", "share-tool")
	require.NoError(t, err)
	require.True(t, removed)

	d := g.Authorize(ctx, "u@x.com", "share-tool")
	assert.False(t, d.Authorized)
	assert.Equal(t, ReasonNotAuthorized, d.Reason)
}

func TestGate_DependencyFailure(t *testing.T) {
	g, st := setup(t)
	st.SetLookupError(errors.New("db down"))

	d := g.Authorize(context.Background(), "u@x.com", "share-tool")
	assert.False(t, d.Authorized)
	assert.Equal(t, ReasonDependencyFailure, d.Reason)
	assert.Equal(t, 1, st.Calls("FindIdentity"), "lookups are not retried")
}

func TestGate_AuditsEveryDecision(t *testing.T) {
	g, st := setup(t)
	ctx := context.Background()

	g.Authorize(ctx, "u@x.com", "list-users")
	g.Authorize(ctx, "u@x.com", "share-tool")

	entries, err := st.ListAuditLog(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, store.AuditToolCallAuthorization, entries[0].Event)
	assert.Equal(t, "share-tool", entries[0].Tool)
	assert.Equal(t, store.AuditStatusAuthorized, entries[0].Status)

	assert.Equal(t, "list-users", entries[1].Tool)
	assert.Equal(t, store.AuditStatusDenied, entries[1].Status)
	assert.Equal(t, ReasonNotAuthorized, entries[1].Reason)
}

func TestGate_AuditFailureDoesNotChangeDecision(t *testing.T) {
	g, st := setup(t)
	st.SetAuditError(errors.New("disk full"))

	assert.True(t, g.Authorize(context.Background(), "u@x.com", "share-tool").Authorized)
	assert.False(t, g.Authorize(context.Background(), "u@x.com", "list-users").Authorized)
}
