// ABOUTME: Tests for audit log store operations
// ABOUTME: Covers Append and List with filtering for the SQLite and mock stores

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStore_Append(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entry := &AuditEntry{
		Event:  AuditToolCallAuthorization,
		User:   "a@x.com",
		Tool:   "list-users",
		Status: AuditStatusDenied,
		Reason: "not_authorized",
		Detail: map[string]any{"session_id": "s-1"},
	}
	require.NoError(t, s.AppendAuditLog(ctx, entry))

	// Should have generated ID and timestamp
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())

	entries, err := s.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got := entries[0]
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, AuditToolCallAuthorization, got.Event)
	assert.Equal(t, "list-users", got.Tool)
	assert.Equal(t, "not_authorized", got.Reason)
	assert.Equal(t, "s-1", got.Detail["session_id"])
}

// auditStores runs fn against both implementations.
func auditStores(t *testing.T, fn func(t *testing.T, s AuditStore)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, setupTestStore(t)) })
	t.Run("mock", func(t *testing.T) { fn(t, NewMockStore()) })
}

func TestAuditStore_ListFilters(t *testing.T) {
	auditStores(t, func(t *testing.T, s AuditStore) {
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)

		entries := []AuditEntry{
			{Event: AuditToolCallAuthorization, User: "a@x.com", Tool: "t1", Status: AuditStatusAuthorized},
			{Event: AuditToolCallAuthorization, User: "b@x.com", Tool: "t1", Status: AuditStatusDenied, Reason: "not_authorized"},
			{Event: AuditToolShared, User: "admin@x.com", Tool: "t2", Status: AuditStatusOK},
		}
		for i := range entries {
			entries[i].Timestamp = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, s.AppendAuditLog(ctx, &entries[i]))
		}

		all, err := s.ListAuditLog(ctx, AuditFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, AuditToolShared, all[0].Event, "newest first")

		user := "b@x.com"
		byUser, err := s.ListAuditLog(ctx, AuditFilter{User: &user})
		require.NoError(t, err)
		require.Len(t, byUser, 1)
		assert.Equal(t, AuditStatusDenied, byUser[0].Status)

		tool := "t1"
		byTool, err := s.ListAuditLog(ctx, AuditFilter{Tool: &tool})
		require.NoError(t, err)
		assert.Len(t, byTool, 2)

		ev := AuditToolShared
		byEvent, err := s.ListAuditLog(ctx, AuditFilter{Event: &ev})
		require.NoError(t, err)
		assert.Len(t, byEvent, 1)

		since := base.Add(30 * time.Second)
		recent, err := s.ListAuditLog(ctx, AuditFilter{Since: &since})
		require.NoError(t, err)
		assert.Len(t, recent, 2)

		limited, err := s.ListAuditLog(ctx, AuditFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestNormalizeAuditLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeAuditLimit(0))
	assert.Equal(t, 100, normalizeAuditLimit(-5))
	assert.Equal(t, 50, normalizeAuditLimit(50))
	assert.Equal(t, 1000, normalizeAuditLimit(5000))
}

func TestMockStore_InjectedErrors(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	require.NoError(t, m.UpsertUser(ctx, &UserIdentity{Email: "a@x.com"}))

	boom := errors.New("db down")
	m.SetLookupError(boom)
	_, err := m.FindIdentity(ctx, "a@x.com")
	require.ErrorIs(t, err, boom)
	_, err = m.CheckToolAccess(ctx, "a@x.com", "t")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, m.Calls("FindIdentity"))

	m.SetLookupError(nil)
	_, err = m.FindIdentity(ctx, "a@x.com")
	require.NoError(t, err)

	m.SetAuditError(boom)
	require.ErrorIs(t, m.AppendAuditLog(ctx, &AuditEntry{Event: AuditToolShared}), boom)
}

func TestMockStore_FindIdentityReturnsCopy(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	m.PutUser(&UserIdentity{Email: "a@x.com", Roles: []string{"user"}, SharedTools: []SharedTool{{ToolID: "t", AccessLevel: AccessRead}}})

	u, err := m.FindIdentity(ctx, "a@x.com")
	require.NoError(t, err)
	u.Roles[0] = "admin"
	u.SharedTools = nil

	again, err := m.FindIdentity(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, again.Roles)
	assert.True(t, again.HasShare("t"))

	affected, err := m.PruneSharedTool(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, affected)
}
