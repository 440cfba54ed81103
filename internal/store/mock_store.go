// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject lookup and audit failures

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/2389/toolhub/internal/tools"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	users    map[string]*UserIdentity     // keyed by email
	defs     map[string]tools.Definition // keyed by tool name
	audit    []AuditEntry
	lookErr  error // returned by FindIdentity and CheckToolAccess
	auditErr error // returned by AppendAuditLog
	defsErr  error // returned by SaveToolDefinition and DeleteToolDefinition
	calls    map[string]int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users: make(map[string]*UserIdentity),
		defs:  make(map[string]tools.Definition),
		calls: make(map[string]int),
	}
}

// SetLookupError makes identity lookups fail with err until cleared with nil.
func (m *MockStore) SetLookupError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookErr = err
}

// SetAuditError makes AppendAuditLog fail with err until cleared with nil.
func (m *MockStore) SetAuditError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditErr = err
}

// SetDefinitionError makes definition writes fail with err until cleared with nil.
func (m *MockStore) SetDefinitionError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defsErr = err
}

// Calls returns how many times method was invoked.
func (m *MockStore) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// FindIdentity returns a copy of the stored user.
func (m *MockStore) FindIdentity(ctx context.Context, email string) (*UserIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["FindIdentity"]++

	if m.lookErr != nil {
		return nil, m.lookErr
	}
	u, ok := m.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

// CheckToolAccess reports whether toolName is shared with email.
func (m *MockStore) CheckToolAccess(ctx context.Context, email, toolName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["CheckToolAccess"]++

	if m.lookErr != nil {
		return false, m.lookErr
	}
	u, ok := m.users[email]
	if !ok {
		return false, nil
	}
	return u.HasShare(toolName), nil
}

// UpsertUser stores roles and allow-list, keeping existing grants.
func (m *MockStore) UpsertUser(ctx context.Context, u *UserIdentity) error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := m.users[u.Email]
	if !ok {
		existing = &UserIdentity{Email: u.Email, SharedTools: []SharedTool{}, HiddenTools: []string{}, CreatedAt: now}
		m.users[u.Email] = existing
	}
	existing.Roles = sortedRoles(u.Roles)
	existing.ToolsAvailable = nil
	if u.ToolsAvailable != nil {
		existing.ToolsAvailable = append([]string{}, u.ToolsAvailable...)
	}
	existing.UpdatedAt = now
	return nil
}

// PutUser stores u verbatim, including shares and hidden tools.
func (m *MockStore) PutUser(u *UserIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Email] = u.Clone()
}

// ListUsers returns copies of all users sorted by email.
func (m *MockStore) ListUsers(ctx context.Context) ([]*UserIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*UserIdentity, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u.Clone())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

// SetRoles replaces a user's roles.
func (m *MockStore) SetRoles(ctx context.Context, email string, roles []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[email]
	if !ok {
		return ErrNotFound
	}
	u.Roles = sortedRoles(roles)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// ShareTool grants a tool to a user.
func (m *MockStore) ShareTool(ctx context.Context, email string, share SharedTool) error {
	if share.AccessLevel == "" {
		share.AccessLevel = AccessRead
	}
	if !share.AccessLevel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAccessLevel, share.AccessLevel)
	}
	if share.SharedAt.IsZero() {
		share.SharedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[email]
	if !ok {
		return ErrNotFound
	}
	u.SharedTools = slices.DeleteFunc(u.SharedTools, func(s SharedTool) bool { return s.ToolID == share.ToolID })
	u.SharedTools = append(u.SharedTools, share)
	sort.Slice(u.SharedTools, func(i, j int) bool { return u.SharedTools[i].ToolID < u.SharedTools[j].ToolID })
	return nil
}

// UnshareTool revokes a grant.
func (m *MockStore) UnshareTool(ctx context.Context, email, toolName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[email]
	if !ok {
		return false, nil
	}
	before := len(u.SharedTools)
	u.SharedTools = slices.DeleteFunc(u.SharedTools, func(s SharedTool) bool { return s.ToolID == toolName })
	return len(u.SharedTools) < before, nil
}

// HideTool hides a tool from a user's listings.
func (m *MockStore) HideTool(ctx context.Context, email, toolName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[email]
	if !ok {
		return ErrNotFound
	}
	if !slices.Contains(u.HiddenTools, toolName) {
		u.HiddenTools = append(u.HiddenTools, toolName)
		slices.Sort(u.HiddenTools)
	}
	return nil
}

// UnhideTool removes a hide entry.
func (m *MockStore) UnhideTool(ctx context.Context, email, toolName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[email]
	if !ok {
		return false, nil
	}
	before := len(u.HiddenTools)
	u.HiddenTools = slices.DeleteFunc(u.HiddenTools, func(s string) bool { return s == toolName })
	return len(u.HiddenTools) < before, nil
}

// PruneSharedTool removes all grants and hide entries for toolName.
func (m *MockStore) PruneSharedTool(ctx context.Context, toolName string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	affected := []string{}
	for email, u := range m.users {
		before := len(u.SharedTools)
		u.SharedTools = slices.DeleteFunc(u.SharedTools, func(s SharedTool) bool { return s.ToolID == toolName })
		if len(u.SharedTools) < before {
			affected = append(affected, email)
		}
		u.HiddenTools = slices.DeleteFunc(u.HiddenTools, func(s string) bool { return s == toolName })
	}
	sort.Strings(affected)
	return affected, nil
}

// ListToolDefinitions returns stored definitions sorted by name.
func (m *MockStore) ListToolDefinitions(ctx context.Context) ([]tools.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	defs := make([]tools.Definition, 0, len(m.defs))
	for _, d := range m.defs {
		defs = append(defs, d.Clone())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// SaveToolDefinition stores a definition by name.
func (m *MockStore) SaveToolDefinition(ctx context.Context, def tools.Definition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", tools.ErrInvalidDefinition)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defsErr != nil {
		return m.defsErr
	}
	m.defs[def.Name] = def.Clone()
	return nil
}

// DeleteToolDefinition removes a definition.
func (m *MockStore) DeleteToolDefinition(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defsErr != nil {
		return false, m.defsErr
	}
	_, ok := m.defs[name]
	delete(m.defs, name)
	return ok, nil
}

// AppendAuditLog records an entry in memory.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.auditErr != nil {
		return m.auditErr
	}
	prepareAuditEntry(e)
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns matching entries newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeAuditLimit(f.Limit)
	entries := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		e := m.audit[i]
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Until != nil && e.Timestamp.After(*f.Until) {
			continue
		}
		if f.User != nil && e.User != *f.User {
			continue
		}
		if f.Tool != nil && e.Tool != *f.Tool {
			continue
		}
		if f.Event != nil && e.Event != *f.Event {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time check that MockStore implements Store.
var _ Store = (*MockStore)(nil)
