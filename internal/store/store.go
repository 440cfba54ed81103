// ABOUTME: Store interfaces and data types for toolhub persistence
// ABOUTME: Defines user identities, tool shares, persisted tool definitions and the audit trail

package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/2389/toolhub/internal/tools"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidAccessLevel is returned when a share names an unknown access level
var ErrInvalidAccessLevel = errors.New("invalid access level")

// AccessLevel qualifies a share grant. Any level grants visibility and calls;
// the level is advisory for handlers.
type AccessLevel string

const (
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
)

// Valid reports whether l is a known access level.
func (l AccessLevel) Valid() bool {
	return l == AccessRead || l == AccessWrite
}

// SharedTool is an explicit per-user grant of one tool.
type SharedTool struct {
	ToolID      string      `json:"toolId"`
	SharedBy    string      `json:"sharedBy,omitempty"`
	AccessLevel AccessLevel `json:"accessLevel"`
	SharedAt    time.Time   `json:"sharedAt"`
}

// UserIdentity is the persisted view of a user.
type UserIdentity struct {
	Email       string       `json:"email"`
	Roles       []string     `json:"roles"`
	SharedTools []SharedTool `json:"sharedTools"`
	HiddenTools []string     `json:"hiddenTools"`
	// ToolsAvailable is an optional allow-list; nil means none.
	ToolsAvailable []string  `json:"toolsAvailable,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// HasShare reports whether toolName is shared with the user.
func (u *UserIdentity) HasShare(toolName string) bool {
	for _, s := range u.SharedTools {
		if s.ToolID == toolName {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of u.
func (u *UserIdentity) Clone() *UserIdentity {
	out := *u
	out.Roles = slices.Clone(u.Roles)
	out.SharedTools = slices.Clone(u.SharedTools)
	out.HiddenTools = slices.Clone(u.HiddenTools)
	if u.ToolsAvailable != nil {
		out.ToolsAvailable = append([]string{}, u.ToolsAvailable...)
	}
	return &out
}

// IdentityStore is the identity lookup contract consumed by the capability
// engine and the authorization gate.
type IdentityStore interface {
	// FindIdentity returns ErrNotFound for unknown users.
	FindIdentity(ctx context.Context, email string) (*UserIdentity, error)
	// CheckToolAccess reports whether toolName is currently shared with email.
	CheckToolAccess(ctx context.Context, email, toolName string) (bool, error)
}

// UserStore manages users, their roles and their per-tool grants.
type UserStore interface {
	IdentityStore
	UpsertUser(ctx context.Context, u *UserIdentity) error
	ListUsers(ctx context.Context) ([]*UserIdentity, error)
	SetRoles(ctx context.Context, email string, roles []string) error
	ShareTool(ctx context.Context, email string, share SharedTool) error
	UnshareTool(ctx context.Context, email, toolName string) (bool, error)
	HideTool(ctx context.Context, email, toolName string) error
	UnhideTool(ctx context.Context, email, toolName string) (bool, error)
	// PruneSharedTool deletes every grant and hide entry for toolName and
	// returns the emails that lost a share.
	PruneSharedTool(ctx context.Context, toolName string) ([]string, error)
}

// ToolStore persists tool definitions registered at runtime.
type ToolStore interface {
	ListToolDefinitions(ctx context.Context) ([]tools.Definition, error)
	SaveToolDefinition(ctx context.Context, def tools.Definition) error
	DeleteToolDefinition(ctx context.Context, name string) (bool, error)
}

// AuditStore records and lists audit entries.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// Store is everything the server persists.
type Store interface {
	UserStore
	ToolStore
	AuditStore
	Close() error
}
