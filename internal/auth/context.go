// ABOUTME: Verified caller identity and its propagation through request context
// ABOUTME: Provides WithIdentity/FromContext for handlers behind the auth middleware

package auth

import (
	"context"
	"slices"
)

// RoleAdmin is the role tag that grants access to the administrative API.
const RoleAdmin = "admin"

// Identity is the verified result of authentication.
type Identity struct {
	Email string
	Roles []string
	// ToolsAvailable is an explicit allow-list asserted by the credential.
	// Nil means the credential asserts no allow-list.
	ToolsAvailable []string
	// HiddenTools lists tools the credential asks to suppress from listings.
	HiddenTools []string
}

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// IsAdmin returns true if the identity has the admin role.
func (i Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}

// Clone returns a copy of i with no shared slices.
func (i Identity) Clone() Identity {
	out := Identity{Email: i.Email, Roles: slices.Clone(i.Roles), HiddenTools: slices.Clone(i.HiddenTools)}
	if i.ToolsAvailable != nil {
		out.ToolsAvailable = slices.Clone(i.ToolsAvailable)
		if out.ToolsAvailable == nil {
			out.ToolsAvailable = []string{}
		}
	}
	return out
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
