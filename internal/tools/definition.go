// ABOUTME: Tool definition type shared by the registry, persistence and transports.
// ABOUTME: Definitions are value types; Clone gives callers a copy with no shared slices.

package tools

import (
	"encoding/json"
	"slices"
)

// SystemCreator marks tools owned by the server itself (built-in tools).
const SystemCreator = "system"

// Annotations are advisory hints about a tool's behavior.
type Annotations struct {
	Title           string `json:"title,omitempty" yaml:"title,omitempty"`
	ReadOnlyHint    *bool  `json:"readOnlyHint,omitempty" yaml:"read_only_hint,omitempty"`
	DestructiveHint *bool  `json:"destructiveHint,omitempty" yaml:"destructive_hint,omitempty"`
	IdempotentHint  *bool  `json:"idempotentHint,omitempty" yaml:"idempotent_hint,omitempty"`
	OpenWorldHint   *bool  `json:"openWorldHint,omitempty" yaml:"open_world_hint,omitempty"`
}

// IsZero reports whether no hint is set.
func (a Annotations) IsZero() bool {
	return a.Title == "" && a.ReadOnlyHint == nil && a.DestructiveHint == nil &&
		a.IdempotentHint == nil && a.OpenWorldHint == nil
}

func (a Annotations) clone() Annotations {
	out := Annotations{Title: a.Title}
	out.ReadOnlyHint = cloneBool(a.ReadOnlyHint)
	out.DestructiveHint = cloneBool(a.DestructiveHint)
	out.IdempotentHint = cloneBool(a.IdempotentHint)
	out.OpenWorldHint = cloneBool(a.OpenWorldHint)
	return out
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// Bool returns a pointer to b, for building Annotations literals.
func Bool(b bool) *bool { return &b }

// Definition describes one tool.
type Definition struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	InputSchema    json.RawMessage `json:"inputSchema,omitempty"`
	Annotations    Annotations     `json:"annotations,omitzero"`
	HandlerType    string          `json:"handlerType"`
	HandlerConfig  json.RawMessage `json:"handlerConfig,omitempty"`
	RolesPermitted []string        `json:"rolesPermitted,omitempty"`
	AlwaysVisible  bool            `json:"alwaysVisible,omitempty"`
	Creator        string          `json:"creator,omitempty"`
	TimeoutSeconds int             `json:"timeoutSeconds,omitempty"`
}

// Clone returns a deep copy of d.
func (d Definition) Clone() Definition {
	out := d
	out.InputSchema = slices.Clone(d.InputSchema)
	out.HandlerConfig = slices.Clone(d.HandlerConfig)
	out.RolesPermitted = slices.Clone(d.RolesPermitted)
	out.Annotations = d.Annotations.clone()
	return out
}

// IsSystem reports whether the tool is owned by the server.
func (d Definition) IsSystem() bool {
	return d.Creator == SystemCreator
}

// PermitsAnyRole reports whether one of roles is in RolesPermitted.
// An empty RolesPermitted never matches.
func (d Definition) PermitsAnyRole(roles []string) bool {
	for _, permitted := range d.RolesPermitted {
		if slices.Contains(roles, permitted) {
			return true
		}
	}
	return false
}

// Schema returns the input schema, or an empty object schema when unset.
func (d Definition) Schema() json.RawMessage {
	if len(d.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return d.InputSchema
}
