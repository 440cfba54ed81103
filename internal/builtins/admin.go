// ABOUTME: Admin pack exposes the administrative surface as MCP tools.
// ABOUTME: Requires the "admin" role; actions are audited under the caller's email.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/2389/toolhub/internal/admin"
	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/store"
	"github.com/2389/toolhub/internal/tools"
)

// AdminPack creates the admin pack backed by svc.
func AdminPack(svc *admin.Service) *Pack {
	a := &adminHandlers{svc: svc}
	roles := []string{auth.RoleAdmin}
	return &Pack{
		ID: "builtin:admin",
		Tools: []*Tool{
			{
				Definition: tools.Definition{
					Name:           "admin_list_users",
					Description:    "List users with their roles, shares and hidden tools",
					InputSchema:    json.RawMessage(`{"type":"object","properties":{}}`),
					Annotations:    tools.Annotations{ReadOnlyHint: tools.Bool(true)},
					RolesPermitted: roles,
				},
				Handler: a.ListUsers,
			},
			{
				Definition: tools.Definition{
					Name:           "admin_share_tool",
					Description:    "Share a tool with a user",
					InputSchema:    json.RawMessage(`{"type":"object","properties":{"email":{"type":"string"},"tool":{"type":"string"},"access_level":{"type":"string","enum":["read","write"]}},"required":["email","tool"]}`),
					RolesPermitted: roles,
				},
				Handler: a.ShareTool,
			},
			{
				Definition: tools.Definition{
					Name:           "admin_unshare_tool",
					Description:    "Revoke a tool share from a user",
					InputSchema:    json.RawMessage(`{"type":"object","properties":{"email":{"type":"string"},"tool":{"type":"string"}},"required":["email","tool"]}`),
					Annotations:    tools.Annotations{DestructiveHint: tools.Bool(true), IdempotentHint: tools.Bool(true)},
					RolesPermitted: roles,
				},
				Handler: a.UnshareTool,
			},
			{
				Definition: tools.Definition{
					Name:           "admin_hide_tool",
					Description:    "Hide a tool from a user's tool list",
					InputSchema:    json.RawMessage(`{"type":"object","properties":{"email":{"type":"string"},"tool":{"type":"string"}},"required":["email","tool"]}`),
					Annotations:    tools.Annotations{IdempotentHint: tools.Bool(true)},
					RolesPermitted: roles,
				},
				Handler: a.HideTool,
			},
			{
				Definition: tools.Definition{
					Name:           "admin_unhide_tool",
					Description:    "Show a previously hidden tool again",
					InputSchema:    json.RawMessage(`{"type":"object","properties":{"email":{"type":"string"},"tool":{"type":"string"}},"required":["email","tool"]}`),
					Annotations:    tools.Annotations{IdempotentHint: tools.Bool(true)},
					RolesPermitted: roles,
				},
				Handler: a.UnhideTool,
			},
			{
				Definition: tools.Definition{
					Name:           "admin_set_roles",
					Description:    "Replace a user's roles",
					InputSchema:    json.RawMessage(`{"type":"object","properties":{"email":{"type":"string"},"roles":{"type":"array","items":{"type":"string"}}},"required":["email","roles"]}`),
					Annotations:    tools.Annotations{IdempotentHint: tools.Bool(true)},
					RolesPermitted: roles,
				},
				Handler: a.SetRoles,
			},
			{
				Definition: tools.Definition{
					Name:           "admin_audit_log",
					Description:    "Read recent audit entries",
					InputSchema:    json.RawMessage(`{"type":"object","properties":{"user":{"type":"string"},"tool":{"type":"string"},"event":{"type":"string"},"since":{"type":"string","format":"date-time"},"limit":{"type":"integer","minimum":1,"maximum":1000}}}`),
					Annotations:    tools.Annotations{ReadOnlyHint: tools.Bool(true)},
					RolesPermitted: roles,
				},
				Handler: a.AuditLog,
			},
		},
	}
}

type adminHandlers struct {
	svc *admin.Service
}

// actAs attributes service calls to the tool caller.
func actAs(ctx context.Context, cc tools.CallContext) context.Context {
	return auth.WithIdentity(ctx, cc.Identity)
}

func (a *adminHandlers) ListUsers(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
	users, err := a.svc.ListUsers(actAs(ctx, cc))
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]any{"users": users, "count": len(users)})
}

type grantInput struct {
	Email       string            `json:"email"`
	Tool        string            `json:"tool"`
	AccessLevel store.AccessLevel `json:"access_level"`
}

func (a *adminHandlers) ShareTool(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
	var in grantInput
	if err := decodeInput(args, &in); err != nil {
		return nil, err
	}
	if err := a.svc.ShareTool(actAs(ctx, cc), in.Email, in.Tool, in.AccessLevel); err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]string{"status": "shared", "email": in.Email, "tool": in.Tool})
}

func (a *adminHandlers) UnshareTool(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
	var in grantInput
	if err := decodeInput(args, &in); err != nil {
		return nil, err
	}
	if err := a.svc.UnshareTool(actAs(ctx, cc), in.Email, in.Tool); err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]string{"status": "unshared", "email": in.Email, "tool": in.Tool})
}

func (a *adminHandlers) HideTool(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
	var in grantInput
	if err := decodeInput(args, &in); err != nil {
		return nil, err
	}
	if err := a.svc.HideTool(actAs(ctx, cc), in.Email, in.Tool); err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]string{"status": "hidden", "email": in.Email, "tool": in.Tool})
}

func (a *adminHandlers) UnhideTool(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
	var in grantInput
	if err := decodeInput(args, &in); err != nil {
		return nil, err
	}
	if err := a.svc.UnhideTool(actAs(ctx, cc), in.Email, in.Tool); err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]string{"status": "visible", "email": in.Email, "tool": in.Tool})
}

type setRolesInput struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func (a *adminHandlers) SetRoles(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
	var in setRolesInput
	if err := decodeInput(args, &in); err != nil {
		return nil, err
	}
	if err := a.svc.SetRoles(actAs(ctx, cc), in.Email, in.Roles); err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]any{"status": "updated", "email": in.Email, "roles": in.Roles})
}

type auditInput struct {
	User  string `json:"user"`
	Tool  string `json:"tool"`
	Event string `json:"event"`
	Since string `json:"since"`
	Limit int    `json:"limit"`
}

func (a *adminHandlers) AuditLog(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
	var in auditInput
	if err := decodeInput(args, &in); err != nil {
		return nil, err
	}

	f := store.AuditFilter{Limit: in.Limit}
	if in.User != "" {
		f.User = &in.User
	}
	if in.Tool != "" {
		f.Tool = &in.Tool
	}
	if in.Event != "" {
		ev := store.AuditEvent(in.Event)
		f.Event = &ev
	}
	if in.Since != "" {
		t, err := time.Parse(time.RFC3339, in.Since)
		if err != nil {
			return nil, errors.New("since must be RFC3339")
		}
		f.Since = &t
	}

	entries, err := a.svc.ListAudit(actAs(ctx, cc), f)
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]any{"entries": entries, "count": len(entries)})
}
