// ABOUTME: Base pack: tools every caller gets regardless of role.
// ABOUTME: whoami reports the bound identity; refresh_tools re-sends list_changed to the caller.

package builtins

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/2389/toolhub/internal/tools"
)

// BasePack creates the base pack.
func BasePack() *Pack {
	return &Pack{
		ID: "builtin:base",
		Tools: []*Tool{
			{
				Definition: tools.Definition{
					Name:          "whoami",
					Description:   "Show the identity this session is bound to",
					InputSchema:   json.RawMessage(`{"type":"object","properties":{}}`),
					Annotations:   tools.Annotations{Title: "Who am I", ReadOnlyHint: tools.Bool(true)},
					AlwaysVisible: true,
				},
				Handler: whoami,
			},
			{
				Definition: tools.Definition{
					Name:          "refresh_tools",
					Description:   "Ask the server to re-announce your tool list",
					InputSchema:   json.RawMessage(`{"type":"object","properties":{}}`),
					Annotations:   tools.Annotations{Title: "Refresh tools", IdempotentHint: tools.Bool(true)},
					AlwaysVisible: true,
				},
				Handler: refreshTools,
			},
		},
	}
}

type whoamiResult struct {
	Email          string   `json:"email"`
	Roles          []string `json:"roles"`
	ToolsAvailable []string `json:"tools_available,omitempty"`
	SessionID      string   `json:"session_id"`
}

func whoami(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
	roles := cc.Identity.Roles
	if roles == nil {
		roles = []string{}
	}
	return tools.JSONResult(whoamiResult{
		Email:          cc.Identity.Email,
		Roles:          roles,
		ToolsAvailable: cc.Identity.ToolsAvailable,
		SessionID:      cc.SessionID,
	})
}

func refreshTools(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
	if cc.Host == nil {
		return nil, errors.New("no host available")
	}
	cc.Host.NotifyToolListChanged(ctx, cc.Identity.Email)
	return tools.TextResult("tool list refresh requested"), nil
}
