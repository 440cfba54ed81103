// ABOUTME: Transport-independent JSON-RPC method dispatch for MCP sessions.
// ABOUTME: tools/call runs registry lookup, the live gate, then the handler.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/2389/toolhub/internal/authz"
	"github.com/2389/toolhub/internal/capability"
	"github.com/2389/toolhub/internal/session"
	"github.com/2389/toolhub/internal/tools"
)

// DispatcherConfig holds configuration for the Dispatcher.
type DispatcherConfig struct {
	Registry      *tools.Registry
	Capabilities  *capability.Engine
	Gate          *authz.Gate
	Host          tools.Host
	ServerName    string
	ServerVersion string
	Logger        *slog.Logger
}

// Dispatcher answers JSON-RPC requests on behalf of a session.
type Dispatcher struct {
	registry     *tools.Registry
	capabilities *capability.Engine
	gate         *authz.Gate
	host         tools.Host
	info         ServerInfo
	logger       *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Capabilities == nil {
		return nil, errors.New("capability engine is required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("authorization gate is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.ServerName
	if name == "" {
		name = "toolhub"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "dev"
	}

	return &Dispatcher{
		registry:     cfg.Registry,
		capabilities: cfg.Capabilities,
		gate:         cfg.Gate,
		host:         cfg.Host,
		info:         ServerInfo{Name: name, Version: version},
		logger:       logger.With("component", "mcp"),
	}, nil
}

// Handle answers req for sess. It returns nil for notifications.
func (d *Dispatcher) Handle(ctx context.Context, sess *session.Session, req *Request) *Response {
	sess.Touch()

	if req.IsNotification() {
		d.logger.Debug("accepted MCP notification", "method", req.Method, "session_id", sess.ID)
		return nil
	}

	d.logger.Debug("MCP request", "method", req.Method, "session_id", sess.ID)

	switch req.Method {
	case "initialize":
		return d.handleInitialize(req)
	case "ping":
		return resultResponse(req.ID, struct{}{})
	case "tools/list":
		return d.handleToolsList(ctx, sess, req)
	case "tools/call":
		return d.handleToolsCall(ctx, sess, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "method not found")
	}
}

// handleInitialize answers the MCP handshake.
func (d *Dispatcher) handleInitialize(req *Request) *Response {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid params")
		}
	}

	version := latestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}

	return resultResponse(req.ID, InitializeResult{
		ProtocolVersion: version,
		Capabilities:    ServerCapabilities{Tools: ToolsCapability{ListChanged: true}},
		ServerInfo:      d.info,
	})
}

// handleToolsList returns the session's capability view.
func (d *Dispatcher) handleToolsList(ctx context.Context, sess *session.Session, req *Request) *Response {
	defs, err := d.capabilities.View(ctx, sess)
	if err != nil {
		d.logger.Warn("capability view failed", "session_id", sess.ID, "email", sess.Email(), "error", err)
		return errorResponse(req.ID, CodeInternalError, "tool list unavailable")
	}

	result := ListToolsResult{Tools: make([]ToolInfo, len(defs))}
	for i, def := range defs {
		info := ToolInfo{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Schema(),
		}
		if !def.Annotations.IsZero() {
			ann := def.Annotations
			info.Annotations = &ann
		}
		result.Tools[i] = info
	}

	d.logger.Debug("tools/list", "session_id", sess.ID, "count", len(defs))
	return resultResponse(req.ID, result)
}

// handleToolsCall authorizes the call live, then looks the tool up and invokes.
// Denials and handler failures are error-marked results, not JSON-RPC errors.
func (d *Dispatcher) handleToolsCall(ctx context.Context, sess *session.Session, req *Request) *Response {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "tool name is required")
	}

	// The gate sees an absent tool as not_authorized, so calls to tools
	// removed after a view was cached are denied and audited like any other.
	decision := d.gate.Authorize(ctx, sess.Email(), params.Name)
	if !decision.Authorized {
		d.logger.Info("tool call denied",
			"session_id", sess.ID,
			"email", sess.Email(),
			"tool_name", params.Name,
			"reason", decision.Reason,
		)
		return resultResponse(req.ID, tools.ErrorResult("not authorized to call %s: %s", params.Name, decision.Reason))
	}

	entry, ok := d.registry.Entry(params.Name)
	if !ok {
		// Removed between authorization and dispatch.
		d.logger.Info("tool removed after authorization", "session_id", sess.ID, "tool_name", params.Name)
		return resultResponse(req.ID, tools.ErrorResult("unknown tool: %s", params.Name))
	}

	result := entry.Invoke(ctx, params.Arguments, tools.CallContext{
		Identity:  sess.Identity,
		SessionID: sess.ID,
		RequestID: string(req.ID),
		Host:      d.host,
	})

	d.logger.Debug("tools/call complete",
		"session_id", sess.ID,
		"tool_name", params.Name,
		"is_error", result.IsError,
	)
	return resultResponse(req.ID, result)
}
