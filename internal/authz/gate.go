// ABOUTME: Live authorization gate consulted on every tool call.
// ABOUTME: Checks current identity, roles and shares, and audits every decision.

package authz

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/toolhub/internal/store"
	"github.com/2389/toolhub/internal/tools"
)

// Denial reasons.
const (
	ReasonNoEmail           = "no_email"
	ReasonUserNotFound      = "user_not_found"
	ReasonDependencyFailure = "dependency_failure"
	ReasonNotAuthorized     = "not_authorized"
)

// Decision is the outcome of one authorization check.
type Decision struct {
	Authorized bool
	Reason     string
}

// Config configures a Gate.
type Config struct {
	Registry   *tools.Registry
	Identities store.IdentityStore
	Audit      store.AuditStore
	Logger     *slog.Logger
}

// Gate authorizes tool calls against live state. It never caches.
type Gate struct {
	registry   *tools.Registry
	identities store.IdentityStore
	audit      store.AuditStore
	logger     *slog.Logger
}

// New creates a Gate. Audit may be nil.
func New(cfg Config) *Gate {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		registry:   cfg.Registry,
		identities: cfg.Identities,
		audit:      cfg.Audit,
		logger:     logger.With("component", "authz"),
	}
}

// Authorize decides whether email may call toolName right now.
func (g *Gate) Authorize(ctx context.Context, email, toolName string) Decision {
	d := g.decide(ctx, email, toolName)
	g.record(ctx, email, toolName, d)
	return d
}

func (g *Gate) decide(ctx context.Context, email, toolName string) Decision {
	if email == "" {
		return Decision{Reason: ReasonNoEmail}
	}

	u, err := g.identities.FindIdentity(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Decision{Reason: ReasonUserNotFound}
	}
	if err != nil {
		g.logger.Warn("identity lookup failed", "email", email, "tool_name", toolName, "error", err)
		return Decision{Reason: ReasonDependencyFailure}
	}

	def, ok := g.registry.Get(toolName)
	if !ok {
		return Decision{Reason: ReasonNotAuthorized}
	}
	if def.AlwaysVisible || def.PermitsAnyRole(u.Roles) {
		return Decision{Authorized: true}
	}

	shared, err := g.identities.CheckToolAccess(ctx, email, toolName)
	if err != nil {
		g.logger.Warn("share lookup failed", "email", email, "tool_name", toolName, "error", err)
		return Decision{Reason: ReasonDependencyFailure}
	}
	if !shared {
		return Decision{Reason: ReasonNotAuthorized}
	}
	return Decision{Authorized: true}
}

// record appends the decision to the audit trail. A failed write is logged
// and never changes the decision.
func (g *Gate) record(ctx context.Context, email, toolName string, d Decision) {
	status := store.AuditStatusDenied
	if d.Authorized {
		status = store.AuditStatusAuthorized
	}

	g.logger.Debug("tool call authorization",
		"email", email,
		"tool_name", toolName,
		"status", status,
		"reason", d.Reason,
	)

	if g.audit == nil {
		return
	}
	err := g.audit.AppendAuditLog(ctx, &store.AuditEntry{
		Event:  store.AuditToolCallAuthorization,
		User:   email,
		Tool:   toolName,
		Status: status,
		Reason: d.Reason,
	})
	if err != nil {
		g.logger.Error("failed to write audit entry", "email", email, "tool_name", toolName, "error", err)
	}
}
