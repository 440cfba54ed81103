// ABOUTME: Administrative operations on tools, users and grants
// ABOUTME: Every mutation is persisted, audited and followed by the right list_changed scope

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/store"
	"github.com/2389/toolhub/internal/tools"
)

// ErrInvalidArgument is returned for malformed admin requests.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrUnknownTool is returned when a grant names a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Notifier fans out list-changed signals. An empty email means everyone.
type Notifier interface {
	NotifyToolListChanged(ctx context.Context, email string) int
}

// Config holds configuration for the Service.
type Config struct {
	Registry *tools.Registry
	Store    store.Store
	Notifier Notifier
	Logger   *slog.Logger
}

// Service implements the administrative surface.
type Service struct {
	registry *tools.Registry
	store    store.Store
	notifier Notifier
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: cfg.Registry,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		logger:   logger.With("component", "admin"),
	}, nil
}

// actor returns the email of the authenticated caller, or "" when the call did
// not come through the auth middleware. It never returns tools.SystemCreator.
func actor(ctx context.Context) string {
	if id, ok := auth.FromContext(ctx); ok && id.Email != "" {
		return id.Email
	}
	return ""
}

// audit appends an admin action by user. Failures are logged; the action stands.
func (s *Service) audit(ctx context.Context, user string, event store.AuditEvent, toolName string, detail map[string]any) {
	err := s.store.AppendAuditLog(ctx, &store.AuditEntry{
		Event:  event,
		User:   user,
		Tool:   toolName,
		Status: store.AuditStatusOK,
		Detail: detail,
	})
	if err != nil {
		s.logger.Error("failed to write audit entry", "event", event, "tool_name", toolName, "error", err)
	}
}

// RegisterTool adds or replaces a tool and persists it. Creator defaults to
// the caller and stays empty without one; only SyncBuiltinTools assigns
// tools.SystemCreator. Sessions are notified through registry events.
func (s *Service) RegisterTool(ctx context.Context, def tools.Definition) (tools.Event, error) {
	caller := actor(ctx)
	if def.IsSystem() {
		return tools.Event{}, fmt.Errorf("%w: creator %q is reserved", ErrInvalidArgument, tools.SystemCreator)
	}
	if def.Creator == "" {
		def.Creator = caller
	}

	previous, hadPrevious := s.registry.Get(def.Name)
	ev, err := s.registry.Register(def)
	if err != nil {
		return tools.Event{}, err
	}

	if err := s.store.SaveToolDefinition(ctx, def); err != nil {
		s.rollback(def.Name, previous, hadPrevious)
		return tools.Event{}, fmt.Errorf("persisting tool %s: %w", def.Name, err)
	}

	s.audit(ctx, caller, store.AuditToolRegistered, def.Name, map[string]any{
		"handler_type": def.HandlerType,
		"replaced":     ev.Kind == tools.EventReplaced,
	})
	s.logger.Info("tool registered", "tool_name", def.Name, "creator", def.Creator, "event", ev.Kind)
	return ev, nil
}

// rollback restores the registry entry for name after a failed write.
func (s *Service) rollback(name string, previous tools.Definition, hadPrevious bool) {
	if !hadPrevious {
		s.registry.Remove(name)
		return
	}
	if _, err := s.registry.Register(previous); err != nil {
		s.logger.Error("failed to restore tool after persistence error", "tool_name", name, "error", err)
	}
}

// RemoveTool removes a tool from persistence and the registry and prunes its
// grants. Returns store.ErrNotFound if the tool was unknown to both. The
// registry is untouched when the delete fails.
func (s *Service) RemoveTool(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}

	deleted, err := s.store.DeleteToolDefinition(ctx, name)
	if err != nil {
		return fmt.Errorf("deleting tool %s: %w", name, err)
	}
	removed := s.registry.Remove(name)
	if !removed && !deleted {
		return store.ErrNotFound
	}

	affected, err := s.store.PruneSharedTool(ctx, name)
	if err != nil {
		return fmt.Errorf("pruning shares of %s: %w", name, err)
	}

	s.audit(ctx, actor(ctx), store.AuditToolRemoved, name, map[string]any{"pruned_users": affected})
	s.logger.Info("tool removed", "tool_name", name, "pruned_users", len(affected))
	return nil
}

// ShareTool grants toolName to email and notifies that user.
func (s *Service) ShareTool(ctx context.Context, email, toolName string, level store.AccessLevel) error {
	if email == "" || toolName == "" {
		return fmt.Errorf("%w: email and tool are required", ErrInvalidArgument)
	}
	if _, ok := s.registry.Get(toolName); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, toolName)
	}

	err := s.store.ShareTool(ctx, email, store.SharedTool{
		ToolID:      toolName,
		SharedBy:    actor(ctx),
		AccessLevel: level,
	})
	if err != nil {
		return err
	}

	s.audit(ctx, actor(ctx), store.AuditToolShared, toolName, map[string]any{"email": email, "access_level": level})
	s.notifier.NotifyToolListChanged(ctx, email)
	return nil
}

// UnshareTool revokes a grant. Revoking a missing grant is not an error.
func (s *Service) UnshareTool(ctx context.Context, email, toolName string) error {
	if email == "" || toolName == "" {
		return fmt.Errorf("%w: email and tool are required", ErrInvalidArgument)
	}
	removed, err := s.store.UnshareTool(ctx, email, toolName)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	s.audit(ctx, actor(ctx), store.AuditToolUnshared, toolName, map[string]any{"email": email})
	s.notifier.NotifyToolListChanged(ctx, email)
	return nil
}

// HideTool hides toolName from email's listings. Calls stay authorized.
func (s *Service) HideTool(ctx context.Context, email, toolName string) error {
	if email == "" || toolName == "" {
		return fmt.Errorf("%w: email and tool are required", ErrInvalidArgument)
	}
	if err := s.store.HideTool(ctx, email, toolName); err != nil {
		return err
	}

	s.audit(ctx, actor(ctx), store.AuditToolHidden, toolName, map[string]any{"email": email})
	s.notifier.NotifyToolListChanged(ctx, email)
	return nil
}

// UnhideTool reverses HideTool.
func (s *Service) UnhideTool(ctx context.Context, email, toolName string) error {
	if email == "" || toolName == "" {
		return fmt.Errorf("%w: email and tool are required", ErrInvalidArgument)
	}
	removed, err := s.store.UnhideTool(ctx, email, toolName)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	s.audit(ctx, actor(ctx), store.AuditToolUnhidden, toolName, map[string]any{"email": email})
	s.notifier.NotifyToolListChanged(ctx, email)
	return nil
}

// SetRoles replaces a user's roles and notifies that user.
func (s *Service) SetRoles(ctx context.Context, email string, roles []string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}
	if err := s.store.SetRoles(ctx, email, roles); err != nil {
		return err
	}

	s.audit(ctx, actor(ctx), store.AuditRolesChanged, "", map[string]any{"email": email, "roles": roles})
	s.notifier.NotifyToolListChanged(ctx, email)
	return nil
}

// UpsertUser creates or updates a user and notifies that user.
func (s *Service) UpsertUser(ctx context.Context, u *store.UserIdentity) error {
	if u == nil || u.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}
	if err := s.store.UpsertUser(ctx, u); err != nil {
		return err
	}

	s.audit(ctx, actor(ctx), store.AuditUserUpserted, "", map[string]any{"email": u.Email, "roles": u.Roles})
	s.notifier.NotifyToolListChanged(ctx, u.Email)
	return nil
}

// ListTools returns every registered tool.
func (s *Service) ListTools() []tools.Definition {
	return s.registry.List()
}

// ListUsers returns every persisted user.
func (s *Service) ListUsers(ctx context.Context) ([]*store.UserIdentity, error) {
	return s.store.ListUsers(ctx)
}

// ListAudit returns audit entries matching f, newest first.
func (s *Service) ListAudit(ctx context.Context, f store.AuditFilter) ([]store.AuditEntry, error) {
	return s.store.ListAuditLog(ctx, f)
}

// SyncReport summarizes a built-in sync.
type SyncReport struct {
	Registered []string `json:"registered"`
	Removed    []string `json:"removed"`
	// Pruned maps each removed tool to the users that lost a share of it.
	Pruned map[string][]string `json:"pruned,omitempty"`
}

// SyncBuiltinTools makes the system-owned tool set equal to defs. Each def
// is registered and persisted with creator "system". System tools not in defs
// are removed from registry and persistence, their grants pruned, and every
// user who lost a grant is notified.
func (s *Service) SyncBuiltinTools(ctx context.Context, defs []tools.Definition) (SyncReport, error) {
	report := SyncReport{Registered: []string{}, Removed: []string{}}
	keep := make(map[string]bool, len(defs))

	for _, def := range defs {
		def.Creator = tools.SystemCreator
		previous, hadPrevious := s.registry.Get(def.Name)
		if _, err := s.registry.Register(def); err != nil {
			return report, fmt.Errorf("registering builtin %s: %w", def.Name, err)
		}
		if err := s.store.SaveToolDefinition(ctx, def); err != nil {
			s.rollback(def.Name, previous, hadPrevious)
			return report, fmt.Errorf("persisting builtin %s: %w", def.Name, err)
		}
		keep[def.Name] = true
		report.Registered = append(report.Registered, def.Name)
	}

	stale := []string{}
	for _, name := range s.registry.SystemNames() {
		if !keep[name] {
			stale = append(stale, name)
		}
	}
	stored, err := s.store.ListToolDefinitions(ctx)
	if err != nil {
		return report, fmt.Errorf("listing stored tools: %w", err)
	}
	for _, def := range stored {
		if def.IsSystem() && !keep[def.Name] && !slices.Contains(stale, def.Name) {
			stale = append(stale, def.Name)
		}
	}
	slices.Sort(stale)

	notify := map[string]bool{}
	for _, name := range stale {
		if _, err := s.store.DeleteToolDefinition(ctx, name); err != nil {
			return report, fmt.Errorf("deleting stale builtin %s: %w", name, err)
		}
		s.registry.Remove(name)
		affected, err := s.store.PruneSharedTool(ctx, name)
		if err != nil {
			return report, fmt.Errorf("pruning shares of %s: %w", name, err)
		}
		report.Removed = append(report.Removed, name)
		if len(affected) > 0 {
			if report.Pruned == nil {
				report.Pruned = map[string][]string{}
			}
			report.Pruned[name] = affected
		}
		for _, email := range affected {
			notify[email] = true
		}
	}

	for email := range notify {
		s.notifier.NotifyToolListChanged(ctx, email)
	}

	user := actor(ctx)
	if user == "" {
		user = tools.SystemCreator
	}
	s.audit(ctx, user, store.AuditBuiltinSync, "", map[string]any{
		"registered": report.Registered,
		"removed":    report.Removed,
	})
	s.logger.Info("builtin tools synced",
		"registered", len(report.Registered),
		"removed", len(report.Removed),
		"notified_users", len(notify),
	)
	return report, nil
}
