// ABOUTME: Capability view engine: which tools a session may see in tools/list.
// ABOUTME: Views are computed once per session, cached, and discarded on invalidation.

package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/session"
	"github.com/2389/toolhub/internal/store"
	"github.com/2389/toolhub/internal/tools"
)

// ErrDependency wraps identity lookup failures while computing a view.
var ErrDependency = errors.New("capability lookup failed")

// Mode selects where the identity used for a view comes from.
type Mode string

const (
	// ModeLive uses the persisted identity, merged with the session's
	// tools-available claim.
	ModeLive Mode = "live"
	// ModeClaims uses only the identity bound to the session at connect time.
	ModeClaims Mode = "claims"
)

// ParseMode maps a config string to a Mode. Empty means ModeLive.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeLive:
		return ModeLive, nil
	case ModeClaims:
		return ModeClaims, nil
	default:
		return "", fmt.Errorf("unknown capability mode %q", s)
	}
}

// Subject is the entitlement state a view is computed against.
type Subject struct {
	Roles       []string
	SharedTools []string
	HiddenTools []string
	// ToolsAvailable restricts visibility when non-nil.
	ToolsAvailable []string
}

// Visible applies the visibility rule for one tool.
func Visible(def tools.Definition, sub Subject) bool {
	if slices.Contains(sub.HiddenTools, def.Name) {
		return false
	}
	if sub.ToolsAvailable != nil && !slices.Contains(sub.ToolsAvailable, def.Name) {
		return false
	}
	return def.AlwaysVisible ||
		def.PermitsAnyRole(sub.Roles) ||
		slices.Contains(sub.SharedTools, def.Name)
}

// Config configures an Engine.
type Config struct {
	Registry   *tools.Registry
	Identities store.IdentityStore
	Mode       Mode
	Logger     *slog.Logger
}

// Engine computes and caches per-session views.
type Engine struct {
	registry   *tools.Registry
	identities store.IdentityStore
	mode       Mode
	logger     *slog.Logger
}

// New creates an Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeLive
	}
	return &Engine{
		registry:   cfg.Registry,
		identities: cfg.Identities,
		mode:       mode,
		logger:     logger.With("component", "capability"),
	}
}

// Mode returns the engine's mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// View returns the definitions sess may list. The name set is computed on
// first access and cached on the session; later calls only resolve the cached
// names against the registry. The view is never proof of authorization.
func (e *Engine) View(ctx context.Context, sess *session.Session) ([]tools.Definition, error) {
	names, err := e.Names(ctx, sess)
	if err != nil {
		return nil, err
	}

	defs := make([]tools.Definition, 0, len(names))
	for _, name := range names {
		if def, ok := e.registry.Get(name); ok {
			defs = append(defs, def)
		}
	}
	return defs, nil
}

// Names returns the cached visible tool names for sess, computing them if
// needed. A computation that races with an invalidation is returned to this
// caller but not cached.
func (e *Engine) Names(ctx context.Context, sess *session.Session) ([]string, error) {
	cached, gen, ok := sess.CachedView()
	if ok {
		return cached, nil
	}

	sub, provisioned, err := e.subject(ctx, sess.Identity)
	if err != nil {
		return nil, err
	}

	// Unprovisioned users would be denied every call, so they list nothing.
	names := []string{}
	if provisioned {
		names = Compute(e.registry.List(), sub)
	}
	if !sess.StoreView(names, gen) {
		e.logger.Debug("discarded stale capability view", "session_id", sess.ID)
	} else {
		e.logger.Debug("computed capability view",
			"session_id", sess.ID,
			"email", sess.Email(),
			"mode", e.mode,
			"visible_tools", len(names),
		)
	}
	return names, nil
}

// Compute returns the sorted names of defs visible to sub.
func Compute(defs []tools.Definition, sub Subject) []string {
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if Visible(def, sub) {
			names = append(names, def.Name)
		}
	}
	slices.Sort(names)
	return names
}

// subject builds the entitlement state for id according to the mode. In live
// mode provisioned is false when the user is unknown to persistence; claims
// mode never consults persistence and always reports true.
func (e *Engine) subject(ctx context.Context, id auth.Identity) (sub Subject, provisioned bool, err error) {
	if e.mode == ModeClaims || e.identities == nil {
		return Subject{
			Roles:          id.Roles,
			HiddenTools:    id.HiddenTools,
			ToolsAvailable: id.ToolsAvailable,
		}, true, nil
	}

	u, err := e.identities.FindIdentity(ctx, id.Email)
	if errors.Is(err, store.ErrNotFound) {
		return Subject{}, false, nil
	}
	if err != nil {
		return Subject{}, false, fmt.Errorf("%w: %w", ErrDependency, err)
	}

	sub = Subject{
		Roles:          u.Roles,
		HiddenTools:    mergeHidden(u.HiddenTools, id.HiddenTools),
		ToolsAvailable: mergeAllowLists(u.ToolsAvailable, id.ToolsAvailable),
	}
	for _, st := range u.SharedTools {
		sub.SharedTools = append(sub.SharedTools, st.ToolID)
	}
	return sub, true, nil
}

// mergeHidden unions persisted and claimed hidden tools.
func mergeHidden(persisted, claimed []string) []string {
	out := slices.Clone(persisted)
	for _, name := range claimed {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// mergeAllowLists intersects two optional allow-lists. Nil means absent.
func mergeAllowLists(a, b []string) []string {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	out := []string{}
	for _, name := range a {
		if slices.Contains(b, name) {
			out = append(out, name)
		}
	}
	return out
}
