// ABOUTME: Tool-list-changed fan-out to every session or to one user's sessions
// ABOUTME: Invalidates cached capability views, then signals each session's pump

package notify

import (
	"context"
	"log/slog"

	"github.com/2389/toolhub/internal/session"
	"github.com/2389/toolhub/internal/tools"
)

// Broadcaster pushes tool-list-changed notifications to sessions.
type Broadcaster struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(sessions *session.Manager, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		sessions: sessions,
		logger:   logger.With("component", "broadcaster"),
	}
}

// NotifyToolListChanged invalidates and signals the sessions bound to email,
// or every session when email is empty. It never fails; undeliverable
// signals are dropped by the sessions themselves. It returns the number of
// sessions targeted.
func (b *Broadcaster) NotifyToolListChanged(ctx context.Context, email string) int {
	var targets []*session.Session
	if email == "" {
		targets = b.sessions.All()
	} else {
		targets = b.sessions.SessionsFor(email)
	}

	signalled := 0
	for _, s := range targets {
		s.InvalidateView()
		if s.Signal() {
			signalled++
		}
	}

	scope := email
	if scope == "" {
		scope = "all"
	}
	b.logger.Debug("tool list changed",
		"scope", scope,
		"sessions", len(targets),
		"signalled", signalled,
	)
	return len(targets)
}

// OnRegistryEvent is a tools.Registry listener: every structural change
// notifies all sessions.
func (b *Broadcaster) OnRegistryEvent(ev tools.Event) {
	b.logger.Debug("registry changed", "kind", ev.Kind, "tool_name", ev.Name)
	b.NotifyToolListChanged(context.Background(), "")
}
