// ABOUTME: Session manager: session index, email reverse index, heartbeats and signal pumps.
// ABOUTME: Close is the single cancellation point for a session's goroutines and transport.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/toolhub/internal/auth"
)

// ErrUnauthenticated indicates an attempt to create a session without a verified email.
var ErrUnauthenticated = errors.New("unauthenticated: identity has no email")

// ErrUnknownSession indicates a session id that is not registered.
var ErrUnknownSession = errors.New("unknown session")

// ErrNoStream is returned by Transport.Heartbeat when no stream is attached
// to write to. The session stays open.
var ErrNoStream = errors.New("no stream attached")

// ToolListChangedMethod is the notification sent when a session's tool list may have changed.
const ToolListChangedMethod = "notifications/tools/list_changed"

// DefaultHeartbeatInterval is used when Config.HeartbeatInterval is unset.
const DefaultHeartbeatInterval = 30 * time.Second

// sendTimeout bounds a single notification write.
const sendTimeout = 10 * time.Second

var toolListChanged = mustMarshal(struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
}{JSONRPC: "2.0", Method: ToolListChangedMethod})

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// Config configures a Manager.
type Config struct {
	Logger            *slog.Logger
	HeartbeatInterval time.Duration
	// IdleTimeout reaps continuation-channel sessions with no activity for
	// this long. Zero disables reaping.
	IdleTimeout time.Duration
}

// Manager owns every live session.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byEmail  map[string]map[string]*Session

	heartbeat   time.Duration
	idleTimeout time.Duration
	logger      *slog.Logger
}

// NewManager creates an empty Manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hb := cfg.HeartbeatInterval
	if hb <= 0 {
		hb = DefaultHeartbeatInterval
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		byEmail:     make(map[string]map[string]*Session),
		heartbeat:   hb,
		idleTimeout: cfg.IdleTimeout,
		logger:      logger.With("component", "sessions"),
	}
}

// Create registers a new session for identity on transport and starts its
// signal pump and heartbeat.
func (m *Manager) Create(identity auth.Identity, transport Transport) (*Session, error) {
	if identity.Email == "" {
		return nil, ErrUnauthenticated
	}

	s := newSession(uuid.New().String(), identity, transport, time.Now())

	m.mu.Lock()
	m.sessions[s.ID] = s
	bucket, ok := m.byEmail[s.Email()]
	if !ok {
		bucket = make(map[string]*Session)
		m.byEmail[s.Email()] = bucket
	}
	bucket[s.ID] = s
	total := len(m.sessions)
	m.mu.Unlock()

	go m.pump(s)
	if s.Transport != nil {
		go m.heartbeatLoop(s)
	}

	m.logger.Info("session created",
		"session_id", s.ID,
		"email", s.Email(),
		"transport", s.Kind(),
		"total_sessions", total,
	)
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	if id == "" {
		return nil, ErrUnknownSession
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// Close removes the session from both indexes, stops its goroutines and
// closes its transport. It reports whether the session was open; closing
// twice is a no-op.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if bucket := m.byEmail[s.Email()]; bucket != nil {
			delete(bucket, id)
			if len(bucket) == 0 {
				delete(m.byEmail, s.Email())
			}
		}
	}
	total := len(m.sessions)
	m.mu.Unlock()

	if !ok || !s.shutdown() {
		return false
	}

	if s.Transport != nil {
		if err := s.Transport.Close(); err != nil {
			m.logger.Debug("transport close failed", "session_id", id, "error", err)
		}
	}

	m.logger.Info("session closed",
		"session_id", id,
		"email", s.Email(),
		"duration", time.Since(s.CreatedAt).Round(time.Millisecond),
		"total_sessions", total,
	)
	return true
}

// SessionsFor returns the open sessions bound to email.
func (m *Manager) SessionsFor(email string) []*Session {
	m.mu.RLock()
	bucket := m.byEmail[email]
	out := make([]*Session, 0, len(bucket))
	for _, s := range bucket {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sortSessions(out)
	return out
}

// All returns every open session.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sortSessions(out)
	return out
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every session. Used at shutdown.
func (m *Manager) CloseAll() int {
	n := 0
	for _, s := range m.All() {
		if m.Close(s.ID) {
			n++
		}
	}
	return n
}

// ReapIdle closes continuation-channel sessions idle since before now minus
// the idle timeout. It returns the number closed.
func (m *Manager) ReapIdle(now time.Time) int {
	if m.idleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-m.idleTimeout)
	n := 0
	for _, s := range m.All() {
		if s.Kind() != KindContinuation || !s.LastActive().Before(cutoff) {
			continue
		}
		if m.Close(s.ID) {
			m.logger.Info("reaped idle session", "session_id", s.ID, "email", s.Email())
			n++
		}
	}
	return n
}

// Run reaps idle sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	if m.idleTimeout <= 0 {
		<-ctx.Done()
		return
	}

	interval := m.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.ReapIdle(now)
		}
	}
}

// pump delivers coalesced list-changed signals until the session closes.
// Delivery failures are logged and dropped.
func (m *Manager) pump(s *Session) {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			if s.Transport == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			err := s.Transport.Send(ctx, toolListChanged)
			cancel()
			if err != nil {
				m.logger.Debug("tool list notification dropped",
					"session_id", s.ID,
					"email", s.Email(),
					"error", err,
				)
			}
		}
	}
}

// heartbeatLoop writes keepalives. A delivered keepalive counts as activity;
// ErrNoStream is skipped; any other failure closes the session.
func (m *Manager) heartbeatLoop(s *Session) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := s.Transport.Heartbeat()
			switch {
			case err == nil:
				s.Touch()
			case errors.Is(err, ErrNoStream):
			default:
				m.logger.Info("heartbeat failed, closing session",
					"session_id", s.ID,
					"email", s.Email(),
					"error", err,
				)
				m.Close(s.ID)
				return
			}
		}
	}
}

func sortSessions(ss []*Session) {
	sort.Slice(ss, func(i, j int) bool {
		if ss[i].CreatedAt.Equal(ss[j].CreatedAt) {
			return ss[i].ID < ss[j].ID
		}
		return ss[i].CreatedAt.Before(ss[j].CreatedAt)
	})
}
