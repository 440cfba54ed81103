// ABOUTME: Gateway orchestrator that wires the registry, sessions and transports
// ABOUTME: Owns the store, HTTP server, and health endpoints lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/toolhub/internal/admin"
	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/authz"
	"github.com/2389/toolhub/internal/builtins"
	"github.com/2389/toolhub/internal/capability"
	"github.com/2389/toolhub/internal/config"
	"github.com/2389/toolhub/internal/mcp"
	"github.com/2389/toolhub/internal/notify"
	"github.com/2389/toolhub/internal/session"
	"github.com/2389/toolhub/internal/store"
	"github.com/2389/toolhub/internal/tools"
)

// Version is reported in the MCP initialize handshake. Set by the binary.
var Version = "dev"

// Gateway orchestrates the toolhub server components.
type Gateway struct {
	config      *config.Config
	store       store.Store
	registry    *tools.Registry
	sessions    *session.Manager
	broadcaster *notify.Broadcaster
	admin       *admin.Service
	catalog     *builtins.Catalog
	httpServer  *http.Server
	logger      *slog.Logger

	// serverID identifies this gateway instance
	serverID string

	// stopSessions stops the session reaper started by Run
	stopSessions context.CancelFunc
}

// initStore opens the SQLite store at the configured path.
// TOOLHUB_DB_PATH overrides the config file.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("TOOLHUB_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// newAuthenticator builds the bearer authenticator from the JWT secret and
// the static API keys. At least one is guaranteed by config validation.
func newAuthenticator(cfg *config.Config, logger *slog.Logger) (*auth.BearerAuthenticator, error) {
	var jwtVerifier, keyVerifier auth.TokenVerifier

	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		jwtVerifier = v
	}

	if len(cfg.Auth.APIKeys) > 0 {
		keys := make([]auth.APIKey, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			keys = append(keys, auth.APIKey{Email: k.Email, Roles: k.Roles, KeyHash: k.KeyHash})
		}
		v, err := auth.NewAPIKeyVerifier(keys)
		if err != nil {
			return nil, fmt.Errorf("creating API key verifier: %w", err)
		}
		keyVerifier = v
	}

	if jwtVerifier == nil && keyVerifier == nil {
		return nil, errors.New("no credentials configured: set auth.jwt_secret or auth.api_keys")
	}
	logger.Info("authentication enabled",
		"jwt", jwtVerifier != nil,
		"api_keys", len(cfg.Auth.APIKeys),
	)
	return auth.NewBearerAuthenticator(jwtVerifier, keyVerifier), nil
}

// loadPersistedTools registers every stored definition. Definitions whose
// handler can no longer be resolved are logged and skipped.
func loadPersistedTools(ctx context.Context, s store.ToolStore, registry *tools.Registry, logger *slog.Logger) (int, error) {
	defs, err := s.ListToolDefinitions(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing stored tools: %w", err)
	}
	loaded := 0
	for _, def := range defs {
		if _, err := registry.Register(def); err != nil {
			logger.Warn("skipping stored tool", "tool_name", def.Name, "handler_type", def.HandlerType, "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mode, err := capability.ParseMode(cfg.Capability.Mode)
	if err != nil {
		return nil, err
	}

	authn, err := newAuthenticator(cfg, logger)
	if err != nil {
		return nil, err
	}

	sqlStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := build(cfg, sqlStore, authn, mode, logger)
	if err != nil {
		_ = sqlStore.Close()
		return nil, err
	}
	return gw, nil
}

// build wires every component on top of an open store.
func build(cfg *config.Config, s store.Store, authn auth.Authenticator, mode capability.Mode, logger *slog.Logger) (*Gateway, error) {
	ctx := context.Background()

	registry := tools.NewRegistry(tools.RegistryConfig{
		Dispatch:       tools.NewDispatch(),
		Logger:         logger,
		DefaultTimeout: cfg.Tools.CallTimeout,
	})

	sessions := session.NewManager(session.Config{
		Logger:            logger,
		HeartbeatInterval: cfg.Sessions.HeartbeatInterval,
		IdleTimeout:       cfg.Sessions.IdleTimeout,
	})

	broadcaster := notify.NewBroadcaster(sessions, logger)

	adminSvc, err := admin.NewService(admin.Config{
		Registry: registry,
		Store:    s,
		Notifier: broadcaster,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating admin service: %w", err)
	}

	catalog, err := builtins.NewCatalog(logger, builtins.BasePack(), builtins.AdminPack(adminSvc))
	if err != nil {
		return nil, fmt.Errorf("building builtin catalog: %w", err)
	}
	builtins.Install(registry.Dispatch(), catalog)

	gw := &Gateway{
		config:      cfg,
		store:       s,
		registry:    registry,
		sessions:    sessions,
		broadcaster: broadcaster,
		admin:       adminSvc,
		catalog:     catalog,
		logger:      logger.With("component", "gateway"),
		serverID:    generateServerID(),
	}

	loaded, err := loadPersistedTools(ctx, s, registry, gw.logger)
	if err != nil {
		return nil, err
	}
	gw.logger.Info("loaded stored tools", "count", loaded)

	if cfg.Tools.Builtins() {
		report, err := adminSvc.SyncBuiltinTools(ctx, catalog.Definitions())
		if err != nil {
			return nil, fmt.Errorf("syncing builtin tools: %w", err)
		}
		gw.logger.Info("builtin tools synced",
			"registered", len(report.Registered),
			"removed", len(report.Removed),
		)
	}

	// Subscribe after startup loading so the initial registrations don't fan
	// out to a session table that is still empty.
	registry.Subscribe(broadcaster.OnRegistryEvent)

	engine := capability.New(capability.Config{
		Registry:   registry,
		Identities: s,
		Mode:       mode,
		Logger:     logger,
	})
	gate := authz.New(authz.Config{
		Registry:   registry,
		Identities: s,
		Audit:      s,
		Logger:     logger,
	})

	dispatcher, err := mcp.NewDispatcher(mcp.DispatcherConfig{
		Registry:      registry,
		Capabilities:  engine,
		Gate:          gate,
		Host:          gw,
		ServerName:    "toolhub",
		ServerVersion: Version,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP dispatcher: %w", err)
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /health/ready", gw.handleReady)

	sseHandler, err := mcp.NewSSEHandler(mcp.SSEConfig{
		Sessions:      sessions,
		Dispatcher:    dispatcher,
		Authenticator: authn,
		BasePath:      cfg.Server.BasePath,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating SSE transport: %w", err)
	}
	sseHandler.RegisterRoutes(mux)

	streamHandler, err := mcp.NewStreamableHandler(mcp.StreamableConfig{
		Sessions:      sessions,
		Dispatcher:    dispatcher,
		Authenticator: authn,
		BasePath:      cfg.Server.BasePath,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating streamable transport: %w", err)
	}
	streamHandler.RegisterRoutes(mux)

	adminAPI, err := admin.NewAPI(admin.APIConfig{
		Service:       adminSvc,
		Authenticator: authn,
		Builtins:      catalog.Definitions,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating admin API: %w", err)
	}
	adminAPI.RegisterRoutes(mux)

	gw.logger.Info("routes registered",
		"sse", cfg.Server.BasePath+"/sse",
		"streamable", cfg.Server.BasePath+"/mcp",
		"admin", admin.APIPrefix,
		"capability_mode", mode,
	)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// Registry returns the live tool registry. Implements tools.Host.
func (g *Gateway) Registry() *tools.Registry {
	return g.registry
}

// NotifyToolListChanged fans a list-changed notification out to email's
// sessions, or to all sessions when email is empty. Implements tools.Host.
func (g *Gateway) NotifyToolListChanged(ctx context.Context, email string) {
	g.broadcaster.NotifyToolListChanged(ctx, email)
}

// Handler returns the HTTP handler serving every route.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// startSessions starts the session reaper.
func (g *Gateway) startSessions() {
	ctx, cancel := context.WithCancel(context.Background())
	g.stopSessions = cancel
	go g.sessions.Run(ctx)
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "server_id", g.serverID)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the gateway on an existing listener until ctx is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.logger.Info("starting gateway",
		"http_addr", ln.Addr().String(),
		"tools", g.registry.Len(),
	)
	g.startSessions()

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown closes every session, stops the HTTP server and closes the store.
// Sessions go first so long-lived SSE streams release the server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	if g.stopSessions != nil {
		g.stopSessions()
	}
	closed := g.sessions.CloseAll()
	g.logger.Info("closed sessions", "count", closed)

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.ListToolDefinitions(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d tools, %d sessions)", g.registry.Len(), g.sessions.Count())
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("toolhub-%d", time.Now().UnixNano()%1000000)
}

var _ tools.Host = (*Gateway)(nil)
