// ABOUTME: JSON HTTP API for the administrative surface under /api/admin
// ABOUTME: Every route requires an authenticated identity with the admin role

package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/store"
	"github.com/2389/toolhub/internal/tools"
)

// APIPrefix is where the admin API is mounted.
const APIPrefix = "/api/admin"

// maxBodySize bounds admin request bodies.
const maxBodySize = 1 << 20

// ShareRequest is the body for POST /api/admin/users/{email}/shares.
type ShareRequest struct {
	Tool        string            `json:"tool"`
	AccessLevel store.AccessLevel `json:"access_level,omitempty"`
}

// HideRequest is the body for POST /api/admin/users/{email}/hidden.
type HideRequest struct {
	Tool string `json:"tool"`
}

// RolesRequest is the body for PUT /api/admin/users/{email}/roles.
type RolesRequest struct {
	Roles []string `json:"roles"`
}

// UserRequest is the body for PUT /api/admin/users/{email}.
type UserRequest struct {
	Roles          []string `json:"roles"`
	ToolsAvailable []string `json:"tools_available,omitempty"`
}

// RegisterResponse is the response for POST /api/admin/tools.
type RegisterResponse struct {
	Name  string          `json:"name"`
	Event tools.EventKind `json:"event"`
}

// APIConfig holds configuration for the HTTP API.
type APIConfig struct {
	Service       *Service
	Authenticator auth.Authenticator
	// Builtins returns the definitions POST /api/admin/builtins/sync applies.
	Builtins func() []tools.Definition
	Logger   *slog.Logger
}

// API serves the admin HTTP routes.
type API struct {
	svc      *Service
	authn    auth.Authenticator
	builtins func() []tools.Definition
	logger   *slog.Logger
}

// NewAPI creates the admin HTTP API.
func NewAPI(cfg APIConfig) (*API, error) {
	if cfg.Service == nil || cfg.Authenticator == nil {
		return nil, errors.New("service and authenticator are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		svc:      cfg.Service,
		authn:    cfg.Authenticator,
		builtins: cfg.Builtins,
		logger:   logger.With("component", "admin-api"),
	}, nil
}

// RegisterRoutes mounts the API on mux behind authentication and the admin
// role check.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	inner := http.NewServeMux()
	inner.HandleFunc("GET "+APIPrefix+"/tools", a.handleListTools)
	inner.HandleFunc("POST "+APIPrefix+"/tools", a.handleRegisterTool)
	inner.HandleFunc("DELETE "+APIPrefix+"/tools/{name}", a.handleRemoveTool)
	inner.HandleFunc("GET "+APIPrefix+"/users", a.handleListUsers)
	inner.HandleFunc("PUT "+APIPrefix+"/users/{email}", a.handleUpsertUser)
	inner.HandleFunc("PUT "+APIPrefix+"/users/{email}/roles", a.handleSetRoles)
	inner.HandleFunc("POST "+APIPrefix+"/users/{email}/shares", a.handleShare)
	inner.HandleFunc("DELETE "+APIPrefix+"/users/{email}/shares/{tool}", a.handleUnshare)
	inner.HandleFunc("POST "+APIPrefix+"/users/{email}/hidden", a.handleHide)
	inner.HandleFunc("DELETE "+APIPrefix+"/users/{email}/hidden/{tool}", a.handleUnhide)
	inner.HandleFunc("GET "+APIPrefix+"/audit", a.handleListAudit)
	inner.HandleFunc("POST "+APIPrefix+"/builtins/sync", a.handleSyncBuiltins)

	var h http.Handler = inner
	h = auth.RequireRole(auth.RoleAdmin)(h)
	h = auth.Middleware(a.authn)(h)
	mux.Handle(APIPrefix+"/", h)
}

// sendJSON writes v with status.
func (a *API) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (a *API) sendJSONError(w http.ResponseWriter, status int, message string) {
	a.sendJSON(w, status, map[string]string{"error": message})
}

// sendServiceError maps a service error to a status code.
func (a *API) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, tools.ErrInvalidDefinition),
		errors.Is(err, tools.ErrInvalidSchema),
		errors.Is(err, tools.ErrUnknownHandlerType),
		errors.Is(err, tools.ErrInvalidHandlerConfig),
		errors.Is(err, store.ErrInvalidAccessLevel):
		a.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnknownTool), errors.Is(err, store.ErrNotFound):
		a.sendJSONError(w, http.StatusNotFound, err.Error())
	default:
		a.logger.Error("admin request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		a.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decode reads a JSON body into v, answering 400 on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		a.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (a *API) handleListTools(w http.ResponseWriter, r *http.Request) {
	a.sendJSON(w, http.StatusOK, map[string]any{"tools": a.svc.ListTools()})
}

func (a *API) handleRegisterTool(w http.ResponseWriter, r *http.Request) {
	var def tools.Definition
	if !a.decode(w, r, &def) {
		return
	}
	ev, err := a.svc.RegisterTool(r.Context(), def)
	if err != nil {
		a.sendServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if ev.Kind == tools.EventReplaced {
		status = http.StatusOK
	}
	a.sendJSON(w, status, RegisterResponse{Name: ev.Name, Event: ev.Kind})
}

func (a *API) handleRemoveTool(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.RemoveTool(r.Context(), r.PathValue("name")); err != nil {
		a.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.svc.ListUsers(r.Context())
	if err != nil {
		a.sendServiceError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if !a.decode(w, r, &req) {
		return
	}
	u := &store.UserIdentity{
		Email:          r.PathValue("email"),
		Roles:          req.Roles,
		ToolsAvailable: req.ToolsAvailable,
	}
	if err := a.svc.UpsertUser(r.Context(), u); err != nil {
		a.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetRoles(w http.ResponseWriter, r *http.Request) {
	var req RolesRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.svc.SetRoles(r.Context(), r.PathValue("email"), req.Roles); err != nil {
		a.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleShare(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.svc.ShareTool(r.Context(), r.PathValue("email"), req.Tool, req.AccessLevel); err != nil {
		a.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUnshare(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.UnshareTool(r.Context(), r.PathValue("email"), r.PathValue("tool")); err != nil {
		a.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleHide(w http.ResponseWriter, r *http.Request) {
	var req HideRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.svc.HideTool(r.Context(), r.PathValue("email"), req.Tool); err != nil {
		a.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUnhide(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.UnhideTool(r.Context(), r.PathValue("email"), r.PathValue("tool")); err != nil {
		a.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListAudit handles GET /api/admin/audit with optional user, tool,
// event, since, until (RFC3339) and limit query parameters.
func (a *API) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.AuditFilter

	if v := q.Get("user"); v != "" {
		f.User = &v
	}
	if v := q.Get("tool"); v != "" {
		f.Tool = &v
	}
	if v := q.Get("event"); v != "" {
		ev := store.AuditEvent(v)
		f.Event = &ev
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			a.sendJSONError(w, http.StatusBadRequest, p.key+" must be RFC3339")
			return
		}
		*p.dst = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	entries, err := a.svc.ListAudit(r.Context(), f)
	if err != nil {
		a.sendServiceError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleSyncBuiltins(w http.ResponseWriter, r *http.Request) {
	if a.builtins == nil {
		a.sendJSONError(w, http.StatusNotFound, "built-in tools are disabled")
		return
	}
	report, err := a.svc.SyncBuiltinTools(r.Context(), a.builtins())
	if err != nil {
		a.sendServiceError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, report)
}
