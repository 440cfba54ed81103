// ABOUTME: Small HTTP helpers shared by the MCP transports.
// ABOUTME: JSON bodies, base path normalization and the no-session error body.

package mcp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// noSessionBody is the body returned when a request names no usable session.
var noSessionBody = map[string]any{
	"error": map[string]any{
		"code":    CodeNoSession,
		"message": "no valid session ID provided",
	},
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to encode JSON response", "error", err)
	}
}

// cleanBasePath turns "", "/" and "/mcp/" into "", "" and "/mcp".
func cleanBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
