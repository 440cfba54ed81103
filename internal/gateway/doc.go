// Package gateway wires the toolhub server together and owns its lifecycle.
//
// # Overview
//
// New builds every component from a config.Config:
//
//   - SQLite store (TOOLHUB_DB_PATH overrides database.path)
//   - dispatch table with the builtin, static and http handler types
//   - tool registry, loaded from stored definitions
//   - built-in packs synced as system tools when tools.builtins_enabled
//   - session manager, broadcaster, capability engine and authorization gate
//   - the MCP dispatcher with both transports
//   - the admin HTTP API
//
// The registry is subscribed to the broadcaster once startup loading is
// done, so every later add, replace or remove notifies all sessions.
//
// # HTTP Routes
//
//   - GET  {base}/sse            push-stream transport
//   - POST {base}/message        push-stream requests
//   - POST|GET|DELETE {base}/mcp continuation-channel transport
//   - /api/admin/...             admin API (admin role)
//   - GET  /health               liveness
//   - GET  /health/ready         readiness (store reachable)
//
// # Host
//
// Gateway implements tools.Host, handing running tools the registry and the
// list-changed fan-out.
//
// # Lifecycle
//
// Run listens on server.http_addr and blocks until its context is canceled.
// Shutdown closes every session first so open event streams release the
// HTTP server, then stops the server and closes the store.
package gateway
