// Package builtins provides the handler types and system tools compiled into
// the server.
//
// # Handler types
//
//   - builtin: in-process tools from a Catalog, config {"tool": "<name>"}
//   - static:  fixed response, config {"text": "..."} or {"json": {...}}
//   - http:    forwards arguments to an upstream, config {"url": "...", "method": "POST"}
//
// Install registers all three on a tools.Dispatch.
//
// # Packs
//
// Base pack (builtin:base), always visible:
//
//   - whoami: the identity the session is bound to
//   - refresh_tools: re-announce the caller's tool list
//
// Admin pack (builtin:admin), role "admin":
//
//   - admin_list_users, admin_share_tool, admin_unshare_tool
//   - admin_hide_tool, admin_unhide_tool, admin_set_roles, admin_audit_log
//
// Catalog.Definitions yields these tools as system-owned definitions. The
// server passes them to admin.Service.SyncBuiltinTools at startup so tools
// dropped from a release disappear along with any grants that named them.
package builtins
