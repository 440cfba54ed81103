// Package admin implements the administrative surface of the tool server.
//
// # Service
//
// Service mutates tools, users and grants. Each mutation is persisted in the
// store, written to the audit log and followed by a list_changed signal to
// the sessions it can affect:
//
//   - RegisterTool, RemoveTool: every session, through registry events
//   - ShareTool, UnshareTool, HideTool, UnhideTool, SetRoles, UpsertUser:
//     only the sessions of the affected user
//
// SyncBuiltinTools reconciles the system-owned tool set with the definitions
// compiled into the server. Stale system tools are removed and any grants
// that referenced them are pruned, so a later tool with the same name does
// not inherit old shares.
//
// # HTTP API
//
// API exposes the service as JSON under /api/admin. All routes require a
// bearer credential whose identity carries the admin role:
//
//	GET    /api/admin/tools
//	POST   /api/admin/tools
//	DELETE /api/admin/tools/{name}
//	GET    /api/admin/users
//	PUT    /api/admin/users/{email}
//	PUT    /api/admin/users/{email}/roles
//	POST   /api/admin/users/{email}/shares
//	DELETE /api/admin/users/{email}/shares/{tool}
//	POST   /api/admin/users/{email}/hidden
//	DELETE /api/admin/users/{email}/hidden/{tool}
//	GET    /api/admin/audit
//	POST   /api/admin/builtins/sync
package admin
