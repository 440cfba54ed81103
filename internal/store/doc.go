// Package store provides persistent storage for toolhub using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with several small
// interfaces:
//
//   - IdentityStore: FindIdentity and CheckToolAccess, the lookups consumed
//     by the capability engine and the authorization gate
//   - UserStore: users, roles, shares and hidden tools
//   - ToolStore: tool definitions registered at runtime
//   - AuditStore: the append-only audit trail
//
// Store composes all of them. SQLiteStore implements Store in a single struct.
//
// # Data Models
//
//   - UserIdentity: email, roles, shared tools, hidden tools and an optional
//     tools-available allow-list
//   - SharedTool: a per-user grant of one tool with an access level
//   - AuditEntry: event, user, tool, status and reason
//
// Tool definitions are persisted as JSON blobs of tools.Definition.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads. Foreign keys and a
// busy timeout are set per connection through the DSN:
//
//	file.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)
//
// # Error Handling
//
//   - ErrNotFound: requested user does not exist
//   - ErrInvalidAccessLevel: share names an unknown access level
//
// All methods accept context.Context for cancellation support. The store never
// retries; callers treat a failed lookup as a dependency failure.
//
// # Testing
//
// Use NewMockStore() for unit tests. SetLookupError and SetAuditError inject
// failures into the identity lookups and the audit trail.
//
// Use NewSQLiteStore(filepath.Join(t.TempDir(), "test.db")) for tests against
// real SQLite.
//
// # Migrations
//
// Column additions run automatically on startup and are idempotent.
package store
