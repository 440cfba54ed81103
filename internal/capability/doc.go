// Package capability decides which tools a session sees when it lists tools.
//
// A tool is visible when it is always-visible, when one of its permitted roles
// matches the user, or when it has been shared with the user. A hidden tool is
// never visible, and an explicit tools-available allow-list, when present,
// restricts visibility further. In live mode a user unknown to persistence
// sees nothing, since every call would be denied.
//
// The result is cached on the session and is a listing aid only. Every call
// is checked again by internal/authz.
package capability
