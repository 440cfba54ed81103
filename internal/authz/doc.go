// Package authz implements the live authorization gate.
//
// Authorize runs on every tool call, independently of any listing the caller
// has seen. The checks run in order and the first failure decides:
//
//   - no_email: the caller has no email
//   - user_not_found: the email is not a known user
//   - dependency_failure: an identity or share lookup failed (not retried)
//   - not_authorized: the tool does not exist, or is neither always-visible,
//     permitted to one of the user's roles, nor shared with the user
//
// Every decision, allowed or denied, is appended to the audit trail.
package authz
