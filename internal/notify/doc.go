// Package notify tells connected clients that their tool list may have
// changed.
//
// NotifyToolListChanged with an empty email reaches every session; with an
// email it reaches only that user's sessions through the session manager's
// reverse index. For each target the cached capability view is invalidated
// before the session is signalled, so the client's follow-up tools/list sees
// fresh state. Signals are coalesced per session and delivery failures are
// logged by the session pump, never returned to the caller.
package notify
