// Package mcp serves the Model Context Protocol to remote clients over two
// HTTP transports that share one Dispatcher.
//
// # Transports
//
// Push stream (SSE):
//
//   - GET  {base}/sse                     - opens the stream, first event is "endpoint"
//   - POST {base}/message?sessionId=<id>  - client messages; 202, reply arrives on the stream
//
// Continuation channel (streamable HTTP):
//
//   - POST   {base}/mcp - initialize returns Mcp-Session-Id; later requests echo it
//   - GET    {base}/mcp - optional stream for notifications on an existing session
//   - DELETE {base}/mcp - ends the session
//
// Every connection authenticates with a bearer credential before a session
// exists. The session stays bound to that identity for its lifetime.
//
// # Methods
//
// initialize, ping, tools/list and tools/call. tools/list returns the
// session's capability view. tools/call re-checks authorization against
// live state on every call:
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/call",
//	  "params": {"name": "calc", "arguments": {"expression": "2+2"}},
//	  "id": 2
//	}
//
// Denials and handler failures come back as results with isError set, not as
// JSON-RPC errors. Sessions receive notifications/tools/list_changed whenever
// their view may have changed.
package mcp
