// ABOUTME: JSON-RPC 2.0 and MCP message types shared by both transports.
// ABOUTME: decodeRequest validates a single inbound message before dispatch.

package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/2389/toolhub/internal/tools"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
	"2025-11-25": true,
}

// latestProtocolVersion is the version we advertise when the client asks for
// one we don't know.
const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// JSON-RPC 2.0 types

// Request represents a JSON-RPC 2.0 request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeNoSession is the server-defined code for a missing or unknown session.
	CodeNoSession = -32000
)

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message}}
}

// MCP-specific types

// ToolInfo is one entry of a tools/list result.
type ToolInfo struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema json.RawMessage    `json:"inputSchema"`
	Annotations *tools.Annotations `json:"annotations,omitempty"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// InitializeParams are the params for initialize.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

// InitializeResult is the result for initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

// ServerCapabilities advertises what the server supports.
type ServerCapabilities struct {
	Tools ToolsCapability `json:"tools"`
}

// ToolsCapability advertises tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ServerInfo identifies the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

var errBodyTooLarge = errors.New("request body too large")

// decodeRequest reads and validates one JSON-RPC message. On failure it
// returns the error response to send.
func decodeRequest(body io.Reader) (*Request, *Response) {
	data, err := io.ReadAll(io.LimitReader(body, MaxRequestBodySize+1))
	if err != nil {
		return nil, errorResponse(nil, CodeParseError, "failed to read request body")
	}
	if int64(len(data)) > MaxRequestBodySize {
		return nil, errorResponse(nil, CodeInvalidRequest, errBodyTooLarge.Error())
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errorResponse(nil, CodeParseError, "invalid JSON")
	}
	if req.JSONRPC != "2.0" {
		return nil, errorResponse(req.ID, CodeInvalidRequest, "invalid JSON-RPC version")
	}
	if req.Method == "" {
		return nil, errorResponse(req.ID, CodeInvalidRequest, "method is required")
	}
	return &req, nil
}

// marshalResponse serializes resp for a stream write.
func marshalResponse(resp *Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshaling response: %w", err)
	}
	return data, nil
}
