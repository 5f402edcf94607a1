package mcp

import "encoding/json"

// JSON-RPC 2.0 envelope types for the MCP stdio protocol.
//
// The wire format is strictly line-delimited: one JSON value per line in both
// directions. A request without an ID is a notification and receives no reply.

// Request represents a JSON-RPC 2.0 request or notification.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response. Inbound traffic is decoded
// into this shape; notifications arrive with a nil ID and no result or error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Standard JSON-RPC error codes
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// Protocol constants
const (
	JSONRPCVersion  = "2.0"
	ProtocolVersion = "2024-11-05"
)

// Method names consumed by the client
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// Reserved request identifiers. The handshake uses 0 and 1; tool calls start
// above them so an identifier can never collide within one connection.
const (
	initializeID = 0
	listToolsID  = 1
	callIDStart  = 101
)

// MCP-specific types

// InitializeParams contains parameters for the initialize request.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    Capabilities   `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// Capabilities declares what the client supports.
type Capabilities struct {
	Sampling *struct{}        `json:"sampling,omitempty"`
	Roots    *RootsCapability `json:"roots,omitempty"`
	Tools    *ToolsCapability `json:"tools,omitempty"`
}

// RootsCapability declares root list change support.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ToolsCapability declares tool list change support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// Implementation describes a client or server implementation.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Tool describes one invokable capability advertised by the server during
// the handshake. Read-only after initialization; the client does not enforce
// the input schema.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is the params payload of tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func newRequest(id int64, method string, params any) *Request {
	return &Request{JSONRPC: JSONRPCVersion, ID: &id, Method: method, Params: params}
}

func newNotification(method string) *Request {
	return &Request{JSONRPC: JSONRPCVersion, Method: method}
}
