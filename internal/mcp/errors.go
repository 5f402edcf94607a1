package mcp

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotInitialized is returned when a tool call is attempted before a
// successful handshake or after Close.
var ErrNotInitialized = errors.New("mcp: client not initialized")

// StartupError indicates the server subprocess could not be launched.
type StartupError struct {
	Path string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("mcp: failed to start server %s: %v", e.Path, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// ProtocolError indicates the server returned an error envelope during the
// handshake.
type ProtocolError struct {
	RPC *RPCError
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mcp: initialization error: %s", e.RPC.Message)
}

func (e *ProtocolError) Unwrap() error { return e.RPC }

// ToolError indicates the server returned an error envelope for a tools/call.
// The server message is carried verbatim for display to the end user.
type ToolError struct {
	Tool    string
	Code    int
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp: tool %s failed: %s", e.Tool, e.Message)
}

// TimeoutError indicates no matching response arrived within the bounded wait.
type TimeoutError struct {
	Method string
	ID     int64
	Wait   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mcp: timeout waiting %s for %s response (id %d)", e.Wait, e.Method, e.ID)
}

// TransportError indicates the underlying pipe was closed or a write failed,
// typically because the server process died.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mcp: transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
