// Package mcp implements a client for MCP (Model Context Protocol) servers
// spoken to over a child process's standard streams.
//
// The wire protocol is a line-delimited JSON-RPC 2.0 subset: the client
// writes one JSON message per line to the server's stdin and reads one JSON
// message per line from its stdout. Responses are correlated to requests by
// a numeric identifier assigned by the client; unrelated traffic interleaved
// on the stream is discarded. The server's stderr carries free-form log text
// and is never parsed for control meaning.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eel-hour/Unified-Security-Assistant/internal/metrics"
	"github.com/eel-hour/Unified-Security-Assistant/pkg/logging"
)

// Default bounded waits. Every blocking operation in the client has an
// explicit ceiling; nothing can hang forever.
const (
	DefaultHandshakeTimeout = 2 * time.Second
	DefaultCallTimeout      = 5 * time.Second
)

// Client drives one MCP server subprocess: it owns the process exclusively,
// performs the initialization handshake, correlates tool-call responses to
// requests by identifier, and normalizes results to display text.
//
// A client is single-shot: once Closed it cannot be re-initialized; create a
// fresh client instead. Concurrent CallTool invocations are supported; each
// caller blocks on its own pending identifier.
type Client struct {
	logger  *zap.SugaredLogger
	name    string
	version string
	tr      transport

	handshakeTimeout time.Duration
	callTimeout      time.Duration

	mu          sync.Mutex
	nextID      int64
	pending     map[int64]chan *Response
	tools       []Tool
	initialized bool
	closed      bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHandshakeTimeout overrides the bounded wait for the tools/list reply.
func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.handshakeTimeout = d }
}

// WithCallTimeout overrides the bounded wait for each tools/call reply.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.callTimeout = d }
}

// NewClient creates a client for the MCP server binary at serverPath.
// The name and version identify this client in the handshake and tag all
// log output from the server's stderr.
func NewClient(serverPath, name, version string, opts ...ClientOption) *Client {
	logger := logging.NewLogger("mcp." + name)
	c := &Client{
		logger:           logger,
		name:             name,
		version:          version,
		tr:               NewStdioTransport(logger, name, serverPath),
		handshakeTimeout: DefaultHandshakeTimeout,
		callTimeout:      DefaultCallTimeout,
		nextID:           callIDStart,
		pending:          make(map[int64]chan *Response),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newClientWithTransport wires a custom transport. Used by tests.
func newClientWithTransport(logger *zap.SugaredLogger, name string, tr transport, opts ...ClientOption) *Client {
	c := &Client{
		logger:           logger,
		name:             name,
		version:          "0.0.0",
		tr:               tr,
		handshakeTimeout: DefaultHandshakeTimeout,
		callTimeout:      DefaultCallTimeout,
		nextID:           callIDStart,
		pending:          make(map[int64]chan *Response),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the client identity used in the handshake.
func (c *Client) Name() string { return c.name }

// Tools returns the catalog advertised by the server during the handshake.
// Empty until Initialize succeeds.
func (c *Client) Tools() []Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tools
}

// Initialize starts the server process and performs the fixed three-message
// handshake: an initialize request (id 0), an initialized notification, and
// a tools/list request (id 1), sent back-to-back. It then waits for the
// message answering id 1 and returns the advertised tool catalog.
//
// On any failure the caller must Close the client; there is no autonomous
// retry at this layer.
func (c *Client) Initialize(ctx context.Context) ([]Tool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if c.initialized {
		c.mu.Unlock()
		return nil, errors.New("mcp: client already initialized")
	}
	c.mu.Unlock()

	msgs, err := c.tr.Start()
	if err != nil {
		return nil, err
	}

	handshake := []*Request{
		newRequest(initializeID, MethodInitialize, InitializeParams{
			ProtocolVersion: ProtocolVersion,
			Capabilities: Capabilities{
				Sampling: &struct{}{},
				Roots:    &RootsCapability{ListChanged: true},
			},
			ClientInfo: Implementation{Name: c.name, Version: c.version},
		}),
		newNotification(MethodInitialized),
		newRequest(listToolsID, MethodToolsList, struct{}{}),
	}

	for _, req := range handshake {
		c.logger.Debugf("Sending %s", req.Method)
		if err := c.tr.Send(req); err != nil {
			return nil, err
		}
	}

	tools, err := c.awaitToolsList(ctx, msgs)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tools = tools
	c.initialized = true
	c.mu.Unlock()

	// From here one shared dispatcher routes inbound responses to waiters.
	go c.dispatch(msgs)

	c.logger.Infof("MCP initialization successful, %d tools available", len(tools))
	return tools, nil
}

// awaitToolsList drains the inbound stream until the reply to the tools/list
// request appears. Messages with other identifiers (such as the reply to the
// initialize request) are legal and skipped.
func (c *Client) awaitToolsList(ctx context.Context, msgs <-chan *Response) ([]Tool, error) {
	timer := time.NewTimer(c.handshakeTimeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return nil, &TransportError{Op: "read", Err: io.EOF}
			}
			if msg.ID == nil || *msg.ID != listToolsID {
				c.logger.Debugf("Skipping handshake message (id=%v method=%q)", msg.ID, msg.Method)
				metrics.RecordMCPDiscardedMessage(c.name, "handshake")
				continue
			}
			if msg.Error != nil {
				return nil, &ProtocolError{RPC: msg.Error}
			}
			var res ListToolsResult
			if err := json.Unmarshal(msg.Result, &res); err != nil {
				return nil, fmt.Errorf("mcp: invalid tools/list result: %w", err)
			}
			return res.Tools, nil
		case <-timer.C:
			return nil, &TimeoutError{Method: MethodToolsList, ID: listToolsID, Wait: c.handshakeTimeout}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// dispatch is the single reader task after initialization. It routes each
// inbound response to the waiter registered for its identifier. Notifications
// and replies to identifiers nobody is waiting on (including late replies to
// calls that already timed out) are discarded with a debug log.
func (c *Client) dispatch(msgs <-chan *Response) {
	for msg := range msgs {
		if msg.ID == nil {
			c.logger.Debugf("Discarding notification %q", msg.Method)
			metrics.RecordMCPDiscardedMessage(c.name, "notification")
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		if ok {
			delete(c.pending, *msg.ID)
		}
		c.mu.Unlock()

		if !ok {
			c.logger.Debugf("Discarding reply for unknown or abandoned id %d", *msg.ID)
			metrics.RecordMCPDiscardedMessage(c.name, "stale")
			continue
		}
		ch <- msg
	}

	// Stream closed: the server died. Fail every pending call fast instead
	// of letting each run out its timeout.
	c.mu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.mu.Unlock()
}

// CallTool invokes a tool on the server and returns the normalized text
// result. It allocates the next identifier, registers a waiter, sends the
// tools/call request and blocks until the matching reply arrives, the bounded
// wait expires, the context is cancelled, or the server dies.
func (c *Client) CallTool(ctx context.Context, tool string, arguments map[string]any) (string, error) {
	c.mu.Lock()
	if !c.initialized || c.closed {
		c.mu.Unlock()
		return "", ErrNotInitialized
	}
	id := c.nextID
	c.nextID++
	ch := make(chan *Response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	c.logger.Debugf("Calling tool %q (id %d)", tool, id)
	metrics.RecordMCPToolCall(c.name, tool)
	start := time.Now()

	req := newRequest(id, MethodToolsCall, CallToolParams{Name: tool, Arguments: arguments})
	if err := c.tr.Send(req); err != nil {
		c.abandon(id)
		metrics.RecordMCPRequestError(c.name, "transport")
		return "", err
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		return c.finishCall(tool, start, msg, ok)
	case <-timer.C:
		c.abandon(id)
		metrics.RecordMCPRequestError(c.name, "timeout")
		return "", &TimeoutError{Method: MethodToolsCall, ID: id, Wait: c.callTimeout}
	case <-ctx.Done():
		c.abandon(id)
		metrics.RecordMCPRequestError(c.name, "canceled")
		return "", ctx.Err()
	case <-c.tr.Done():
		// The reply may have been delivered in the same instant the process
		// exited; prefer it over reporting a dead transport.
		select {
		case msg, ok := <-ch:
			return c.finishCall(tool, start, msg, ok)
		default:
		}
		c.abandon(id)
		metrics.RecordMCPRequestError(c.name, "transport")
		return "", &TransportError{Op: "wait", Err: errors.New("server process exited")}
	}
}

func (c *Client) finishCall(tool string, start time.Time, msg *Response, ok bool) (string, error) {
	if !ok {
		metrics.RecordMCPRequestError(c.name, "transport")
		return "", &TransportError{Op: "read", Err: io.EOF}
	}
	if msg.Error != nil {
		metrics.RecordMCPRequestError(c.name, "tool")
		return "", &ToolError{Tool: tool, Code: msg.Error.Code, Message: msg.Error.Message}
	}
	metrics.RecordMCPRequest(c.name, MethodToolsCall, time.Since(start).Seconds())
	return FlattenResult(msg.Result), nil
}

// abandon drops the waiter for id. A reply arriving afterwards is discarded
// by dispatch; the identifier is never reused within this connection.
func (c *Client) abandon(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Close terminates the server process, gracefully then forcefully. Idempotent
// and safe to call before Initialize. The client is invalid afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.initialized = false
	c.mu.Unlock()

	return c.tr.Close()
}
