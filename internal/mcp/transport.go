package mcp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/eel-hour/Unified-Security-Assistant/internal/metrics"
)

// graceTimeout is how long Close waits for the server to exit after SIGTERM
// before killing it.
const graceTimeout = 5 * time.Second

// maxLineSize bounds one inbound JSON line. Tool results can be large.
const maxLineSize = 4 * 1024 * 1024

// transport is the framing and lifecycle seam between the client and the
// server subprocess. Satisfied by *StdioTransport; tests substitute a pipe.
type transport interface {
	// Start launches the server and returns the inbound message stream.
	// The channel is closed when the server's stdout reaches EOF.
	Start() (<-chan *Response, error)
	// Send writes one message as a single JSON line.
	Send(msg any) error
	// Done is closed once the server process has exited.
	Done() <-chan struct{}
	// Close terminates the server, gracefully then forcefully. Idempotent.
	Close() error
}

// StdioTransport runs an MCP server as a child process and frames one JSON
// value per line over its standard input and output. Standard error is
// drained line by line into the logger so the pipe never backs up and stalls
// the server.
type StdioTransport struct {
	logger *zap.SugaredLogger
	name   string
	path   string
	args   []string

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
	stop  chan struct{}
}

// NewStdioTransport creates a transport for the server binary at path.
// The name tags log lines and metrics with the owning client's identity.
func NewStdioTransport(logger *zap.SugaredLogger, name, path string, args ...string) *StdioTransport {
	return &StdioTransport{
		logger: logger,
		name:   name,
		path:   path,
		args:   args,
	}
}

// Start launches the server process with piped standard streams and begins
// the stdout reader and stderr drain. At most one live process per transport;
// starting while running is an error.
func (t *StdioTransport) Start() (<-chan *Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd != nil {
		return nil, &TransportError{Op: "start", Err: errors.New("server already running")}
	}

	cmd := exec.Command(t.path, t.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &StartupError{Path: t.path, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &StartupError{Path: t.path, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &StartupError{Path: t.path, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &StartupError{Path: t.path, Err: err}
	}

	t.logger.Infof("Started MCP server %s (pid %d)", t.path, cmd.Process.Pid)
	metrics.SetMCPServerUp(t.name, true)

	t.cmd = cmd
	t.stdin = stdin
	t.done = make(chan struct{})
	t.stop = make(chan struct{})

	msgs := make(chan *Response, 16)

	var readers sync.WaitGroup
	readers.Add(2)
	go func(stop <-chan struct{}) {
		defer readers.Done()
		t.readLoop(stdout, msgs, stop)
	}(t.stop)
	go func() {
		defer readers.Done()
		t.drainStderr(stderr)
	}()
	go t.reap(cmd, t.done, &readers)

	return msgs, nil
}

// readLoop reads one JSON message per line from the server's stdout.
// Malformed lines are logged and dropped; one corrupt line must not abort an
// otherwise healthy session. The channel closes on EOF, which is how the
// client detects a dead process without polling.
//
// The send also watches stop: if the consumer is gone and the channel
// buffer fills (a server flooding output during Close), the reader must
// still be able to exit so Close never waits on it forever.
func (t *StdioTransport) readLoop(stdout io.Reader, msgs chan<- *Response, stop <-chan struct{}) {
	defer close(msgs)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Response
		if err := json.Unmarshal(line, &msg); err != nil {
			t.logger.Warnf("Dropping malformed line from server: %v: %.200s", err, line)
			metrics.RecordMCPDiscardedMessage(t.name, "malformed")
			continue
		}
		select {
		case msgs <- &msg:
		case <-stop:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		t.logger.Debugf("Server stdout closed: %v", err)
	}
}

// drainStderr forwards the server's diagnostic stream to the logger. Runs
// until stderr reaches EOF when the process exits.
func (t *StdioTransport) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		t.logger.Infof("[server] %s", scanner.Text())
	}
}

// reap waits for both pipe readers to finish, then collects the exit status.
// cmd.Wait must not race the pipe readers.
func (t *StdioTransport) reap(cmd *exec.Cmd, done chan struct{}, readers *sync.WaitGroup) {
	readers.Wait()
	err := cmd.Wait()
	metrics.SetMCPServerUp(t.name, false)
	if err != nil {
		t.logger.Infof("MCP server exited: %v", err)
	} else {
		t.logger.Debugf("MCP server exited cleanly")
	}
	close(done)
}

// Send serializes msg to a single JSON line and writes it to the server's
// stdin in one write call, so lines are never interleaved or partially
// flushed.
func (t *StdioTransport) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stdin == nil {
		return &TransportError{Op: "write", Err: errors.New("server not running")}
	}
	if _, err := t.stdin.Write(data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Done is closed when the server process has exited. Before Start it returns
// nil, which never fires.
func (t *StdioTransport) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Close terminates the server: SIGTERM, then SIGKILL after graceTimeout.
// Safe to call multiple times and before Start. A new Start is required
// before further use.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	cmd := t.cmd
	stdin := t.stdin
	done := t.done
	stop := t.stop
	t.cmd = nil
	t.stdin = nil
	t.done = nil
	t.stop = nil
	t.mu.Unlock()

	if cmd == nil {
		return nil
	}

	// Release the stdout reader first: if nobody is consuming the stream
	// (handshake failed) and the server keeps writing, the reader is
	// blocked on a full channel and the exit below would never be seen.
	close(stop)

	// Closing stdin is often enough for well-behaved servers.
	_ = stdin.Close()
	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-done:
		t.logger.Infof("MCP server terminated gracefully")
	case <-time.After(graceTimeout):
		_ = cmd.Process.Kill()
		<-done
		t.logger.Warnf("MCP server killed after %s grace period", graceTimeout)
	}
	return nil
}
