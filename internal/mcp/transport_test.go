package mcp

import (
	"errors"
	"testing"
	"time"
)

// /bin/cat echoes every line it receives, which makes it a perfectly
// protocol-compliant mock for framing tests: whatever JSON line we send
// comes straight back.

func TestStdioTransportEcho(t *testing.T) {
	tr := NewStdioTransport(testLogger(), "test", "/bin/cat")
	msgs, err := tr.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = tr.Close() }()

	id := int64(7)
	if err := tr.Send(&Request{JSONRPC: JSONRPCVersion, ID: &id, Method: "ping"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.ID == nil || *msg.ID != 7 {
			t.Errorf("echoed id = %v, want 7", msg.ID)
		}
		if msg.Method != "ping" {
			t.Errorf("echoed method = %q, want %q", msg.Method, "ping")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no echo within 5s")
	}
}

func TestStdioTransportMalformedLineSkipped(t *testing.T) {
	// The first line is not JSON and must be dropped; the second still
	// arrives intact.
	script := `echo 'this is not json'; echo '{"jsonrpc":"2.0","id":3,"result":{}}'`
	tr := NewStdioTransport(testLogger(), "test", "/bin/sh", "-c", script)
	msgs, err := tr.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = tr.Close() }()

	select {
	case msg, ok := <-msgs:
		if !ok {
			t.Fatal("stream closed before the well-formed line arrived")
		}
		if msg.ID == nil || *msg.ID != 3 {
			t.Errorf("got id %v, want 3 (malformed line must not surface)", msg.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message within 5s")
	}
}

func TestStdioTransportEOFClosesStream(t *testing.T) {
	tr := NewStdioTransport(testLogger(), "test", "/bin/sh", "-c", "exit 0")
	msgs, err := tr.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = tr.Close() }()

	select {
	case _, ok := <-msgs:
		if ok {
			t.Error("expected closed channel, got a message")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream not closed within 5s of process exit")
	}

	select {
	case <-tr.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not signalled within 5s of process exit")
	}
}

func TestStdioTransportStartupError(t *testing.T) {
	tr := NewStdioTransport(testLogger(), "test", "/nonexistent/mcp-server")
	_, err := tr.Start()

	var serr *StartupError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StartupError, got %v", err)
	}
}

func TestStdioTransportSendWithoutStart(t *testing.T) {
	tr := NewStdioTransport(testLogger(), "test", "/bin/cat")
	err := tr.Send(&Request{JSONRPC: JSONRPCVersion, Method: "ping"})

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestStdioTransportCloseIdempotent(t *testing.T) {
	tr := NewStdioTransport(testLogger(), "test", "/bin/cat")

	// Close before Start is a no-op.
	if err := tr.Close(); err != nil {
		t.Fatalf("Close before Start: %v", err)
	}

	if _, err := tr.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// A fresh Start after Close must succeed.
	if _, err := tr.Start(); err != nil {
		t.Fatalf("Start after Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("final Close: %v", err)
	}
}

func TestStdioTransportCloseWithUnconsumedFlood(t *testing.T) {
	// A server that floods stdout while nobody consumes the stream (the
	// handshake failed, so no dispatcher ever ran). The reader blocks on
	// the full channel buffer; Close must still terminate the process and
	// return within the grace period instead of waiting on the reader.
	script := `while :; do echo '{"jsonrpc":"2.0","id":9,"result":{}}'; done`
	tr := NewStdioTransport(testLogger(), "test", "/bin/sh", "-c", script)
	if _, err := tr.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let the flood fill the channel buffer and wedge the reader.
	time.Sleep(300 * time.Millisecond)

	start := time.Now()
	closed := make(chan error, 1)
	go func() { closed <- tr.Close() }()

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
		if elapsed := time.Since(start); elapsed > graceTimeout+3*time.Second {
			t.Errorf("Close took %s, want within grace period", elapsed)
		}
	case <-time.After(graceTimeout + 10*time.Second):
		t.Fatal("Close hung on an unconsumed flooding stream")
	}
}

func TestStdioTransportDoubleStart(t *testing.T) {
	tr := NewStdioTransport(testLogger(), "test", "/bin/cat")
	if _, err := tr.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = tr.Close() }()

	if _, err := tr.Start(); err == nil {
		t.Error("expected error starting a running transport")
	}
}

func TestStdioTransportStderrDoesNotStall(t *testing.T) {
	// A chatty stderr must not block the primary stream.
	script := `i=0; while [ $i -lt 200 ]; do echo "log noise $i" >&2; i=$((i+1)); done; cat`
	tr := NewStdioTransport(testLogger(), "test", "/bin/sh", "-c", script)
	msgs, err := tr.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = tr.Close() }()

	id := int64(42)
	if err := tr.Send(&Request{JSONRPC: JSONRPCVersion, ID: &id, Method: "ping"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.ID == nil || *msg.ID != 42 {
			t.Errorf("got id %v, want 42", msg.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("primary stream stalled behind stderr noise")
	}
}
