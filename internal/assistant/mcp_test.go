package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/eel-hour/Unified-Security-Assistant/internal/limit"
)

type fakeCaller struct {
	calls  []handlerCall
	result string
	err    error
}

func (c *fakeCaller) CallTool(_ context.Context, tool string, args map[string]any) (string, error) {
	c.calls = append(c.calls, handlerCall{Name: tool, Args: args})
	return c.result, c.err
}

func testBreaker() *limit.Breaker {
	return limit.New("test", limit.Config{MaxConcurrent: 2, MaxQueueSize: 0, QueueTimeout: time.Second})
}

func TestWazuhProcessNameNormalization(t *testing.T) {
	gen := &fakeGen{responses: []string{
		`{"name": "get_wazuh_agent_processes", "arguments": {"agent_id": "001", "process_name": "sshd"}}`,
		"sshd is running.",
	}}
	caller := &fakeCaller{result: "PID 1234 sshd"}
	a := NewWazuh(gen, caller, testBreaker())

	if _, err := a.Handle(context.Background(), "is sshd running on agent 001?"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	want := []handlerCall{{
		Name: "get_wazuh_agent_processes",
		Args: map[string]any{"agent_id": "001", "search": "sshd"},
	}}
	if diff := cmp.Diff(want, caller.calls); diff != "" {
		t.Errorf("call mismatch (-want +got):\n%s", diff)
	}
}

func TestWazuhToolErrorSurfaced(t *testing.T) {
	gen := &fakeGen{responses: []string{`{"name": "get_wazuh_remoted_stats", "arguments": {}}`}}
	caller := &fakeCaller{err: errors.New("index unavailable")}
	a := NewWazuh(gen, caller, testBreaker())

	_, err := a.Handle(context.Background(), "remoted stats")
	if !errors.Is(err, caller.err) {
		t.Fatalf("Handle = %v, want wrapped %v", err, caller.err)
	}
}

func TestTheHiveIDNormalization(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want map[string]any
	}{
		{
			name: "bare string id",
			args: map[string]any{"case_id": "12345"},
			want: map[string]any{"case_id": "~12345"},
		},
		{
			name: "already prefixed",
			args: map[string]any{"case_id": "~12345"},
			want: map[string]any{"case_id": "~12345"},
		},
		{
			name: "numeric id",
			args: map[string]any{"alert_id": float64(98765)},
			want: map[string]any{"alert_id": "~98765"},
		},
		{
			name: "non-id args untouched",
			args: map[string]any{"alert_id": "5", "limit": float64(10)},
			want: map[string]any{"alert_id": "~5", "limit": float64(10)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalizeTheHiveArgs("get_thehive_case_by_id", tt.args)
			if diff := cmp.Diff(tt.want, tt.args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTheHiveEndToEnd(t *testing.T) {
	gen := &fakeGen{responses: []string{
		`{"name": "get_thehive_case_by_id", "arguments": {"case_id": "424242"}}`,
		"Case is open, severity high.",
	}}
	caller := &fakeCaller{result: `{"title": "Suspicious login", "severity": 3}`}
	a := NewTheHive(gen, caller, testBreaker())

	reply, err := a.Handle(context.Background(), "show case 424242")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if caller.calls[0].Args["case_id"] != "~424242" {
		t.Errorf("case_id = %v, want tilde prefix", caller.calls[0].Args["case_id"])
	}
	if reply.Summary != "Case is open, severity high." {
		t.Errorf("summary = %q", reply.Summary)
	}
}

func TestMCPHandlerBreakerRejection(t *testing.T) {
	br := limit.New("test", limit.Config{MaxConcurrent: 1, MaxQueueSize: 0, QueueTimeout: time.Second})
	caller := &fakeCaller{result: "ok"}
	h := &mcpHandler{caller: caller, breaker: br}

	// Hold the only slot, then the next call must be rejected.
	if err := br.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	_, err := h.CallTool(context.Background(), "stats", nil)
	if !errors.Is(err, limit.ErrQueueFull) {
		t.Errorf("CallTool = %v, want ErrQueueFull", err)
	}
	if len(caller.calls) != 0 {
		t.Error("caller invoked despite breaker rejection")
	}

	br.Release()
	if _, err := h.CallTool(context.Background(), "stats", nil); err != nil {
		t.Errorf("CallTool after release: %v", err)
	}
}

func TestMCPHandlerReleasesSlot(t *testing.T) {
	br := limit.New("test", limit.Config{MaxConcurrent: 1, MaxQueueSize: 0, QueueTimeout: time.Second})
	h := &mcpHandler{caller: &fakeCaller{result: "ok"}, breaker: br}

	for i := 0; i < 3; i++ {
		if _, err := h.CallTool(context.Background(), "stats", nil); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	stats := br.Stats()
	if stats.Active != 0 {
		t.Errorf("active = %d after sequential calls, want 0", stats.Active)
	}
}
