// Package assistant implements the natural-language front end: each
// assistant owns a tool catalog, builds the system prompt for it, asks the
// model to answer or emit a tool call, executes the call, and asks for a
// short analyst summary of the result.
package assistant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eel-hour/Unified-Security-Assistant/internal/llm"
	"github.com/eel-hour/Unified-Security-Assistant/pkg/logging"
)

// summaryContextLimit caps how much tool output is fed back to the model
// for the summary turn.
const summaryContextLimit = 2000

// ToolSpec describes one tool the model may call.
type ToolSpec struct {
	Description  string
	RequiredArgs []string
	OptionalArgs []string
}

// ToolHandler executes a validated tool call and returns its textual result.
type ToolHandler interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Message is one entry of an assistant's conversation history.
type Message struct {
	ID      uuid.UUID
	Role    string
	Content string
	Time    time.Time
}

// Reply is the outcome of one user turn.
type Reply struct {
	Text     string
	ToolName string
	Result   string
	Summary  string
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithArgNormalizer installs a hook that rewrites tool arguments before
// dispatch. Used for per-backend quirks such as argument renames.
func WithArgNormalizer(fn func(tool string, args map[string]any)) Option {
	return func(a *Assistant) { a.normalize = fn }
}

// WithPromptNotes appends backend-specific guidance to the system prompt.
func WithPromptNotes(notes string) Option {
	return func(a *Assistant) { a.promptNotes = notes }
}

// Assistant runs the prompt/tool-call/summary loop for one backend.
type Assistant struct {
	name        string
	description string
	logger      *zap.SugaredLogger
	gen         llm.Generator
	tools       map[string]ToolSpec
	handler     ToolHandler
	normalize   func(tool string, args map[string]any)
	promptNotes string

	mu      sync.Mutex
	history []Message
}

// New creates an assistant over the given tool catalog and handler.
func New(name, description string, gen llm.Generator, tools map[string]ToolSpec, handler ToolHandler, opts ...Option) *Assistant {
	a := &Assistant{
		name:        name,
		description: description,
		logger:      logging.NewLogger("assistant." + name),
		gen:         gen,
		tools:       tools,
		handler:     handler,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the assistant's short name.
func (a *Assistant) Name() string { return a.name }

// Description returns a one-line description for listings.
func (a *Assistant) Description() string { return a.description }

// ToolNames returns the catalog's tool names in sorted order.
func (a *Assistant) ToolNames() []string {
	names := make([]string, 0, len(a.tools))
	for name := range a.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SystemPrompt renders the tool catalog into the instruction block sent
// ahead of every user turn.
func (a *Assistant) SystemPrompt() string {
	var lines []string
	for _, name := range a.ToolNames() {
		spec := a.tools[name]
		required := "None"
		if len(spec.RequiredArgs) > 0 {
			required = strings.Join(spec.RequiredArgs, ", ")
		}
		lines = append(lines, fmt.Sprintf("- %s: %s (Required args: %s)", name, spec.Description, required))
	}

	prompt := fmt.Sprintf(`You are a specialized AI assistant with access to these tools:
%s

When you need to use a tool, respond with ONLY valid JSON:
{"name": "tool_name", "arguments": {...}}

For queries that combine multiple filters, include all relevant arguments in the JSON.
If you can answer without tools, respond naturally.`, strings.Join(lines, "\n"))

	if a.promptNotes != "" {
		prompt += "\n\n" + a.promptNotes
	}
	return prompt
}

// Handle processes one user turn: tool-listing shortcut, model turn,
// optional tool dispatch, then a summary turn over the tool output.
func (a *Assistant) Handle(ctx context.Context, prompt string) (*Reply, error) {
	a.record("user", prompt)

	if isToolListingRequest(prompt) {
		reply := &Reply{Text: a.renderToolListing()}
		a.record("assistant", reply.Text)
		return reply, nil
	}

	raw, err := a.gen.Generate(ctx, a.SystemPrompt()+"\nUser: "+prompt)
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}
	raw = strings.TrimSpace(raw)

	call, ok := ExtractToolCall(raw)
	if !ok {
		a.record("assistant", raw)
		return &Reply{Text: raw}, nil
	}

	a.logger.Debugw("tool call detected", "tool", call.Name, "args", call.Arguments)
	reply, err := a.runTool(ctx, call)
	if err != nil {
		return nil, err
	}
	a.record("assistant", reply.Text)
	return reply, nil
}

func (a *Assistant) runTool(ctx context.Context, call *ToolCall) (*Reply, error) {
	spec, ok := a.tools[call.Name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", call.Name)
	}

	var missing []string
	for _, arg := range spec.RequiredArgs {
		if _, present := call.Arguments[arg]; !present {
			missing = append(missing, arg)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required arguments for %s: %s", call.Name, strings.Join(missing, ", "))
	}

	if a.normalize != nil {
		a.normalize(call.Name, call.Arguments)
	}

	result, err := a.handler.CallTool(ctx, call.Name, call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", call.Name, err)
	}

	summary := a.summarize(ctx, call.Name, result)

	var b strings.Builder
	fmt.Fprintf(&b, "### %s Results\n\n", call.Name)
	if summary != "" {
		fmt.Fprintf(&b, "**Summary:**\n%s\n\n", summary)
	}
	fmt.Fprintf(&b, "**Raw Data:**\n```\n%s\n```", result)

	return &Reply{
		Text:     b.String(),
		ToolName: call.Name,
		Result:   result,
		Summary:  summary,
	}, nil
}

// summarize asks the model for a short analyst-oriented summary of a tool
// result. Failures are reported in place of the summary, never fatal.
func (a *Assistant) summarize(ctx context.Context, tool, result string) string {
	snippet := result
	if len(snippet) > summaryContextLimit {
		snippet = snippet[:summaryContextLimit]
	}
	prompt := fmt.Sprintf(
		"Provide a brief summary of this %s %s data for a SOC analyst (max 3 sentences):\n%s",
		a.name, tool, snippet)

	summary, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		a.logger.Warnw("summary generation failed", "tool", tool, "error", err)
		return fmt.Sprintf("Summary generation failed: %v", err)
	}
	return strings.TrimSpace(summary)
}

func (a *Assistant) renderToolListing() string {
	var b strings.Builder
	b.WriteString("Available Tools:\n")
	for _, name := range a.ToolNames() {
		spec := a.tools[name]
		required := "None"
		if len(spec.RequiredArgs) > 0 {
			required = strings.Join(spec.RequiredArgs, ", ")
		}
		fmt.Fprintf(&b, "- %s: %s (Required args: %s)\n", name, spec.Description, required)
	}
	return strings.TrimRight(b.String(), "\n")
}

// isToolListingRequest short-circuits catalog questions so they never cost
// a model round trip.
func isToolListingRequest(prompt string) bool {
	lower := strings.ToLower(strings.TrimSpace(prompt))
	for _, phrase := range []string{"list tools", "available tools", "show tools"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (a *Assistant) record(role, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, Message{
		ID:      uuid.New(),
		Role:    role,
		Content: content,
		Time:    time.Now(),
	})
}

// History returns a copy of the conversation so far.
func (a *Assistant) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.history))
	copy(out, a.history)
	return out
}
