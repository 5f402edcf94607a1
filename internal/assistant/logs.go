package assistant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/eel-hour/Unified-Security-Assistant/internal/llm"
	"github.com/eel-hour/Unified-Security-Assistant/internal/store"
)

// LogStore is the slice of the store the logs assistant queries.
type LogStore interface {
	CountEntries(ctx context.Context, f store.Filter) (int64, error)
	GetEntries(ctx context.Context, f store.Filter) ([]store.LogEntry, error)
	GetEntryByID(ctx context.Context, id int64) (*store.LogEntry, error)
	ListIdentities(ctx context.Context) ([]string, error)
}

var logsTools = map[string]ToolSpec{
	"query_logs": {
		Description:  "Retrieves log entries matching the given filters. Filters match as substrings; combine as many as needed.",
		OptionalArgs: []string{"datetime", "date", "time", "policy_identity", "internal_ip", "external_ip", "action", "destination", "limit"},
	},
	"count_logs": {
		Description:  "Counts log entries matching the given filters. Accepts the same filters as query_logs.",
		OptionalArgs: []string{"datetime", "date", "time", "policy_identity", "internal_ip", "external_ip", "action", "destination"},
	},
	"get_entry": {
		Description:  "Retrieves a single log entry by its numeric ID.",
		RequiredArgs: []string{"id"},
	},
	"list_identities": {
		Description: "Lists the distinct policy identities present in the log store.",
	},
}

// NewLogs builds the assistant answering questions over the ingested CSV
// log store.
func NewLogs(gen llm.Generator, st LogStore) *Assistant {
	return New("logs", "Analyze and query ingested CSV log files with natural language",
		gen, logsTools, &logsHandler{store: st},
		WithPromptNotes(`You are specialized in network log analysis. Dates use dd/mm/yyyy format
and times use 24-hour hh:mm format. When users combine a date and a time,
pass them as a single "datetime" argument.`))
}

type logsHandler struct {
	store LogStore
}

func (h *logsHandler) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "query_logs":
		return h.queryLogs(ctx, args)
	case "count_logs":
		return h.countLogs(ctx, args)
	case "get_entry":
		return h.getEntry(ctx, args)
	case "list_identities":
		return h.listIdentities(ctx)
	default:
		return "", fmt.Errorf("unknown logs tool: %s", name)
	}
}

func (h *logsHandler) queryLogs(ctx context.Context, args map[string]any) (string, error) {
	entries, err := h.store.GetEntries(ctx, filterFromArgs(args))
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No matching log entries.", nil
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render entries: %w", err)
	}
	return string(data), nil
}

func (h *logsHandler) countLogs(ctx context.Context, args map[string]any) (string, error) {
	count, err := h.store.CountEntries(ctx, filterFromArgs(args))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(count, 10), nil
}

func (h *logsHandler) getEntry(ctx context.Context, args map[string]any) (string, error) {
	id, err := argInt64(args, "id")
	if err != nil {
		return "", err
	}
	entry, err := h.store.GetEntryByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Sprintf("No entry found with id %d.", id), nil
	}
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render entry: %w", err)
	}
	return string(data), nil
}

func (h *logsHandler) listIdentities(ctx context.Context) (string, error) {
	identities, err := h.store.ListIdentities(ctx)
	if err != nil {
		return "", err
	}
	if len(identities) == 0 {
		return "No identities found.", nil
	}
	return strings.Join(identities, "\n"), nil
}

// filterFromArgs maps the model's loose argument object onto a store filter.
// Unknown keys are ignored; the model is not always disciplined.
func filterFromArgs(args map[string]any) store.Filter {
	f := store.Filter{
		DateTime:       argString(args, "datetime"),
		Date:           argString(args, "date"),
		Time:           argString(args, "time"),
		PolicyIdentity: argString(args, "policy_identity"),
		InternalIP:     argString(args, "internal_ip"),
		ExternalIP:     argString(args, "external_ip"),
		Action:         argString(args, "action"),
		Destination:    argString(args, "destination"),
	}
	if limit, err := argInt64(args, "limit"); err == nil {
		f.Limit = int(limit)
	}
	return f
}

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// argInt64 accepts the number shapes JSON decoding produces: float64 from
// the model, or a numeric string.
func argInt64(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("argument %q is not a number: %q", key, n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("argument %q has unsupported type %T", key, v)
	}
}
