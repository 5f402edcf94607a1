package assistant

import (
	"fmt"
	"strings"

	"github.com/eel-hour/Unified-Security-Assistant/internal/limit"
	"github.com/eel-hour/Unified-Security-Assistant/internal/llm"
)

var thehiveTools = map[string]ToolSpec{
	"get_thehive_cases": {
		Description:  "Retrieves a list of cases from TheHive. Returns formatted case information including ID, title, severity, and status.",
		OptionalArgs: []string{"limit"},
	},
	"get_thehive_case_by_id": {
		Description:  "Retrieves a specific case from TheHive by its ID. Returns detailed case information.",
		RequiredArgs: []string{"case_id"},
	},
	"create_thehive_case": {
		Description:  "Creates a new case in TheHive. Returns the newly created case information.",
		RequiredArgs: []string{"description", "title"},
		OptionalArgs: []string{"assignee", "case_template", "pap", "severity", "start_date", "status", "tags", "tlp"},
	},
	"get_thehive_alerts": {
		Description:  "Retrieves a list of alerts from TheHive. Returns formatted alert information including ID, title, severity, and status.",
		OptionalArgs: []string{"limit"},
	},
	"get_thehive_alert_by_id": {
		Description:  "Retrieves a specific alert from TheHive by its ID. Returns detailed alert information.",
		RequiredArgs: []string{"alert_id"},
	},
	"promote_alert_to_case": {
		Description:  "Promotes a TheHive alert to a case. Returns the newly created case information.",
		RequiredArgs: []string{"alert_id"},
	},
}

// thehiveIDKeys are the argument names carrying TheHive object IDs, which
// the server expects tilde-prefixed.
var thehiveIDKeys = []string{"id", "case_id", "alert_id", "observable_id", "task_id"}

// NewTheHive builds the case-management assistant over a TheHive MCP server.
func NewTheHive(gen llm.Generator, caller ToolCaller, breaker *limit.Breaker) *Assistant {
	return New("thehive", "Manage TheHive cases and alerts through MCP server integration",
		gen, thehiveTools, &mcpHandler{caller: caller, breaker: breaker},
		WithArgNormalizer(normalizeTheHiveArgs),
		WithPromptNotes(`You are specialized in TheHive case management. When users ask about:
- Cases: use get_thehive_cases, get_thehive_case_by_id, create_thehive_case
- Alerts: use get_thehive_alerts, get_thehive_alert_by_id, promote_alert_to_case

IMPORTANT: TheHive IDs must be prefixed with tilde (~). The system handles this automatically.
Provide actionable insights for incident response teams.`))
}

// normalizeTheHiveArgs ensures every object ID carries the tilde prefix
// TheHive requires, whatever shape the model passed it in.
func normalizeTheHiveArgs(_ string, args map[string]any) {
	for _, key := range thehiveIDKeys {
		v, ok := args[key]
		if !ok || v == nil {
			continue
		}
		id := fmt.Sprint(v)
		if !strings.HasPrefix(id, "~") {
			id = "~" + id
		}
		args[key] = id
	}
}
