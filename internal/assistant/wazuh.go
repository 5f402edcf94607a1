package assistant

import (
	"github.com/eel-hour/Unified-Security-Assistant/internal/limit"
	"github.com/eel-hour/Unified-Security-Assistant/internal/llm"
)

var wazuhTools = map[string]ToolSpec{
	"search_wazuh_manager_logs": {
		Description:  "Searches Wazuh manager logs. Returns formatted log entries including timestamp, tag, level, and description. Supports filtering by limit, offset, level, tag, and a search term.",
		RequiredArgs: []string{"level"},
		OptionalArgs: []string{"limit", "offset", "search_term", "tag"},
	},
	"get_wazuh_agents": {
		Description:  "Retrieves a list of Wazuh agents with their current status and details. Returns formatted agent information including ID, name, IP, status, OS details, and last activity.",
		RequiredArgs: []string{"status"},
		OptionalArgs: []string{"group", "ip", "limit", "name", "os_platform", "version"},
	},
	"get_wazuh_agent_processes": {
		Description:  "Retrieves the process list of a specific Wazuh agent. Supports filtering by a search term on process name.",
		RequiredArgs: []string{"agent_id"},
		OptionalArgs: []string{"limit", "search"},
	},
	"get_wazuh_alert_summary": {
		Description:  "Retrieves a summary of Wazuh security alerts. Returns formatted alert information including ID, timestamp, and description.",
		OptionalArgs: []string{"limit"},
	},
	"get_wazuh_critical_vulnerabilities": {
		Description:  "Retrieves critical vulnerabilities for a specific Wazuh agent. Returns formatted vulnerability information including CVE ID, title, description, CVSS scores, and detection details.",
		RequiredArgs: []string{"agent_id"},
		OptionalArgs: []string{"limit"},
	},
	"get_wazuh_vulnerability_summary": {
		Description:  "Retrieves a summary of Wazuh vulnerability detections for a specific agent, filterable by severity level.",
		RequiredArgs: []string{"agent_id"},
		OptionalArgs: []string{"cve", "limit", "severity"},
	},
	"get_wazuh_cluster_nodes": {
		Description:  "Retrieves a list of nodes in the Wazuh cluster. Returns formatted node information including name, type, version, IP, and status.",
		OptionalArgs: []string{"limit", "node_type", "offset"},
	},
	"get_wazuh_manager_error_logs": {
		Description:  "Retrieves Wazuh manager error logs. Returns formatted log entries including timestamp, tag, level, and description.",
		OptionalArgs: []string{"limit"},
	},
	"get_wazuh_remoted_stats": {
		Description: "Retrieves statistics from the Wazuh remoted daemon: queue size, TCP sessions, event counts, and message traffic.",
	},
	"get_wazuh_weekly_stats": {
		Description: "Retrieves weekly statistics from the Wazuh manager as a JSON object of aggregated metrics.",
	},
}

// NewWazuh builds the SIEM assistant over a Wazuh MCP server.
func NewWazuh(gen llm.Generator, caller ToolCaller, breaker *limit.Breaker) *Assistant {
	return New("wazuh", "Interact with Wazuh SIEM through MCP server integration",
		gen, wazuhTools, &mcpHandler{caller: caller, breaker: breaker},
		WithArgNormalizer(normalizeWazuhArgs),
		WithPromptNotes(`You are specialized in Wazuh SIEM operations. When users ask about:
- Agent information: use get_wazuh_agents
- Process monitoring: use get_wazuh_agent_processes
- Vulnerabilities: use get_wazuh_critical_vulnerabilities or get_wazuh_vulnerability_summary
- Manager logs: use search_wazuh_manager_logs or get_wazuh_manager_error_logs
Provide actionable insights for security operations teams.`))
}

// normalizeWazuhArgs papers over a model habit: it often passes
// process_name to get_wazuh_agent_processes although the server expects
// search.
func normalizeWazuhArgs(tool string, args map[string]any) {
	if tool != "get_wazuh_agent_processes" {
		return
	}
	if v, ok := args["process_name"]; ok {
		if _, taken := args["search"]; !taken {
			args["search"] = v
		}
		delete(args, "process_name")
	}
}
