package assistant

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ToolCall is the JSON shape the model emits to invoke a tool.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

var (
	fencedJSONRE  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*\\n?```")
	bareToolRE    = regexp.MustCompile(`(?s)(\{"name":\s*"[^"]+",\s*"arguments":\s*\{.*?\}\})`)
	whitespaceCut = " \t\r\n"
)

// ExtractToolCall finds a tool-call JSON object in model output. It accepts
// a bare JSON reply, a ```json fenced block, an unlabelled fence, or an
// inline {"name":...,"arguments":{...}} object embedded in prose. Anything
// that does not decode to an object with both fields is not a tool call.
func ExtractToolCall(text string) (*ToolCall, bool) {
	trimmed := strings.Trim(text, whitespaceCut)

	candidates := make([]string, 0, 3)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		candidates = append(candidates, trimmed)
	}
	if m := fencedJSONRE.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.Trim(m[1], whitespaceCut))
	}
	if m := bareToolRE.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.Trim(m[1], whitespaceCut))
	}

	for _, candidate := range candidates {
		call, ok := decodeToolCall(candidate)
		if ok {
			return call, true
		}
	}
	return nil, false
}

func decodeToolCall(candidate string) (*ToolCall, bool) {
	// Decode into a raw map first: a tool call must carry both keys
	// explicitly, not merely zero-value into the struct.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return nil, false
	}
	if _, ok := probe["name"]; !ok {
		return nil, false
	}
	if _, ok := probe["arguments"]; !ok {
		return nil, false
	}

	var call ToolCall
	if err := json.Unmarshal([]byte(candidate), &call); err != nil {
		return nil, false
	}
	if call.Name == "" {
		return nil, false
	}
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	return &call, true
}
