package mcp

import (
	"encoding/json"
	"strings"
)

// FlattenResult collapses a tools/call result into a single string for
// display.
//
// When the result carries a "content" array, the text of every item is
// extracted in order and joined with blank-line separators; an empty array
// yields an empty string. Results of any other shape are returned in their
// native form: a JSON string is unquoted, anything else is the raw JSON text.
func FlattenResult(result json.RawMessage) string {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(result, &probe); err != nil {
		return rawText(result)
	}

	content, ok := probe["content"]
	if !ok {
		return rawText(result)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(content, &items); err != nil {
		// content present but not an array: pass it through untouched
		return rawText(content)
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, itemText(item))
	}
	return strings.Join(parts, "\n\n")
}

// itemText extracts the text of one content item by priority: a direct text
// field, a nested raw.text field, the item itself when it is a plain string,
// otherwise the raw JSON of the item.
func itemText(item json.RawMessage) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(item, &obj); err == nil && obj != nil {
		if text, ok := obj["text"]; ok {
			var s string
			if json.Unmarshal(text, &s) == nil {
				return s
			}
		}
		if raw, ok := obj["raw"]; ok {
			var nested struct {
				Text *string `json:"text"`
			}
			if json.Unmarshal(raw, &nested) == nil && nested.Text != nil {
				return *nested.Text
			}
		}
		return string(item)
	}

	return rawText(item)
}

// rawText unquotes a JSON string, or returns the compact JSON text of any
// other value.
func rawText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
