package protocol

import (
	"encoding/json"
	"strings"
)

// resultContent mirrors the structured tool-result shape: an object carrying
// a content array of typed parts.
type resultContent struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// ExtractResultText renders a tool result for display. Three shapes are
// recognized, in priority order: a plain JSON string, an object with a
// content array of {type:"text",text} parts (joined by newlines), and
// anything else (returned as compact JSON).
func ExtractResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var rc resultContent
	if err := json.Unmarshal(raw, &rc); err == nil && len(rc.Content) > 0 {
		var parts []string
		for _, p := range rc.Content {
			if p.Type == "text" && p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}

	return strings.TrimSpace(string(raw))
}
