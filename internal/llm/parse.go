package llm

import (
	"strings"
)

// ExtractJSONBlock pulls the first plausible JSON object or array out of
// free-form model output. Models wrap JSON in markdown fences or prose more
// often than not; this strips both. Returns "" when no candidate is found —
// callers fall back to deterministic behavior in that case.
func ExtractJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	// Markdown fence first: ```json ... ``` or plain ``` ... ```
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "JSON")
		if end := strings.Index(rest, "```"); end >= 0 {
			if block := firstJSONValue(strings.TrimSpace(rest[:end])); block != "" {
				return block
			}
		}
	}

	return firstJSONValue(text)
}

// firstJSONValue scans for the first balanced {...} or [...] span.
func firstJSONValue(text string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if text[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
