// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llmjson recovers JSON arrays from free-text model output. Every
// step is a pure transformation; failures are reported as ok=false so the
// caller can substitute a fallback value.
package llmjson

import (
	"encoding/json"
	"regexp"
	"strings"
)

const fence = "```"

// trailingCommaPattern matches trailing commas before ] or }.
var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// ExtractArray returns the substring of text from the first '[' to the last
// ']' inclusive, after trimming and removing a surrounding code fence. When
// no bracket pair exists the trimmed, de-fenced text is returned unchanged.
// ExtractArray(ExtractArray(s)) == ExtractArray(s).
func ExtractArray(text string) string {
	text = Defence(text)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

// Defence trims text and, while it starts with a fence marker, drops the
// opening fence line and a final line that is exactly a closing fence.
func Defence(text string) string {
	text = strings.TrimSpace(text)
	for strings.HasPrefix(text, fence) {
		lines := strings.Split(text, "\n")
		lines = lines[1:]
		if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == fence {
			lines = lines[:n-1]
		}
		text = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	return text
}

// DecodeArray extracts and decodes a JSON array of T from text. It tries a
// strict parse first, then a parse after removing // comments and trailing
// commas. ok is false when neither parse succeeds.
func DecodeArray[T any](text string) (items []T, ok bool) {
	raw := ExtractArray(text)
	if !strings.HasPrefix(raw, "[") {
		return nil, false
	}
	if err := json.Unmarshal([]byte(raw), &items); err == nil {
		return items, true
	}
	items = nil
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &items); err == nil {
		return items, true
	}
	return nil, false
}

// cleanJSON removes JavaScript-style comments and trailing commas.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaPattern.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment removes a // comment that lies outside any string value.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
