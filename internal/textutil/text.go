// Package textutil holds the text normalization helpers shared by ingestion,
// the knowledge store, and the topic pipeline. Lengths are counted in
// characters (runes), not bytes.
package textutil

import (
	"regexp"
	"strings"
)

var blankRunPattern = regexp.MustCompile(`\n{3,}`)

// Clean normalizes newlines, collapses runs of blank lines to one, and trims
// every line and the text as a whole.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Chunk splits text into pieces of at most size characters that overlap by
// overlap characters. A chunk ends at the last paragraph break in its second
// half if there is one, otherwise after the last sentence end, otherwise at
// size.
func Chunk(text string, size, overlap int) []string {
	r := []rune(text)
	if size <= 0 || len(r) <= size {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(r) {
		end := start + size
		if end >= len(r) {
			chunks = append(chunks, string(r[start:]))
			break
		}

		lo := start + size/2
		split := lastIndex(r, []rune("\n\n"), lo, end)
		if split == -1 {
			if i := lastIndex(r, []rune(". "), lo, end); i != -1 {
				split = i + 2
			}
		}
		if split == -1 {
			split = end
		}

		chunks = append(chunks, string(r[start:split]))
		next := split - overlap
		if next <= start {
			next = split
		}
		start = next
	}
	return chunks
}

// lastIndex returns the last index i in [lo, hi) where sep occurs entirely
// inside r[lo:hi], or -1.
func lastIndex(r, sep []rune, lo, hi int) int {
	for i := hi - len(sep); i >= lo; i-- {
		match := true
		for j := range sep {
			if r[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Truncate shortens text to max characters, ending with "..." when cut.
func Truncate(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// Prefix returns at most the first n characters of text.
func Prefix(text string, n int) string {
	if n < 0 {
		return ""
	}
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}
