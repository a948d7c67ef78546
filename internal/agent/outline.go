// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Stellven/KBSkills/internal/skills"
	"github.com/Stellven/KBSkills/pkg/types"
)

const (
	headerNote = "> This outline was generated from knowledge base retrieval and reflects the core concerns and insights the knowledge base holds on this topic."

	maxFileNameRunes = 50
	timestampLayout  = "20060102_150405"
)

// unsafeNameChars matches everything except letters (CJK included),
// digits, underscores, and hyphens.
var unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_-]`)

// BuildHeader returns the outline header: the topic heading, a note on how
// the outline was produced, and the activated skills line when any matched.
func BuildHeader(topic string, matches []types.SkillMatch) string {
	lines := []string{"# Topic: " + topic, "", headerNote}
	if line := skills.ActivatedSkillsLine(matches); line != "" {
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// SafeFileName reduces topic to at most 50 filename-safe characters.
func SafeFileName(topic string) string {
	name := []rune(unsafeNameChars.ReplaceAllString(topic, "_"))
	if len(name) > maxFileNameRunes {
		name = name[:maxFileNameRunes]
	}
	return string(name)
}

// SaveOutline writes content and returns the path written. An explicit path
// is used as given; otherwise the file is <dir>/<safe topic>_<timestamp>.md.
// Parent directories are created as needed.
func SaveOutline(dir, topic, content, explicitPath string, now time.Time) (string, error) {
	path := explicitPath
	if path == "" {
		path = filepath.Join(dir, fmt.Sprintf("%s_%s.md", SafeFileName(topic), now.Format(timestampLayout)))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing outline: %w", err)
	}
	return path, nil
}
