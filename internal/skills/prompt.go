// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package skills

import (
	"fmt"
	"strings"

	"github.com/Stellven/KBSkills/pkg/types"
)

// TopicPlaceholder is replaced by the topic in thinking step prompts.
const TopicPlaceholder = "{topic}"

// FrameworkSummary lists each matched skill's display name, score, and
// framework description in match order.
func FrameworkSummary(matches []types.SkillMatch) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Activated Thinking Skills\n\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "### %s (relevance: %.2f)\n", m.Skill.Metadata.DisplayName, m.Score)
		b.WriteString(m.Skill.ThinkingFramework.Description)
		b.WriteString("\n\n")
	}
	return b.String()
}

// StepsPrompt expands every thinking step of every matched skill, with the
// topic substituted for {topic} and the step name as a bold header.
func StepsPrompt(matches []types.SkillMatch, topic string) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Skill-Guided Analysis for: %s\n\n", topic)
	b.WriteString("Apply the following thinking frameworks to analyze this topic:\n\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "### %s\n", m.Skill.Metadata.DisplayName)
		for _, step := range m.Skill.ThinkingFramework.Steps {
			fmt.Fprintf(&b, "**%s:**\n", step.Name)
			b.WriteString(strings.ReplaceAll(step.Prompt, TopicPlaceholder, topic))
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// MergeOutputRequirements unions the required sections of all matches in
// first-seen order and joins their style directives with a space.
func MergeOutputRequirements(matches []types.SkillMatch) types.OutputRequirements {
	merged := types.OutputRequirements{Sections: []string{}}
	seen := make(map[string]bool)
	var styles []string
	for _, m := range matches {
		reqs := m.Skill.OutputRequirements
		for _, s := range reqs.Sections {
			if !seen[s] {
				seen[s] = true
				merged.Sections = append(merged.Sections, s)
			}
		}
		if reqs.Style != "" {
			styles = append(styles, reqs.Style)
		}
	}
	merged.Style = strings.Join(styles, " ")
	return merged
}

// OutputRequirementsPrompt renders merged requirements as prompt text.
func OutputRequirementsPrompt(reqs types.OutputRequirements) string {
	var b strings.Builder
	if len(reqs.Sections) > 0 {
		b.WriteString("Additional sections to include (from activated skills):\n")
		for i, s := range reqs.Sections {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("- " + s)
		}
	}
	if reqs.Style != "" {
		b.WriteString("\nStyle requirement: " + reqs.Style)
	}
	return b.String()
}

// ToolFormats renders "**name** (description):" blocks followed by the
// tool's output format, for every tool that declares one.
func ToolFormats(matches []types.SkillMatch) string {
	var parts []string
	for _, m := range matches {
		for _, tool := range m.Skill.Tools {
			if tool.OutputFormat == "" {
				continue
			}
			parts = append(parts,
				fmt.Sprintf("**%s** (%s):", tool.Name, tool.Description),
				tool.OutputFormat,
				"")
		}
	}
	return strings.Join(parts, "\n")
}

// ActivatedSkillsLine is the outline header line naming the activated
// skills and their scores, or "" when none matched.
func ActivatedSkillsLine(matches []types.SkillMatch) string {
	if len(matches) == 0 {
		return ""
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = fmt.Sprintf("%s (%.2f)", m.Skill.Metadata.DisplayName, m.Score)
	}
	return "> Activated skills: " + strings.Join(names, ", ")
}
