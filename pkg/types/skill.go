// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// DefaultSkillVersion is assigned to skills whose file omits metadata.version.
const DefaultSkillVersion = "1.0"

// SkillTrigger holds the signals used to decide whether a skill applies to a
// topic. Threshold is per skill and independent of any global default.
type SkillTrigger struct {
	// Domains are phrases compared semantically against the topic.
	Domains []string `json:"domains" yaml:"domains"`

	// Keywords are matched as case-insensitive substrings of the topic.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// IntentPatterns are regular expressions searched for in the topic.
	IntentPatterns []string `json:"intent_patterns" yaml:"intent_patterns"`

	// Threshold is the minimum match score in [0,1] for activation.
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// SkillMetadata identifies a skill and carries its trigger.
type SkillMetadata struct {
	Name        string       `json:"name" yaml:"name"`
	DisplayName string       `json:"display_name" yaml:"display_name"`
	Version     string       `json:"version" yaml:"version"`
	Description string       `json:"description" yaml:"description"`
	Trigger     SkillTrigger `json:"trigger" yaml:"trigger"`
}

// ThinkingStep is one step of a thinking framework. Prompt may contain the
// literal placeholder {topic}.
type ThinkingStep struct {
	Name   string `json:"name" yaml:"name"`
	Prompt string `json:"prompt" yaml:"prompt"`
}

// ThinkingFramework is the ordered analysis procedure a skill contributes.
type ThinkingFramework struct {
	Description string         `json:"description" yaml:"description"`
	Steps       []ThinkingStep `json:"steps" yaml:"steps"`
}

// SkillTool is a named analysis device with an optional output format hint,
// for example a table template.
type SkillTool struct {
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	OutputFormat string `json:"output_format" yaml:"output_format"`
}

// OutputRequirements lists the sections and style a skill asks the outline
// to follow.
type OutputRequirements struct {
	Sections []string `json:"sections" yaml:"sections"`
	Style    string   `json:"style" yaml:"style"`
}

// Skill is a user-authored thinking framework loaded from one YAML file.
// Skills are never mutated after loading.
type Skill struct {
	Metadata           SkillMetadata      `json:"metadata" yaml:"metadata"`
	ThinkingFramework  ThinkingFramework  `json:"thinking_framework" yaml:"thinking_framework"`
	Tools              []SkillTool        `json:"tools" yaml:"tools"`
	OutputRequirements OutputRequirements `json:"output_requirements" yaml:"output_requirements"`

	// FilePath is the file the skill was loaded from.
	FilePath string `json:"file_path,omitempty" yaml:"-"`
}

// SkillMatch is the result of scoring one skill against a topic.
type SkillMatch struct {
	Skill           *Skill   `json:"-" yaml:"-"`
	Score           float64  `json:"score" yaml:"score"`
	MatchedDomains  []string `json:"matched_domains" yaml:"matched_domains"`
	MatchedKeywords []string `json:"matched_keywords" yaml:"matched_keywords"`
}
