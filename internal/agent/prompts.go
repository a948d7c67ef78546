// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"bytes"
	"text/template"
)

// decomposePromptTmpl asks for 3-5 sub-topics, each with a retrieval query.
var decomposePromptTmpl = template.Must(template.New("decompose").Parse(`Given the topic: "{{.Topic}}"

Break it down into 3-5 specific sub-topics or aspects that would be relevant for a knowledge base search.
For each sub-topic, provide a search query optimized for semantic retrieval.

{{.SkillContext}}

Output as JSON array (no markdown fencing):
[{"sub_topic": "...", "query": "..."}]`))

var skillAnalysisPromptTmpl = template.Must(template.New("skill_analysis").Parse(`You are analyzing the topic "{{.Topic}}" using specific thinking frameworks.

{{.Frameworks}}Knowledge context:
{{.Context}}

{{.Steps}}

Provide your analysis following the frameworks above. Be specific and reference the knowledge context.`))

var concernsPromptTmpl = template.Must(template.New("concerns").Parse(`You are analyzing knowledge retrieved from a personal knowledge base on the topic: "{{.Topic}}"

Retrieved knowledge:
{{.Context}}

{{.Steps}}

Tasks:
1. Identify the top concerns/focus areas that this knowledge base emphasizes regarding this topic. Look for:
   - Themes that appear repeatedly across multiple documents
   - Perspectives that the knowledge base uniquely highlights
   - Core concepts and their relationships

2. For each concern, explain:
   - WHY the knowledge base focuses on this (evidence from sources)
   - The logical reasoning chain that connects the concern to the topic
   - Supporting evidence: cite specific documents or entities

3. Rank concerns by importance (frequency × relevance)

Output as JSON array (no markdown fencing):
[{
  "concern": "...",
  "importance": 1-10,
  "reasoning": "Why this matters...",
  "evidence": ["source1", "source2"],
  "logic_chain": "A leads to B because..."
}]`))

var outlinePromptTmpl = template.Must(template.New("outline").Parse(`Based on the following concern analysis from the knowledge base,
generate a detailed structured outline for the topic: "{{.Topic}}"

Concern analysis:
{{.Concerns}}

Retrieved knowledge:
{{.Context}}

{{.OutputRequirements}}

{{.ToolFormats}}

Requirements:
- Use hierarchical markdown headings (##, ###, ####)
- Each major section corresponds to a key concern of the knowledge base
- Under each concern heading, include:
  - "Concern": 1-2 sentences on what this concern is about
  - "Why it is emphasized": why the knowledge base emphasizes this, citing evidence
  - "Logic chain": how this concern relates to the topic and why it matters
  - "Key knowledge points": key knowledge points from the knowledge base supporting this concern
- Order sections by importance/relevance
- End with a summary section linking all concerns together
- Write in the same language as the topic (Chinese topic → Chinese outline, English topic → English outline)

Output ONLY the markdown outline, no additional commentary.`))

type decomposePromptData struct {
	Topic        string
	SkillContext string
}

type skillAnalysisPromptData struct {
	Topic      string
	Frameworks string
	Context    string
	Steps      string
}

type concernsPromptData struct {
	Topic   string
	Context string
	Steps   string
}

type outlinePromptData struct {
	Topic              string
	Concerns           string
	Context            string
	OutputRequirements string
	ToolFormats        string
}

func renderPrompt(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
