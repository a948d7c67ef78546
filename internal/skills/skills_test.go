// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package skills

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stellven/KBSkills/internal/resilience"
	"github.com/Stellven/KBSkills/pkg/types"
)

// --- fixtures ---

const sampleSkillYAML = `metadata:
  name: test_skill
  display_name: Test Thinking Skill
  version: "1.0"
  description: A test skill for unit testing
  trigger:
    domains: [testing, quality assurance]
    keywords: [test, verify, validate]
    intent_patterns: ['test.*code', 'verify.*output']
    threshold: 0.4
thinking_framework:
  description: Apply structured testing methodology
  steps:
    - name: Identify Scope
      prompt: Determine scope of {topic}
    - name: Design Tests
      prompt: Design tests for {topic}
tools:
  - name: test_matrix
    description: Test coverage matrix
    output_format: |-
      | Case | Status |
      |------|--------|
output_requirements:
  sections: [Test Plan, Results, Coverage]
  style: Include pass/fail status for each test case
unknown_top_level: ignored
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func makeSkill(name string, trigger types.SkillTrigger) types.Skill {
	return types.Skill{Metadata: types.SkillMetadata{Name: name, DisplayName: name, Trigger: trigger}}
}

// --- mock embedder ---

// mapEmbedder returns a fixed vector per text and records each call.
type mapEmbedder struct {
	vectors map[string][]float32
	calls   [][]string
	err     error
}

func (m *mapEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls = append(m.calls, texts)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := m.vectors[t]
		if !ok {
			v = []float32{0, 0, 0}
		}
		out[i] = v
	}
	return out, nil
}

// failNTimesEmbedder fails the first N calls, then delegates.
type failNTimesEmbedder struct {
	failures  int
	callCount int
	next      Embedder
}

func (f *failNTimesEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.callCount++
	if f.callCount <= f.failures {
		return nil, resilience.EmbeddingError(fmt.Errorf("transient error (call %d)", f.callCount))
	}
	return f.next.Embed(ctx, texts)
}

func fastPolicy(attempts int) resilience.Policy {
	return resilience.Policy{
		MaxAttempts: attempts,
		Multiplier:  time.Millisecond,
		MinWait:     time.Millisecond,
		MaxWait:     time.Millisecond,
	}
}

// --- loader ---

func TestParse_FullSkill(t *testing.T) {
	l := NewLoader(0.6, nil)
	skill, err := l.Parse([]byte(sampleSkillYAML), "/fake/test_skill.yaml")
	require.NoError(t, err)

	assert.Equal(t, "test_skill", skill.Metadata.Name)
	assert.Equal(t, "Test Thinking Skill", skill.Metadata.DisplayName)
	assert.Equal(t, []string{"testing", "quality assurance"}, skill.Metadata.Trigger.Domains)
	assert.Equal(t, []string{"test.*code", "verify.*output"}, skill.Metadata.Trigger.IntentPatterns)
	assert.InDelta(t, 0.4, skill.Metadata.Trigger.Threshold, 1e-9)
	require.Len(t, skill.ThinkingFramework.Steps, 2)
	assert.Equal(t, "Design Tests", skill.ThinkingFramework.Steps[1].Name)
	require.Len(t, skill.Tools, 1)
	assert.Equal(t, "| Case | Status |\n|------|--------|", skill.Tools[0].OutputFormat)
	assert.Equal(t, []string{"Test Plan", "Results", "Coverage"}, skill.OutputRequirements.Sections)
	assert.Equal(t, "/fake/test_skill.yaml", skill.FilePath)
}

func TestParse_Defaults(t *testing.T) {
	l := NewLoader(0.6, nil)
	skill, err := l.Parse([]byte("metadata:\n  name: minimal\n"), "minimal.yaml")
	require.NoError(t, err)

	assert.Equal(t, "1.0", skill.Metadata.Version)
	assert.Equal(t, "minimal", skill.Metadata.DisplayName)
	assert.InDelta(t, 0.6, skill.Metadata.Trigger.Threshold, 1e-9)
	assert.NotNil(t, skill.Metadata.Trigger.Domains)
	assert.Empty(t, skill.Metadata.Trigger.Domains)
	assert.Empty(t, skill.Metadata.Trigger.Keywords)
	assert.Empty(t, skill.Metadata.Trigger.IntentPatterns)
	assert.Empty(t, skill.ThinkingFramework.Steps)
	assert.Empty(t, skill.Tools)
	assert.Empty(t, skill.OutputRequirements.Sections)
}

func TestParse_ExplicitZeroThreshold(t *testing.T) {
	l := NewLoader(0.6, nil)
	skill, err := l.Parse([]byte("metadata:\n  name: z\n  trigger:\n    threshold: 0\n"), "z.yaml")
	require.NoError(t, err)
	assert.Zero(t, skill.Metadata.Trigger.Threshold)
}

func TestParse_NotMapping(t *testing.T) {
	l := NewLoader(0.5, nil)
	for _, doc := range []string{"- a\n- b\n", "just a string", ""} {
		skill, err := l.Parse([]byte(doc), "bad.yaml")
		assert.ErrorIs(t, err, ErrNotMapping, "doc %q", doc)
		assert.Equal(t, "1.0", skill.Metadata.Version)
		assert.InDelta(t, 0.5, skill.Metadata.Trigger.Threshold, 1e-9)
		assert.NotNil(t, skill.Metadata.Trigger.Keywords)
	}
}

func TestParse_WrongFieldTypeKeepsRest(t *testing.T) {
	l := NewLoader(0.6, nil)
	doc := "metadata:\n  name: partial\n  trigger:\n    keywords: {a: b}\n    domains: [x]\n"
	skill, err := l.Parse([]byte(doc), "partial.yaml")
	require.NoError(t, err)
	assert.Equal(t, "partial", skill.Metadata.Name)
	assert.Equal(t, []string{"x"}, skill.Metadata.Trigger.Domains)
	assert.Empty(t, skill.Metadata.Trigger.Keywords)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "beta.yaml", "metadata:\n  name: beta\n")
	writeFile(t, dir, "alpha.yaml", sampleSkillYAML)
	writeFile(t, dir, "gamma.yml", "metadata:\n  name: gamma\n")
	writeFile(t, dir, "broken.yaml", "metadata: [unclosed\n")
	writeFile(t, dir, "list.yaml", "- not\n- a mapping\n")
	writeFile(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755))

	l := NewLoader(0.6, nil)
	results, err := l.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, results, 5)

	var names []string
	for _, r := range results {
		names = append(names, filepath.Base(r.Path))
	}
	assert.Equal(t, []string{"alpha.yaml", "beta.yaml", "broken.yaml", "gamma.yml", "list.yaml"}, names)
	assert.False(t, results[0].Skipped())
	assert.True(t, results[2].Skipped())
	assert.True(t, results[4].Skipped())
	assert.ErrorIs(t, results[4].Err, ErrNotMapping)

	skills, err := l.Load(dir)
	require.NoError(t, err)
	require.Len(t, skills, 3)
	assert.Equal(t, "test_skill", skills[0].Metadata.Name)
	assert.Equal(t, "beta", skills[1].Metadata.Name)
	assert.Equal(t, "gamma", skills[2].Metadata.Name)
}

func TestLoadDir_Missing(t *testing.T) {
	l := NewLoader(0.6, nil)
	skills, err := l.Load(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, skills)
}

func TestFind(t *testing.T) {
	all := []types.Skill{makeSkill("a", types.SkillTrigger{}), makeSkill("b", types.SkillTrigger{})}
	s, ok := Find(all, "b")
	assert.True(t, ok)
	assert.Equal(t, "b", s.Metadata.Name)
	_, ok = Find(all, "c")
	assert.False(t, ok)
}

// --- cosine ---

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{0, 0}))
}

// --- scoring ---

func TestScoreTrigger(t *testing.T) {
	topicVec := []float32{1, 0, 0}
	tests := []struct {
		name         string
		topic        string
		domainVecs   [][]float32
		trigger      types.SkillTrigger
		wantScore    float64
		wantDomains  []string
		wantKeywords []string
	}{
		{
			name:        "domain only",
			topic:       "anything",
			domainVecs:  [][]float32{{1, 0, 0}},
			trigger:     types.SkillTrigger{Domains: []string{"d"}},
			wantScore:   0.5,
			wantDomains: []string{"d"},
		},
		{
			name:         "keywords two of three",
			topic:        "please test and verify this",
			trigger:      types.SkillTrigger{Keywords: []string{"test", "verify", "validate"}},
			wantScore:    0.3 * 2.0 / 3.0,
			wantKeywords: []string{"test", "verify"},
		},
		{
			name:      "intent one of two with invalid pattern",
			topic:     "test my code",
			trigger:   types.SkillTrigger{IntentPatterns: []string{"test.*code", "([unclosed"}},
			wantScore: 0.2 * 0.5,
		},
		{
			name:       "all signals",
			topic:      "Test the Code",
			domainVecs: [][]float32{{0, 1, 0}, {1, 1, 0}},
			trigger: types.SkillTrigger{
				Domains:        []string{"far", "near"},
				Keywords:       []string{"TEST", "deploy"},
				IntentPatterns: []string{"Test.*Code"},
			},
			wantScore:    0.5*(1/1.4142135623730951) + 0.3*0.5 + 0.2*1,
			wantDomains:  []string{"near"},
			wantKeywords: []string{"TEST"},
		},
		{
			name:       "below evidence threshold",
			topic:      "x",
			domainVecs: [][]float32{{0.3, 1, 0}},
			trigger:    types.SkillTrigger{Domains: []string{"weak"}},
			wantScore:  0.5 * (0.3 / 1.0440306508910551),
		},
		{
			name:       "negative similarity contributes zero",
			topic:      "x",
			domainVecs: [][]float32{{-1, 0, 0}},
			trigger:    types.SkillTrigger{Domains: []string{"opposite"}},
			wantScore:  0,
		},
		{
			name:      "no signals",
			topic:     "x",
			wantScore: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, domains, keywords := ScoreTrigger(tt.topic, topicVec, tt.domainVecs, tt.trigger)
			assert.InDelta(t, tt.wantScore, score, 1e-6)
			if tt.wantDomains == nil {
				tt.wantDomains = []string{}
			}
			if tt.wantKeywords == nil {
				tt.wantKeywords = []string{}
			}
			assert.Equal(t, tt.wantDomains, domains)
			assert.Equal(t, tt.wantKeywords, keywords)
		})
	}
}

// --- matcher ---

func TestMatch_NoSkills(t *testing.T) {
	emb := &mapEmbedder{}
	m := NewMatcher(emb, 3)
	matches, err := m.Match(context.Background(), "machine learning ethics", nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, emb.calls)
}

func TestMatch_KeywordScenario(t *testing.T) {
	emb := &mapEmbedder{}
	skill := makeSkill("kw", types.SkillTrigger{Keywords: []string{"test", "verify", "validate"}, Threshold: 0})
	m := NewMatcher(emb, 3)

	matches, err := m.Match(context.Background(), "please test and verify this", []types.Skill{skill})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"test", "verify"}, matches[0].MatchedKeywords)
	assert.InDelta(t, 0.3*2.0/3.0, matches[0].Score, 1e-9)
	assert.Equal(t, "kw", matches[0].Skill.Metadata.Name)
}

func TestMatch_EmbedsTopicOnceAndBatchesDomains(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{
		"topic": {1, 0, 0},
		"a1":    {1, 0, 0},
		"a2":    {0, 1, 0},
		"b1":    {1, 0, 0},
	}}
	all := []types.Skill{
		makeSkill("a", types.SkillTrigger{Domains: []string{"a1", "a2"}}),
		makeSkill("b", types.SkillTrigger{Domains: []string{"b1"}}),
		makeSkill("c", types.SkillTrigger{Keywords: []string{"topic"}}),
	}
	m := NewMatcher(emb, 3)
	_, err := m.Match(context.Background(), "topic", all)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"topic"}, {"a1", "a2"}, {"b1"}}, emb.calls)
}

func TestMatch_ThresholdSortAndTopK(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{
		"t":    {1, 0},
		"same": {1, 0},
		"diag": {1, 1},
		"orth": {0, 1},
	}}
	all := []types.Skill{
		makeSkill("low", types.SkillTrigger{Domains: []string{"orth"}, Threshold: 0}),
		makeSkill("tieA", types.SkillTrigger{Domains: []string{"same"}, Threshold: 0.1}),
		makeSkill("mid", types.SkillTrigger{Domains: []string{"diag"}, Threshold: 0.2}),
		makeSkill("tieB", types.SkillTrigger{Domains: []string{"same"}, Threshold: 0.1}),
		makeSkill("strict", types.SkillTrigger{Domains: []string{"same"}, Threshold: 0.9}),
	}

	m := NewMatcher(emb, 3)
	matches, err := m.Match(context.Background(), "t", all)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "tieA", matches[0].Skill.Metadata.Name)
	assert.Equal(t, "tieB", matches[1].Skill.Metadata.Name)
	assert.Equal(t, "mid", matches[2].Skill.Metadata.Name)
	for _, mt := range matches {
		assert.GreaterOrEqual(t, mt.Score, mt.Skill.Metadata.Trigger.Threshold)
	}

	m = NewMatcher(emb, 10)
	matches, err = m.Match(context.Background(), "t", all)
	require.NoError(t, err)
	require.Len(t, matches, 4)
	assert.Equal(t, "low", matches[3].Skill.Metadata.Name)
}

func TestMatch_RetriesEmbedding(t *testing.T) {
	emb := &failNTimesEmbedder{failures: 1, next: &mapEmbedder{}}
	var events []resilience.RetryEvent
	p := fastPolicy(3)
	p.Notify = func(ev resilience.RetryEvent) { events = append(events, ev) }

	m := NewMatcher(emb, 3, WithPolicy(p))
	all := []types.Skill{makeSkill("k", types.SkillTrigger{Keywords: []string{"x"}})}
	matches, err := m.Match(context.Background(), "x", all)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	require.Len(t, events, 1)
	assert.Equal(t, resilience.OpEmbedding, events[0].Operation)
}

func TestMatch_EmbeddingFailure(t *testing.T) {
	emb := &mapEmbedder{err: resilience.EmbeddingError(errors.New("quota exceeded"))}
	m := NewMatcher(emb, 3, WithPolicy(fastPolicy(2)))
	_, err := m.Match(context.Background(), "x", []types.Skill{makeSkill("a", types.SkillTrigger{})})
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindEmbedding))
	assert.Len(t, emb.calls, 2)
}

type shortEmbedder struct{}

func (shortEmbedder) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }

func TestMatch_EmbeddingCountMismatch(t *testing.T) {
	m := NewMatcher(shortEmbedder{}, 3, WithPolicy(fastPolicy(1)))
	_, err := m.Match(context.Background(), "x", []types.Skill{makeSkill("a", types.SkillTrigger{})})
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindEmbedding))
}

// --- prompt assembly ---

func sampleMatches(t *testing.T) []types.SkillMatch {
	t.Helper()
	l := NewLoader(0.6, nil)
	first, err := l.Parse([]byte(sampleSkillYAML), "a.yaml")
	require.NoError(t, err)
	second := types.Skill{
		Metadata: types.SkillMetadata{Name: "second", DisplayName: "Second Skill"},
		ThinkingFramework: types.ThinkingFramework{
			Description: "Second framework",
			Steps:       []types.ThinkingStep{{Name: "Reflect", Prompt: "Reflect on {topic} and {topic} again"}},
		},
		Tools: []types.SkillTool{
			{Name: "no_format", Description: "omitted"},
			{Name: "timeline", Description: "Event timeline", OutputFormat: "- date: event"},
		},
		OutputRequirements: types.OutputRequirements{Sections: []string{"Results", "Timeline"}, Style: "Be concise."},
	}
	return []types.SkillMatch{
		{Skill: &first, Score: 0.8512},
		{Skill: &second, Score: 0.6},
	}
}

func TestPromptAssembly_EmptyInput(t *testing.T) {
	assert.Equal(t, "", FrameworkSummary(nil))
	assert.Equal(t, "", StepsPrompt(nil, "x"))
	assert.Equal(t, "", ToolFormats(nil))
	assert.Equal(t, "", ActivatedSkillsLine(nil))
	merged := MergeOutputRequirements(nil)
	assert.Empty(t, merged.Sections)
	assert.Equal(t, "", merged.Style)
	assert.Equal(t, "", OutputRequirementsPrompt(merged))
}

func TestFrameworkSummary(t *testing.T) {
	got := FrameworkSummary(sampleMatches(t))
	assert.Contains(t, got, "### Test Thinking Skill (relevance: 0.85)\nApply structured testing methodology")
	assert.Contains(t, got, "### Second Skill (relevance: 0.60)\nSecond framework")
	assert.Less(t, strings.Index(got, "Test Thinking Skill"), strings.Index(got, "Second Skill"))
}

func TestStepsPrompt(t *testing.T) {
	got := StepsPrompt(sampleMatches(t), "API design")
	assert.Contains(t, got, "## Skill-Guided Analysis for: API design")
	assert.Contains(t, got, "**Identify Scope:**\nDetermine scope of API design")
	assert.Contains(t, got, "**Reflect:**\nReflect on API design and API design again")
	assert.NotContains(t, got, "{topic}")
}

func TestMergeOutputRequirements(t *testing.T) {
	a := types.Skill{OutputRequirements: types.OutputRequirements{Sections: []string{"A", "B"}, Style: "formal"}}
	b := types.Skill{OutputRequirements: types.OutputRequirements{Sections: []string{"B", "C"}}}
	c := types.Skill{OutputRequirements: types.OutputRequirements{Style: "brief"}}
	merged := MergeOutputRequirements([]types.SkillMatch{{Skill: &a}, {Skill: &b}, {Skill: &c}})
	assert.Equal(t, []string{"A", "B", "C"}, merged.Sections)
	assert.Equal(t, "formal brief", merged.Style)

	prompt := OutputRequirementsPrompt(merged)
	assert.Equal(t, "Additional sections to include (from activated skills):\n- A\n- B\n- C\nStyle requirement: formal brief", prompt)
}

func TestToolFormats(t *testing.T) {
	got := ToolFormats(sampleMatches(t))
	want := "**test_matrix** (Test coverage matrix):\n| Case | Status |\n|------|--------|\n\n" +
		"**timeline** (Event timeline):\n- date: event\n"
	assert.Equal(t, want, got)
	assert.NotContains(t, got, "no_format")
}

func TestActivatedSkillsLine(t *testing.T) {
	assert.Equal(t, "> Activated skills: Test Thinking Skill (0.85), Second Skill (0.60)", ActivatedSkillsLine(sampleMatches(t)))
}
