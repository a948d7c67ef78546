// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package skills loads skill definitions, scores them against a topic, and
// renders matched skills into prompt fragments.
package skills

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/Stellven/KBSkills/pkg/types"
)

// ErrNotMapping is returned by Parse when the document is not a YAML mapping.
var ErrNotMapping = errors.New("skill document is not a mapping")

// FileResult is the outcome of loading one skill file. Err is non-nil when
// the file was skipped.
type FileResult struct {
	Path  string
	Skill types.Skill
	Err   error
}

// Skipped reports whether the file did not produce a usable skill.
func (r FileResult) Skipped() bool { return r.Err != nil }

// Loader reads skill files from a directory.
type Loader struct {
	// DefaultThreshold is used when a skill omits metadata.trigger.threshold.
	DefaultThreshold float64

	// Logger receives skip warnings. Nil means slog.Default().
	Logger *slog.Logger
}

// NewLoader returns a Loader with the given default threshold.
func NewLoader(defaultThreshold float64, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{DefaultThreshold: defaultThreshold, Logger: logger}
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// LoadDir parses every .yaml and .yml file in dir in filename order. A file
// that cannot be read or parsed yields a skipped result; it never aborts the
// load. A missing directory yields no results and no error.
func (l *Loader) LoadDir(dir string) ([]FileResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading skills directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	results := make([]FileResult, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: fmt.Errorf("reading %s: %w", name, err)})
			continue
		}
		skill, err := l.Parse(data, path)
		if err != nil {
			err = fmt.Errorf("parsing %s: %w", name, err)
		}
		results = append(results, FileResult{Path: path, Skill: skill, Err: err})
	}
	return results, nil
}

// Load returns the skills in dir that parsed successfully, in filename
// order. Skipped files are logged as warnings.
func (l *Loader) Load(dir string) ([]types.Skill, error) {
	results, err := l.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	skills := make([]types.Skill, 0, len(results))
	for _, r := range results {
		if r.Skipped() {
			l.logger().Warn("skipping skill file", "path", r.Path, "error", r.Err)
			continue
		}
		skills = append(skills, r.Skill)
	}
	return skills, nil
}

// rawSkill mirrors the file layout; Threshold is a pointer so an omitted
// value can be told apart from an explicit 0.
type rawSkill struct {
	Metadata struct {
		Name        string `yaml:"name"`
		DisplayName string `yaml:"display_name"`
		Version     string `yaml:"version"`
		Description string `yaml:"description"`
		Trigger     struct {
			Domains        []string `yaml:"domains"`
			Keywords       []string `yaml:"keywords"`
			IntentPatterns []string `yaml:"intent_patterns"`
			Threshold      *float64 `yaml:"threshold"`
		} `yaml:"trigger"`
	} `yaml:"metadata"`
	ThinkingFramework  types.ThinkingFramework  `yaml:"thinking_framework"`
	Tools              []types.SkillTool        `yaml:"tools"`
	OutputRequirements types.OutputRequirements `yaml:"output_requirements"`
}

// Parse decodes one skill document. Missing fields take defaults: version
// "1.0", threshold DefaultThreshold, empty lists. Unknown fields are
// ignored and fields of the wrong type are left at their default with a
// warning. When the document is not a mapping Parse returns an empty
// default skill together with ErrNotMapping. Invalid YAML is an error.
func (l *Loader) Parse(data []byte, source string) (types.Skill, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return l.emptySkill(source), err
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return l.emptySkill(source), ErrNotMapping
	}

	var raw rawSkill
	if err := root.Decode(&raw); err != nil {
		var typeErr *yaml.TypeError
		if !errors.As(err, &typeErr) {
			return l.emptySkill(source), err
		}
		l.logger().Warn("skill has fields of the wrong type", "path", source, "errors", typeErr.Errors)
	}

	m := raw.Metadata
	threshold := l.DefaultThreshold
	if m.Trigger.Threshold != nil {
		threshold = *m.Trigger.Threshold
	}
	version := m.Version
	if version == "" {
		version = types.DefaultSkillVersion
	}

	skill := types.Skill{
		Metadata: types.SkillMetadata{
			Name:        m.Name,
			DisplayName: m.DisplayName,
			Version:     version,
			Description: m.Description,
			Trigger: types.SkillTrigger{
				Domains:        orEmpty(m.Trigger.Domains),
				Keywords:       orEmpty(m.Trigger.Keywords),
				IntentPatterns: orEmpty(m.Trigger.IntentPatterns),
				Threshold:      threshold,
			},
		},
		ThinkingFramework: raw.ThinkingFramework,
		Tools:             raw.Tools,
		OutputRequirements: types.OutputRequirements{
			Sections: orEmpty(raw.OutputRequirements.Sections),
			Style:    raw.OutputRequirements.Style,
		},
		FilePath: source,
	}
	if skill.ThinkingFramework.Steps == nil {
		skill.ThinkingFramework.Steps = []types.ThinkingStep{}
	}
	if skill.Tools == nil {
		skill.Tools = []types.SkillTool{}
	}
	if skill.Metadata.DisplayName == "" {
		skill.Metadata.DisplayName = skill.Metadata.Name
	}
	return skill, nil
}

func (l *Loader) emptySkill(source string) types.Skill {
	return types.Skill{
		Metadata: types.SkillMetadata{
			Version: types.DefaultSkillVersion,
			Trigger: types.SkillTrigger{
				Domains:        []string{},
				Keywords:       []string{},
				IntentPatterns: []string{},
				Threshold:      l.DefaultThreshold,
			},
		},
		ThinkingFramework:  types.ThinkingFramework{Steps: []types.ThinkingStep{}},
		Tools:              []types.SkillTool{},
		OutputRequirements: types.OutputRequirements{Sections: []string{}},
		FilePath:           source,
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Find returns the skill whose name matches name, or false.
func Find(skills []types.Skill, name string) (types.Skill, bool) {
	for _, s := range skills {
		if s.Metadata.Name == name {
			return s, true
		}
	}
	return types.Skill{}, false
}
