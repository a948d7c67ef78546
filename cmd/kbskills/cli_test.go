// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stellven/KBSkills/internal/gemini"
	"github.com/Stellven/KBSkills/internal/knowledge"
	"github.com/Stellven/KBSkills/internal/skills"
	"github.com/Stellven/KBSkills/pkg/types"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	loadedSecrets = nil
	v := viper.New()
	configureViper(v)
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newTestViper(t))
	require.NoError(t, err)
	assert.Empty(t, cfg.Ingest.Include)
	cfg.Ingest.Include = nil
	assert.Equal(t, types.DefaultConfig(), cfg)
}

func TestLoadConfig_Environment(t *testing.T) {
	v := newTestViper(t)
	t.Setenv("KBSKILLS_SKILL_MATCH_TOP_K", "5")
	t.Setenv("KBSKILLS_DEFAULT_SEARCH_MODE", "local")
	t.Setenv("KBSKILLS_RETRY_MAX_WAIT", "10s")
	t.Setenv("KBSKILLS_INGEST_USER_AGENT", "tester/1.0")
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.SkillMatchTopK)
	assert.Equal(t, "local", cfg.DefaultSearchMode)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxWait)
	assert.Equal(t, "tester/1.0", cfg.Ingest.UserAgent)
	assert.Equal(t, "env-key", cfg.GeminiAPIKey)
}

func TestLoadConfig_SecretFileBeatsEnvironment(t *testing.T) {
	v := newTestViper(t)
	t.Setenv("GEMINI_API_KEY", "env-key")
	loadedSecrets = map[string]string{"gemini-api-key": "file-key"}
	defer func() { loadedSecrets = nil }()

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.GeminiAPIKey)
}

func TestLoadConfig_InvalidMode(t *testing.T) {
	v := newTestViper(t)
	v.Set("default_search_mode", "fuzzy")
	_, err := loadConfig(v)
	assert.Error(t, err)
}

func TestOpenServices_NoAPIKey(t *testing.T) {
	v := newTestViper(t)
	v.Set("data_dir", t.TempDir())

	_, err := openServices(context.Background(), v)
	assert.ErrorIs(t, err, gemini.ErrNoAPIKey)
}

func TestInitProject(t *testing.T) {
	root := t.TempDir()
	v := newTestViper(t)
	v.Set("data_dir", filepath.Join(root, "data"))
	v.Set("output_dir", filepath.Join(root, "output"))
	v.Set("skills_dir", filepath.Join(root, "skills"))
	v.Set("gemini_api_key", "k-123")
	path := filepath.Join(root, "kbskills.yaml")

	var out strings.Builder
	require.NoError(t, initProject(v, path, &out))

	for _, dir := range []string{"data", filepath.Join("data", "graph"), "output", "skills"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	assert.Contains(t, out.String(), "Installed 2 example skills")

	// The written file round-trips through a fresh viper.
	v2 := newTestViper(t)
	v2.SetConfigFile(path)
	require.NoError(t, v2.ReadInConfig())
	cfg, err := loadConfig(v2)
	require.NoError(t, err)
	assert.Equal(t, "k-123", cfg.GeminiAPIKey)
	assert.Equal(t, filepath.Join(root, "skills"), cfg.SkillsDir)

	// The bundled skills parse.
	loaded, err := skills.NewLoader(0.6, nil).Load(cfg.SkillsDir)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "business_analysis", loaded[0].Metadata.Name)
	assert.Equal(t, "first_principles", loaded[1].Metadata.Name)
	assert.Len(t, loaded[1].ThinkingFramework.Steps, 3)
}

func TestInstallExampleSkills_KeepsExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mine.yml"), []byte("metadata:\n  name: mine\n"), 0o644))

	n, err := installExampleSkills(dir)
	require.NoError(t, err)
	assert.Zero(t, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPrintSkillList(t *testing.T) {
	results := []skills.FileResult{
		{Path: "a.yaml", Skill: types.Skill{Metadata: types.SkillMetadata{
			Name: "alpha", DisplayName: "Alpha", Version: "1.0",
			Trigger: types.SkillTrigger{Domains: []string{"d1", "d2", "d3", "d4"}},
		}}},
		{Path: "bad.yaml", Err: assert.AnError},
	}
	var out strings.Builder
	printSkillList(&out, results)

	assert.Contains(t, out.String(), "alpha")
	assert.Contains(t, out.String(), "d1, d2, d3")
	assert.NotContains(t, out.String(), "d4")
	assert.Contains(t, out.String(), "skipped bad.yaml")

	out.Reset()
	printSkillList(&out, nil)
	assert.Contains(t, out.String(), "No skills found")
}

func TestPrintMatches(t *testing.T) {
	skill := types.Skill{Metadata: types.SkillMetadata{DisplayName: "First Principles"}}
	var out strings.Builder
	printMatches(&out, "why batteries", []types.SkillMatch{
		{Skill: &skill, Score: 0.734, MatchedKeywords: []string{"why"}},
	})
	assert.Contains(t, out.String(), "Skill matches for: why batteries")
	assert.Contains(t, out.String(), "First Principles")
	assert.Contains(t, out.String(), "0.73")

	out.Reset()
	printMatches(&out, "x", nil)
	assert.Equal(t, "No skills matched for this topic.\n", out.String())
}

func TestPrintStatus(t *testing.T) {
	var out strings.Builder
	printStatus(&out, knowledge.Status{Path: "/kb/kbskills.db", Documents: 2, Chunks: 5, SizeBytes: 2048}, "hybrid")
	s := out.String()
	assert.Contains(t, s, "/kb/kbskills.db")
	assert.Contains(t, s, "2.0 KB")
	assert.Regexp(t, `initialized\s+true`, s)
	assert.Regexp(t, `chunks\s+5`, s)
}
