// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/Stellven/KBSkills/internal/gemini"
	"github.com/Stellven/KBSkills/internal/knowledge"
	"github.com/Stellven/KBSkills/internal/secrets"
	"github.com/Stellven/KBSkills/pkg/types"
)

// configureViper applies defaults and KBSKILLS_* environment binding.
// Nested keys use underscores: retry.max_attempts is
// KBSKILLS_RETRY_MAX_ATTEMPTS.
func configureViper(v *viper.Viper) {
	setDefaults(v)
	v.SetEnvPrefix("KBSKILLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// setDefaults registers every config key so environment variables bind
// during Unmarshal even when no config file sets them.
func setDefaults(v *viper.Viper) {
	d := types.DefaultConfig()
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("skills_dir", d.SkillsDir)
	v.SetDefault("llm_model", d.LLMModel)
	v.SetDefault("embedding_model", d.EmbeddingModel)
	v.SetDefault("default_search_mode", d.DefaultSearchMode)
	v.SetDefault("skill_match_top_k", d.SkillMatchTopK)
	v.SetDefault("skill_match_default_threshold", d.SkillMatchDefaultThreshold)
	v.SetDefault("retrieve_workers", d.RetrieveWorkers)
	v.SetDefault("query_cache_size", d.QueryCacheSize)
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.min_wait", d.Retry.MinWait)
	v.SetDefault("retry.max_wait", d.Retry.MaxWait)
	v.SetDefault("ingest.timeout", d.Ingest.Timeout)
	v.SetDefault("ingest.user_agent", d.Ingest.UserAgent)
	v.SetDefault("ingest.include", []string{})
	v.SetDefault("ingest.debounce_delay", d.Ingest.DebounceDelay)
}

// loadConfig decodes the merged viper state. A key missing from the config
// file and environment falls back to .secrets/gemini-api-key and then
// GEMINI_API_KEY.
func loadConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	if _, err := types.ParseSearchMode(cfg.DefaultSearchMode); err != nil {
		return cfg, fmt.Errorf("default_search_mode: %w", err)
	}
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = secrets.Gemini(loadedSecrets)
	}
	return cfg, nil
}

// services holds the shared handles a command needs. Close releases them.
type services struct {
	cfg    types.Config
	ai     *gemini.Client
	store  *knowledge.Store
	logger *slog.Logger
}

// openServices loads config, builds the Gemini client, and opens the
// knowledge store. The API key is required.
func openServices(ctx context.Context, v *viper.Viper) (*services, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	if cfg.GeminiAPIKey == "" {
		return nil, gemini.ErrNoAPIKey
	}

	logger := slog.Default()
	ai, err := gemini.NewClient(ctx, cfg.AI(), logger)
	if err != nil {
		return nil, err
	}
	store, err := knowledge.NewStore(cfg.KnowledgeBase(), ai, logger)
	if err != nil {
		return nil, err
	}
	return &services{cfg: cfg, ai: ai, store: store, logger: logger}, nil
}

func (s *services) Close() error {
	return s.store.Close()
}
