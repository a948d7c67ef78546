package types

import (
	"path/filepath"
	"time"
)

// Defaults applied when the config file and environment leave a value unset.
const (
	DefaultDataDir          = "./data"
	DefaultOutputDir        = "./output"
	DefaultSkillsDir        = "./skills"
	DefaultLLMModel         = "gemini-2.5-pro"
	DefaultEmbeddingModel   = "text-embedding-004"
	DefaultSkillMatchTopK   = 3
	DefaultSkillThreshold   = 0.6
	DefaultRetrieveWorkers  = 4
	DefaultQueryCacheSize   = 256
	DefaultMaxResults       = 8
	DefaultChunkSize        = 4000
	DefaultChunkOverlap     = 200
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultUserAgent        = "kbskills/0.1"
	DefaultDebounceDelay    = 500 * time.Millisecond
	defaultRetryAttempts    = 3
	defaultRetryMultiplier  = 2 * time.Second
	defaultRetryMinWait     = 2 * time.Second
	defaultRetryMaxWait     = 30 * time.Second
	knowledgeGraphSubfolder = "graph"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// RetryConfig parameterizes the backoff applied to external calls.
// The delay before retry n is Multiplier * 2^(n-1), clamped to [MinWait, MaxWait].
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	Multiplier  time.Duration `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`
	MinWait     time.Duration `json:"min_wait" yaml:"min_wait" mapstructure:"min_wait"`
	MaxWait     time.Duration `json:"max_wait" yaml:"max_wait" mapstructure:"max_wait"`
}

// DefaultRetryConfig returns 3 attempts with 2s..30s exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: defaultRetryAttempts,
		Multiplier:  defaultRetryMultiplier,
		MinWait:     defaultRetryMinWait,
		MaxWait:     defaultRetryMaxWait,
	}
}

// AIConfig holds settings for the Gemini generation and embedding APIs.
type AIConfig struct {
	// Model is the generation model identifier (e.g. "gemini-2.5-pro").
	Model string `json:"model" yaml:"model"`

	// EmbeddingModel is the embedding model identifier.
	EmbeddingModel string `json:"embedding_model" yaml:"embedding_model"`

	// APIKey is the authentication key for the Gemini API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// KnowledgeBaseConfig holds settings for the local knowledge store.
type KnowledgeBaseConfig struct {
	// Dir contains the SQLite database (data_dir/graph).
	Dir string `json:"dir" yaml:"dir"`

	// MaxResults caps the chunks returned per query (default 8).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// CacheSize is the number of query results kept in memory (default 256).
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// ChunkSize and ChunkOverlap control how documents are split, in characters.
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`
}

// IngestConfig holds settings for document ingestion.
type IngestConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Include lists doublestar patterns selecting files under --dir.
	// Empty means the built-in text extensions.
	Include []string `json:"include" yaml:"include" mapstructure:"include"`

	// DebounceDelay is how long watch mode waits for more changes.
	DebounceDelay time.Duration `json:"debounce_delay" yaml:"debounce_delay" mapstructure:"debounce_delay"`
}

// Config is the user-facing configuration persisted by `kbskills init` and
// read through viper (file, KBSKILLS_* environment, flags).
type Config struct {
	GeminiAPIKey string `json:"gemini_api_key,omitempty" yaml:"gemini_api_key,omitempty" mapstructure:"gemini_api_key"`

	DataDir   string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
	SkillsDir string `json:"skills_dir" yaml:"skills_dir" mapstructure:"skills_dir"`

	LLMModel       string `json:"llm_model" yaml:"llm_model" mapstructure:"llm_model"`
	EmbeddingModel string `json:"embedding_model" yaml:"embedding_model" mapstructure:"embedding_model"`

	DefaultSearchMode string `json:"default_search_mode" yaml:"default_search_mode" mapstructure:"default_search_mode"`

	SkillMatchTopK             int     `json:"skill_match_top_k" yaml:"skill_match_top_k" mapstructure:"skill_match_top_k"`
	SkillMatchDefaultThreshold float64 `json:"skill_match_default_threshold" yaml:"skill_match_default_threshold" mapstructure:"skill_match_default_threshold"`

	// RetrieveWorkers bounds concurrent knowledge-store queries in the retrieve stage.
	RetrieveWorkers int `json:"retrieve_workers" yaml:"retrieve_workers" mapstructure:"retrieve_workers"`

	QueryCacheSize int `json:"query_cache_size" yaml:"query_cache_size" mapstructure:"query_cache_size"`

	Retry  RetryConfig  `json:"retry" yaml:"retry" mapstructure:"retry"`
	Ingest IngestConfig `json:"ingest" yaml:"ingest" mapstructure:"ingest"`
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() Config {
	return Config{
		DataDir:                    DefaultDataDir,
		OutputDir:                  DefaultOutputDir,
		SkillsDir:                  DefaultSkillsDir,
		LLMModel:                   DefaultLLMModel,
		EmbeddingModel:             DefaultEmbeddingModel,
		DefaultSearchMode:          string(SearchHybrid),
		SkillMatchTopK:             DefaultSkillMatchTopK,
		SkillMatchDefaultThreshold: DefaultSkillThreshold,
		RetrieveWorkers:            DefaultRetrieveWorkers,
		QueryCacheSize:             DefaultQueryCacheSize,
		Retry:                      DefaultRetryConfig(),
		Ingest: IngestConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   DefaultHTTPTimeout,
				UserAgent: DefaultUserAgent,
			},
			DebounceDelay: DefaultDebounceDelay,
		},
	}
}

// KnowledgeDir is the directory holding the knowledge store database.
func (c Config) KnowledgeDir() string {
	return filepath.Join(c.DataDir, knowledgeGraphSubfolder)
}

// AI derives the Gemini client settings.
func (c Config) AI() AIConfig {
	return AIConfig{
		Model:          c.LLMModel,
		EmbeddingModel: c.EmbeddingModel,
		APIKey:         c.GeminiAPIKey,
	}
}

// KnowledgeBase derives the knowledge store settings.
func (c Config) KnowledgeBase() KnowledgeBaseConfig {
	return KnowledgeBaseConfig{
		Dir:          c.KnowledgeDir(),
		MaxResults:   DefaultMaxResults,
		CacheSize:    c.QueryCacheSize,
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}
