package semem

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Semem engine, per the §6 external
// interfaces contract: storage, provider lists, memory tuning, and
// performance knobs. The core never reads files or environment variables
// itself — cmd/ entrypoints resolve a Config and pass it in.
type Config struct {
	Storage            StorageConfig     `json:"storage" yaml:"storage"`
	LLMProviders       []ProviderConfig  `json:"llmProviders" yaml:"llmProviders"`
	EmbeddingProviders []ProviderConfig  `json:"embeddingProviders" yaml:"embeddingProviders"`
	Memory             MemoryConfig      `json:"memory" yaml:"memory"`
	Performance        PerformanceConfig `json:"performance" yaml:"performance"`
}

// StorageConfig describes the remote SPARQL endpoint and the on-disk
// template directories.
type StorageConfig struct {
	QueryEndpoint  string `json:"query" yaml:"query"`
	UpdateEndpoint string `json:"update" yaml:"update"`
	User           string `json:"user" yaml:"user"`
	Password       string `json:"password" yaml:"password"`
	GraphName      string `json:"graphName" yaml:"graphName"`
	QueryDir       string `json:"queryDir" yaml:"queryDir"`
	PromptDir      string `json:"promptDir" yaml:"promptDir"`
}

// ProviderConfig names one entry in a priority-ordered provider list.
// Selection (§6, §9) is a pure function over this list: the first entry
// with a resolvable API key wins; "ollama" is the zero-config fallback.
type ProviderConfig struct {
	Name    string `json:"name" yaml:"name"` // mistral, claude, ollama, nomic
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"baseURL" yaml:"baseURL"`
	APIKey  string `json:"apiKey" yaml:"apiKey"`
	APIKeyEnv string `json:"apiKeyEnv" yaml:"apiKeyEnv"`
}

// ResolvedAPIKey returns the provider's API key, preferring an explicit
// value and falling back to the named environment variable.
func (p ProviderConfig) ResolvedAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// MemoryConfig tunes the memory store and retriever (§4.5, §4.10).
type MemoryConfig struct {
	Dimension           int     `json:"dimension" yaml:"dimension"`
	SimilarityThreshold float64 `json:"similarityThreshold" yaml:"similarityThreshold"`
	ContextWindow       int     `json:"contextWindow" yaml:"contextWindow"`
	DecayRate           float64 `json:"decayRate" yaml:"decayRate"`
	LongTermThreshold   float64 `json:"longTermThreshold" yaml:"longTermThreshold"`
}

// PerformanceConfig tunes the concurrency model (§5).
type PerformanceConfig struct {
	IngestConcurrency int `json:"ingestConcurrency" yaml:"ingestConcurrency"`
	SPARQLPoolSize    int `json:"sparqlPoolSize" yaml:"sparqlPoolSize"`
	SPARQLTimeoutSec  int `json:"sparqlTimeoutSec" yaml:"sparqlTimeoutSec"`
	LLMTimeoutSec     int `json:"llmTimeoutSec" yaml:"llmTimeoutSec"`
	UploadTimeoutSec  int `json:"uploadTimeoutSec" yaml:"uploadTimeoutSec"`
	EmbedCacheSize    int `json:"embedCacheSize" yaml:"embedCacheSize"`
}

// DefaultConfig returns a Config with sensible defaults for a local Ollama
// stack talking to a local Fuseki-like SPARQL endpoint.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			QueryEndpoint:  "http://localhost:3030/semem/query",
			UpdateEndpoint: "http://localhost:3030/semem/update",
			GraphName:      "http://hyperdata.it/content",
			QueryDir:       "queries",
			PromptDir:      "prompts",
		},
		LLMProviders: []ProviderConfig{
			{Name: "mistral", APIKeyEnv: "MISTRAL_API_KEY", Model: "mistral-small-latest"},
			{Name: "claude", APIKeyEnv: "ANTHROPIC_API_KEY", Model: "claude-3-5-haiku-latest"},
			{Name: "ollama", BaseURL: "http://localhost:11434", Model: "llama3.1:8b"},
		},
		EmbeddingProviders: []ProviderConfig{
			{Name: "nomic", APIKeyEnv: "NOMIC_API_KEY", Model: "nomic-embed-text-v1.5"},
			{Name: "ollama", BaseURL: "http://localhost:11434", Model: "nomic-embed-text"},
		},
		Memory: MemoryConfig{
			Dimension:           768,
			SimilarityThreshold: 0.5,
			ContextWindow:       4000,
			DecayRate:           0.1,
			LongTermThreshold:   0.8,
		},
		Performance: PerformanceConfig{
			IngestConcurrency: 8,
			SPARQLPoolSize:    16,
			SPARQLTimeoutSec:  30,
			LLMTimeoutSec:     60,
			UploadTimeoutSec:  600,
			EmbedCacheSize:    1024,
		},
	}
}

// LoadConfig reads a JSON or YAML config file (chosen by extension) and
// overlays it section by section onto DefaultConfig (see mergeConfig).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("semem: read config %s: %w", path, err)
	}

	loaded := Config{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return Config{}, fmt.Errorf("semem: parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &loaded); err != nil {
			return Config{}, fmt.Errorf("semem: parse json config: %w", err)
		}
	}

	mergeConfig(&cfg, loaded)
	return cfg, cfg.Validate()
}

// mergeConfig replaces whole sections of base with those of loaded:
// Storage when Storage.QueryEndpoint is set, each provider list when it is
// non-empty, Memory when Memory.Dimension is set, and Performance when
// Performance.IngestConcurrency is set. Zero fields inside an adopted
// section are not filled from base.
func mergeConfig(base *Config, loaded Config) {
	if loaded.Storage.QueryEndpoint != "" {
		base.Storage = loaded.Storage
	}
	if len(loaded.LLMProviders) > 0 {
		base.LLMProviders = loaded.LLMProviders
	}
	if len(loaded.EmbeddingProviders) > 0 {
		base.EmbeddingProviders = loaded.EmbeddingProviders
	}
	if loaded.Memory.Dimension != 0 {
		base.Memory = loaded.Memory
	}
	if loaded.Performance.IngestConcurrency != 0 {
		base.Performance = loaded.Performance
	}
}

// Validate rejects configs that would violate downstream invariants.
func (c Config) Validate() error {
	if c.Memory.Dimension <= 0 {
		return Wrap(KindValidation, "config", fmt.Errorf("memory.dimension must be positive, got %d", c.Memory.Dimension))
	}
	if c.Storage.QueryEndpoint == "" || c.Storage.UpdateEndpoint == "" {
		return Wrap(KindValidation, "config", fmt.Errorf("storage.query and storage.update endpoints are required"))
	}
	if len(c.LLMProviders) == 0 {
		return Wrap(KindValidation, "config", fmt.Errorf("at least one llmProvider is required"))
	}
	return nil
}
