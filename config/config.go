// Package config loads the kbassist YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/poiesic/kbassist/ai"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv overrides ai.api_key when set.
const APIKeyEnv = "KBASSIST_API_KEY"

// Supported storage backends.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendWeaviate = "weaviate"
)

// Config is the top level configuration file.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Storage   StorageConfig   `yaml:"storage"`
	Vectors   VectorConfig    `yaml:"vectors"`
	AI        AIConfig        `yaml:"ai"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Context   ContextConfig   `yaml:"context"`
	PoolSize  int             `yaml:"pool_size"`
}

// StorageConfig selects where conversations live. Knowledge entries are kept
// in the badger store at Path for every backend and mirrored to postgres for
// full-text search when it is selected.
type StorageConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
	DSN      string `yaml:"dsn"`
}

// VectorConfig selects the vector index. The badger backend searches the
// knowledge store directly.
type VectorConfig struct {
	Backend string `yaml:"backend"`
	Scheme  string `yaml:"scheme"`
	Host    string `yaml:"host"`
	Class   string `yaml:"class"`

	// Department restricts vector hits to one department when set.
	Department string `yaml:"department"`
}

// AIConfig describes the embedding and chat endpoints.
type AIConfig struct {
	EmbeddingHost    string  `yaml:"embedding_host"`
	ChatHost         string  `yaml:"chat_host"`
	EmbeddingModel   string  `yaml:"embedding_model"`
	ChatModel        string  `yaml:"chat_model"`
	APIKey           string  `yaml:"api_key"`
	Temperature      float64 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	Dimensions       int     `yaml:"dimensions"`
	InferenceTimeout string  `yaml:"inference_timeout"`
}

// RetrievalConfig tunes both retrievers and fusion.
type RetrievalConfig struct {
	SemanticTopK int     `yaml:"semantic_top_k"`
	LexicalTopK  int     `yaml:"lexical_top_k"`
	MinScore     float64 `yaml:"min_score"`
	// Timeout bounds each index query.
	Timeout string `yaml:"timeout"`
	// EmbeddingTimeout bounds embedding the question.
	EmbeddingTimeout string  `yaml:"embedding_timeout"`
	Epsilon          float64 `yaml:"epsilon"`
}

// ContextConfig bounds the prompt sent to the model.
type ContextConfig struct {
	MaxChars     int    `yaml:"max_chars"`
	MaxTokens    int    `yaml:"max_tokens"`
	Encoding     string `yaml:"encoding"`
	HistoryTurns int    `yaml:"history_turns"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Backend: BackendBadger,
			Path:    "kbassist.db",
		},
		Vectors: VectorConfig{
			Backend: BackendBadger,
			Scheme:  "http",
			Host:    "localhost:8080",
			Class:   "KnowledgeBase",
		},
		AI: AIConfig{
			EmbeddingHost:    aiDefaults.EmbeddingHost,
			ChatHost:         aiDefaults.ChatHost,
			EmbeddingModel:   aiDefaults.EmbeddingModel,
			ChatModel:        aiDefaults.ChatModel,
			APIKey:           aiDefaults.APIKey,
			Temperature:      aiDefaults.Temperature,
			MaxTokens:        aiDefaults.MaxTokens,
			Dimensions:       aiDefaults.Dimensions,
			InferenceTimeout: aiDefaults.InferenceTimeout.String(),
		},
		Retrieval: RetrievalConfig{
			SemanticTopK: 3,
			LexicalTopK:  5,
			MinScore:     0.1,
			Timeout:          "300ms",
			EmbeddingTimeout: "2s",
			Epsilon:          0.1,
		},
		Context: ContextConfig{
			MaxChars:     6000,
			Encoding:     "cl100k_base",
			HistoryTurns: 5,
		},
		PoolSize: 64,
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if key := os.Getenv(APIKeyEnv); key != "" {
		cfg.AI.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backends, durations and numeric ranges.
func (c *Config) Validate() error {
	// The badger store always holds the knowledge base of record.
	if c.Storage.Path == "" && !c.Storage.InMemory {
		return errors.New("config: storage.path is required")
	}

	switch c.Storage.Backend {
	case BackendBadger:
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return errors.New("config: storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Vectors.Backend {
	case BackendBadger:
	case BackendWeaviate:
		if c.Vectors.Host == "" || c.Vectors.Class == "" {
			return errors.New("config: vectors.host and vectors.class are required for weaviate")
		}
	default:
		return fmt.Errorf("config: unknown vector backend %q", c.Vectors.Backend)
	}

	if _, err := c.RetrievalTimeout(); err != nil {
		return err
	}
	if _, err := c.EmbeddingTimeout(); err != nil {
		return err
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return errors.New("config: retrieval.min_score must be between 0 and 1")
	}
	if c.Retrieval.Epsilon < 0 {
		return errors.New("config: retrieval.epsilon must not be negative")
	}
	if c.Context.MaxChars < 1 {
		return errors.New("config: context.max_chars must be positive")
	}

	aiCfg, err := c.AIConfig()
	if err != nil {
		return err
	}
	return aiCfg.Validate()
}

// RetrievalTimeout parses retrieval.timeout.
func (c *Config) RetrievalTimeout() (time.Duration, error) {
	return parseDuration("retrieval.timeout", c.Retrieval.Timeout)
}

// EmbeddingTimeout parses retrieval.embedding_timeout.
func (c *Config) EmbeddingTimeout() (time.Duration, error) {
	return parseDuration("retrieval.embedding_timeout", c.Retrieval.EmbeddingTimeout)
}

// AIConfig converts the ai section to an ai.Config.
func (c *Config) AIConfig() (*ai.Config, error) {
	timeout, err := parseDuration("ai.inference_timeout", c.AI.InferenceTimeout)
	if err != nil {
		return nil, err
	}
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithChatHost(c.AI.ChatHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithChatModel(c.AI.ChatModel),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithTemperature(c.AI.Temperature),
		ai.WithMaxTokens(c.AI.MaxTokens),
		ai.WithDimensions(c.AI.Dimensions),
		ai.WithInferenceTimeout(timeout),
	), nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("config: %s is required", field)
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", field)
	}
	return d, nil
}
