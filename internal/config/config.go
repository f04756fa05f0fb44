// Package config loads and validates quarry configuration. Precedence,
// lowest to highest: built-in defaults, user config
// (~/.config/quarry/config.yaml), project config (.quarry.yaml), then
// QUARRY_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// ProjectConfigName is the per-project config file name.
const ProjectConfigName = ".quarry.yaml"

// Config is the complete quarry configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig locates on-disk state.
type PathsConfig struct {
	// DataDir holds all index files. Defaults to ~/.quarry/data.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// LogDir holds log files. Defaults to ~/.quarry/logs.
	LogDir string `yaml:"log_dir" json:"log_dir"`
}

// SearchConfig tunes the hybrid search pipeline.
type SearchConfig struct {
	// RRFConstant is the fusion smoothing parameter k. k=60 is the
	// industry standard (Azure AI Search, OpenSearch).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// SparseBackend selects the lexical index: "sqlite" (default,
	// concurrent access) or "bleve" (single-process).
	SparseBackend string `yaml:"sparse_backend" json:"sparse_backend"`

	// MaxResults caps the per-call result limit.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// Timeout bounds a whole search call.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ClassifierConfig tunes query classification.
type ClassifierConfig struct {
	// Model is the Ollama model used for classification.
	Model string `yaml:"model" json:"model"`

	// Timeout bounds a single classification request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// CacheSize is the classification LRU capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// HeuristicOnly disables the model path entirely.
	HeuristicOnly bool `yaml:"heuristic_only" json:"heuristic_only"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" (default) or "static" (offline hash embedder).
	Provider string `yaml:"provider" json:"provider"`

	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the vector dimension; 0 auto-detects.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is texts per embedding API call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	// Transport is the MCP transport; only "stdio" is supported.
	Transport string `yaml:"transport" json:"transport"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: filepath.Join(home, ".quarry", "data"),
			LogDir:  filepath.Join(home, ".quarry", "logs"),
		},
		Search: SearchConfig{
			RRFConstant:   60,
			SparseBackend: "sqlite",
			MaxResults:    100,
			Timeout:       5 * time.Second,
		},
		Classifier: ClassifierConfig{
			Model:     "llama3.2:1b",
			Timeout:   2 * time.Second,
			CacheSize: 10000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// UserConfigPath returns ~/.config/quarry/config.yaml.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "quarry", "config.yaml")
}

// Load assembles configuration with full precedence. projectDir may be
// empty to skip the project layer.
func Load(projectDir string) (*Config, error) {
	cfg := NewConfig()

	if path := UserConfigPath(); path != "" {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if projectDir != "" {
		if err := mergeFile(cfg, filepath.Join(projectDir, ProjectConfigName)); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays a YAML file onto cfg. A missing file is not an error.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeConfigNotFound, "read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("parse %s", path)).
			WithSuggestion("check the YAML syntax")
	}
	return nil
}

// applyEnv overlays QUARRY_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("QUARRY_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv("QUARRY_LOG_DIR"); v != "" {
		cfg.Paths.LogDir = v
	}
	if v := os.Getenv("QUARRY_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			cfg.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("QUARRY_SPARSE_BACKEND"); v != "" {
		cfg.Search.SparseBackend = v
	}
	if v := os.Getenv("QUARRY_OLLAMA_HOST"); v != "" {
		cfg.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("QUARRY_EMBED_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("QUARRY_CLASSIFIER_MODEL"); v != "" {
		cfg.Classifier.Model = v
	}
	if v := os.Getenv("QUARRY_HEURISTIC_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Classifier.HeuristicOnly = b
		}
	}
	if v := os.Getenv("QUARRY_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	switch c.Search.SparseBackend {
	case "sqlite", "bleve", "":
	default:
		return qerrors.New(qerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown sparse backend %q", c.Search.SparseBackend)).
			WithSuggestion("use \"sqlite\" or \"bleve\"")
	}

	switch c.Embeddings.Provider {
	case "ollama", "static", "":
	default:
		return qerrors.New(qerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embedding provider %q", c.Embeddings.Provider)).
			WithSuggestion("use \"ollama\" or \"static\"")
	}

	if c.Search.RRFConstant < 0 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid, "rrf_constant must be positive")
	}
	if c.Search.MaxResults <= 0 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid, "max_results must be positive")
	}

	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error", "":
	default:
		return qerrors.New(qerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown log level %q", c.Server.LogLevel))
	}

	return nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeFileNotFound, "create config directory")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeInternal, "marshal config")
	}
	return os.WriteFile(path, data, 0o644)
}
