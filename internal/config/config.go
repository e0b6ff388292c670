package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server      ServerConfig
	Ollama      OllamaConfig
	Translator  TranslatorConfig
	Storage     StorageConfig
	VectorStore VectorStoreConfig
	Pipeline    PipelineConfig
	Hosted      HostedConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type TranslatorConfig struct {
	BaseURL string
	APIKey  string
}

type StorageConfig struct {
	DataDir string
}

// VectorStoreConfig selects the retrieval backend: "sqlite" keeps
// vectors in the local database, "qdrant" talks to a remote server.
type VectorStoreConfig struct {
	Backend    string
	URL        string
	Collection string
	APIKey     string
	Dimension  int
}

// PipelineConfig fixes the languages and tuning of the reply pipeline.
type PipelineConfig struct {
	IndexLang       string
	GenLang         string
	DefaultUserLang string
	TopK            int
	ScoreThreshold  float64
	Temperature     float64
	DoSample        bool
	MaxNewTokens    int
	HistoryLimit    int
	GenTimeoutSec   int
}

// HostedConfig configures the optional hosted generation backend used
// instead of the local engine when a model name and API key are set.
type HostedConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "mistral-nemo",
			EmbedModel: "nomic-embed-text",
		},
		Translator: TranslatorConfig{
			BaseURL: "http://localhost:5000",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		VectorStore: VectorStoreConfig{
			Backend:    "sqlite",
			URL:        "http://localhost:6333",
			Collection: "glossa_chunks",
			Dimension:  768,
		},
		Pipeline: PipelineConfig{
			IndexLang:       "en",
			GenLang:         "en",
			DefaultUserLang: "en",
			TopK:            3,
			ScoreThreshold:  0.25,
			Temperature:     0.4,
			DoSample:        true,
			MaxNewTokens:    512,
			HistoryLimit:    20,
			GenTimeoutSec:   120,
		},
		Hosted: HostedConfig{
			BaseURL: "https://openrouter.ai/api/v1",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the config file with environment
// variable overrides.
//
// The file lives at $XDG_CONFIG_HOME/glossa/config.json (flat JSON
// object keyed by the dotted config keys). Environment variables
// (GLOSSA_*) override file values. Secrets (API keys) are env-only and
// never written to the file.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.VectorStore.Backend {
	case "sqlite", "qdrant":
	default:
		return fmt.Errorf("invalid vector_store.backend %q, want sqlite or qdrant", cfg.VectorStore.Backend)
	}
	if cfg.Pipeline.TopK < 1 {
		return fmt.Errorf("pipeline.top_k must be at least 1, got %d", cfg.Pipeline.TopK)
	}
	if cfg.Pipeline.ScoreThreshold < -1 || cfg.Pipeline.ScoreThreshold > 1 {
		return fmt.Errorf("pipeline.score_threshold %v outside cosine range [-1, 1]", cfg.Pipeline.ScoreThreshold)
	}
	if cfg.Hosted.Model != "" && cfg.Hosted.APIKey == "" {
		return fmt.Errorf("hosted.model is set but GLOSSA_HOSTED_API_KEY is empty")
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "glossa-data"
		}
	}
	return filepath.Join(dir, "glossa")
}
