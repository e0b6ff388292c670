package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "GLOSSA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "ollama.base_url", typ: kString, env: "GLOSSA_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "GLOSSA_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "GLOSSA_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "translator.base_url", typ: kString, env: "GLOSSA_TRANSLATOR_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Translator.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Translator.BaseURL },
	},
	{
		key: "translator.api_key", typ: kString, env: "GLOSSA_TRANSLATOR_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Translator.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Translator.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "GLOSSA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "vector_store.backend", typ: kString, env: "GLOSSA_VECTOR_STORE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.VectorStore.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.VectorStore.Backend },
	},
	{
		key: "vector_store.url", typ: kString, env: "GLOSSA_VECTOR_STORE_URL",
		apply:   func(cfg *Config, v any) { cfg.VectorStore.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.VectorStore.URL },
	},
	{
		key: "vector_store.collection", typ: kString, env: "GLOSSA_VECTOR_STORE_COLLECTION",
		apply:   func(cfg *Config, v any) { cfg.VectorStore.Collection = v.(string) },
		extract: func(cfg Config) any { return cfg.VectorStore.Collection },
	},
	{
		key: "vector_store.api_key", typ: kString, env: "GLOSSA_VECTOR_STORE_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.VectorStore.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.VectorStore.APIKey },
	},
	{
		key: "vector_store.dimension", typ: kInt, env: "GLOSSA_VECTOR_STORE_DIMENSION",
		apply:   func(cfg *Config, v any) { cfg.VectorStore.Dimension = v.(int) },
		extract: func(cfg Config) any { return cfg.VectorStore.Dimension },
	},
	{
		key: "pipeline.index_lang", typ: kString, env: "GLOSSA_PIPELINE_INDEX_LANG",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.IndexLang = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.IndexLang },
	},
	{
		key: "pipeline.gen_lang", typ: kString, env: "GLOSSA_PIPELINE_GEN_LANG",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.GenLang = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.GenLang },
	},
	{
		key: "pipeline.default_user_lang", typ: kString, env: "GLOSSA_PIPELINE_DEFAULT_USER_LANG",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.DefaultUserLang = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.DefaultUserLang },
	},
	{
		key: "pipeline.top_k", typ: kInt, env: "GLOSSA_PIPELINE_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.TopK },
	},
	{
		key: "pipeline.score_threshold", typ: kFloat, env: "GLOSSA_PIPELINE_SCORE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.ScoreThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Pipeline.ScoreThreshold },
	},
	{
		key: "pipeline.temperature", typ: kFloat, env: "GLOSSA_PIPELINE_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Pipeline.Temperature },
	},
	{
		key: "pipeline.do_sample", typ: kBool, env: "GLOSSA_PIPELINE_DO_SAMPLE",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.DoSample = v.(bool) },
		extract: func(cfg Config) any { return cfg.Pipeline.DoSample },
	},
	{
		key: "pipeline.max_new_tokens", typ: kInt, env: "GLOSSA_PIPELINE_MAX_NEW_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.MaxNewTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.MaxNewTokens },
	},
	{
		key: "pipeline.history_limit", typ: kInt, env: "GLOSSA_PIPELINE_HISTORY_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.HistoryLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.HistoryLimit },
	},
	{
		key: "pipeline.gen_timeout_sec", typ: kInt, env: "GLOSSA_PIPELINE_GEN_TIMEOUT_SEC",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.GenTimeoutSec = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.GenTimeoutSec },
	},
	{
		key: "hosted.base_url", typ: kString, env: "GLOSSA_HOSTED_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Hosted.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Hosted.BaseURL },
	},
	{
		key: "hosted.api_key", typ: kString, env: "GLOSSA_HOSTED_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Hosted.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Hosted.APIKey },
	},
	{
		key: "hosted.model", typ: kString, env: "GLOSSA_HOSTED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Hosted.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Hosted.Model },
	},
	{
		key: "log.level", typ: kString, env: "GLOSSA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
