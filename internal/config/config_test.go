package config

import (
	"strings"
	"testing"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	data map[string]any
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string]any)}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (m *memBackend) SetString(key, val string) error {
	m.data[key] = val
	return nil
}

func (m *memBackend) SetInt(key string, val int) error {
	m.data[key] = val
	return nil
}

func (m *memBackend) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4600 {
		t.Errorf("Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.VectorStore.Backend != "sqlite" {
		t.Errorf("Backend = %q, want sqlite", cfg.VectorStore.Backend)
	}
	if cfg.Pipeline.ScoreThreshold != 0.25 {
		t.Errorf("ScoreThreshold = %v, want 0.25", cfg.Pipeline.ScoreThreshold)
	}
	if cfg.Pipeline.MaxNewTokens != 512 {
		t.Errorf("MaxNewTokens = %d, want 512", cfg.Pipeline.MaxNewTokens)
	}
	if !cfg.Pipeline.DoSample {
		t.Error("DoSample = false, want true by default")
	}
}

func TestLoad_BackendOverrides(t *testing.T) {
	b := newMemBackend()
	b.SetInt("server.port", 9000)
	b.SetString("ollama.chat_model", "llama3")
	b.SetString("pipeline.score_threshold", "0.5")
	b.SetString("pipeline.do_sample", "false")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Ollama.ChatModel != "llama3" {
		t.Errorf("ChatModel = %q", cfg.Ollama.ChatModel)
	}
	if cfg.Pipeline.ScoreThreshold != 0.5 {
		t.Errorf("ScoreThreshold = %v, want 0.5", cfg.Pipeline.ScoreThreshold)
	}
	if cfg.Pipeline.DoSample {
		t.Error("DoSample = true, want false from backend")
	}
}

func TestLoad_EnvOverridesBackend(t *testing.T) {
	b := newMemBackend()
	b.SetInt("server.port", 9000)
	t.Setenv("GLOSSA_SERVER_PORT", "9100")
	t.Setenv("GLOSSA_PIPELINE_INDEX_LANG", "de")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Pipeline.IndexLang != "de" {
		t.Errorf("IndexLang = %q, want de", cfg.Pipeline.IndexLang)
	}
}

func TestLoad_SecretsEnvOnly(t *testing.T) {
	b := newMemBackend()
	// A secret in the file backend must be ignored.
	b.SetString("translator.api_key", "from-file")
	t.Setenv("GLOSSA_TRANSLATOR_API_KEY", "from-env")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Translator.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env value only", cfg.Translator.APIKey)
	}
}

func TestLoad_InvalidBackendRejected(t *testing.T) {
	b := newMemBackend()
	b.SetString("vector_store.backend", "redis")

	if _, err := loadWith(b); err == nil {
		t.Fatal("expected error for unsupported vector store backend")
	}
}

func TestLoad_ThresholdRangeValidated(t *testing.T) {
	b := newMemBackend()
	b.SetString("pipeline.score_threshold", "1.5")

	if _, err := loadWith(b); err == nil {
		t.Fatal("expected error for threshold outside cosine range")
	}
}

func TestLoad_HostedModelRequiresKey(t *testing.T) {
	b := newMemBackend()
	b.SetString("hosted.model", "some/model")

	if _, err := loadWith(b); err == nil {
		t.Fatal("expected error when hosted model set without API key")
	}

	t.Setenv("GLOSSA_HOSTED_API_KEY", "k")
	if _, err := loadWith(b); err != nil {
		t.Fatalf("loadWith with key: %v", err)
	}
}

func TestSetKey_RejectsSecrets(t *testing.T) {
	err := setKeyWith(newMemBackend(), "translator.api_key", "oops")
	if err == nil || !strings.Contains(err.Error(), "GLOSSA_TRANSLATOR_API_KEY") {
		t.Errorf("err = %v, want secret rejection naming the env var", err)
	}
}

func TestSetKey_UnknownKey(t *testing.T) {
	if err := setKeyWith(newMemBackend(), "nope.nothing", "v"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSetKey_IntParsing(t *testing.T) {
	b := newMemBackend()
	if err := setKeyWith(b, "server.port", "8080"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	if got, _, _ := b.GetInt("server.port"); got != 8080 {
		t.Errorf("stored port = %d", got)
	}
	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
}

func TestGetAPIToken_GeneratedOnceAndStable(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	kc := NewKeychain()

	first, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if first == "" {
		t.Fatal("empty token generated")
	}

	second, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if second != first {
		t.Errorf("token changed between calls: %q vs %q", first, second)
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Translator.APIKey = "secret-value"

	for _, info := range ShowAll(cfg) {
		if strings.Contains(info.Value, "secret-value") {
			t.Errorf("secret leaked via ShowAll: %+v", info)
		}
	}
}
