package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// unsetAll clears every mapped env var for the duration of the test.
func unsetAll(t *testing.T) {
	t.Helper()
	for _, k := range EnvKeys() {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("DOCCHAT_CONFIG", "")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_MissingExplicitPath(t *testing.T) {
	t.Parallel()

	if _, err := Load("/nonexistent/path/config.yaml", slog.Default()); err == nil {
		t.Fatal("expected error for a missing --config file")
	}
}

func TestLoad_NoFileFound(t *testing.T) {
	unsetAll(t)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	path, err := Load("", slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	unsetAll(t)
	cfgPath := writeConfig(t, `
model:
  provider: nim
  max_tokens: 8192
  temperature: 0.3
  top_p: 0.95
  timeout: 90s
  nim:
    model: moonshotai/kimi-k2.5
embedding:
  provider: ollama
  model: qwen3-embedding:0.6b
  dimensions: 1024
  fallback_dimensions: 384
index:
  backend: flat
ingestion:
  chunk_size: 800
  chunk_overlap: 80
retrieval:
  top_k: 5
  threshold: 0.35
chat:
  inactivity_timeout: 45s
server:
  port: 9090
logging:
  level: debug
  format: text
archive:
  db_path: disabled
`)

	loaded, err := Load(cfgPath, slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":                "nim",
		"MODEL_MAX_TOKENS":              "8192",
		"MODEL_TEMPERATURE":             "0.3",
		"MODEL_TOP_P":                   "0.95",
		"MODEL_TIMEOUT":                 "1m30s",
		"NIM_MODEL":                     "moonshotai/kimi-k2.5",
		"EMBEDDING_PROVIDER":            "ollama",
		"EMBEDDING_MODEL":               "qwen3-embedding:0.6b",
		"EMBEDDING_DIMENSIONS":          "1024",
		"EMBEDDING_FALLBACK_DIMENSIONS": "384",
		"INDEX_BACKEND":                 "flat",
		"INGEST_CHUNK_SIZE":             "800",
		"INGEST_CHUNK_OVERLAP":          "80",
		"RETRIEVAL_TOP_K":               "5",
		"RETRIEVAL_THRESHOLD":           "0.35",
		"CHAT_INACTIVITY_TIMEOUT":       "45s",
		"DOCCHAT_PORT":                  "9090",
		"LOG_LEVEL":                     "debug",
		"LOG_FORMAT":                    "text",
		"DOCCHAT_ARCHIVE_DB":            "disabled",
	}
	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
	for _, k := range []string{"CHAT_TIMEOUT", "OPENAI_API_KEY", "DOCCHAT_HOST"} {
		if v, set := os.LookupEnv(k); set {
			t.Errorf("%s set to %q without a YAML value", k, v)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	unsetAll(t)
	cfgPath := writeConfig(t, `
model:
  provider: ollama
retrieval:
  top_k: 9
`)
	t.Setenv("MODEL_PROVIDER", "azure")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := os.Getenv("MODEL_PROVIDER"); got != "azure" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "azure", got)
	}
	if got := os.Getenv("RETRIEVAL_TOP_K"); got != "9" {
		t.Errorf("RETRIEVAL_TOP_K: got %q, want 9", got)
	}
}

func TestLoad_SearchOrder(t *testing.T) {
	unsetAll(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	work := t.TempDir()
	t.Chdir(work)

	local := filepath.Join(work, "docchat.yaml")
	if err := os.WriteFile(local, []byte("logging:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, _ := Load("", slog.Default()); got != "docchat.yaml" {
		t.Errorf("with only ./docchat.yaml: loaded %q", got)
	}

	homeCfg := filepath.Join(home, ".docchat", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(homeCfg), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(homeCfg, []byte("logging:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, _ := Load("", slog.Default()); got != homeCfg {
		t.Errorf("home config should win over ./docchat.yaml: loaded %q", got)
	}

	envCfg := writeConfig(t, "logging:\n  level: error\n")
	t.Setenv("DOCCHAT_CONFIG", envCfg)
	if got, _ := Load("", slog.Default()); got != envCfg {
		t.Errorf("DOCCHAT_CONFIG should win: loaded %q", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfgPath := writeConfig(t, "{{invalid yaml")
	if _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestEnvKeys_Unique(t *testing.T) {
	t.Parallel()

	keys := EnvKeys()
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	if len(slices.Compact(sorted)) != len(keys) {
		t.Error("envMapping has duplicate keys")
	}
}

func TestValueFormatters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"float zero", float32Str(0), ""},
		{"float 0.2", float32Str(0.2), "0.2"},
		{"float 0.95", float32Str(0.95), "0.95"},
		{"float 1", float32Str(1), "1"},
		{"int zero", intStr(0), ""},
		{"int", intStr(65536), "65536"},
		{"int64", int64Str(50 << 20), "52428800"},
		{"duration zero", durationStr(0), ""},
		{"duration", durationStr(2 * time.Minute), "2m0s"},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, tc.got, tc.want)
		}
	}
}
