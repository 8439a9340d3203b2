package assistant

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	// Untouched sections keep their defaults.
	if cfg.AutoReply.DebounceSeconds != 10 {
		t.Errorf("debounce_seconds = %d, want default 10", cfg.AutoReply.DebounceSeconds)
	}
	if cfg.AutoReply.MaxBubbles != 3 {
		t.Errorf("max_bubbles = %d, want default 3", cfg.AutoReply.MaxBubbles)
	}
}

func TestLoadConfigPartialAutoReplyKeepsHandoverKeywords(t *testing.T) {
	path := writeConfig(t, "auto_reply:\n  draft_mode: true\n")

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.AutoReply.DraftMode {
		t.Error("draft_mode not applied")
	}
	if len(cfg.AutoReply.HandoverKeywords) == 0 {
		t.Error("handover keywords lost on partial auto_reply section")
	}
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("VENDACLAW_TEST_MODEL", "gpt-4o")

	path := writeConfig(t, "generator:\n  model: ${VENDACLAW_TEST_MODEL}\n  base_url: ${VENDACLAW_TEST_UNSET:-http://localhost}\n")

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Generator.Model != "gpt-4o" {
		t.Errorf("model = %q, env not expanded", cfg.Generator.Model)
	}
	if cfg.Generator.BaseURL != "http://localhost" {
		t.Errorf("base_url = %q, default not applied", cfg.Generator.BaseURL)
	}
}

func TestLoadConfigRequiredEnvMissing(t *testing.T) {
	path := writeConfig(t, "generator:\n  api_key: ${VENDACLAW_TEST_REQUIRED:?api key must be set}\n")

	_, err := LoadConfigFromFile(path)
	if err == nil {
		t.Fatal("expected error for unset required variable")
	}
	if !strings.Contains(err.Error(), "VENDACLAW_TEST_REQUIRED") {
		t.Errorf("error %q does not name the variable", err)
	}
}

func TestResolveSecretsFromEnv(t *testing.T) {
	t.Setenv("VENDACLAW_API_KEY", "sk-from-env")

	path := writeConfig(t, "log_level: info\n")
	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Generator.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, env secret not resolved", cfg.Generator.APIKey)
	}
}

func TestLoadConfigResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, "database_path: ./data/test.db\n")

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !filepath.IsAbs(cfg.DatabasePath) {
		t.Errorf("database_path = %q, not absolute", cfg.DatabasePath)
	}
	if filepath.Dir(filepath.Dir(cfg.DatabasePath)) != filepath.Dir(path) {
		t.Errorf("database_path = %q, not anchored to config dir", cfg.DatabasePath)
	}
}

func TestSaveConfigSanitizesSecret(t *testing.T) {
	t.Setenv("VENDACLAW_API_KEY", "sk-real-key")

	cfg := DefaultConfig()
	cfg.Generator.APIKey = "sk-real-key"

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := SaveConfigToFile(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(data), "sk-real-key") {
		t.Error("secret written in plaintext")
	}
	if !strings.Contains(string(data), "${VENDACLAW_API_KEY}") {
		t.Error("env reference not substituted")
	}
}

func TestSaveConfigCreatesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := SaveConfigToFile(DefaultConfig(), path); err != nil {
		t.Fatalf("save: %v", err)
	}

	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(bak) != "log_level: warn\n" {
		t.Errorf("backup content = %q", bak)
	}
}

func TestIsEnvReference(t *testing.T) {
	if !IsEnvReference("${FOO}") || !IsEnvReference("$FOO") {
		t.Error("references not detected")
	}
	if IsEnvReference("sk-plain-key") {
		t.Error("plain value detected as reference")
	}
}
