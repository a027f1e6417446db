package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
llm:
  base_url: https://api.example.com/v1
  api_key: dummy
  model: gpt-4o
  temperature: 0.2
  max_retries: 5
server:
  host: 127.0.0.1
  port: "9090"
database:
  path: /tmp/test-chat.db
log:
  level: debug
`

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_PATH", path)
}

func TestLoad_FromFile(t *testing.T) {
	writeConfig(t, sampleConfig)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "https://api.example.com/v1", cfg.LLM.BaseURL)
	require.Equal(t, "dummy", cfg.LLM.APIKey)
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.EqualValues(t, 0.2, cfg.LLM.Temperature)
	require.Equal(t, 5, cfg.LLM.MaxRetries)
	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "/tmp/test-chat.db", cfg.Database.Path)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Defaults(t *testing.T) {
	writeConfig(t, "llm:\n  api_key: dummy\n")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "https://openrouter.ai/api/v1", cfg.LLM.BaseURL)
	require.Equal(t, 3, cfg.LLM.MaxRetries)
	require.Equal(t, 60, cfg.LLM.TimeoutSeconds)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "chat.db", cfg.Database.Path)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingAPIKeyFailsFast(t *testing.T) {
	writeConfig(t, "server:\n  port: \"8080\"\n")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestLoad_EnvOverride(t *testing.T) {
	writeConfig(t, "llm:\n  api_key: from-file\n")
	t.Setenv("CHATBOT_LLM_API_KEY", "from-env")
	t.Setenv("CHATBOT_LLM_MODEL", "override-model")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.LLM.APIKey)
	require.Equal(t, "override-model", cfg.LLM.Model)
}

func TestLoad_EnvOnlyWithoutConfigFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())
	t.Setenv("CHATBOT_LLM_API_KEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.LLM.APIKey)
}
