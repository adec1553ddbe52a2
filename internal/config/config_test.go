// internal/config/config_test.go
package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/AvaChat/internal/segmenter"
)

// clearEnv blanks every variable Load reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "STATIC_DIR", "TEMPLATES_DIR", "LOG_DIR", "LOG_LEVEL", "DEBUG_MODE",
		"CONFIG_FILE", "LLM_PROVIDER", "CHAT_RATE_LIMIT", "ADMIN_TOKEN",
	} {
		t.Setenv(k, "")
	}
	for _, keys := range providerEnv {
		for _, env := range keys {
			t.Setenv(env, "")
		}
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DefaultProvider, cfg.LLMProvider)
	assert.Equal(t, DefaultChatRateLimit, cfg.ChatRateLimit)
	assert.False(t, cfg.DebugMode)
	assert.Equal(t, segmenter.DefaultThresholds(), cfg.Segmenter)
	assert.Empty(t, cfg.LLMConfig)
}

func TestLoadProviderFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SNOWFLAKE_ACCOUNT", "acme")
	t.Setenv("SNOWFLAKE_TOKEN", "pat-secret-value")
	t.Setenv("DATABASE", "RIDES")
	t.Setenv("SCHEMA", "PUBLIC")
	t.Setenv("AGENT_NAME", "AVA")
	t.Setenv("UPSTREAM_TIMEOUT", "45s")
	t.Setenv("OPENAI_API_KEY", "ignored-for-cortex")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"account":  "acme",
		"token":    "pat-secret-value",
		"database": "RIDES",
		"schema":   "PUBLIC",
		"agent":    "AVA",
		"timeout":  "45s",
	}, cfg.LLMConfig)
}

func TestLoadYAMLOverlayEnvWins(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "ava.yaml", `
llm_provider: openai
llm_config:
  api_key: from-file
  default_model: gpt-file
segmenter:
  generic_min_reasoning: 40
chat_rate_limit: 5
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OPENAI_API_KEY", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "from-env", cfg.LLMConfig["api_key"])
	assert.Equal(t, "gpt-file", cfg.LLMConfig["default_model"])
	assert.Equal(t, 40, cfg.Segmenter.GenericMinReasoning)
	assert.Equal(t, segmenter.DefaultThresholds().SummaryMinReasoning, cfg.Segmenter.SummaryMinReasoning)
	assert.Equal(t, 5, cfg.ChatRateLimit)
}

func TestLoadJSONOverlay(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "ava.json", `{"llm_provider":"cortex","llm_config":{"agent":"FILE_AGENT"},"chat_rate_limit":9}`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CHAT_RATE_LIMIT", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "FILE_AGENT", cfg.LLMConfig["agent"])
	assert.Equal(t, 12, cfg.ChatRateLimit)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "http")
	_, err := Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeFile(t, "bad.yaml", "llm_config: [unclosed"))
	_, err = Load()
	assert.Error(t, err)
}

func TestCurrentConfigIsACopy(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_DIR", t.TempDir())
	_, err := InitConfig()
	require.NoError(t, err)

	require.NoError(t, UpdateLLMConfig("openai", map[string]string{"api_key": "abcdefgh1234"}))
	cfg := GetCurrentConfig()
	cfg.LLMConfig["api_key"] = "mutated"

	again := GetCurrentConfig()
	assert.Equal(t, "openai", again.LLMProvider)
	assert.Equal(t, "abcdefgh1234", again.LLMConfig["api_key"])

	settings := again.Sanitized()
	assert.Equal(t, "****1234", settings["llm_config"].(map[string]string)["api_key"])

	assert.Error(t, UpdateLLMConfig("", nil))
}

func TestWatchReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "ava.yaml", "chat_rate_limit: 3\n")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_DIR", t.TempDir())
	_, err := InitConfig()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *AppConfig, 1)
	require.NoError(t, Watch(ctx, path, func(c *AppConfig) {
		select {
		case changed <- c:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("chat_rate_limit: 7\n"), 0644))

	select {
	case c := <-changed:
		assert.Equal(t, 7, c.ChatRateLimit)
		assert.Equal(t, 7, GetCurrentConfig().ChatRateLimit)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
}

func TestWatchRequiresPath(t *testing.T) {
	assert.Error(t, Watch(context.Background(), "", nil))
}
