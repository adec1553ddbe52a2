// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Corphon/AvaChat/internal/segmenter"
	"github.com/Corphon/AvaChat/internal/utils"
)

// Singleton state, guarded by configMutex.
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
)

// AppConfig holds everything the server needs at runtime.
type AppConfig struct {
	Port         string `json:"port"`
	StaticDir    string `json:"static_dir"`
	TemplatesDir string `json:"templates_dir"`
	LogDir       string `json:"log_dir"`
	LogLevel     string `json:"log_level"`
	DebugMode    bool   `json:"debug_mode"`
	ConfigFile   string `json:"config_file,omitempty"`
	AdminToken   string `json:"-"`

	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`

	Segmenter     segmenter.Thresholds `json:"segmenter"`
	ChatRateLimit int                  `json:"chat_rate_limit"`
}

// FileConfig is the optional YAML or JSON overlay.
type FileConfig struct {
	LLMProvider   string               `yaml:"llm_provider" json:"llm_provider"`
	LLMConfig     map[string]string    `yaml:"llm_config" json:"llm_config"`
	Segmenter     segmenter.Thresholds `yaml:"segmenter" json:"segmenter"`
	ChatRateLimit int                  `yaml:"chat_rate_limit" json:"chat_rate_limit"`
}

const (
	DefaultProvider      = "cortex"
	DefaultChatRateLimit = 30
)

// providerEnv maps provider config keys to environment variables.
var providerEnv = map[string]map[string]string{
	"cortex": {
		"account":            "SNOWFLAKE_ACCOUNT",
		"base_url":           "SNOWFLAKE_BASE_URL",
		"token":              "SNOWFLAKE_TOKEN",
		"token_type":         "SNOWFLAKE_TOKEN_TYPE",
		"database":           "DATABASE",
		"schema":             "SCHEMA",
		"agent":              "AGENT_NAME",
		"origin_application": "SNOWFLAKE_ORIGIN_APPLICATION",
		"analyst_tool":       "SNOWFLAKE_ANALYST_TOOL",
		"search_tool":        "SNOWFLAKE_SEARCH_TOOL",
		"legacy_model":       "SNOWFLAKE_LEGACY_MODEL",
		"attempts":           "SNOWFLAKE_ATTEMPTS",
		"timeout":            "UPSTREAM_TIMEOUT",
	},
	"openai": {
		"api_key":       "OPENAI_API_KEY",
		"base_url":      "OPENAI_BASE_URL",
		"default_model": "OPENAI_MODEL",
		"system_prompt": "OPENAI_SYSTEM_PROMPT",
	},
}

// Load reads .env (if present), the environment and the optional config file.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		Port:          getEnv("PORT", "8080"),
		StaticDir:     getEnv("STATIC_DIR", "web/static"),
		TemplatesDir:  getEnv("TEMPLATES_DIR", "web/templates"),
		LogDir:        getEnv("LOG_DIR", "logs"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DebugMode:     getEnvBool("DEBUG_MODE", false),
		ConfigFile:    getEnv("CONFIG_FILE", ""),
		AdminToken:    getEnv("ADMIN_TOKEN", ""),
		LLMProvider:   getEnv("LLM_PROVIDER", DefaultProvider),
		ChatRateLimit: getEnvInt("CHAT_RATE_LIMIT", DefaultChatRateLimit),
	}

	var file *FileConfig
	if cfg.ConfigFile != "" {
		var err error
		if file, err = ReadFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if file != nil && file.LLMProvider != "" && os.Getenv("LLM_PROVIDER") == "" {
		cfg.LLMProvider = file.LLMProvider
	}

	cfg.LLMConfig = map[string]string{}
	if file != nil {
		for k, v := range file.LLMConfig {
			cfg.LLMConfig[k] = v
		}
		cfg.Segmenter = file.Segmenter
		if file.ChatRateLimit > 0 && os.Getenv("CHAT_RATE_LIMIT") == "" {
			cfg.ChatRateLimit = file.ChatRateLimit
		}
	}
	for key, env := range providerEnv[cfg.LLMProvider] {
		if v := os.Getenv(env); v != "" {
			cfg.LLMConfig[key] = v
		}
	}
	cfg.Segmenter = cfg.Segmenter.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile parses a config overlay. The extension picks the format:
// .json is JSON, anything else YAML.
func ReadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &fc)
	} else {
		err = yaml.Unmarshal(data, &fc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", filepath.Base(path), err)
	}
	return &fc, nil
}

// Validate rejects settings the server cannot start with.
func (c *AppConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port must not be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.ChatRateLimit < 0 {
		return fmt.Errorf("chat rate limit must not be negative")
	}
	if c.LLMProvider == "" {
		return fmt.Errorf("llm provider must not be empty")
	}
	return nil
}

// Clone returns a deep copy.
func (c *AppConfig) Clone() *AppConfig {
	cp := *c
	cp.LLMConfig = make(map[string]string, len(c.LLMConfig))
	for k, v := range c.LLMConfig {
		cp.LLMConfig[k] = v
	}
	return &cp
}

// Sanitized returns display settings with secrets masked.
func (c *AppConfig) Sanitized() map[string]interface{} {
	return map[string]interface{}{
		"port":            c.Port,
		"debug_mode":      c.DebugMode,
		"log_level":       c.LogLevel,
		"llm_provider":    c.LLMProvider,
		"llm_config":      utils.RedactConfig(c.LLMConfig),
		"segmenter":       c.Segmenter,
		"chat_rate_limit": c.ChatRateLimit,
		"admin_token_set": c.AdminToken != "",
	}
}

// InitConfig loads the configuration into the singleton.
func InitConfig() (*AppConfig, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		utils.GetLogger().Warn("Failed to create log directory", map[string]interface{}{
			"dir":   cfg.LogDir,
			"error": err.Error(),
		})
	}

	setCurrent(cfg)
	return cfg.Clone(), nil
}

// Reload re-reads environment and file and replaces the singleton.
// On error the previous configuration stays active.
func Reload() (*AppConfig, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	setCurrent(cfg)
	return cfg.Clone(), nil
}

func setCurrent(cfg *AppConfig) {
	configMutex.Lock()
	defer configMutex.Unlock()
	currentConfig = cfg
}

// GetCurrentConfig returns a copy of the active configuration.
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		return &AppConfig{
			Port:          "8080",
			StaticDir:     "web/static",
			TemplatesDir:  "web/templates",
			LogDir:        "logs",
			LogLevel:      "info",
			LLMProvider:   DefaultProvider,
			LLMConfig:     map[string]string{},
			Segmenter:     segmenter.DefaultThresholds(),
			ChatRateLimit: DefaultChatRateLimit,
		}
	}
	return currentConfig.Clone()
}

// UpdateLLMConfig swaps provider settings in memory. Nothing is written to disk.
func UpdateLLMConfig(provider string, llmConfig map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("config not initialized")
	}
	if provider == "" {
		return fmt.Errorf("llm provider must not be empty")
	}

	cp := make(map[string]string, len(llmConfig))
	for k, v := range llmConfig {
		cp[k] = v
	}
	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = cp
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		utils.GetLogger().Warn("Ignoring non-numeric environment value", map[string]interface{}{
			"key": key,
		})
		return defaultValue
	}
	return n
}
