package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Persona  PersonaConfig  `mapstructure:"persona"`
}

// LLMConfig holds everything the gateway needs to talk to the upstream
// chat-completion endpoint. All of it is fixed at construction time.
type LLMConfig struct {
	BaseURL         string  `mapstructure:"base_url"`
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Temperature     float32 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	PresencePenalty float32 `mapstructure:"presence_penalty"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	MaxRetries      int     `mapstructure:"max_retries"`
	RetryBackoffMS  int     `mapstructure:"retry_backoff_ms"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// DatabaseConfig holds the sqlite configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// PersonaConfig holds the persona instruction override. When empty the
// built-in debate persona is used.
type PersonaConfig struct {
	Instruction string `mapstructure:"instruction"`
}

// Load reads config.yaml (or the file named by CONFIG_PATH) plus CHATBOT_*
// environment overrides. The config file is optional; the LLM API key is not —
// Load fails immediately when the key is missing so a bad deployment dies at
// startup instead of on the first request.
func Load() (*Config, error) {
	v := viper.New()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CHATBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.LLM.APIKey == "" {
		return nil, errors.New("llm api key is not configured (set llm.api_key or CHATBOT_LLM_API_KEY)")
	}
	if cfg.LLM.MaxRetries < 1 {
		cfg.LLM.MaxRetries = 1
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "deepseek/deepseek-r1-0528:free")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.presence_penalty", 0.0)
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_backoff_ms", 500)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.path", "chat.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("persona.instruction", "")
}
