package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "TUTOR"

// APIKeyEnv is the one secret the server needs.
const APIKeyEnv = "DEEPSEEK_API_KEY"

var ErrMissingAPIKey = errors.New(APIKeyEnv + " must be set")

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Tutor    TutorConfig    `mapstructure:"tutor"`
	Store    StoreConfig    `mapstructure:"store"`
	Client   ClientConfig   `mapstructure:"client"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"` // 0 means no deadline
}

type TutorConfig struct {
	PromptFile string `mapstructure:"prompt_file"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"` // "memory" or "sqlite"
	DSN     string `mapstructure:"dsn"`
}

type ClientConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8100")

	v.SetDefault("upstream.base_url", "https://api.deepseek.com")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.timeout", time.Duration(0))

	v.SetDefault("tutor.prompt_file", "")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.dsn", "file:tutor.db")

	v.SetDefault("client.server_url", "http://localhost:8100")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads defaults, an optional YAML file and TUTOR_* environment
// overrides, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("upstream.api_key", EnvPrefix+"_UPSTREAM_API_KEY", APIKeyEnv); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// RequireAPIKey fails when no upstream credential is configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Upstream.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// SystemPrompt returns the tutoring instruction from tutor.prompt_file, or
// def when no file is configured.
func (c *Config) SystemPrompt(def string) (string, error) {
	if c.Tutor.PromptFile == "" {
		return def, nil
	}
	b, err := os.ReadFile(c.Tutor.PromptFile)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file: %w", err)
	}
	prompt := strings.TrimSpace(string(b))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %s is empty", c.Tutor.PromptFile)
	}
	return prompt, nil
}
