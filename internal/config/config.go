// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultCron is the schedule used when a platform has no cron expression
// configured: every five minutes, six-field (with seconds) syntax.
const DefaultCron = "0 */5 * * * *"

// Config represents the application configuration.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	Gitee    PlatformConfig `mapstructure:"gitee"`
	GitCode  PlatformConfig `mapstructure:"gitcode"`
	Cnb      PlatformConfig `mapstructure:"cnb"`
	Codeberg CodebergConfig `mapstructure:"codeberg"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	Token string `mapstructure:"token"`
	Debug bool   `mapstructure:"debug"`
}

// PlatformConfig holds the per-platform polling configuration shared by
// every hosting platform: API token, optional forward proxy and the cron
// expression for its scheduled passes.
type PlatformConfig struct {
	Token string `mapstructure:"token"`
	Proxy string `mapstructure:"proxy"`
	Cron  string `mapstructure:"cron"`
}

// GitHubConfig extends PlatformConfig with an optional reverse-proxy base
// URL substituted for api.github.com.
type GitHubConfig struct {
	PlatformConfig `mapstructure:",squash"`
	ReverseProxy   string `mapstructure:"reverse_proxy"`
}

// CodebergConfig extends PlatformConfig with an API base URL override for
// self-hosted Forgejo/Gitea instances.
type CodebergConfig struct {
	PlatformConfig `mapstructure:",squash"`
	BaseURL        string `mapstructure:"base_url"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "./data/gitwatch.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("telegram.debug", false)
	for _, p := range []string{"github", "gitee", "gitcode", "cnb", "codeberg"} {
		v.SetDefault(p+".cron", DefaultCron)
	}

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Read environment variables
	v.SetEnvPrefix("GITWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks if all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	return nil
}

// ServerAddress returns the full server address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
