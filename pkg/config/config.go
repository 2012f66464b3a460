// Package config loads gateway settings from an optional YAML file with
// environment variables taking precedence.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds everything the gateway needs at startup.
type Config struct {
	Addr      string `yaml:"addr" env:"PARLEY_ADDR"`
	DBPath    string `yaml:"db_path" env:"PARLEY_DB_PATH"`
	RedisAddr string `yaml:"redis_addr" env:"PARLEY_REDIS_ADDR"`

	AgentBaseURL string `yaml:"agent_base_url" env:"AGENT_API_URL"`
	AgentName    string `yaml:"agent_name" env:"AGENT_NAME"`
	AgentSecret  string `yaml:"agent_secret" env:"AGENT_API_SECRET"`

	JWTSecret  string        `yaml:"jwt_secret" env:"PARLEY_JWT_SECRET"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"PARLEY_SESSION_TTL"`
	CacheTTL   time.Duration `yaml:"cache_ttl" env:"PARLEY_CACHE_TTL"`

	LogLevel  string `yaml:"log_level" env:"PARLEY_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"PARLEY_LOG_FORMAT"`
}

// Load reads the YAML file at path (skipped when path is empty or missing),
// applies environment overrides, and fills in defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, errors.Wrap(err, "read config file")
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, errors.Wrap(err, "parse config file")
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "parse env config")
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "parley.db"
	}
	if c.AgentBaseURL == "" {
		c.AgentBaseURL = "http://backend:8081"
	}
	if c.AgentName == "" {
		c.AgentName = "telogical-assistant"
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
}

// Validate checks settings the server cannot run without.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: jwt secret is required")
	}
	if c.AgentBaseURL == "" {
		return errors.New("config: agent base url is required")
	}
	return nil
}
