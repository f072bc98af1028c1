package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the daemon configuration, loaded from YAML.
type Config struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
	FlowsDir string `yaml:"flows_dir"`

	Store StoreConfig `yaml:"store"`
	Lock  LockConfig  `yaml:"lock"`
	LLM   LLMConfig   `yaml:"llm"`

	CollaboratorTimeout Duration `yaml:"collaborator_timeout"`
}

// StoreConfig selects the checkpoint store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, redis, sqlite, postgres

	Redis struct {
		Addr     string   `yaml:"addr"`
		Password string   `yaml:"password"`
		DB       int      `yaml:"db"`
		Prefix   string   `yaml:"prefix"`
		TTL      Duration `yaml:"ttl"`
	} `yaml:"redis"`

	SQLite struct {
		Path        string `yaml:"path"`
		TablePrefix string `yaml:"table_prefix"`
	} `yaml:"sqlite"`

	Postgres struct {
		ConnString  string `yaml:"conn_string"`
		TablePrefix string `yaml:"table_prefix"`
	} `yaml:"postgres"`
}

// LockConfig selects the per-conversation locker backend.
type LockConfig struct {
	Backend string `yaml:"backend"` // memory, redis

	Redis struct {
		Addr     string   `yaml:"addr"`
		Password string   `yaml:"password"`
		DB       int      `yaml:"db"`
		Prefix   string   `yaml:"prefix"`
		TTL      Duration `yaml:"ttl"`
	} `yaml:"redis"`
}

// LLMConfig configures the OpenAI-compatible collaborator.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"` // falls back to OPENAI_API_KEY
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// DefaultConfig returns a config suitable for local development.
func DefaultConfig() *Config {
	cfg := &Config{
		Listen:   ":8080",
		LogLevel: "info",
		FlowsDir: "flows",
	}
	cfg.Store.Backend = "memory"
	cfg.Lock.Backend = "memory"
	return cfg
}

// LoadConfig reads a YAML config file, applying defaults for any field the
// file leaves unset. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config: %w", err)
	}
	return cfg, nil
}
