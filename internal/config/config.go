// Package config loads file-based settings for the CLI front-end.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"feedsync/internal/fetch"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Fetch    FetchConfig    `yaml:"fetch"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type FetchConfig struct {
	Timeout   string `yaml:"timeout"`
	UserAgent string `yaml:"user_agent"`
}

func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "feedsync.db"},
		Fetch: FetchConfig{
			Timeout:   fetch.DefaultTimeout.String(),
			UserAgent: fetch.DefaultUserAgent,
		},
	}
}

// Load reads the yaml file at path. A missing file yields the defaults;
// fields absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// TimeoutDuration parses the configured fetch timeout.
func (f FetchConfig) TimeoutDuration() (time.Duration, error) {
	timeout, err := time.ParseDuration(f.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parse fetch timeout: %w", err)
	}

	return timeout, nil
}
