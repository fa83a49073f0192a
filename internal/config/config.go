// Package config loads the rendergrid service configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// APIKeyEnvs are consulted, in order, when no API key env var is configured.
var APIKeyEnvs = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// Config is the top-level configuration.
type Config struct {
	Listen        string       `yaml:"listen"`
	DataDir       string       `yaml:"data_dir"`
	DBPath        string       `yaml:"db_path"`
	Workers       int          `yaml:"workers"`
	BaseAssetPath string       `yaml:"base_asset_path"`
	Gemini        GeminiConfig `yaml:"gemini"`
	Log           LogConfig    `yaml:"log"`
}

// GeminiConfig selects the model used for AI column mapping.
type GeminiConfig struct {
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string `yaml:"api_key_env"`
}

type LogConfig struct {
	Mode  string `yaml:"mode"` // development | production
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file. Missing fields take defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if c.Workers < 0 {
		return nil, fmt.Errorf("parse config: workers must not be negative")
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "rendergrid.db")
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-flash"
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "development"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// APIKey returns the Gemini API key from the environment, or "".
func (c *Config) APIKey() string {
	if c.Gemini.APIKeyEnv != "" {
		return os.Getenv(c.Gemini.APIKeyEnv)
	}
	for _, env := range APIKeyEnvs {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}
