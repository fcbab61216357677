// Package config handles configuration loading and management.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/eachlabs/chatline/internal/credentials"
)

// DefaultBaseURL is the chat service used when none is configured.
const DefaultBaseURL = "https://chat.project-x.space/api/v1"

// KnownModels lists the model ids offered by the chat service.
var KnownModels = []string{
	"openai/gpt-4o",
	"openai/gpt-4o-mini",
	"openai/gpt-4.1",
	"openai/gpt-3.5-turbo",
}

// SameModel reports whether a and b name the same model. The service
// accepts both "provider:model" and "provider/model".
func SameModel(a, b string) bool {
	return normalizeModel(a) == normalizeModel(b)
}

func normalizeModel(id string) string {
	return strings.Replace(strings.TrimSpace(id), ":", "/", 1)
}

// Config represents the chatline configuration.
type Config struct {
	API      APIConfig      `toml:"api"`
	Defaults DefaultsConfig `toml:"defaults"`
	Logging  LoggingConfig  `toml:"logging"`
}

// APIConfig holds the chat service connection settings.
type APIConfig struct {
	BaseURL            string   `toml:"base_url"`
	APIKey             string   `toml:"api_key"`
	BearerToken        string   `toml:"bearer_token"`
	Timeout            Duration `toml:"timeout"`
	RequestsPerSecond  float64  `toml:"requests_per_second"`
	UserAgent          string   `toml:"user_agent"`
	ConversationScoped bool     `toml:"conversation_scoped"`
}

// DefaultsConfig holds per-request defaults.
type DefaultsConfig struct {
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	Stream      bool    `toml:"stream"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	File   string `toml:"file"`
	Format string `toml:"format"` // "console" or "json"
}

// Duration is a time.Duration that reads and writes as "60s" in toml.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load reads configuration from the default path and the environment.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads configuration from path (if it exists) and applies
// environment overrides on top.
func LoadFrom(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.expandPaths()

	return cfg, nil
}

// ReadFile returns the defaults overlaid with the file at path, without
// environment overrides. A missing file is not an error.
func ReadFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, errors.Wrap(err, "failed to parse config")
			}
		}
	}
	return cfg, nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	if p := os.Getenv("CHATLINE_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(StateDir(), "config.toml")
}

// StateDir returns the chatline state directory.
func StateDir() string {
	if p := os.Getenv("CHATLINE_STATE_DIR"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatline")
}

// LogsDir returns the logs directory.
func LogsDir() string {
	return filepath.Join(StateDir(), "logs")
}

// Credentials returns the configured credentials as a provider.
func (c *Config) Credentials() credentials.Provider {
	return credentials.Static{
		APIKey:      c.API.APIKey,
		BearerToken: c.API.BearerToken,
	}
}

func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   DefaultBaseURL,
			Timeout:   Duration{60 * time.Second},
			UserAgent: "chatline/dev",
		},
		Defaults: DefaultsConfig{
			Model:       "openai:gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   2000,
			Stream:      true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func (c *Config) applyEnv() {
	if base := os.Getenv("CHATLINE_API_BASE"); base != "" {
		c.API.BaseURL = base
	}
	if key := os.Getenv("CHATLINE_API_KEY"); key != "" {
		c.API.APIKey = key
	}
	if token := os.Getenv("CHATLINE_TOKEN"); token != "" {
		c.API.BearerToken = token
	}
	if model := os.Getenv("CHATLINE_MODEL"); model != "" {
		c.Defaults.Model = model
	}
	if level := os.Getenv("CHATLINE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if rps := os.Getenv("CHATLINE_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			c.API.RequestsPerSecond = v
		}
	}

	c.API.BaseURL = strings.TrimSuffix(c.API.BaseURL, "/")
}

func (c *Config) expandPaths() {
	home, _ := os.UserHomeDir()

	expand := func(p string) string {
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		if strings.HasPrefix(p, "$HOME/") {
			return filepath.Join(home, p[6:])
		}
		return p
	}

	c.Logging.File = expand(c.Logging.File)
}

// Save writes the config to path, or the default path when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// EnsureDirs creates necessary directories.
func EnsureDirs() error {
	dirs := []string{
		StateDir(),
		LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	return nil
}
