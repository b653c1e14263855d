// Package config loads the chatkit configuration: built-in defaults, then an
// optional TOML file, then CHATKIT_-prefixed environment variables, each layer
// overriding the previous one.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const envPrefix = "CHATKIT_"

// Config is the full chatkit configuration.
type Config struct {
	Backend   BackendConfig   `koanf:"backend"`
	Transport TransportConfig `koanf:"transport"`
	Store     StoreConfig     `koanf:"store"`
	Log       LogConfig       `koanf:"log"`
	Serve     ServeConfig     `koanf:"serve"`
}

// BackendConfig locates the widget backend.
type BackendConfig struct {
	BaseURL string `koanf:"base_url"`
	Tenant  string `koanf:"tenant"`
}

// TransportConfig selects and tunes the duplex channel.
type TransportConfig struct {
	// Mode is "websocket" or "polling".
	Mode           string `koanf:"mode"`
	PollIntervalMs int    `koanf:"poll_interval_ms"`
	HeartbeatSec   int    `koanf:"heartbeat_sec"`
	MaxAttempts    int    `koanf:"max_attempts"`
}

func (t TransportConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}

func (t TransportConfig) Heartbeat() time.Duration {
	return time.Duration(t.HeartbeatSec) * time.Second
}

// StoreConfig locates the session database. An empty path keeps session state
// in memory only.
type StoreConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// ServeConfig tunes the development backend.
type ServeConfig struct {
	Addr         string `koanf:"addr"`
	AutoReply    bool   `koanf:"auto_reply"`
	ReplyDelayMs int    `koanf:"reply_delay_ms"`
	Welcome      string `koanf:"welcome"`
}

func (s ServeConfig) ReplyDelay() time.Duration {
	return time.Duration(s.ReplyDelayMs) * time.Millisecond
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"backend.base_url":           "http://localhost:8600",
		"backend.tenant":             "dev",
		"transport.mode":             "websocket",
		"transport.poll_interval_ms": 1000,
		"transport.heartbeat_sec":    30,
		"transport.max_attempts":     10,
		"log.level":                  "info",
		"serve.addr":                 ":8600",
		"serve.auto_reply":           true,
		"serve.reply_delay_ms":       600,
	}
}

// Load builds the configuration. When path is empty, a few conventional
// locations are tried and silently skipped when absent.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "load default config")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
	} else {
		for _, candidate := range []string{"./chatkit.toml", "$HOME/.chatkit.toml"} {
			candidate = os.ExpandEnv(candidate)
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			if err := k.Load(file.Provider(candidate), toml.Parser()); err != nil {
				return nil, errors.Wrapf(err, "load config file %s", candidate)
			}
			break
		}
	}

	// CHATKIT_BACKEND_BASE_URL overrides backend.base_url, and so on. The
	// first underscore separates the section from the key.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(s, "_", ".", 1)
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load config from environment")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return errors.New("backend.base_url is required")
	}
	if strings.TrimSpace(c.Backend.Tenant) == "" {
		return errors.New("backend.tenant is required")
	}
	switch c.Transport.Mode {
	case "websocket", "polling":
	default:
		return errors.Errorf("transport.mode must be websocket or polling, got %q", c.Transport.Mode)
	}
	return nil
}
